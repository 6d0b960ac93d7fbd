// Package worldsync связывает меши чанков с сущностями ECS.
// Сущность существует, пока чанк загружен и его текущий меш не пуст.
package worldsync

import (
	"fmt"

	"github.com/annel0/cubescape/internal/ecs"
	"github.com/annel0/cubescape/internal/logging"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/render"
	"github.com/annel0/cubescape/internal/world"
)

// Sync владеет соответствием координата чанка → сущность.
// Вызывается только из горутины-владельца.
type Sync struct {
	world     *ecs.World
	comps     render.Components
	bridge    render.Bridge
	chunkSize int
	logger    *logging.Logger

	entities map[world.ChunkCoord]ecs.EntityID
}

// New создаёт синхронизатор
func New(w *ecs.World, comps render.Components, bridge render.Bridge, chunkSize int) *Sync {
	return &Sync{
		world:     w,
		comps:     comps,
		bridge:    bridge,
		chunkSize: chunkSize,
		logger:    logging.GetRenderLogger(),
		entities:  make(map[world.ChunkCoord]ecs.EntityID),
	}
}

// Attach подписывает синхронизатор на выгрузку чанков хранилища
func (s *Sync) Attach(store *world.Store) {
	store.OnUnload(s.Remove)
}

// Apply публикует свежий меш чанка. Новый меш загружается до того,
// как старый освобождается: потребитель видит либо старый, либо новый.
// При ошибке загрузки остается старый меш.
func (s *Sync) Apply(mesh *meshing.Mesh) error {
	if mesh.Empty() {
		// Пустой чанк не рисуется
		s.Remove(mesh.Coord)
		return nil
	}

	h, err := s.bridge.Upload(mesh)
	if err != nil {
		s.logger.Error("Upload mesh %v failed: %v", mesh.Coord, err)
		return fmt.Errorf("upload mesh %v: %w", mesh.Coord, err)
	}

	next := render.MeshComponent{
		Handle:    h,
		Coord:     mesh.Coord,
		Version:   mesh.Version,
		Triangles: mesh.TriangleCount(),
	}

	e, exists := s.entities[mesh.Coord]
	if !exists {
		e = s.world.Create()
		s.entities[mesh.Coord] = e
		s.comps.Transforms.Set(e, render.NewChunkTransform(mesh.Coord, s.chunkSize))
		s.comps.Meshes.Set(e, next)
		s.logger.Debug("Chunk %v entity %v created", mesh.Coord, e)
		return nil
	}

	old, _ := s.comps.Meshes.Get(e)
	s.comps.Meshes.Set(e, next)
	if old.Handle != 0 {
		s.bridge.Release(old.Handle)
	}
	return nil
}

// Remove освобождает меш и уничтожает сущность чанка. Без сущности ничего не делает.
func (s *Sync) Remove(coord world.ChunkCoord) {
	e, ok := s.entities[coord]
	if !ok {
		return
	}
	if m, ok := s.comps.Meshes.Get(e); ok && m.Handle != 0 {
		s.bridge.Release(m.Handle)
	}
	s.world.Destroy(e)
	delete(s.entities, coord)
	s.logger.Debug("Chunk %v entity %v destroyed", coord, e)
}

// Entity возвращает сущность чанка
func (s *Sync) Entity(coord world.ChunkCoord) (ecs.EntityID, bool) {
	e, ok := s.entities[coord]
	return e, ok
}

// Len возвращает число сущностей чанков
func (s *Sync) Len() int { return len(s.entities) }

// Components возвращает хранилища компонентов рендера
func (s *Sync) Components() render.Components { return s.comps }
