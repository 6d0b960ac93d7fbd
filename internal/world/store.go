package world

import (
	"fmt"
	"sort"

	"github.com/annel0/cubescape/internal/vec"
	"github.com/annel0/cubescape/internal/world/block"
)

// Bounds ограничивает мир по вертикали (в координатах чанков, включительно).
// Нулевое значение: мир без границ.
type Bounds struct {
	Enabled bool
	MinY    int
	MaxY    int
}

// Contains проверяет, лежит ли чанк внутри мира
func (b Bounds) Contains(c ChunkCoord) bool {
	if !b.Enabled {
		return true
	}
	return c.Y >= b.MinY && c.Y <= b.MaxY
}

// StoreOptions задаёт параметры хранилища
type StoreOptions struct {
	ChunkSize int
	Seed      int64
	Bounds    Bounds
}

// Store владеет множеством загруженных чанков.
// Доступ только из горутины-владельца (цикл обновления).
type Store struct {
	size      int
	seed      int64
	bounds    Bounds
	generator Generator

	chunks map[ChunkCoord]*Chunk

	dirtySet   map[ChunkCoord]struct{}
	dirtyQueue []ChunkCoord

	unloadHooks []func(ChunkCoord)
}

// NewStore создаёт хранилище чанков
func NewStore(opts StoreOptions, generator Generator) *Store {
	if opts.ChunkSize <= 0 {
		panic("world: размер чанка должен быть положительным")
	}
	return &Store{
		size:      opts.ChunkSize,
		seed:      opts.Seed,
		bounds:    opts.Bounds,
		generator: generator,
		chunks:    make(map[ChunkCoord]*Chunk),
		dirtySet:  make(map[ChunkCoord]struct{}),
	}
}

// ChunkSize возвращает размер чанков хранилища
func (s *Store) ChunkSize() int { return s.size }

// Seed возвращает сид генерации
func (s *Store) Seed() int64 { return s.seed }

// Bounds возвращает границы мира
func (s *Store) Bounds() Bounds { return s.bounds }

// Generator возвращает коллаборатор генерации
func (s *Store) Generator() Generator { return s.generator }

// OnUnload регистрирует обработчик выгрузки чанка.
// Обработчик забирает владение мешем чанка (освобождение GPU-ресурсов).
func (s *Store) OnUnload(hook func(ChunkCoord)) {
	s.unloadHooks = append(s.unloadHooks, hook)
}

// Len возвращает количество загруженных чанков
func (s *Store) Len() int { return len(s.chunks) }

// Get возвращает загруженный чанк
func (s *Store) Get(coord ChunkCoord) (*Chunk, bool) {
	c, ok := s.chunks[coord]
	return c, ok
}

// IsLoaded сообщает, загружен ли чанк
func (s *Store) IsLoaded(coord ChunkCoord) bool {
	_, ok := s.chunks[coord]
	return ok
}

// Loaded возвращает координаты загруженных чанков в детерминированном порядке
func (s *Store) Loaded() []ChunkCoord {
	keys := make([]ChunkCoord, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].Z < keys[j].Z
	})
	return keys
}

// Load возвращает чанк, генерируя его синхронно при отсутствии.
// Повторный вызов возвращает тот же экземпляр.
func (s *Store) Load(coord ChunkCoord) (*Chunk, error) {
	if c, ok := s.chunks[coord]; ok {
		return c, nil
	}
	if !s.bounds.Contains(coord) {
		return nil, fmt.Errorf("load %v: %w", coord, ErrOutsideWorld)
	}

	blocks, err := s.generator.Generate(coord, s.seed, s.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrGeneration, coord, err)
	}
	return s.Insert(coord, blocks)
}

// Insert публикует сгенерированный буфер как загруженный чанк и забирает
// владение буфером. Новый чанк и его загруженные соседи помечаются грязными.
// Повторная вставка координаты нарушает инвариант и вызывает панику.
func (s *Store) Insert(coord ChunkCoord, blocks []block.BlockID) (*Chunk, error) {
	if _, exists := s.chunks[coord]; exists {
		panic(fmt.Sprintf("world: повторная вставка чанка %v", coord))
	}
	if want := s.size * s.size * s.size; len(blocks) != want {
		return nil, fmt.Errorf("%w: %v: buffer has %d voxels, want %d", ErrGeneration, coord, len(blocks), want)
	}

	c := newChunkFromBlocks(coord, s.size, blocks)
	c.onDirty = s.enqueueDirty
	s.chunks[coord] = c
	c.MarkDirty()

	// Соседи ставятся в очередь даже уже грязными: их перестроение
	// могло быть отложено до появления этого чанка
	for _, d := range AllDirections {
		s.MarkDirty(coord.Neighbor(d))
	}
	return c, nil
}

// Unload удаляет чанк и передает его меш обработчикам выгрузки.
// Для незагруженного чанка ничего не делает.
func (s *Store) Unload(coord ChunkCoord) {
	c, ok := s.chunks[coord]
	if !ok {
		return
	}

	c.onDirty = nil
	delete(s.chunks, coord)
	delete(s.dirtySet, coord)

	for _, hook := range s.unloadHooks {
		hook(coord)
	}
}

// MarkDirty ставит чанк в очередь на перестроение меша.
// Возвращает false, если чанк не загружен.
func (s *Store) MarkDirty(coord ChunkCoord) bool {
	c, ok := s.chunks[coord]
	if !ok {
		return false
	}
	if c.dirty {
		s.enqueueDirty(coord)
		return true
	}
	c.MarkDirty()
	return true
}

func (s *Store) enqueueDirty(coord ChunkCoord) {
	if _, queued := s.dirtySet[coord]; queued {
		return
	}
	s.dirtySet[coord] = struct{}{}
	s.dirtyQueue = append(s.dirtyQueue, coord)
}

// TakeDirty забирает очередь грязных чанков в порядке загрязнения
func (s *Store) TakeDirty() []ChunkCoord {
	if len(s.dirtyQueue) == 0 {
		return nil
	}

	out := make([]ChunkCoord, 0, len(s.dirtySet))
	for _, coord := range s.dirtyQueue {
		if _, ok := s.dirtySet[coord]; !ok {
			continue // выгружен после постановки в очередь
		}
		out = append(out, coord)
	}
	s.dirtyQueue = s.dirtyQueue[:0]
	clear(s.dirtySet)
	return out
}

// PendingDirty возвращает длину очереди грязных чанков
func (s *Store) PendingDirty() int { return len(s.dirtySet) }

// NeighborBoundary возвращает слой соседа в направлении d, прилегающий к coord.
// Никогда не загружает соседа.
func (s *Store) NeighborBoundary(coord ChunkCoord, d Direction) (Boundary, error) {
	nc := coord.Neighbor(d)
	if !s.bounds.Contains(nc) {
		return Boundary{Kind: BoundaryEdge}, ErrOutsideWorld
	}
	n, ok := s.chunks[nc]
	if !ok {
		return Boundary{Kind: BoundaryMissing}, ErrChunkNotLoaded
	}
	return Boundary{Kind: BoundaryLoaded, Blocks: n.Face(d.Opposite())}, nil
}

// Neighbors собирает граничные слои всех шести соседей
func (s *Store) Neighbors(coord ChunkCoord) Neighbors {
	var out Neighbors
	for _, d := range AllDirections {
		out[d], _ = s.NeighborBoundary(coord, d)
	}
	return out
}

// NeighborMask возвращает маску загруженных соседей без копирования слоев
func (s *Store) NeighborMask(coord ChunkCoord) uint8 {
	var m uint8
	for _, d := range AllDirections {
		if _, ok := s.chunks[coord.Neighbor(d)]; ok {
			m |= 1 << d
		}
	}
	return m
}

// NeighborsComplete сообщает, что все соседи внутри мира загружены
func (s *Store) NeighborsComplete(coord ChunkCoord) bool {
	for _, d := range AllDirections {
		nc := coord.Neighbor(d)
		if !s.bounds.Contains(nc) {
			continue
		}
		if _, ok := s.chunks[nc]; !ok {
			return false
		}
	}
	return true
}

// Block возвращает блок по мировым координатам
func (s *Store) Block(pos vec.Vec3) (block.BlockID, error) {
	coord, local := ChunkCoordOf(pos, s.size)
	c, ok := s.chunks[coord]
	if !ok {
		if !s.bounds.Contains(coord) {
			return block.AirBlockID, ErrOutsideWorld
		}
		return block.AirBlockID, ErrChunkNotLoaded
	}
	return c.Get(local.X, local.Y, local.Z)
}

// SetBlock изменяет блок по мировым координатам. Чанк-владелец помечается
// грязным; если воксель лежит на грани, грязным становится и загруженный
// сосед по этой грани. Незагруженные чанки не загружаются.
func (s *Store) SetBlock(pos vec.Vec3, id block.BlockID) error {
	coord, local := ChunkCoordOf(pos, s.size)
	c, ok := s.chunks[coord]
	if !ok {
		return fmt.Errorf("set block %v: %w", pos, ErrChunkNotLoaded)
	}

	before := c.Version()
	if err := c.Set(local.X, local.Y, local.Z, id); err != nil {
		return err
	}
	if c.Version() == before {
		return nil
	}

	p := [3]int{local.X, local.Y, local.Z}
	for _, d := range AllDirections {
		edge := 0
		if d.Positive() {
			edge = s.size - 1
		}
		if p[d.Axis()] == edge {
			s.MarkDirty(coord.Neighbor(d))
		}
	}
	return nil
}
