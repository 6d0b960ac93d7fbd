package render

import (
	"sort"

	"github.com/annel0/cubescape/internal/ecs"
	"github.com/annel0/cubescape/internal/world"
	"github.com/go-gl/mathgl/mgl32"
)

// MeshComponent ссылается на GPU-копию меша чанка
type MeshComponent struct {
	Handle    Handle
	Coord     world.ChunkCoord
	Version   uint64
	Triangles int
}

// TransformComponent: мировое преобразование начала чанка
type TransformComponent struct {
	Origin mgl32.Vec3
	Model  mgl32.Mat4
}

// NewChunkTransform строит преобразование для чанка
func NewChunkTransform(coord world.ChunkCoord, size int) TransformComponent {
	o := coord.Origin(size)
	origin := mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
	return TransformComponent{
		Origin: origin,
		Model:  mgl32.Translate3D(origin.X(), origin.Y(), origin.Z()),
	}
}

// Components объединяет хранилища компонентов рендера
type Components struct {
	Meshes     *ecs.Store[MeshComponent]
	Transforms *ecs.Store[TransformComponent]
}

// RegisterComponents создаёт хранилища компонентов в мире
func RegisterComponents(w *ecs.World) Components {
	return Components{
		Meshes:     ecs.Register[MeshComponent](w),
		Transforms: ecs.Register[TransformComponent](w),
	}
}

// DrawCommand: одна команда отрисовки для RenderSubmission
type DrawCommand struct {
	Entity    ecs.EntityID
	Handle    Handle
	Model     mgl32.Mat4
	Triangles int
}

// CollectDrawCommands возвращает по команде на каждую сущность, у которой
// есть оба компонента. Порядок: по возрастанию handle.
func CollectDrawCommands(c Components) []DrawCommand {
	out := make([]DrawCommand, 0, c.Meshes.Len())
	c.Meshes.Each(func(e ecs.EntityID, m *MeshComponent) {
		tr, ok := c.Transforms.Get(e)
		if !ok {
			return
		}
		out = append(out, DrawCommand{
			Entity:    e,
			Handle:    m.Handle,
			Model:     tr.Model,
			Triangles: m.Triangles,
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
