package meshing

import (
	"github.com/annel0/cubescape/internal/world"
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex: вершина меша в локальных координатах чанка
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2 // В вокселях: объединенный квад повторяет текстуру
	Texture  uint16
}

// Mesh: результат мешинга одного чанка.
// Каждая грань представлена четырьмя вершинами и шестью индексами (два треугольника).
type Mesh struct {
	Coord   world.ChunkCoord
	Version uint64 // Версия чанка, из снимка которой построен меш

	Vertices []Vertex
	Indices  []uint32

	// Faces: число видимых единичных граней вокселей.
	// Не зависит от того, объединялись ли квады.
	Faces int
}

// Empty сообщает, что в меше нет геометрии
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Indices) == 0
}

// QuadCount возвращает число четырехугольников
func (m *Mesh) QuadCount() int {
	return len(m.Vertices) / 4
}

// TriangleCount возвращает число треугольников
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Mesh) addQuad(corners [4]mgl32.Vec3, normal mgl32.Vec3, w, h float32, texture uint16) {
	base := uint32(len(m.Vertices))
	uvs := [4]mgl32.Vec2{{0, 0}, {w, 0}, {w, h}, {0, h}}
	for i, p := range corners {
		m.Vertices = append(m.Vertices, Vertex{
			Position: p,
			Normal:   normal,
			UV:       uvs[i],
			Texture:  texture,
		})
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}
