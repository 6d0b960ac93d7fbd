package world

import (
	"fmt"

	"github.com/annel0/cubescape/internal/vec"
)

// ChunkCoord: координаты чанка в единицах сетки чанков.
// Сравнение и хеширование по значению.
type ChunkCoord struct {
	X, Y, Z int
}

// Vec возвращает координаты как vec.Vec3
func (c ChunkCoord) Vec() vec.Vec3 {
	return vec.Vec3{X: c.X, Y: c.Y, Z: c.Z}
}

// Neighbor возвращает соседний чанк в направлении d
func (c ChunkCoord) Neighbor(d Direction) ChunkCoord {
	o := d.Offset()
	return ChunkCoord{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// Origin возвращает мировые координаты вокселя (0,0,0) чанка
func (c ChunkCoord) Origin(size int) vec.Vec3 {
	return c.Vec().Scale(size)
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// ChunkCoordOf переводит мировые координаты вокселя в координаты чанка
// и локальные координаты внутри него. Отрицательные координаты
// округляются вниз, а не к нулю.
func ChunkCoordOf(pos vec.Vec3, size int) (ChunkCoord, vec.Vec3) {
	c := ChunkCoord{
		X: vec.FloorDiv(pos.X, size),
		Y: vec.FloorDiv(pos.Y, size),
		Z: vec.FloorDiv(pos.Z, size),
	}
	local := vec.Vec3{
		X: vec.FloorMod(pos.X, size),
		Y: vec.FloorMod(pos.Y, size),
		Z: vec.FloorMod(pos.Z, size),
	}
	return c, local
}

// Direction: одно из шести направлений граней. Ось Y направлена вверх.
type Direction uint8

const (
	PosX Direction = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ

	DirectionCount // всегда последний
)

// AllDirections перечисляет направления в фиксированном порядке
var AllDirections = [DirectionCount]Direction{PosX, NegX, PosY, NegY, PosZ, NegZ}

var directionOffsets = [DirectionCount]vec.Vec3{
	PosX: {X: 1},
	NegX: {X: -1},
	PosY: {Y: 1},
	NegY: {Y: -1},
	PosZ: {Z: 1},
	NegZ: {Z: -1},
}

var directionNames = [DirectionCount]string{"+x", "-x", "+y", "-y", "+z", "-z"}

// Offset возвращает единичный вектор направления
func (d Direction) Offset() vec.Vec3 {
	return directionOffsets[d]
}

// Opposite возвращает противоположное направление
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Axis возвращает номер оси: 0: X, 1: Y, 2: Z
func (d Direction) Axis() int {
	return int(d) / 2
}

// Positive сообщает, смотрит ли направление в положительную сторону оси
func (d Direction) Positive() bool {
	return d%2 == 0
}

// Tangents возвращает две касательные оси (u, v) грани.
// Для положительного направления u × v совпадает с нормалью.
func (d Direction) Tangents() (u, v int) {
	a := d.Axis()
	return (a + 1) % 3, (a + 2) % 3
}

func (d Direction) String() string {
	if d >= DirectionCount {
		return "invalid"
	}
	return directionNames[d]
}
