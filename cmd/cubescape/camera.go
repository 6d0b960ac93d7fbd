package main

import (
	"math"

	"github.com/annel0/cubescape/internal/physics"
	"github.com/annel0/cubescape/internal/vec"
	"github.com/annel0/cubescape/internal/world"
	"github.com/go-gl/mathgl/mgl32"
)

const gravity = 0.5 // блоков за тик

// camera: наблюдатель, идущий по окружности вокруг начала координат.
// Пока чанки под ним не загружены, он стоит на месте: незагруженное твёрдо.
type camera struct {
	pos      mgl32.Vec3
	collider *physics.BoxCollider
	radius   float32
	step     float32 // радиан за тик
	angle    float32
}

func newCamera(radius, speed float32, height float32) *camera {
	c := &camera{
		collider: physics.NewBoxCollider(0.6, 1.8, 0.6),
		radius:   radius,
	}
	if radius > 0 {
		c.step = speed / radius
	}
	c.pos = mgl32.Vec3{radius, height, 0}
	return c
}

// advance продвигает камеру на один тик пути
func (c *camera) advance(occ physics.Occupancy) {
	next := c.angle + c.step
	target := mgl32.Vec3{
		c.radius * float32(math.Cos(float64(next))),
		c.pos.Y(),
		c.radius * float32(math.Sin(float64(next))),
	}
	delta := target.Sub(c.pos)
	delta[1] = -gravity

	moved := physics.Move(occ, c.collider, c.pos, delta)
	if moved.X() != c.pos.X() || moved.Z() != c.pos.Z() {
		c.angle = next
	}
	c.pos = moved
}

// block возвращает воксель, в котором стоят ноги камеры
func (c *camera) block() vec.Vec3 {
	return vec.Vec3{
		X: int(math.Floor(float64(c.pos.X()))),
		Y: int(math.Floor(float64(c.pos.Y()))),
		Z: int(math.Floor(float64(c.pos.Z()))),
	}
}

// chunk возвращает чанк наблюдателя
func (c *camera) chunk(size int) world.ChunkCoord {
	coord, _ := world.ChunkCoordOf(c.block(), size)
	return coord
}
