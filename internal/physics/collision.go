package physics

import (
	"errors"
	"math"

	"github.com/annel0/cubescape/internal/vec"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
)

// Occupancy отдаёт блоки по мировым координатам (world.Store)
type Occupancy interface {
	Block(pos vec.Vec3) (block.BlockID, error)
}

// BoxCollider представляет прямоугольный коллайдер сущности
type BoxCollider struct {
	Size mgl32.Vec3 // Размер в блоках
}

// NewBoxCollider создаёт новый коллайдер с указанными размерами
func NewBoxCollider(width, height, depth float32) *BoxCollider {
	return &BoxCollider{Size: mgl32.Vec3{width, height, depth}}
}

// At возвращает AABB коллайдера, стоящего ногами в точке pos
func (bc *BoxCollider) At(pos mgl32.Vec3) AABB {
	half := mgl32.Vec3{bc.Size.X() / 2, 0, bc.Size.Z() / 2}
	return AABB{
		Min: pos.Sub(half),
		Max: pos.Add(mgl32.Vec3{half.X(), bc.Size.Y(), half.Z()}),
	}
}

// AABB: ограничивающий параллелепипед в мировых координатах
type AABB struct {
	Min, Max mgl32.Vec3
}

// Intersects проверяет пересечение двух параллелепипедов (касание не считается)
func (a AABB) Intersects(b AABB) bool {
	for i := 0; i < 3; i++ {
		if a.Max[i] <= b.Min[i] || a.Min[i] >= b.Max[i] {
			return false
		}
	}
	return true
}

// Translate сдвигает параллелепипед
func (a AABB) Translate(d mgl32.Vec3) AABB {
	return AABB{Min: a.Min.Add(d), Max: a.Max.Add(d)}
}

// Contains проверяет, находится ли точка внутри
func (a AABB) Contains(p mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < a.Min[i] || p[i] >= a.Max[i] {
			return false
		}
	}
	return true
}

// Solid сообщает, блокирует ли воксель движение.
// Незагруженный чанк считается твёрдым, пространство вне мира пустым.
func Solid(occ Occupancy, pos vec.Vec3) bool {
	id, err := occ.Block(pos)
	switch {
	case errors.Is(err, world.ErrChunkNotLoaded):
		return true
	case err != nil:
		return false
	}
	return block.IsOpaque(id)
}

// Collides проверяет пересечение параллелепипеда с твёрдыми вокселями
func Collides(occ Occupancy, box AABB) bool {
	minX, minY, minZ := floor(box.Min.X()), floor(box.Min.Y()), floor(box.Min.Z())
	maxX, maxY, maxZ := ceil(box.Max.X()), ceil(box.Max.Y()), ceil(box.Max.Z())

	for y := minY; y < maxY; y++ {
		for z := minZ; z < maxZ; z++ {
			for x := minX; x < maxX; x++ {
				if Solid(occ, vec.Vec3{X: x, Y: y, Z: z}) {
					return true
				}
			}
		}
	}
	return false
}

// CanMoveToPosition проверяет, может ли сущность с коллайдером стоять в pos
func CanMoveToPosition(occ Occupancy, collider *BoxCollider, pos mgl32.Vec3) bool {
	return !Collides(occ, collider.At(pos))
}

// Move сдвигает сущность на delta по осям по очереди (Y, X, Z).
// Ось, движение по которой приводит к столкновению, обнуляется.
func Move(occ Occupancy, collider *BoxCollider, pos, delta mgl32.Vec3) mgl32.Vec3 {
	for _, axis := range [3]int{1, 0, 2} {
		if delta[axis] == 0 {
			continue
		}
		next := pos
		next[axis] += delta[axis]
		if CanMoveToPosition(occ, collider, next) {
			pos = next
		}
	}
	return pos
}

func floor(f float32) int { return int(math.Floor(float64(f))) }
func ceil(f float32) int  { return int(math.Ceil(float64(f))) }
