package world

import "github.com/annel0/cubescape/internal/world/block"

// BoundaryKind описывает, откуда взят граничный слой соседа
type BoundaryKind uint8

const (
	BoundaryMissing BoundaryKind = iota // Сосед не загружен
	BoundaryLoaded                      // Сосед загружен, Blocks заполнен
	BoundaryEdge                        // Сосед за границей мира
)

func (k BoundaryKind) String() string {
	switch k {
	case BoundaryLoaded:
		return "loaded"
	case BoundaryMissing:
		return "missing"
	case BoundaryEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// Boundary: снимок слоя соседнего чанка, прилегающего к общей грани.
// Раскладка Blocks совпадает с Chunk.Face: u + v*size.
type Boundary struct {
	Kind   BoundaryKind
	Blocks []block.BlockID
}

// At возвращает блок граничного слоя. Для незагруженного соседа: воздух.
func (b Boundary) At(u, v, size int) block.BlockID {
	if b.Kind != BoundaryLoaded {
		return block.AirBlockID
	}
	return b.Blocks[u+v*size]
}

// Neighbors: граничные слои всех шести соседей в порядке AllDirections
type Neighbors [DirectionCount]Boundary

// Mask возвращает битовую маску загруженных соседей
func (n *Neighbors) Mask() uint8 {
	var m uint8
	for d, b := range n {
		if b.Kind == BoundaryLoaded {
			m |= 1 << d
		}
	}
	return m
}

// Complete сообщает, что ни один сосед не отсутствует.
// Соседи за границей мира отсутствующими не считаются.
func (n *Neighbors) Complete() bool {
	for _, b := range n {
		if b.Kind == BoundaryMissing {
			return false
		}
	}
	return true
}
