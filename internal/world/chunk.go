package world

import (
	"github.com/annel0/cubescape/internal/world/block"
)

// Chunk хранит плотный кубический массив блоков размером size³.
// Индексация: idx = x + z*size + y*size*size.
//
// Чанк изменяется только из горутины-владельца (цикл обновления).
// Воркеры получают копии данных через Snapshot.
type Chunk struct {
	coord  ChunkCoord
	size   int
	blocks []block.BlockID

	dirty   bool
	version uint64 // Увеличивается при каждом изменении содержимого
	opaque  int    // Количество непрозрачных вокселей

	onDirty func(ChunkCoord) // Уведомление хранилища о загрязнении
}

// NewChunk создаёт пустой (воздух) чанк с указанными координатами
func NewChunk(coord ChunkCoord, size int) *Chunk {
	if size <= 0 {
		panic("world: размер чанка должен быть положительным")
	}
	return &Chunk{
		coord:  coord,
		size:   size,
		blocks: make([]block.BlockID, size*size*size),
	}
}

// newChunkFromBlocks забирает владение буфером blocks
func newChunkFromBlocks(coord ChunkCoord, size int, blocks []block.BlockID) *Chunk {
	c := &Chunk{
		coord:  coord,
		size:   size,
		blocks: blocks,
	}
	for _, id := range blocks {
		if block.IsOpaque(id) {
			c.opaque++
		}
	}
	return c
}

// Coord возвращает координаты чанка
func (c *Chunk) Coord() ChunkCoord { return c.coord }

// Size возвращает длину ребра чанка в вокселях
func (c *Chunk) Size() int { return c.size }

// Version возвращает счетчик изменений
func (c *Chunk) Version() uint64 { return c.version }

// Dirty сообщает, требуется ли перестроение меша
func (c *Chunk) Dirty() bool { return c.dirty }

// IsEmpty возвращает true, если в чанке нет непрозрачных блоков
func (c *Chunk) IsEmpty() bool { return c.opaque == 0 }

// InBounds проверяет локальные координаты
func (c *Chunk) InBounds(x, y, z int) bool {
	return x >= 0 && x < c.size && y >= 0 && y < c.size && z >= 0 && z < c.size
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*c.size + y*c.size*c.size
}

// Get возвращает ID блока по локальным координатам
func (c *Chunk) Get(x, y, z int) (block.BlockID, error) {
	if !c.InBounds(x, y, z) {
		return block.AirBlockID, &OutOfBoundsError{X: x, Y: y, Z: z, Size: c.size}
	}
	return c.blocks[c.index(x, y, z)], nil
}

// Set устанавливает блок по локальным координатам и помечает чанк грязным.
// Установка того же блока ничего не меняет.
func (c *Chunk) Set(x, y, z int, id block.BlockID) error {
	if !c.InBounds(x, y, z) {
		return &OutOfBoundsError{X: x, Y: y, Z: z, Size: c.size}
	}

	i := c.index(x, y, z)
	old := c.blocks[i]
	if old == id {
		return nil
	}

	if block.IsOpaque(old) {
		c.opaque--
	}
	if block.IsOpaque(id) {
		c.opaque++
	}
	c.blocks[i] = id
	c.version++
	c.MarkDirty()
	return nil
}

// MarkDirty помечает чанк для перестроения меша
func (c *Chunk) MarkDirty() {
	if c.dirty {
		return
	}
	c.dirty = true
	if c.onDirty != nil {
		c.onDirty(c.coord)
	}
}

// ClearDirty снимает отметку. Вызывается планировщиком при отправке
// задачи мешинга: правки после снимка снова загрязнят чанк.
func (c *Chunk) ClearDirty() {
	c.dirty = false
}

// Snapshot возвращает копию блоков и версию, к которой она относится
func (c *Chunk) Snapshot() ([]block.BlockID, uint64) {
	out := make([]block.BlockID, len(c.blocks))
	copy(out, c.blocks)
	return out, c.version
}

// Face возвращает слой блоков, прилегающий к грани d, в раскладке Boundary:
// индекс u + v*size по касательным осям направления.
func (c *Chunk) Face(d Direction) []block.BlockID {
	layer := 0
	if d.Positive() {
		layer = c.size - 1
	}

	ua, va := d.Tangents()
	out := make([]block.BlockID, c.size*c.size)
	var p [3]int
	p[d.Axis()] = layer
	for v := 0; v < c.size; v++ {
		p[va] = v
		for u := 0; u < c.size; u++ {
			p[ua] = u
			out[u+v*c.size] = c.blocks[c.index(p[0], p[1], p[2])]
		}
	}
	return out
}
