package world

import (
	"math"

	"github.com/annel0/cubescape/internal/util"
	"github.com/annel0/cubescape/internal/world/block"
)

// Generator производит начальное содержимое чанка.
// Реализация должна быть чистой функцией от (coord, seed, size)
// и безопасной для одновременного вызова из воркеров.
type Generator interface {
	Generate(coord ChunkCoord, seed int64, size int) ([]block.BlockID, error)
}

// GeneratorFunc позволяет использовать функцию как Generator
type GeneratorFunc func(coord ChunkCoord, seed int64, size int) ([]block.BlockID, error)

// Generate вызывает f
func (f GeneratorFunc) Generate(coord ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
	return f(coord, seed, size)
}

// Константы рельефа (в мировых вокселях)
const (
	SeaLevel    = 0
	BeachHeight = 2 // Выше уровня моря на столько блоков: ещё пляж
	DirtDepth   = 4 // Толщина слоя земли под поверхностью
)

// PerlinGenerator генерирует ландшафт по карте высот из шума Перлина
// и вырезает пещеры трехмерным шумом.
type PerlinGenerator struct {
	NoiseScale     float64 // Масштаб шума высоты
	HeightAmp      float64 // Амплитуда рельефа в блоках
	BaseHeight     float64 // Средняя высота поверхности
	CaveScale      float64 // Масштаб шума пещер
	CaveThreshold  float64 // Выше порога: пустота
	BedrockY       int     // Мировая высота слоя коренной породы
	BedrockEnabled bool
}

// NewPerlinGenerator создаёт генератор с настройками по умолчанию
func NewPerlinGenerator() *PerlinGenerator {
	return &PerlinGenerator{
		NoiseScale:    0.01,
		HeightAmp:     48,
		BaseHeight:    -8,
		CaveScale:     0.06,
		CaveThreshold: 0.78,
	}
}

// Generate заполняет чанк по координатам
func (g *PerlinGenerator) Generate(coord ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
	noise := util.NoiseForSeed(seed)
	caves := util.NoiseForSeed(seed + 42)
	origin := coord.Origin(size)
	blocks := make([]block.BlockID, size*size*size)

	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			wx := origin.X + x
			wz := origin.Z + z

			// Генерация высоты на основе шума Перлина
			h := noise.Noise2D(float64(wx)*g.NoiseScale, float64(wz)*g.NoiseScale)
			surface := int(math.Floor(g.BaseHeight + h*g.HeightAmp))

			for y := 0; y < size; y++ {
				wy := origin.Y + y
				id := g.blockAt(wy, surface)

				if id != block.AirBlockID && id != block.WaterBlockID && id != block.BedrockBlockID && wy < surface-1 {
					c := caves.Noise3D(float64(wx)*g.CaveScale, float64(wy)*g.CaveScale, float64(wz)*g.CaveScale)
					if c > g.CaveThreshold {
						id = block.AirBlockID
					}
				}

				blocks[x+z*size+y*size*size] = id
			}
		}
	}

	return blocks, nil
}

// blockAt выбирает блок по мировой высоте и высоте поверхности столбца
func (g *PerlinGenerator) blockAt(wy, surface int) block.BlockID {
	switch {
	case g.BedrockEnabled && wy <= g.BedrockY:
		return block.BedrockBlockID
	case wy > surface:
		if wy <= SeaLevel {
			return block.WaterBlockID
		}
		return block.AirBlockID
	case wy == surface:
		if surface <= SeaLevel+BeachHeight {
			return block.SandBlockID
		}
		return block.GrassBlockID
	case wy > surface-DirtDepth:
		return block.DirtBlockID
	default:
		return block.StoneBlockID
	}
}
