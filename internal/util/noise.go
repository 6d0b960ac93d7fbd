package util

import (
	"sync"

	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина
const (
	perlinAlpha   = 2.0 // Сглаживание шума
	perlinBeta    = 2.0 // Частота шума
	perlinOctaves = 3   // Количество октав
)

// Noise: генератор шума Перлина для одного сида.
// После создания только читает свои таблицы, поэтому безопасен
// для одновременного использования из нескольких воркеров.
type Noise struct {
	p *perlin.Perlin
}

// NewNoise создаёт генератор шума с указанным сидом
func NewNoise(seed int64) *Noise {
	return &Noise{p: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed)}
}

// Noise2D возвращает значение шума в диапазоне от 0 до 1
func (n *Noise) Noise2D(x, y float64) float64 {
	return (n.p.Noise2D(x, y) + 1.0) / 2.0
}

// Noise3D возвращает значение шума в диапазоне от 0 до 1
func (n *Noise) Noise3D(x, y, z float64) float64 {
	return (n.p.Noise3D(x, y, z) + 1.0) / 2.0
}

var noiseCache sync.Map // int64 -> *Noise

// NoiseForSeed возвращает общий генератор для сида, создавая его при первом обращении
func NoiseForSeed(seed int64) *Noise {
	if n, ok := noiseCache.Load(seed); ok {
		return n.(*Noise)
	}
	n, _ := noiseCache.LoadOrStore(seed, NewNoise(seed))
	return n.(*Noise)
}
