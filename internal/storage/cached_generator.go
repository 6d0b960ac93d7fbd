package storage

import (
	"github.com/annel0/cubescape/internal/logging"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
)

// CachedGenerator оборачивает генератор кешем: промах: генерация и запись.
// Ошибки кеша не мешают генерации, а только логируются.
type CachedGenerator struct {
	cache  *ChunkCache
	inner  world.Generator
	logger *logging.Logger
}

// NewCachedGenerator создаёт декоратор
func NewCachedGenerator(cache *ChunkCache, inner world.Generator) *CachedGenerator {
	return &CachedGenerator{cache: cache, inner: inner, logger: logging.GetStorageLogger()}
}

// Generate реализует world.Generator
func (g *CachedGenerator) Generate(coord world.ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
	blocks, ok, err := g.cache.Get(seed, size, coord)
	if err != nil {
		g.logger.Warn("Cache read %v failed, regenerating: %v", coord, err)
	}
	if ok {
		return blocks, nil
	}

	blocks, err = g.inner.Generate(coord, seed, size)
	if err != nil {
		return nil, err
	}
	if err := g.cache.Put(seed, size, coord, blocks); err != nil {
		g.logger.Warn("Cache write %v failed: %v", coord, err)
	}
	return blocks, nil
}
