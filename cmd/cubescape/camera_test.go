package main

import (
	"testing"

	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatStore(t *testing.T, radius int) *world.Store {
	t.Helper()
	gen := world.GeneratorFunc(func(coord world.ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
		blocks := make([]block.BlockID, size*size*size)
		if coord.Y < 0 {
			for i := range blocks {
				blocks[i] = block.StoneBlockID
			}
		}
		return blocks, nil
	})
	s := world.NewStore(world.StoreOptions{ChunkSize: 8}, gen)
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			for y := -1; y <= 1; y++ {
				_, err := s.Load(world.ChunkCoord{X: x, Y: y, Z: z})
				require.NoError(t, err)
			}
		}
	}
	return s
}

func TestCameraFallsAndWalks(t *testing.T) {
	s := flatStore(t, 2)
	cam := newCamera(10, 0.5, 4)

	for i := 0; i < 20; i++ {
		cam.advance(s)
	}
	assert.InDelta(t, 0.0, cam.pos.Y(), 1e-4, "Камера стоит на полу")
	assert.Greater(t, cam.angle, float32(0), "Камера движется по пути")
	assert.Equal(t, world.ChunkCoord{X: 0, Y: 0, Z: 1}, cam.chunk(8))
}

func TestCameraWaitsForUnloadedChunks(t *testing.T) {
	s := world.NewStore(world.StoreOptions{ChunkSize: 8}, world.NewPerlinGenerator())
	cam := newCamera(10, 0.5, 4)
	start := cam.pos

	cam.advance(s)
	assert.Equal(t, start, cam.pos, "Незагруженный мир твёрд")
}
