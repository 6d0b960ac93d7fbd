package render

import (
	"errors"
	"testing"

	"github.com/annel0/cubescape/internal/ecs"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubeMesh(t *testing.T) *meshing.Mesh {
	t.Helper()
	mesh, err := meshing.New(meshing.Options{Missing: meshing.MissingTransparent}).Build(meshing.Input{
		Size:   1,
		Blocks: []block.BlockID{block.StoneBlockID},
	})
	require.NoError(t, err)
	require.False(t, mesh.Empty())
	return mesh
}

func TestMemoryBridgeUploadRelease(t *testing.T) {
	b := NewMemoryBridge()
	mesh := cubeMesh(t)

	h1, err := b.Upload(mesh)
	require.NoError(t, err)
	h2, err := b.Upload(mesh)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, b.Live())

	u, err := b.Lookup(h1)
	require.NoError(t, err)
	assert.Equal(t, 12, u.Triangles)

	b.Release(h1)
	b.Release(h1)
	assert.Equal(t, 1, b.Live())
	_, err = b.Lookup(h1)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	uploads, releases := b.Stats()
	assert.Equal(t, 2, uploads)
	assert.Equal(t, 1, releases)
}

func TestMemoryBridgeErrors(t *testing.T) {
	b := NewMemoryBridge()

	_, err := b.Upload(&meshing.Mesh{})
	assert.ErrorIs(t, err, ErrEmptyMesh)

	boom := errors.New("gpu lost")
	b.FailNext = boom
	_, err = b.Upload(cubeMesh(t))
	assert.ErrorIs(t, err, boom)

	_, err = b.Upload(cubeMesh(t))
	assert.NoError(t, err, "Ошибка срабатывает один раз")
}

func TestCollectDrawCommands(t *testing.T) {
	w := ecs.NewWorld()
	c := RegisterComponents(w)

	a := w.Create()
	c.Meshes.Set(a, MeshComponent{Handle: 7, Triangles: 12})
	c.Transforms.Set(a, NewChunkTransform(world.ChunkCoord{X: 1}, 16))

	b := w.Create()
	c.Meshes.Set(b, MeshComponent{Handle: 3, Triangles: 2})
	c.Transforms.Set(b, NewChunkTransform(world.ChunkCoord{Y: -1}, 16))

	// Без трансформа команда не строится
	orphan := w.Create()
	c.Meshes.Set(orphan, MeshComponent{Handle: 1})

	cmds := CollectDrawCommands(c)
	require.Len(t, cmds, 2)
	assert.Equal(t, Handle(3), cmds[0].Handle)
	assert.Equal(t, Handle(7), cmds[1].Handle)
	assert.Equal(t, b, cmds[0].Entity)

	p := cmds[1].Model.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.Equal(t, mgl32.Vec4{16, 0, 0, 1}, p)
}
