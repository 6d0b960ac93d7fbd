package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3Distances(t *testing.T) {
	a := Vec3{X: 0, Y: 0, Z: 0}
	b := Vec3{X: 2, Y: -3, Z: 1}

	assert.Equal(t, 14, a.DistanceSqTo(b))
	assert.Equal(t, 3, a.ChebyshevTo(b))
	assert.InDelta(t, 3.7416, a.DistanceTo(b), 1e-3)
	assert.Equal(t, Vec3{X: 2, Y: -3, Z: 1}, a.Add(b))
	assert.Equal(t, Vec3{X: -2, Y: 3, Z: -1}, a.Sub(b))
	assert.True(t, b.Equals(Vec3{X: 2, Y: -3, Z: 1}))
}

func TestFloorDivMod(t *testing.T) {
	cases := []struct {
		a, b     int
		div, mod int
	}{
		{a: 0, b: 32, div: 0, mod: 0},
		{a: 31, b: 32, div: 0, mod: 31},
		{a: 32, b: 32, div: 1, mod: 0},
		{a: -1, b: 32, div: -1, mod: 31},
		{a: -32, b: 32, div: -1, mod: 0},
		{a: -33, b: 32, div: -2, mod: 31},
	}

	for _, c := range cases {
		assert.Equal(t, c.div, FloorDiv(c.a, c.b), "FloorDiv(%d, %d)", c.a, c.b)
		assert.Equal(t, c.mod, FloorMod(c.a, c.b), "FloorMod(%d, %d)", c.a, c.b)
	}
}
