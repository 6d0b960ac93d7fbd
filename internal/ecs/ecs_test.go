package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float32 }

func TestEntityPoolReuse(t *testing.T) {
	p := NewEntityPool()

	a := p.Create()
	assert.False(t, a.IsZero(), "Нулевой ID зарезервирован")
	assert.True(t, p.Alive(a))

	require.True(t, p.Destroy(a))
	assert.False(t, p.Alive(a))
	assert.False(t, p.Destroy(a), "Повторное уничтожение игнорируется")

	b := p.Create()
	assert.Equal(t, a.Index(), b.Index(), "Индекс переиспользуется")
	assert.NotEqual(t, a.Generation(), b.Generation())
	assert.False(t, p.Alive(a), "Старая ссылка остается недействительной")
	assert.Equal(t, 1, p.Len())
}

func TestStoreSparseSet(t *testing.T) {
	s := NewStore[position]()
	p := NewEntityPool()
	e1, e2, e3 := p.Create(), p.Create(), p.Create()

	s.Set(e1, position{1, 1})
	s.Set(e2, position{2, 2})
	s.Set(e3, position{3, 3})
	assert.Equal(t, 3, s.Len())

	s.Remove(e1)
	assert.False(t, s.Has(e1))
	assert.Equal(t, 2, s.Len())

	// После переноса последнего элемента данные остаются на своих сущностях
	v, ok := s.Get(e3)
	require.True(t, ok)
	assert.Equal(t, position{3, 3}, v)
	v, ok = s.Get(e2)
	require.True(t, ok)
	assert.Equal(t, position{2, 2}, v)

	s.Ptr(e2).X = 20
	v, _ = s.Get(e2)
	assert.Equal(t, float32(20), v.X)

	s.Set(e2, position{5, 5})
	assert.Equal(t, 2, s.Len(), "Set для существующего компонента заменяет его")

	seen := map[EntityID]position{}
	s.Each(func(e EntityID, v *position) { seen[e] = *v })
	assert.Equal(t, map[EntityID]position{e2: {5, 5}, e3: {3, 3}}, seen)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Ptr(e2))
}

func TestWorldDestroyRemovesComponents(t *testing.T) {
	w := NewWorld()
	positions := Register[position](w)
	names := Register[string](w)

	e := w.Create()
	positions.Set(e, position{1, 2})
	names.Set(e, "chunk")
	other := w.Create()
	names.Set(other, "other")

	require.True(t, w.Destroy(e))
	assert.False(t, w.Alive(e))
	assert.False(t, positions.Has(e))
	assert.False(t, names.Has(e))
	assert.True(t, names.Has(other))
	assert.Equal(t, 1, w.Len())

	assert.False(t, w.Destroy(e))
}
