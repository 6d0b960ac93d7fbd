package streaming

import (
	"errors"
	"testing"
	"time"

	"github.com/annel0/cubescape/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	p := NewWorkerPool(2, 8)
	defer p.Close()

	for i := 0; i < 5; i++ {
		coord := world.ChunkCoord{X: i}
		require.True(t, p.Submit(Job{Kind: TaskLoad, Coord: coord, Ticket: uint64(i + 1), Run: func(res *Result) {
			if coord.X == 3 {
				res.Err = errors.New("boom")
			}
		}}))
	}

	var results []Result
	require.Eventually(t, func() bool {
		results = append(results, p.Poll(0)...)
		return len(results) == 5
	}, 2*time.Second, 5*time.Millisecond)

	failed := 0
	for _, r := range results {
		assert.Equal(t, uint64(r.Coord.X+1), r.Ticket, "Тикет возвращается вместе с результатом")
		if r.Err != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(5), p.Stats().Completed)
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	p := NewWorkerPool(1, 2)
	defer p.Close()

	require.True(t, p.Submit(Job{Kind: TaskMesh, Coord: world.ChunkCoord{Y: 1}, Run: func(*Result) {
		panic("mesher exploded")
	}}))

	var res []Result
	require.Eventually(t, func() bool {
		res = p.Poll(1)
		return len(res) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Error(t, res[0].Err)
	assert.Contains(t, res[0].Err.Error(), "mesher exploded")
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestWorkerPoolSubmitNonBlocking(t *testing.T) {
	p := NewWorkerPool(1, 1)
	block := make(chan struct{})
	defer func() {
		close(block)
		p.Close()
	}()

	wait := func(*Result) { <-block }
	require.True(t, p.Submit(Job{Run: wait}))

	// Очередь размером 1 и занятый воркер: рано или поздно Submit откажет
	rejected := false
	for i := 0; i < 3 && !rejected; i++ {
		rejected = !p.Submit(Job{Run: wait})
	}
	assert.True(t, rejected, "Submit не должен блокировать владельца")
	assert.Empty(t, p.Poll(0))
}

func TestWorkerPoolClosed(t *testing.T) {
	p := NewWorkerPool(1, 1)
	p.Close()
	p.Close()
	assert.False(t, p.Submit(Job{Run: func(*Result) {}}))
}
