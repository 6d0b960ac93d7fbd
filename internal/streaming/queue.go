package streaming

import (
	"container/heap"

	"github.com/annel0/cubescape/internal/world"
)

// taskItem: элемент очереди приоритетов
type taskItem struct {
	kind  TaskKind
	coord world.ChunkCoord
	rank  int    // Расстояние до наблюдателя на момент постановки
	seq   uint64 // Порядок постановки, разрывает равенство
}

// class: загрузка и перестроение важнее выгрузки
func (t taskItem) class() int {
	if t.kind == TaskUnload {
		return 1
	}
	return 0
}

func (t taskItem) less(o taskItem) bool {
	if a, b := t.class(), o.class(); a != b {
		return a < b
	}
	if t.rank != o.rank {
		return t.rank < o.rank
	}
	return t.seq < o.seq
}

type taskHeap []taskItem

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(taskItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// taskQueue: очередь задач с детерминированным порядком
type taskQueue struct {
	items taskHeap
	seq   uint64
}

func (q *taskQueue) push(kind TaskKind, coord world.ChunkCoord, rank int) uint64 {
	q.seq++
	heap.Push(&q.items, taskItem{kind: kind, coord: coord, rank: rank, seq: q.seq})
	return q.seq
}

// requeue возвращает элемент с прежним seq
func (q *taskQueue) requeue(it taskItem) {
	heap.Push(&q.items, it)
}

func (q *taskQueue) pop() (taskItem, bool) {
	if len(q.items) == 0 {
		return taskItem{}, false
	}
	return heap.Pop(&q.items).(taskItem), true
}

func (q *taskQueue) len() int { return len(q.items) }
