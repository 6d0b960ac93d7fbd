package streaming

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
)

// Job: CPU-задача для воркера. Run заполняет результат и не трогает
// состояние мира: все входные данные переданы копией.
type Job struct {
	Kind   TaskKind
	Coord  world.ChunkCoord
	Ticket uint64
	Run    func(res *Result)
}

// Result возвращается владельцу передачей владения: Blocks и Mesh
// больше не используются воркером.
type Result struct {
	Kind   TaskKind
	Coord  world.ChunkCoord
	Ticket uint64
	Mask   uint8 // Маска загруженных соседей на момент снимка

	Blocks []block.BlockID
	Mesh   *meshing.Mesh
	Err    error
}

// Executor: граница между владельцем и пулом.
// Submit и Poll не блокируют горутину-владельца.
type Executor interface {
	// Submit ставит задачу в очередь; false, если очередь заполнена
	Submit(job Job) bool
	// Poll забирает до max готовых результатов (0: все доступные)
	Poll(max int) []Result
	Close()
}

// PoolStats содержит статистику пула
type PoolStats struct {
	Submitted int64
	Completed int64
	Panics    int64
}

// WorkerPool выполняет задачи генерации и мешинга на runtime.NumCPU() воркерах
type WorkerPool struct {
	workerCount  int
	jobs         chan Job
	results      chan Result
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once

	submitted atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
}

// NewWorkerPool создаёт пул и запускает воркеров
func NewWorkerPool(workerCount, queueSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workerCount * 2
	}

	p := &WorkerPool{
		workerCount:  workerCount,
		jobs:         make(chan Job, queueSize),
		results:      make(chan Result, queueSize),
		shutdownChan: make(chan struct{}),
	}

	// Запускаем воркеров
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Workers возвращает число воркеров
func (p *WorkerPool) Workers() int { return p.workerCount }

// Submit неблокирующе ставит задачу в очередь
func (p *WorkerPool) Submit(job Job) bool {
	select {
	case <-p.shutdownChan:
		return false
	default:
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// Poll забирает готовые результаты без ожидания
func (p *WorkerPool) Poll(max int) []Result {
	var out []Result
	for max <= 0 || len(out) < max {
		select {
		case res := <-p.results:
			out = append(out, res)
		default:
			return out
		}
	}
	return out
}

// Close останавливает воркеров. Незавершенные результаты отбрасываются.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.shutdownChan)
		p.wg.Wait()
	})
}

// Stats возвращает статистику пула
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}

// worker обрабатывает задачи
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdownChan:
			return
		case job := <-p.jobs:
			res := p.execute(job)
			select {
			case p.results <- res:
				p.completed.Add(1)
			case <-p.shutdownChan:
				return
			}
		}
	}
}

// execute выполняет задачу, превращая панику в ошибку задачи
func (p *WorkerPool) execute(job Job) (res Result) {
	res = Result{Kind: job.Kind, Coord: job.Coord, Ticket: job.Ticket}
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			res.Blocks, res.Mesh = nil, nil
			res.Err = fmt.Errorf("%s task %v panicked: %v", job.Kind, job.Coord, r)
		}
	}()
	job.Run(&res)
	return res
}
