package streaming

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/annel0/cubescape/internal/eventbus"
	"github.com/annel0/cubescape/internal/logging"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidOptions возвращается при неверных радиусах или бюджетах
var ErrInvalidOptions = errors.New("invalid streaming options")

// Options фиксируются при запуске
type Options struct {
	LoadRadius   int
	UnloadRadius int            // Строго больше LoadRadius
	TaskBudget   int            // Задач за тик (0 без ограничения)
	ResultBudget int            // Результатов за тик (0 без ограничения)
	Distance     DistanceMetric // Метрика радиусов
	RetryBase    int            // Первая задержка повтора генерации, в тиках
	RetryMax     int            // Предел задержки, в тиках
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		LoadRadius:   4,
		UnloadRadius: 6,
		TaskBudget:   16,
		Distance:     Chebyshev,
		RetryBase:    2,
		RetryMax:     64,
	}
}

// Validate проверяет согласованность настроек
func (o Options) Validate() error {
	switch {
	case o.LoadRadius < 0:
		return fmt.Errorf("%w: load radius %d is negative", ErrInvalidOptions, o.LoadRadius)
	case o.UnloadRadius <= o.LoadRadius:
		return fmt.Errorf("%w: unload radius %d must exceed load radius %d", ErrInvalidOptions, o.UnloadRadius, o.LoadRadius)
	case o.TaskBudget < 0 || o.ResultBudget < 0:
		return fmt.Errorf("%w: budgets must not be negative", ErrInvalidOptions)
	case o.RetryBase < 1 || o.RetryMax < o.RetryBase:
		return fmt.Errorf("%w: retry delays %d..%d", ErrInvalidOptions, o.RetryBase, o.RetryMax)
	}
	return nil
}

// MeshSink принимает готовые меши (WorldEntitySync)
type MeshSink interface {
	Apply(mesh *meshing.Mesh) error
}

// Stats: счетчики планировщика
type Stats struct {
	Ticks              uint64
	LoadsDispatched    uint64
	MeshesDispatched   uint64
	Unloads            uint64
	LoadsApplied       uint64
	MeshesApplied      uint64
	StaleDiscarded     uint64
	GenerationFailures uint64
	UploadFailures     uint64
	Queued             int
	InFlight           int
}

type entry struct {
	state      State
	ticket     uint64 // Тикет задачи в полете
	inFlight   bool   // Не более одной задачи на координату
	stale      bool   // Результат задачи в полете будет отброшен
	queued     uint64 // seq элемента очереди, 0 если не в очереди
	queuedKind TaskKind
	remesh     bool // Перестроить после завершения текущей задачи
	meshed     bool // Первый меш применен
	failures   int
	retryAt    uint64
}

// Scheduler: конечный автомат стриминга чанков вокруг наблюдателя.
// Все методы вызываются из горутины-владельца.
type Scheduler struct {
	opts    Options
	store   *world.Store
	mesher  *meshing.Mesher
	exec    Executor
	sink    MeshSink
	events  eventbus.Publisher
	metrics *Metrics
	tracer  trace.Tracer
	logger  *logging.Logger

	entries   map[world.ChunkCoord]*entry
	queue     taskQueue
	tick      uint64
	tickets   uint64
	viewer    world.ChunkCoord
	inFlight  int
	stats     Stats
	observers []func(Transition)
}

// NewScheduler создаёт планировщик. Неверные настройки отклоняются.
func NewScheduler(opts Options, store *world.Store, mesher *meshing.Mesher, exec Executor, sink MeshSink) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		opts:    opts,
		store:   store,
		mesher:  mesher,
		exec:    exec,
		sink:    sink,
		metrics: NewMetrics(nil),
		tracer:  otel.Tracer("github.com/annel0/cubescape/internal/streaming"),
		logger:  logging.GetStreamingLogger(),
		entries: make(map[world.ChunkCoord]*entry),
	}, nil
}

// SetEvents подключает шину событий жизненного цикла чанков
func (s *Scheduler) SetEvents(p eventbus.Publisher) { s.events = p }

// SetMetrics подключает Prometheus-метрики
func (s *Scheduler) SetMetrics(m *Metrics) { s.metrics = m }

// Observe регистрирует наблюдателя смены состояний
func (s *Scheduler) Observe(fn func(Transition)) {
	s.observers = append(s.observers, fn)
}

// State возвращает состояние координаты
func (s *Scheduler) State(coord world.ChunkCoord) State {
	if e, ok := s.entries[coord]; ok {
		return e.state
	}
	return NotLoaded
}

// Stats возвращает копию счетчиков. Queued считает координаты с задачей
// в очереди, вытесненные элементы кучи не учитываются.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Queued = s.queuedLen()
	st.InFlight = s.inFlight
	return st
}

func (s *Scheduler) queuedLen() int {
	n := 0
	for _, e := range s.entries {
		if e.queued != 0 {
			n++
		}
	}
	return n
}

// Viewer возвращает чанк наблюдателя последнего тика
func (s *Scheduler) Viewer() world.ChunkCoord { return s.viewer }

// Close останавливает исполнителя
func (s *Scheduler) Close() { s.exec.Close() }

// Tick выполняет один шаг: применяет готовые результаты, ставит в очередь
// загрузки, перестроения и выгрузки, отправляет не более TaskBudget задач.
// Никогда не блокируется на пуле.
func (s *Scheduler) Tick(ctx context.Context, viewer world.ChunkCoord) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "streaming.Tick")
	defer span.End()

	s.tick++
	s.stats.Ticks++
	s.viewer = viewer

	applied := s.drainResults(ctx)
	s.adoptDirty()
	s.scheduleLoads()
	s.scheduleUnloads()
	dispatched := s.dispatch(ctx)

	queued := s.queuedLen()
	span.SetAttributes(
		attribute.Int64("tick", int64(s.tick)),
		attribute.String("viewer", viewer.String()),
		attribute.Int("results.applied", applied),
		attribute.Int("tasks.dispatched", dispatched),
		attribute.Int("queue.depth", queued),
	)

	s.metrics.loadedChunks.Set(float64(s.store.Len()))
	s.metrics.inFlight.Set(float64(s.inFlight))
	s.metrics.queueDepth.Set(float64(queued))
	s.metrics.tickSeconds.Observe(time.Since(start).Seconds())
}

func (s *Scheduler) rank(coord world.ChunkCoord) int {
	return s.opts.Distance.rank(coord, s.viewer)
}

func (s *Scheduler) setState(coord world.ChunkCoord, e *entry, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	s.logger.Trace("Chunk %v: %s -> %s", coord, from, to)
	tr := Transition{Coord: coord, From: from, To: to, Tick: s.tick}
	for _, fn := range s.observers {
		fn(tr)
	}
}

// forget удаляет координату из автомата. Пока задача в полете, запись
// остаётся в NotLoaded до прихода результата: новая задача для координаты
// не отправляется.
func (s *Scheduler) forget(coord world.ChunkCoord, e *entry) {
	s.setState(coord, e, NotLoaded)
	e.queued = 0
	e.remesh = false
	e.meshed = false
	if e.inFlight {
		e.stale = true
		return
	}
	delete(s.entries, coord)
}

func (s *Scheduler) enqueue(coord world.ChunkCoord, e *entry, kind TaskKind) {
	e.queued = s.queue.push(kind, coord, s.rank(coord))
	e.queuedKind = kind
}

// requestMesh ставит перестроение. Пока задача в полете, перестроение
// откладывается до её завершения.
func (s *Scheduler) requestMesh(coord world.ChunkCoord, e *entry) {
	if e.inFlight {
		e.remesh = true
		return
	}
	if e.queued != 0 && e.queuedKind == TaskMesh {
		return
	}
	s.enqueue(coord, e, TaskMesh)
}

// adoptDirty забирает грязные чанки хранилища
func (s *Scheduler) adoptDirty() {
	for _, coord := range s.store.TakeDirty() {
		e, ok := s.entries[coord]
		if !ok {
			// Чанк опубликован в обход планировщика
			e = &entry{}
			s.entries[coord] = e
			s.setState(coord, e, Loading)
		}

		switch e.state {
		case Unloading:
			continue
		case NotLoaded:
			s.setState(coord, e, Loading)
		case Loaded:
			s.setState(coord, e, Dirty)
		}
		s.requestMesh(coord, e)
	}
}

// scheduleLoads ставит в очередь незагруженные координаты в радиусе загрузки
func (s *Scheduler) scheduleLoads() {
	r := s.opts.LoadRadius
	limit := s.opts.Distance.limit(r)
	bounds := s.store.Bounds()

	for dy := -r; dy <= r; dy++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				coord := world.ChunkCoord{X: s.viewer.X + dx, Y: s.viewer.Y + dy, Z: s.viewer.Z + dz}
				if !bounds.Contains(coord) || s.rank(coord) > limit {
					continue
				}

				e, ok := s.entries[coord]
				if !ok {
					e = &entry{}
					s.entries[coord] = e
				}
				if e.state != NotLoaded || e.inFlight || e.retryAt > s.tick {
					continue
				}
				s.setState(coord, e, Loading)
				s.enqueue(coord, e, TaskLoad)
			}
		}
	}
}

// scheduleUnloads переводит координаты за радиусом выгрузки в Unloading
// и возвращает вернувшиеся в радиус
func (s *Scheduler) scheduleUnloads() {
	limit := s.opts.Distance.limit(s.opts.UnloadRadius)

	coords := make([]world.ChunkCoord, 0, len(s.entries))
	for c := range s.entries {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return lessCoord(coords[i], coords[j]) })

	for _, coord := range coords {
		e := s.entries[coord]
		far := s.rank(coord) > limit

		switch {
		case e.state == Unloading && !far:
			s.restore(coord, e)
		case !far || e.state == Unloading:
			// в радиусе или уже ждет выгрузки
		case e.state == NotLoaded:
			if !e.inFlight {
				delete(s.entries, coord)
			}
		case e.state == Loading && !s.store.IsLoaded(coord):
			// Генерация ещё не опубликована: результат станет устаревшим
			s.forget(coord, e)
		default:
			s.setState(coord, e, Unloading)
			s.enqueue(coord, e, TaskUnload)
		}
	}
}

// restore возвращает чанк из Unloading, если наблюдатель вернулся.
// Правки и результаты за время ожидания выгрузки не применялись,
// поэтому меш всегда перестраивается.
func (s *Scheduler) restore(coord world.ChunkCoord, e *entry) {
	e.queued = 0
	if !s.store.IsLoaded(coord) {
		s.forget(coord, e)
		return
	}
	if e.meshed {
		s.setState(coord, e, Dirty)
	} else {
		s.setState(coord, e, Loading)
	}
	s.requestMesh(coord, e)
}

// dispatch извлекает задачи по приоритету в пределах бюджета
func (s *Scheduler) dispatch(ctx context.Context) int {
	budget := s.opts.TaskBudget
	n := 0
	loadLimit := s.opts.Distance.limit(s.opts.LoadRadius)

	for budget == 0 || n < budget {
		it, ok := s.queue.pop()
		if !ok {
			break
		}
		e, ok := s.entries[it.coord]
		if !ok || e.queued != it.seq {
			continue // вытеснен более новым элементом
		}
		e.queued = 0

		switch it.kind {
		case TaskLoad:
			if s.rank(it.coord) > loadLimit {
				s.forget(it.coord, e)
				continue
			}
			if s.store.IsLoaded(it.coord) {
				s.store.MarkDirty(it.coord)
				continue
			}
			if !s.submit(it, e, s.loadJob(it.coord)) {
				return n
			}
			s.stats.LoadsDispatched++

		case TaskMesh:
			if e.inFlight {
				e.remesh = true
				continue
			}
			chunk, ok := s.store.Get(it.coord)
			if !ok {
				continue
			}
			if s.mesher.Options().Missing == meshing.MissingDefer && !s.store.NeighborsComplete(it.coord) {
				// Дождемся соседа: его публикация снова поставит чанк в очередь
				continue
			}
			job, commit := s.meshJob(chunk)
			if !s.submit(it, e, job) {
				return n
			}
			commit()
			s.stats.MeshesDispatched++

		case TaskUnload:
			if e.state != Unloading {
				continue
			}
			s.unload(ctx, it.coord, e)
		}

		n++
		s.metrics.dispatched.WithLabelValues(it.kind.String()).Inc()
	}
	return n
}

// submit отправляет задачу. При заполненной очереди пула элемент
// возвращается в очередь планировщика.
func (s *Scheduler) submit(it taskItem, e *entry, job Job) bool {
	s.tickets++
	job.Ticket = s.tickets
	if !s.exec.Submit(job) {
		e.queued = it.seq
		s.queue.requeue(it)
		return false
	}
	e.ticket = job.Ticket
	e.inFlight = true
	s.inFlight++
	return true
}

func (s *Scheduler) loadJob(coord world.ChunkCoord) Job {
	gen := s.store.Generator()
	seed := s.store.Seed()
	size := s.store.ChunkSize()
	return Job{
		Kind:  TaskLoad,
		Coord: coord,
		Run: func(res *Result) {
			res.Blocks, res.Err = gen.Generate(coord, seed, size)
		},
	}
}

// meshJob снимает копию чанка и границ соседей. commit снимает отметку
// грязного после успешной отправки: правки после снимка снова загрязнят чанк.
func (s *Scheduler) meshJob(chunk *world.Chunk) (Job, func()) {
	coord := chunk.Coord()
	blocks, version := chunk.Snapshot()
	neighbors := s.store.Neighbors(coord)
	mask := neighbors.Mask()
	mesher := s.mesher
	in := meshing.Input{
		Coord:     coord,
		Version:   version,
		Size:      chunk.Size(),
		Blocks:    blocks,
		Neighbors: neighbors,
	}
	job := Job{
		Kind:  TaskMesh,
		Coord: coord,
		Run: func(res *Result) {
			res.Mask = mask
			res.Mesh, res.Err = mesher.Build(in)
		},
	}
	return job, chunk.ClearDirty
}

func (s *Scheduler) unload(ctx context.Context, coord world.ChunkCoord, e *entry) {
	s.store.Unload(coord)
	s.forget(coord, e)
	s.stats.Unloads++
	s.publish(ctx, eventbus.EventChunkUnloaded, eventbus.NewChunkEvent(coord))
}

func (s *Scheduler) drainResults(ctx context.Context) int {
	results := s.exec.Poll(s.opts.ResultBudget)
	applied := 0
	for i := range results {
		s.inFlight--
		if s.apply(ctx, &results[i]) {
			applied++
		}
	}
	return applied
}

func (s *Scheduler) discard(res *Result, reason string) {
	s.stats.StaleDiscarded++
	s.metrics.stale.Inc()
	s.logger.Debug("Discard stale %s result for %v (ticket %d): %s", res.Kind, res.Coord, res.Ticket, reason)
}

// apply применяет результат воркера. Возвращает false для отброшенных.
func (s *Scheduler) apply(ctx context.Context, res *Result) bool {
	e, ok := s.entries[res.Coord]
	if !ok || !e.inFlight || e.ticket != res.Ticket {
		s.discard(res, "ticket mismatch")
		return false
	}
	e.inFlight = false
	if e.stale {
		e.stale = false
		s.discard(res, "coordinate released")
		if e.state == NotLoaded {
			delete(s.entries, res.Coord)
		}
		return false
	}

	var applied bool
	switch res.Kind {
	case TaskLoad:
		applied = s.applyLoad(ctx, res, e)
	case TaskMesh:
		applied = s.applyMesh(ctx, res, e)
	}

	if e.remesh {
		e.remesh = false
		if e.state != Unloading && s.store.IsLoaded(res.Coord) {
			s.requestMesh(res.Coord, e)
		}
	}
	return applied
}

func (s *Scheduler) applyLoad(ctx context.Context, res *Result, e *entry) bool {
	if res.Err != nil {
		s.failGeneration(ctx, res.Coord, e, res.Err)
		return false
	}
	if s.store.IsLoaded(res.Coord) {
		s.discard(res, "chunk already published")
		s.store.MarkDirty(res.Coord)
		return false
	}
	if _, err := s.store.Insert(res.Coord, res.Blocks); err != nil {
		s.failGeneration(ctx, res.Coord, e, err)
		return false
	}

	e.failures = 0
	e.retryAt = 0
	s.stats.LoadsApplied++
	s.metrics.applied.WithLabelValues(TaskLoad.String()).Inc()
	s.publish(ctx, eventbus.EventChunkLoaded, eventbus.NewChunkEvent(res.Coord))
	return true
}

func (s *Scheduler) applyMesh(ctx context.Context, res *Result, e *entry) bool {
	chunk, ok := s.store.Get(res.Coord)
	if !ok || e.state == Unloading {
		s.discard(res, "chunk unloading")
		return false
	}
	if res.Err != nil {
		s.logger.Error("Mesh %v failed: %v", res.Coord, res.Err)
		return false
	}
	if res.Mesh.Version != chunk.Version() {
		// Правка после снимка уже поставила чанк в очередь
		s.discard(res, fmt.Sprintf("version %d, chunk at %d", res.Mesh.Version, chunk.Version()))
		return false
	}
	if mask := s.store.NeighborMask(res.Coord); mask != res.Mask {
		s.discard(res, "neighbor set changed")
		s.store.MarkDirty(res.Coord)
		return false
	}

	if err := s.sink.Apply(res.Mesh); err != nil {
		// Старый меш остается видимым, повторим на следующем тике
		s.stats.UploadFailures++
		s.metrics.upFailures.Inc()
		s.store.MarkDirty(res.Coord)
		return false
	}

	e.meshed = true
	if chunk.Dirty() {
		s.setState(res.Coord, e, Dirty)
	} else {
		s.setState(res.Coord, e, Loaded)
	}
	s.stats.MeshesApplied++
	s.metrics.applied.WithLabelValues(TaskMesh.String()).Inc()

	ev := eventbus.NewChunkEvent(res.Coord)
	ev.Version = res.Mesh.Version
	ev.Faces = res.Mesh.Faces
	s.publish(ctx, eventbus.EventChunkMeshed, ev)
	return true
}

// failGeneration оставляет координату в NotLoaded с экспоненциальной задержкой повтора
func (s *Scheduler) failGeneration(ctx context.Context, coord world.ChunkCoord, e *entry, err error) {
	e.failures++
	delay := s.backoff(e.failures)
	e.retryAt = s.tick + uint64(delay)
	s.setState(coord, e, NotLoaded)

	s.stats.GenerationFailures++
	s.metrics.genFailures.Inc()
	s.logger.Error("Generation of %v failed (attempt %d), retry in %d ticks: %v", coord, e.failures, delay, err)

	ev := eventbus.NewChunkEvent(coord)
	ev.Attempt = e.failures
	ev.Error = err.Error()
	s.publish(ctx, eventbus.EventChunkGenerationFailed, ev)
}

func (s *Scheduler) backoff(failures int) int {
	delay := s.opts.RetryBase
	for i := 1; i < failures && delay < s.opts.RetryMax; i++ {
		delay *= 2
	}
	return min(delay, s.opts.RetryMax)
}

func (s *Scheduler) publish(ctx context.Context, eventType string, ev eventbus.ChunkEvent) {
	if s.events == nil {
		return
	}
	env, err := eventbus.NewChunkEnvelope(eventType, "streaming", ev)
	if err != nil {
		s.logger.Warn("Event %s: %v", eventType, err)
		return
	}
	if err := s.events.Publish(ctx, env); err != nil {
		s.logger.Debug("Publish %s for %v: %v", eventType, ev.Coord(), err)
	}
}

func lessCoord(a, b world.ChunkCoord) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
