package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/annel0/cubescape/internal/ecs"
	"github.com/annel0/cubescape/internal/eventbus"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/render"
	"github.com/annel0/cubescape/internal/vec"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/annel0/cubescape/internal/worldsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 4

// terrain: ниже y=0 камень, выше воздух с камнем в центре чанка
func terrain() world.Generator {
	return world.GeneratorFunc(func(coord world.ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
		blocks := make([]block.BlockID, size*size*size)
		for i := range blocks {
			if coord.Y < 0 {
				blocks[i] = block.StoneBlockID
			}
		}
		c := size / 2
		blocks[c+c*size+c*size*size] = block.StoneBlockID
		return blocks, nil
	})
}

type harness struct {
	t      *testing.T
	store  *world.Store
	exec   *manualExecutor
	bridge *render.MemoryBridge
	sync   *worldsync.Sync
	sched  *Scheduler
	trans  []Transition
}

func newHarness(t *testing.T, opts Options, meshOpts meshing.Options, gen world.Generator, exec *manualExecutor) *harness {
	t.Helper()
	store := world.NewStore(world.StoreOptions{ChunkSize: testChunkSize, Seed: 1}, gen)
	w := ecs.NewWorld()
	bridge := render.NewMemoryBridge()
	sink := worldsync.New(w, render.RegisterComponents(w), bridge, testChunkSize)
	sink.Attach(store)

	sched, err := NewScheduler(opts, store, meshing.New(meshOpts), exec, sink)
	require.NoError(t, err)

	h := &harness{t: t, store: store, exec: exec, bridge: bridge, sync: sink, sched: sched}
	sched.Observe(func(tr Transition) { h.trans = append(h.trans, tr) })
	return h
}

func (h *harness) tick(viewer world.ChunkCoord) {
	h.sched.Tick(context.Background(), viewer)
}

// settle крутит тики, пока очередь и пул не опустеют
func (h *harness) settle(viewer world.ChunkCoord) {
	h.t.Helper()
	for i := 0; i < 100; i++ {
		h.tick(viewer)
		h.exec.flush()
		st := h.sched.Stats()
		if st.Queued == 0 && st.InFlight == 0 && h.store.PendingDirty() == 0 {
			return
		}
	}
	h.t.Fatalf("планировщик не успокоился за 100 тиков: %+v", h.sched.Stats())
}

func (h *harness) sawTransition(coord world.ChunkCoord, from, to State) bool {
	for _, tr := range h.trans {
		if tr.Coord == coord && tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

func unlimited(load, unload int) Options {
	opts := DefaultOptions()
	opts.LoadRadius = load
	opts.UnloadRadius = unload
	opts.TaskBudget = 0
	return opts
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.UnloadRadius = bad.LoadRadius
	assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions, "R' должно быть строго больше R")

	bad = DefaultOptions()
	bad.TaskBudget = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidOptions)

	_, err := NewScheduler(Options{LoadRadius: 3, UnloadRadius: 2, RetryBase: 1, RetryMax: 1}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestTickLoadsWithinRadius(t *testing.T) {
	for _, metric := range []DistanceMetric{Chebyshev, Euclidean} {
		t.Run(metric.String(), func(t *testing.T) {
			opts := unlimited(2, 3)
			opts.Distance = metric
			h := newHarness(t, opts, meshing.Options{}, terrain(), &manualExecutor{inline: true})

			origin := world.ChunkCoord{}
			h.tick(origin)

			for x := -3; x <= 3; x++ {
				for y := -3; y <= 3; y++ {
					for z := -3; z <= 3; z++ {
						c := world.ChunkCoord{X: x, Y: y, Z: z}
						st := h.sched.State(c)
						if metric.rank(c, origin) <= metric.limit(2) {
							assert.Contains(t, []State{Loading, Loaded}, st, "чанк %v", c)
						} else {
							assert.Equal(t, NotLoaded, st, "чанк %v вне радиуса", c)
						}
					}
				}
			}
		})
	}
}

func TestChunksReachLoadedAndRender(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}
	h.settle(origin)

	assert.Equal(t, 27, h.store.Len())
	for _, c := range h.store.Loaded() {
		assert.Equal(t, Loaded, h.sched.State(c), "чанк %v", c)
		assert.True(t, h.sawTransition(c, Loading, Loaded))
	}
	// Непустые чанки получили сущности
	assert.Equal(t, h.sync.Len(), h.bridge.Live())
	assert.Positive(t, h.sync.Len())
}

func TestViewerMoveUnloadsFarChunks(t *testing.T) {
	h := newHarness(t, unlimited(2, 3), meshing.Options{}, terrain(), &manualExecutor{})
	far := world.ChunkCoord{X: 4}

	h.settle(far)
	require.True(t, h.store.IsLoaded(far))
	require.Equal(t, Loaded, h.sched.State(far))
	_, hasEntity := h.sync.Entity(far)
	require.True(t, hasEntity)

	h.trans = nil
	h.tick(world.ChunkCoord{})

	assert.True(t, h.sawTransition(far, Loaded, Unloading), "чанк на расстоянии 4 переходит в Unloading")
	assert.True(t, h.sawTransition(far, Unloading, NotLoaded))
	assert.False(t, h.store.IsLoaded(far))
	_, hasEntity = h.sync.Entity(far)
	assert.False(t, hasEntity, "Сущность уничтожена вместе с чанком")

	// Гистерезис: чанк на расстоянии 3 остается загруженным
	assert.True(t, h.store.IsLoaded(world.ChunkCoord{X: 3}))
	assert.NotEqual(t, NotLoaded, h.sched.State(world.ChunkCoord{X: 3}))
}

func TestUnloadHasLowerPriority(t *testing.T) {
	opts := unlimited(1, 2)
	h := newHarness(t, opts, meshing.Options{}, terrain(), &manualExecutor{})
	h.settle(world.ChunkCoord{})

	// Бюджет 1: сначала загрузки вокруг нового положения, выгрузки позже
	h.sched.opts.TaskBudget = 1
	h.trans = nil
	h.tick(world.ChunkCoord{X: 10})

	st := h.sched.Stats()
	assert.Equal(t, uint64(27+1), st.LoadsDispatched, "отправлена одна новая загрузка")
	assert.Equal(t, uint64(0), st.Unloads)
	assert.Equal(t, Unloading, h.sched.State(world.ChunkCoord{}))
	assert.True(t, h.store.IsLoaded(world.ChunkCoord{}), "Чанк ожидает выгрузки, не исчезает мгновенно")
}

func (s *Scheduler) metricsQueueDepth() int {
	return int(testutil.ToFloat64(s.metrics.queueDepth))
}

func TestViewerReturnRestoresUnloadingChunks(t *testing.T) {
	opts := unlimited(1, 2)
	h := newHarness(t, opts, meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}
	h.settle(origin)
	live := h.bridge.Live()
	entities := h.sync.Len()

	// Бюджет 1: чанки у начала координат ждут выгрузки
	h.sched.opts.TaskBudget = 1
	h.tick(world.ChunkCoord{X: 10})
	require.Equal(t, Unloading, h.sched.State(origin))

	// Наблюдатель вернулся раньше, чем выгрузка дошла до очереди
	h.trans = nil
	h.tick(origin)
	assert.True(t, h.sawTransition(origin, Unloading, Dirty))
	// Отправлен один меш; вытесненные выгрузки и загрузки в счет не входят
	assert.Equal(t, 26, h.sched.Stats().Queued)
	assert.Equal(t, 26, h.sched.metricsQueueDepth())

	h.sched.opts.TaskBudget = 0
	h.settle(origin)

	assert.Equal(t, Loaded, h.sched.State(origin))
	assert.True(t, h.store.IsLoaded(origin))
	assert.Equal(t, 27, h.store.Len())
	assert.Equal(t, entities, h.sync.Len(), "Сущности сохранены")
	assert.Equal(t, live, h.bridge.Live(), "Старые меши освобождены")
}

func TestReturningViewerKeepsOneTaskPerChunk(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}

	h.tick(origin)
	h.tick(world.ChunkCoord{X: 100})
	h.tick(origin)

	perCoord := make(map[world.ChunkCoord]int)
	for _, job := range h.exec.pending {
		perCoord[job.Coord]++
	}
	for coord, n := range perCoord {
		assert.Equal(t, 1, n, "для %v в полете %d задач", coord, n)
	}
	assert.Equal(t, 27+27, len(h.exec.pending), "повторных загрузок нет")
	assert.Equal(t, NotLoaded, h.sched.State(origin), "ожидает результата прежней задачи")

	// Устаревшие результаты отбрасываются, затем координаты загружаются заново
	staleBefore := h.sched.Stats().StaleDiscarded
	h.settle(origin)
	assert.Equal(t, staleBefore+27+27, h.sched.Stats().StaleDiscarded)
	assert.Equal(t, 27, h.store.Len())
	assert.Equal(t, Loaded, h.sched.State(origin))
	assert.False(t, h.store.IsLoaded(world.ChunkCoord{X: 100}))
	assert.Equal(t, h.sync.Len(), h.bridge.Live())
	assert.Len(t, h.sched.entries, 27, "записи для дальней области удалены")
}

func TestTaskBudgetLimitsDispatch(t *testing.T) {
	opts := unlimited(2, 3)
	opts.TaskBudget = 5
	h := newHarness(t, opts, meshing.Options{}, terrain(), &manualExecutor{})

	h.tick(world.ChunkCoord{})
	st := h.sched.Stats()
	assert.Equal(t, uint64(5), st.LoadsDispatched)
	assert.Equal(t, 5, st.InFlight)
	assert.Equal(t, 125-5, st.Queued)

	// Ближайший чанк отправлен первым
	require.Len(t, h.exec.pending, 5)
	assert.Equal(t, world.ChunkCoord{}, h.exec.pending[0].Coord)
	for _, job := range h.exec.pending {
		assert.LessOrEqual(t, Chebyshev.rank(job.Coord, world.ChunkCoord{}), 1)
	}
}

func TestBackpressureFromPool(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{}, terrain(), &manualExecutor{limit: 3})

	h.tick(world.ChunkCoord{})
	st := h.sched.Stats()
	assert.Equal(t, uint64(3), st.LoadsDispatched, "Заполненный пул не блокирует тик")
	assert.Equal(t, 27-3, st.Queued)

	h.settle(world.ChunkCoord{})
	assert.Equal(t, 27, h.store.Len())
}

func TestEditRemeshesOnlyOwnChunk(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}
	h.settle(origin)

	before := h.sched.Stats()
	target := world.ChunkCoord{X: 1, Y: 0, Z: 0}
	e, _ := h.sync.Entity(target)
	oldMesh, _ := h.sync.Components().Meshes.Get(e)

	// Внутренний воксель чанка (1,0,0)
	require.NoError(t, h.store.SetBlock(vec.Vec3{X: testChunkSize + 1, Y: 1, Z: 1}, block.DirtBlockID))
	assert.Equal(t, 1, h.store.PendingDirty(), "Грязным стал только собственный чанк")

	h.tick(origin)
	assert.Equal(t, Dirty, h.sched.State(target))
	// Пока новый меш не готов, виден старый
	still, _ := h.sync.Components().Meshes.Get(e)
	assert.Equal(t, oldMesh.Handle, still.Handle)

	h.settle(origin)
	after := h.sched.Stats()
	assert.Equal(t, before.MeshesDispatched+1, after.MeshesDispatched, "Перестроен только один чанк")
	assert.Equal(t, before.LoadsDispatched, after.LoadsDispatched)
	assert.Equal(t, before.Unloads, after.Unloads)
	assert.Equal(t, 27, h.store.Len())
	assert.Equal(t, Loaded, h.sched.State(target))

	fresh, _ := h.sync.Components().Meshes.Get(e)
	assert.NotEqual(t, oldMesh.Handle, fresh.Handle)
}

func TestUnloadDiscardsInFlightMesh(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}

	h.tick(origin) // загрузки отправлены
	h.exec.flush()
	h.tick(origin) // генерация опубликована, меши отправлены
	require.Equal(t, 27, h.store.Len())
	require.Len(t, h.exec.pending, 27)
	for _, job := range h.exec.pending {
		require.Equal(t, TaskMesh, job.Kind)
	}
	meshJobs := append([]Job(nil), h.exec.pending...)
	h.exec.pending = nil

	// Наблюдатель уходит далеко: все чанки выгружаются, меши ещё в полете
	far := world.ChunkCoord{X: 100}
	h.tick(far)
	for _, job := range meshJobs {
		assert.False(t, h.store.IsLoaded(job.Coord))
	}

	staleBefore := h.sched.Stats().StaleDiscarded
	for _, job := range meshJobs {
		h.exec.done = append(h.exec.done, run(job))
	}
	h.tick(far)

	assert.Equal(t, staleBefore+27, h.sched.Stats().StaleDiscarded)
	for _, job := range meshJobs {
		_, ok := h.sync.Entity(job.Coord)
		assert.False(t, ok, "Для выгруженного чанка %v сущность не создается", job.Coord)
	}
	assert.Equal(t, 0, h.bridge.Live())
}

func TestEditDuringMeshIsNotLost(t *testing.T) {
	h := newHarness(t, unlimited(0, 1), meshing.Options{}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}

	h.tick(origin)
	h.exec.flush()
	h.tick(origin) // меш отправлен
	require.Len(t, h.exec.pending, 1)

	// Правка после снимка
	require.NoError(t, h.store.SetBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.StoneBlockID))
	h.exec.flush()
	h.tick(origin)

	assert.Equal(t, uint64(1), h.sched.Stats().StaleDiscarded, "Меш по старой версии отброшен")
	h.settle(origin)

	chunk, _ := h.store.Get(origin)
	e, ok := h.sync.Entity(origin)
	require.True(t, ok)
	m, _ := h.sync.Components().Meshes.Get(e)
	assert.Equal(t, chunk.Version(), m.Version, "Применен меш последней версии")
	assert.Equal(t, Loaded, h.sched.State(origin))
}

type flakyGenerator struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    world.Generator
}

func (g *flakyGenerator) Generate(coord world.ChunkCoord, seed int64, size int) ([]block.BlockID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures > 0 {
		g.failures--
		return nil, errors.New("noise backend unavailable")
	}
	return g.inner.Generate(coord, seed, size)
}

func TestGenerationFailureBackoff(t *testing.T) {
	gen := &flakyGenerator{failures: 2, inner: terrain()}
	h := newHarness(t, unlimited(0, 1), meshing.Options{}, gen, &manualExecutor{inline: true})
	origin := world.ChunkCoord{}

	h.tick(origin) // tick 1: первая попытка
	h.tick(origin) // tick 2: ошибка, повтор через 2 тика
	assert.Equal(t, NotLoaded, h.sched.State(origin))
	assert.False(t, h.store.IsLoaded(origin))
	assert.Equal(t, uint64(1), h.sched.Stats().GenerationFailures)

	h.tick(origin) // tick 3: ждем
	assert.Equal(t, 1, gen.calls)

	h.tick(origin) // tick 4: вторая попытка
	assert.Equal(t, 2, gen.calls)
	h.tick(origin) // tick 5: ошибка, задержка удваивается до 4
	assert.Equal(t, uint64(2), h.sched.Stats().GenerationFailures)

	for i := 0; i < 3; i++ {
		h.tick(origin)
	}
	assert.Equal(t, 2, gen.calls, "Повтор не раньше истечения задержки")

	h.settle(origin)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, Loaded, h.sched.State(origin))

	st := h.sched.Stats()
	assert.Equal(t, uint64(2), st.GenerationFailures)
}

func TestBackoffCapped(t *testing.T) {
	s := &Scheduler{opts: Options{RetryBase: 2, RetryMax: 16}}
	assert.Equal(t, 2, s.backoff(1))
	assert.Equal(t, 4, s.backoff(2))
	assert.Equal(t, 16, s.backoff(4))
	assert.Equal(t, 16, s.backoff(30))
}

func TestDeferPolicyWaitsForNeighbors(t *testing.T) {
	h := newHarness(t, unlimited(1, 2), meshing.Options{Missing: meshing.MissingDefer}, terrain(), &manualExecutor{})
	origin := world.ChunkCoord{}
	h.settle(origin)

	assert.Equal(t, Loaded, h.sched.State(origin), "У центра загружены все соседи")
	corner := world.ChunkCoord{X: 1, Y: 1, Z: 1}
	assert.Equal(t, Loading, h.sched.State(corner), "Внешнее кольцо ждет соседей")
	_, ok := h.sync.Entity(corner)
	assert.False(t, ok)
}

func TestBoundedWorldSkipsOutsideChunks(t *testing.T) {
	store := world.NewStore(world.StoreOptions{
		ChunkSize: testChunkSize,
		Bounds:    world.Bounds{Enabled: true, MinY: 0, MaxY: 0},
	}, terrain())
	w := ecs.NewWorld()
	sink := worldsync.New(w, render.RegisterComponents(w), render.NewMemoryBridge(), testChunkSize)
	sink.Attach(store)
	exec := &manualExecutor{inline: true}
	sched, err := NewScheduler(unlimited(1, 2), store, meshing.New(meshing.Options{Missing: meshing.MissingDefer}), exec, sink)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sched.Tick(context.Background(), world.ChunkCoord{})
	}
	assert.Equal(t, 9, store.Len(), "Загружается только слой y=0")
	assert.Equal(t, NotLoaded, sched.State(world.ChunkCoord{Y: 1}))
	assert.Equal(t, Loaded, sched.State(world.ChunkCoord{}))
}

func TestSchedulerMetricsAndEvents(t *testing.T) {
	h := newHarness(t, unlimited(0, 1), meshing.Options{}, terrain(), &manualExecutor{inline: true})
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h.sched.SetMetrics(m)

	bus := eventbus.NewMemoryBus(64)
	var mu sync.Mutex
	seen := map[string]int{}
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		seen[ev.EventType]++
		mu.Unlock()
	})
	require.NoError(t, err)
	h.sched.SetEvents(bus)

	origin := world.ChunkCoord{}
	h.settle(origin)
	h.tick(world.ChunkCoord{X: 5})
	require.NoError(t, bus.Close())

	// Вторая загрузка: чанк у нового положения наблюдателя
	assert.Equal(t, float64(2), testutil.ToFloat64(m.dispatched.WithLabelValues("load")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatched.WithLabelValues("unload")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.applied.WithLabelValues("mesh")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.stale))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[eventbus.EventChunkLoaded])
	assert.Equal(t, 1, seen[eventbus.EventChunkMeshed])
	assert.Equal(t, 1, seen[eventbus.EventChunkUnloaded])
}
