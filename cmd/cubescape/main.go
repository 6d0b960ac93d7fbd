package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/cubescape/internal/config"
	"github.com/annel0/cubescape/internal/ecs"
	"github.com/annel0/cubescape/internal/eventbus"
	"github.com/annel0/cubescape/internal/logging"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/observability"
	"github.com/annel0/cubescape/internal/render"
	"github.com/annel0/cubescape/internal/storage"
	"github.com/annel0/cubescape/internal/streaming"
	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/annel0/cubescape/internal/worldsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или CUBESCAPE_CONFIG)")
	ticks := flag.Int("ticks", 0, "число тиков, 0 = до сигнала")
	interval := flag.Duration("tick", 50*time.Millisecond, "интервал тика")
	radius := flag.Float64("path-radius", 48, "радиус пути камеры в блоках")
	speed := flag.Float64("speed", 0.25, "скорость камеры, блоков за тик")
	editEvery := flag.Int("edit-every", 40, "ставить блок под камерой каждые N тиков, 0 = никогда")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.Configure(cfg.LoggingOptions())
	if err := logging.InitDefaultLogger("cubescape"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	logging.Info("🧊 Запуск Cubescape: chunk=%d seed=%d", cfg.World.ChunkSize, cfg.World.Seed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		return
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	// === МЕТРИКИ ===
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.GetMetricsAddr(), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("❌ Ошибка сервера метрик: %v", err)
			}
		}()
		logging.Info("📈 Prometheus: http://localhost%s/metrics", metricsSrv.Addr)
	}

	// === ШИНА СОБЫТИЙ ===
	bus := eventbus.NewMemoryBus(1024)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось запустить LoggingListener: %v", err)
	}
	exporter := eventbus.NewMetricsExporter(bus, registry)
	exporter.Start()
	defer exporter.Stop()

	// === МИР ===
	var generator world.Generator = world.NewPerlinGenerator()
	if cfg.Storage.Enabled {
		cache, err := storage.NewChunkCache(storage.Options{Path: cfg.Storage.Path, InMemory: cfg.Storage.InMemory})
		if err != nil {
			logging.Error("❌ Ошибка открытия кеша чанков: %v", err)
			return
		}
		defer func() {
			st := cache.Stats()
			logging.Info("💾 Кеш чанков: hits=%d misses=%d writes=%d", st.Hits, st.Misses, st.Writes)
			if err := cache.Close(); err != nil {
				logging.Warn("Ошибка закрытия кеша: %v", err)
			}
		}()
		generator = storage.NewCachedGenerator(cache, generator)
	}

	store := world.NewStore(cfg.StoreOptions(), generator)
	mesher := meshing.New(cfg.MesherOptions())

	ecsWorld := ecs.NewWorld()
	comps := render.RegisterComponents(ecsWorld)
	bridge := render.NewMemoryBridge()
	entitySync := worldsync.New(ecsWorld, comps, bridge, store.ChunkSize())
	entitySync.Attach(store)

	opts, err := cfg.StreamingOptions()
	if err != nil {
		logging.Error("❌ %v", err)
		return
	}
	pool := streaming.NewWorkerPool(cfg.Streaming.Workers, cfg.Streaming.QueueSize)
	scheduler, err := streaming.NewScheduler(opts, store, mesher, pool, entitySync)
	if err != nil {
		logging.Error("❌ %v", err)
		return
	}
	defer scheduler.Close()
	scheduler.SetEvents(bus)
	scheduler.SetMetrics(streaming.NewMetrics(registry))

	logging.Info("✅ Планировщик: R=%d R'=%d budget=%d workers=%d policy=%s greedy=%v",
		opts.LoadRadius, opts.UnloadRadius, opts.TaskBudget, pool.Workers(),
		cfg.Meshing.MissingNeighbor, cfg.Meshing.Greedy)

	// === ЦИКЛ ОБНОВЛЕНИЯ ===
	cam := newCamera(float32(*radius), float32(*speed), float32(store.ChunkSize()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

loop:
	for tick := 1; *ticks == 0 || tick <= *ticks; tick++ {
		select {
		case <-ctx.Done():
			logging.Info("📡 Получен сигнал, завершение работы...")
			break loop
		case <-ticker.C:
		}

		cam.advance(store)
		scheduler.Tick(ctx, cam.chunk(store.ChunkSize()))

		if *editEvery > 0 && tick%*editEvery == 0 {
			if err := store.SetBlock(cam.block(), block.GlassBlockID); err != nil {
				logging.Debug("Правка под камерой пропущена: %v", err)
			}
		}

		if tick%100 == 0 {
			st := scheduler.Stats()
			logging.Info("🧭 tick=%d viewer=%v loaded=%d entities=%d draws=%d queued=%d inflight=%d stale=%d",
				tick, scheduler.Viewer(), store.Len(), entitySync.Len(), len(render.CollectDrawCommands(comps)),
				st.Queued, st.InFlight, st.StaleDiscarded)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Ошибка остановки сервера метрик: %v", err)
		}
		cancel()
	}
	uploads, releases := bridge.Stats()
	logging.Info("👋 Остановка: loaded=%d uploads=%d releases=%d", store.Len(), uploads, releases)
}
