package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: Prometheus-метрики планировщика
type Metrics struct {
	dispatched   *prometheus.CounterVec
	applied      *prometheus.CounterVec
	stale        prometheus.Counter
	genFailures  prometheus.Counter
	upFailures   prometheus.Counter
	loadedChunks prometheus.Gauge
	inFlight     prometheus.Gauge
	queueDepth   prometheus.Gauge
	tickSeconds  prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// nil reg: метрики не регистрируются (тесты, встраивание).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "tasks_dispatched_total",
			Help:      "Задачи, отправленные за тик, по виду.",
		}, []string{"kind"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "results_applied_total",
			Help:      "Результаты воркеров, примененные владельцем.",
		}, []string{"kind"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "stale_discarded_total",
			Help:      "Устаревшие результаты, отброшенные по тикету или версии.",
		}),
		genFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "generation_failures_total",
			Help:      "Ошибки генерации чанков.",
		}),
		upFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "upload_failures_total",
			Help:      "Ошибки загрузки меша в рендер.",
		}),
		loadedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "loaded_chunks",
			Help:      "Загруженные чанки.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "tasks_in_flight",
			Help:      "Задачи, выполняющиеся в пуле.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "queue_depth",
			Help:      "Элементы очереди задач.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cubescape",
			Subsystem: "streaming",
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика планировщика.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.dispatched, m.applied, m.stale, m.genFailures, m.upFailures,
			m.loadedChunks, m.inFlight, m.queueDepth, m.tickSeconds)
	}
	return m
}
