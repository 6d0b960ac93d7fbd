package observability

import (
	"context"
	"time"

	"github.com/annel0/cubescape/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options настройки трассировки
type Options struct {
	Enabled     bool
	ServiceName string
	// Exporter подменяет OTLP экспортер (тесты). nil: OTLP HTTP.
	Exporter trace.SpanExporter
}

// ShutdownFunc завершает работу провайдера
type ShutdownFunc func(context.Context) error

// InitTelemetry настраивает экспортер и устанавливает глобальный TracerProvider.
// При выключенной трассировке глобальный провайдер остаётся no-op.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
func InitTelemetry(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "cubescape"
	}

	exp := opts.Exporter
	if exp == nil {
		// OTLP HTTP экспортер (по умолчанию localhost:4318)
		otlp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, err
		}
		exp = otlp
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (service=%s)", opts.ServiceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}
