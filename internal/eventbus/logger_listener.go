package eventbus

import (
	"context"

	"github.com/annel0/cubescape/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог компонента "events".
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	logger := logging.GetComponentLogger("events")
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		chunk, err := DecodeChunkEvent(ev)
		if err != nil {
			logger.Warn("[EventBus] %s %s: %v", ev.ID, ev.EventType, err)
			return
		}
		if chunk.Error != "" {
			logger.Warn("[EventBus] %s chunk=%v attempt=%d: %s", ev.EventType, chunk.Coord(), chunk.Attempt, chunk.Error)
			return
		}
		logger.Debug("[EventBus] %s %s chunk=%v src=%s prio=%d", ev.ID, ev.EventType, chunk.Coord(), ev.Source, ev.Priority)
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
