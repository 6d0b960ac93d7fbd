package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/annel0/cubescape/internal/world"
)

// Типы событий жизненного цикла чанка
const (
	EventChunkLoaded           = "chunk.loaded"
	EventChunkMeshed           = "chunk.meshed"
	EventChunkUnloaded         = "chunk.unloaded"
	EventChunkGenerationFailed = "chunk.generation_failed"
)

// ChunkEvent: полезная нагрузка событий чанка
type ChunkEvent struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Version uint64 `json:"version,omitempty"`
	Faces   int    `json:"faces,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Coord возвращает координаты чанка события
func (e ChunkEvent) Coord() world.ChunkCoord {
	return world.ChunkCoord{X: e.X, Y: e.Y, Z: e.Z}
}

// NewChunkEvent заполняет координаты
func NewChunkEvent(coord world.ChunkCoord) ChunkEvent {
	return ChunkEvent{X: coord.X, Y: coord.Y, Z: coord.Z}
}

// NewChunkEnvelope упаковывает событие чанка. Ошибки генерации получают
// высокий приоритет и не отбрасываются при переполнении буфера.
func NewChunkEnvelope(eventType, source string, ev ChunkEvent) (*Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	priority := 1
	if eventType == EventChunkGenerationFailed {
		priority = 5
	}
	return NewEnvelope(eventType, source, priority, payload), nil
}

// DecodeChunkEvent разбирает полезную нагрузку конверта
func DecodeChunkEvent(env *Envelope) (ChunkEvent, error) {
	var ev ChunkEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return ChunkEvent{}, fmt.Errorf("decode %s %s: %w", env.EventType, env.ID, err)
	}
	return ev, nil
}
