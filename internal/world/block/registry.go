package block

import (
	"fmt"
	"sync"
)

// BlockID представляет идентификатор типа блока. 0 всегда воздух.
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID     BlockID = iota // 0
	StoneBlockID                  // 1
	DirtBlockID                   // 2
	GrassBlockID                  // 3
	SandBlockID                   // 4
	BedrockBlockID                // 5

	// Прозрачные блоки (начиная с 100)
	WaterBlockID  BlockID = 100
	GlassBlockID  BlockID = 101
	LeavesBlockID BlockID = 102

	// Растительность (начиная с 200)
	LogBlockID BlockID = 200
)

// Face определяет, какую текстуру блока брать для грани
type Face uint8

const (
	FaceSide Face = iota
	FaceTop
	FaceBottom
)

// Type описывает статические свойства типа блока.
// Свойства не хранятся в вокселях, только в таблице типов.
type Type struct {
	ID     BlockID
	Name   string
	Opaque bool
	Top    uint16 // Индекс текстуры верхней грани
	Bottom uint16 // Индекс текстуры нижней грани
	Side   uint16 // Индекс текстуры боковых граней
}

// Uniform возвращает тип с одной текстурой на все грани
func Uniform(id BlockID, name string, opaque bool, texture uint16) Type {
	return Type{ID: id, Name: name, Opaque: opaque, Top: texture, Bottom: texture, Side: texture}
}

// table: замороженная таблица поиска, строится один раз
type table struct {
	opaque   []bool
	textures [][3]uint16
}

var (
	registryMu sync.Mutex
	registry   = make(map[BlockID]Type)
	frozen     *table
	freezeOnce sync.Once
)

// Register добавляет тип блока в регистр.
// Регистрация после Freeze является ошибкой программы.
func Register(t Type) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if frozen != nil {
		panic(fmt.Sprintf("block: регистрация типа %d (%s) после заморозки таблицы", t.ID, t.Name))
	}
	if t.ID == AirBlockID && t.Opaque {
		panic("block: воздух не может быть непрозрачным")
	}
	registry[t.ID] = t
}

// Get возвращает тип блока по ID
func Get(id BlockID) (Type, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	t, exists := registry[id]
	return t, exists
}

// IsValidBlockID проверяет, зарегистрирован ли ID
func IsValidBlockID(id BlockID) bool {
	_, exists := Get(id)
	return exists
}

// Freeze строит таблицу поиска. Повторные вызовы ничего не делают.
// IsOpaque и TextureFor вызывают Freeze неявно.
func Freeze() {
	freezeOnce.Do(func() {
		registryMu.Lock()
		defer registryMu.Unlock()

		maxID := 0
		for id := range registry {
			if int(id) > maxID {
				maxID = int(id)
			}
		}

		t := &table{
			opaque:   make([]bool, maxID+1),
			textures: make([][3]uint16, maxID+1),
		}
		for id, bt := range registry {
			t.opaque[id] = bt.Opaque
			t.textures[id] = [3]uint16{FaceSide: bt.Side, FaceTop: bt.Top, FaceBottom: bt.Bottom}
		}
		frozen = t
	})
}

func lookup() *table {
	Freeze()
	return frozen
}

// IsOpaque сообщает, является ли блок непрозрачным.
// Незарегистрированные ID считаются прозрачными.
// Безопасно для вызова из воркеров: таблица неизменяема после заморозки.
func IsOpaque(id BlockID) bool {
	t := lookup()
	if int(id) >= len(t.opaque) {
		return false
	}
	return t.opaque[id]
}

// TextureFor возвращает индекс текстуры для грани блока
func TextureFor(id BlockID, face Face) uint16 {
	t := lookup()
	if int(id) >= len(t.textures) {
		return 0
	}
	return t.textures[id][face]
}
