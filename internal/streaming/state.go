package streaming

import (
	"fmt"

	"github.com/annel0/cubescape/internal/world"
)

// State: состояние координаты чанка относительно наблюдателя
type State uint8

const (
	NotLoaded State = iota
	Loading         // Генерация или первый меш ещё не применены
	Loaded          // Загружен, меш актуален
	Dirty           // Загружен, виден старый меш, ждет перестроения
	Unloading
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "NotLoaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Dirty:
		return "Dirty"
	case Unloading:
		return "Unloading"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// TaskKind: вид задачи стриминга
type TaskKind uint8

const (
	TaskLoad TaskKind = iota
	TaskMesh
	TaskUnload
)

func (k TaskKind) String() string {
	switch k {
	case TaskLoad:
		return "load"
	case TaskMesh:
		return "mesh"
	case TaskUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Transition описывает смену состояния координаты
type Transition struct {
	Coord    world.ChunkCoord
	From, To State
	Tick     uint64
}

// DistanceMetric задаёт метрику радиусов загрузки
type DistanceMetric uint8

const (
	Chebyshev DistanceMetric = iota
	Euclidean
)

// ParseDistanceMetric разбирает значение из конфигурации
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch s {
	case "", "chebyshev":
		return Chebyshev, nil
	case "euclidean":
		return Euclidean, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", s)
	}
}

func (m DistanceMetric) String() string {
	if m == Euclidean {
		return "euclidean"
	}
	return "chebyshev"
}

// rank возвращает величину для сравнения с радиусом и сортировки:
// расстояние Чебышёва или квадрат евклидова расстояния
func (m DistanceMetric) rank(a, b world.ChunkCoord) int {
	if m == Euclidean {
		return a.Vec().DistanceSqTo(b.Vec())
	}
	return a.Vec().ChebyshevTo(b.Vec())
}

// limit переводит радиус в величину rank
func (m DistanceMetric) limit(radius int) int {
	if m == Euclidean {
		return radius * radius
	}
	return radius
}
