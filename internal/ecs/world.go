package ecs

// World связывает пул сущностей с хранилищами компонентов.
// Не потокобезопасен: изменяется только из горутины-владельца.
type World struct {
	pool   *EntityPool
	stores []AnyStore
}

// NewWorld создаёт пустой мир
func NewWorld() *World {
	return &World{pool: NewEntityPool()}
}

// Register подключает хранилище, чтобы Destroy удалял из него компоненты
func (w *World) Register(s AnyStore) {
	w.stores = append(w.stores, s)
}

// Create создаёт сущность без компонентов
func (w *World) Create() EntityID {
	return w.pool.Create()
}

// Alive проверяет, жива ли сущность
func (w *World) Alive(e EntityID) bool {
	return w.pool.Alive(e)
}

// Destroy удаляет все компоненты сущности и освобождает ID.
// Возвращает false для уже уничтоженной сущности.
func (w *World) Destroy(e EntityID) bool {
	if !w.pool.Alive(e) {
		return false
	}
	for _, s := range w.stores {
		s.Remove(e)
	}
	return w.pool.Destroy(e)
}

// Len возвращает число живых сущностей
func (w *World) Len() int {
	return w.pool.Len()
}

// Register создаёт хранилище компонента T и подключает его к миру
func Register[T any](w *World) *Store[T] {
	s := NewStore[T]()
	w.Register(s)
	return s
}
