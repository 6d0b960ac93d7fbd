package ecs

// AnyStore: операции над хранилищем компонента без знания его типа
type AnyStore interface {
	Remove(e EntityID)
	Has(e EntityID) bool
	Len() int
	Clear()
}

// Store хранит компоненты типа T в плотном массиве (sparse set).
// Порядок Each совпадает с порядком вставки, пока нет удалений.
type Store[T any] struct {
	sparse   map[EntityID]int
	entities []EntityID
	dense    []T
}

// NewStore создаёт хранилище компонента
func NewStore[T any]() *Store[T] {
	return &Store[T]{sparse: make(map[EntityID]int)}
}

// Set добавляет или заменяет компонент сущности
func (s *Store[T]) Set(e EntityID, v T) {
	if i, ok := s.sparse[e]; ok {
		s.dense[i] = v
		return
	}
	s.sparse[e] = len(s.dense)
	s.entities = append(s.entities, e)
	s.dense = append(s.dense, v)
}

// Get возвращает копию компонента
func (s *Store[T]) Get(e EntityID) (T, bool) {
	if i, ok := s.sparse[e]; ok {
		return s.dense[i], true
	}
	var zero T
	return zero, false
}

// Ptr возвращает указатель на компонент. Действителен до следующего Set/Remove.
func (s *Store[T]) Ptr(e EntityID) *T {
	if i, ok := s.sparse[e]; ok {
		return &s.dense[i]
	}
	return nil
}

// Has проверяет наличие компонента
func (s *Store[T]) Has(e EntityID) bool {
	_, ok := s.sparse[e]
	return ok
}

// Remove удаляет компонент переносом последнего элемента на его место
func (s *Store[T]) Remove(e EntityID) {
	i, ok := s.sparse[e]
	if !ok {
		return
	}
	last := len(s.dense) - 1
	if i != last {
		s.dense[i] = s.dense[last]
		s.entities[i] = s.entities[last]
		s.sparse[s.entities[i]] = i
	}
	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.entities = s.entities[:last]
	delete(s.sparse, e)
}

// Len возвращает количество компонентов
func (s *Store[T]) Len() int { return len(s.dense) }

// Clear удаляет все компоненты
func (s *Store[T]) Clear() {
	clear(s.sparse)
	clear(s.dense)
	s.dense = s.dense[:0]
	s.entities = s.entities[:0]
}

// Entities возвращает копию списка сущностей с компонентом
func (s *Store[T]) Entities() []EntityID {
	out := make([]EntityID, len(s.entities))
	copy(out, s.entities)
	return out
}

// Each вызывает fn для каждого компонента. Изменять хранилище внутри fn нельзя.
func (s *Store[T]) Each(fn func(e EntityID, v *T)) {
	for i := range s.dense {
		fn(s.entities[i], &s.dense[i])
	}
}
