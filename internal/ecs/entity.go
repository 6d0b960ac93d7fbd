package ecs

import "fmt"

// EntityID хранит индекс в младших 32 битах и поколение в старших.
// Поколение растет при уничтожении, поэтому старые ссылки становятся недействительными.
// Нулевой ID никогда не выдается.
type EntityID uint64

// NewEntityID собирает ID из индекса и поколения
func NewEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("entity(%d:%d)", id.Index(), id.Generation())
}

// EntityPool выдает ID с повторным использованием индексов через free list
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	alive       int
}

// NewEntityPool создаёт пул
func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 256),
		freeList:    make([]uint32, 0, 64),
	}
}

// Create выдает новый ID
func (p *EntityPool) Create() EntityID {
	p.alive++
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := uint32(len(p.generations))
	p.generations = append(p.generations, 1)
	return NewEntityID(idx, 1)
}

// Alive проверяет, что ID выдан и ещё не уничтожен
func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if int(idx) >= len(p.generations) {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy освобождает ID. Устаревший ID игнорируется.
func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false
	}
	idx := id.Index()
	p.generations[idx]++
	if p.generations[idx] == 0 {
		p.generations[idx] = 1 // переполнение: ноль зарезервирован
	}
	p.freeList = append(p.freeList, idx)
	p.alive--
	return true
}

// Len возвращает число живых сущностей
func (p *EntityPool) Len() int { return p.alive }
