package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/cubescape/internal/meshing"
)

// Handle: непрозрачный идентификатор GPU-копии меша. Ноль означает отсутствие.
type Handle uint64

// Bridge загружает меши на GPU и освобождает их.
// Вызывается из горутины-владельца; реализация может сама
// ставить работу в очередь потока рендера.
type Bridge interface {
	Upload(mesh *meshing.Mesh) (Handle, error)
	Release(h Handle)
}

// ErrEmptyMesh: пустой меш не загружается
var ErrEmptyMesh = errors.New("empty mesh")

// ErrUnknownHandle возвращается при обращении к освобожденному handle
var ErrUnknownHandle = errors.New("unknown render handle")

// Upload описывает загруженный меш в MemoryBridge
type Upload struct {
	Handle    Handle
	Mesh      *meshing.Mesh
	Triangles int
}

// MemoryBridge хранит загруженные меши в памяти.
// Используется в безголовом режиме и в тестах.
type MemoryBridge struct {
	mu       sync.Mutex
	next     Handle
	live     map[Handle]Upload
	uploads  int
	releases int

	// FailNext заставляет следующий Upload вернуть ошибку
	FailNext error
}

// NewMemoryBridge создаёт мост
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{live: make(map[Handle]Upload)}
}

// Upload сохраняет меш и выдает новый handle
func (b *MemoryBridge) Upload(mesh *meshing.Mesh) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.FailNext; err != nil {
		b.FailNext = nil
		return 0, err
	}
	if mesh.Empty() {
		return 0, ErrEmptyMesh
	}

	b.next++
	b.live[b.next] = Upload{Handle: b.next, Mesh: mesh, Triangles: mesh.TriangleCount()}
	b.uploads++
	return b.next, nil
}

// Release освобождает handle. Повторное освобождение ничего не делает.
func (b *MemoryBridge) Release(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.live[h]; !ok {
		return
	}
	delete(b.live, h)
	b.releases++
}

// Lookup возвращает загруженный меш
func (b *MemoryBridge) Lookup(h Handle) (Upload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.live[h]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return u, nil
}

// Live возвращает число не освобожденных handle
func (b *MemoryBridge) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Stats возвращает счетчики загрузок и освобождений
func (b *MemoryBridge) Stats() (uploads, releases int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads, b.releases
}
