package world

import (
	"errors"
	"fmt"
)

var (
	// ErrChunkNotLoaded: ожидаемое состояние на границе стриминга, не сбой.
	ErrChunkNotLoaded = errors.New("chunk not loaded")
	// ErrOutsideWorld возвращается для чанков за вертикальными границами мира.
	ErrOutsideWorld = errors.New("chunk outside world bounds")
	// ErrOutOfBounds: обращение к вокселю за пределами чанка. Ошибка программы.
	ErrOutOfBounds = errors.New("voxel index out of chunk bounds")
	// ErrGeneration оборачивает ошибки генератора.
	ErrGeneration = errors.New("chunk generation failed")
)

// OutOfBoundsError описывает неверный локальный индекс
type OutOfBoundsError struct {
	X, Y, Z int
	Size    int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("voxel (%d,%d,%d) outside chunk of size %d", e.X, e.Y, e.Z, e.Size)
}

// Unwrap позволяет проверять errors.Is(err, ErrOutOfBounds)
func (e *OutOfBoundsError) Unwrap() error {
	return ErrOutOfBounds
}
