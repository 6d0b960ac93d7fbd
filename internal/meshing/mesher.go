package meshing

import (
	"errors"
	"fmt"

	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/go-gl/mathgl/mgl32"
)

// MissingPolicy определяет, как трактовать незагруженного соседа
type MissingPolicy uint8

const (
	// MissingOpaque считает незагруженного соседа сплошным: граничные грани не строятся
	MissingOpaque MissingPolicy = iota
	// MissingTransparent считает незагруженного соседа воздухом
	MissingTransparent
	// MissingDefer запрещает мешинг, пока все соседи не загружены
	MissingDefer
)

// ParseMissingPolicy разбирает значение из конфигурации
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "opaque":
		return MissingOpaque, nil
	case "transparent":
		return MissingTransparent, nil
	case "defer":
		return MissingDefer, nil
	default:
		return 0, fmt.Errorf("unknown missing neighbor policy %q", s)
	}
}

func (p MissingPolicy) String() string {
	switch p {
	case MissingOpaque:
		return "opaque"
	case MissingTransparent:
		return "transparent"
	case MissingDefer:
		return "defer"
	default:
		return "unknown"
	}
}

var (
	// ErrNeighborsIncomplete возвращается при политике MissingDefer
	ErrNeighborsIncomplete = errors.New("neighbor chunks not loaded")
	// ErrInvalidInput: размер буфера не совпадает с размером чанка
	ErrInvalidInput = errors.New("invalid mesher input")
)

// Options фиксируются при запуске
type Options struct {
	Missing    MissingPolicy
	EdgeOpaque bool // Граница мира считается сплошной
	Greedy     bool // Объединять соседние грани с одной текстурой
}

// Input: снимок данных для мешинга. Мешер не хранит ссылок на него.
type Input struct {
	Coord     world.ChunkCoord
	Version   uint64
	Size      int
	Blocks    []block.BlockID // Раскладка x + z*size + y*size*size
	Neighbors world.Neighbors
}

// Mesher строит меш чанка. Не имеет состояния кроме опций,
// безопасен для одновременного использования из воркеров.
type Mesher struct {
	opts Options
}

// New создаёт мешер
func New(opts Options) *Mesher {
	return &Mesher{opts: opts}
}

// Options возвращает опции мешера
func (m *Mesher) Options() Options { return m.opts }

// Build строит меш по снимку. Грань вокселя строится, если воксель
// непрозрачен, а соседний по грани воксель прозрачен или отсутствует.
// Порядок граней фиксирован: направления в порядке world.AllDirections,
// затем слой, затем v и u по возрастанию.
func (m *Mesher) Build(in Input) (*Mesh, error) {
	size := in.Size
	if size <= 0 || len(in.Blocks) != size*size*size {
		return nil, fmt.Errorf("%w: %d voxels for size %d", ErrInvalidInput, len(in.Blocks), size)
	}
	for d, b := range in.Neighbors {
		if b.Kind == world.BoundaryLoaded && len(b.Blocks) != size*size {
			return nil, fmt.Errorf("%w: boundary %v has %d voxels", ErrInvalidInput, world.Direction(d), len(b.Blocks))
		}
	}
	if m.opts.Missing == MissingDefer && !in.Neighbors.Complete() {
		return nil, fmt.Errorf("mesh %v: %w", in.Coord, ErrNeighborsIncomplete)
	}

	mesh := &Mesh{Coord: in.Coord, Version: in.Version}
	mask := make([]uint32, size*size)

	for _, d := range world.AllDirections {
		for layer := 0; layer < size; layer++ {
			if m.fillMask(in, d, layer, mask) == 0 {
				continue
			}
			if m.opts.Greedy {
				emitGreedy(mesh, mask, d, layer, size)
			} else {
				emitNaive(mesh, mask, d, layer, size)
			}
		}
	}
	return mesh, nil
}

// fillMask заполняет маску видимых граней слоя: 0: грани нет,
// иначе индекс текстуры + 1. Возвращает число видимых граней.
func (m *Mesher) fillMask(in Input, d world.Direction, layer int, mask []uint32) int {
	size := in.Size
	axis := d.Axis()
	ua, va := d.Tangents()
	step := 1
	if !d.Positive() {
		step = -1
	}
	face := faceOf(d)

	count := 0
	var p [3]int
	p[axis] = layer
	for v := 0; v < size; v++ {
		p[va] = v
		for u := 0; u < size; u++ {
			p[ua] = u
			id := in.Blocks[p[0]+p[2]*size+p[1]*size*size]
			mask[u+v*size] = 0
			if !block.IsOpaque(id) {
				continue
			}

			var covered bool
			if next := layer + step; next >= 0 && next < size {
				q := p
				q[axis] = next
				covered = block.IsOpaque(in.Blocks[q[0]+q[2]*size+q[1]*size*size])
			} else {
				covered = m.boundaryOpaque(in.Neighbors[d], u, v, size)
			}
			if covered {
				continue
			}
			mask[u+v*size] = uint32(block.TextureFor(id, face)) + 1
			count++
		}
	}
	return count
}

func (m *Mesher) boundaryOpaque(b world.Boundary, u, v, size int) bool {
	switch b.Kind {
	case world.BoundaryLoaded:
		return block.IsOpaque(b.At(u, v, size))
	case world.BoundaryEdge:
		return m.opts.EdgeOpaque
	default:
		return m.opts.Missing == MissingOpaque
	}
}

func faceOf(d world.Direction) block.Face {
	switch d {
	case world.PosY:
		return block.FaceTop
	case world.NegY:
		return block.FaceBottom
	default:
		return block.FaceSide
	}
}

func emitNaive(mesh *Mesh, mask []uint32, d world.Direction, layer, size int) {
	for v := 0; v < size; v++ {
		for u := 0; u < size; u++ {
			if t := mask[u+v*size]; t != 0 {
				emitQuad(mesh, d, layer, u, v, 1, 1, uint16(t-1))
			}
		}
	}
}

// emitGreedy объединяет прямоугольники граней с одинаковой текстурой.
// Маска расходуется.
func emitGreedy(mesh *Mesh, mask []uint32, d world.Direction, layer, size int) {
	for v := 0; v < size; v++ {
		for u := 0; u < size; {
			t := mask[u+v*size]
			if t == 0 {
				u++
				continue
			}

			w := 1
			for u+w < size && mask[u+w+v*size] == t {
				w++
			}

			h := 1
		grow:
			for v+h < size {
				for k := 0; k < w; k++ {
					if mask[u+k+(v+h)*size] != t {
						break grow
					}
				}
				h++
			}

			for dv := 0; dv < h; dv++ {
				for du := 0; du < w; du++ {
					mask[u+du+(v+dv)*size] = 0
				}
			}
			emitQuad(mesh, d, layer, u, v, w, h, uint16(t-1))
			mesh.Faces += w*h - 1
			u += w
		}
	}
}

// emitQuad добавляет квад w×h в плоскости грани. Обход вершин против
// часовой стрелки, если смотреть снаружи по нормали.
func emitQuad(mesh *Mesh, d world.Direction, layer, u, v, w, h int, texture uint16) {
	axis := d.Axis()
	ua, va := d.Tangents()

	plane := layer
	if d.Positive() {
		plane++
	}

	var base, du, dv mgl32.Vec3
	base[axis] = float32(plane)
	base[ua] = float32(u)
	base[va] = float32(v)
	du[ua] = float32(w)
	dv[va] = float32(h)

	var corners [4]mgl32.Vec3
	if d.Positive() {
		corners = [4]mgl32.Vec3{base, base.Add(du), base.Add(du).Add(dv), base.Add(dv)}
	} else {
		corners = [4]mgl32.Vec3{base, base.Add(dv), base.Add(du).Add(dv), base.Add(du)}
	}

	o := d.Offset()
	normal := mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}

	uw, vh := float32(w), float32(h)
	if !d.Positive() {
		uw, vh = vh, uw
	}
	mesh.addQuad(corners, normal, uw, vh, texture)
	mesh.Faces++
}
