package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/cubescape/internal/world"
	"github.com/annel0/cubescape/internal/world/block"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrNotReady возвращается после Close
	ErrNotReady = errors.New("хранилище не готово")
	// ErrCorrupt: запись не соответствует размеру чанка
	ErrCorrupt = errors.New("повреждённая запись чанка")
)

// cacheFormat: версия формата записи
const cacheFormat byte = 1

// Options задают расположение кеша
type Options struct {
	Path     string
	InMemory bool
}

// CacheStats: счетчики кеша
type CacheStats struct {
	Hits   int64
	Misses int64
	Writes int64
}

// ChunkCache хранит результаты генерации чанков в BadgerDB, сжатые zstd.
// Это кеш, а не сохранение мира: правки игрока сюда не попадают.
// Безопасен для одновременного использования из воркеров.
type ChunkCache struct {
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

// NewChunkCache открывает кеш
func NewChunkCache(o Options) (*ChunkCache, error) {
	var opts badger.Options
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(o.Path)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &ChunkCache{db: db, enc: enc, dec: dec, isReady: true}, nil
}

// Close закрывает кеш
func (c *ChunkCache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isReady {
		return nil
	}
	c.isReady = false
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// Stats возвращает счетчики попаданий
func (c *ChunkCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Writes: c.writes.Load()}
}

func chunkKey(seed int64, size int, coord world.ChunkCoord) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d:%d:%d", seed, size, coord.X, coord.Y, coord.Z))
}

// Put сохраняет сгенерированный буфер
func (c *ChunkCache) Put(seed int64, size int, coord world.ChunkCoord, blocks []block.BlockID) error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isReady {
		return ErrNotReady
	}

	raw := make([]byte, 1+2*len(blocks))
	raw[0] = cacheFormat
	for i, id := range blocks {
		binary.LittleEndian.PutUint16(raw[1+2*i:], uint16(id))
	}
	data := c.enc.EncodeAll(raw, nil)

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(seed, size, coord), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	c.writes.Add(1)
	return nil
}

// Get читает буфер. ok == false при отсутствии записи.
func (c *ChunkCache) Get(seed int64, size int, coord world.ChunkCoord) ([]block.BlockID, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if !c.isReady {
		return nil, false, ErrNotReady
	}

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(seed, size, coord))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w %v: %w", ErrCorrupt, coord, err)
	}
	want := size * size * size
	if len(raw) != 1+2*want || raw[0] != cacheFormat {
		return nil, false, fmt.Errorf("%w %v: %d bytes", ErrCorrupt, coord, len(raw))
	}

	blocks := make([]block.BlockID, want)
	for i := range blocks {
		blocks[i] = block.BlockID(binary.LittleEndian.Uint16(raw[1+2*i:]))
	}
	c.hits.Add(1)
	return blocks, true, nil
}
