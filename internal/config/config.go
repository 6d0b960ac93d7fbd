package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/annel0/cubescape/internal/logging"
	"github.com/annel0/cubescape/internal/meshing"
	"github.com/annel0/cubescape/internal/streaming"
	"github.com/annel0/cubescape/internal/world"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig оборачивает все ошибки валидации
var ErrInvalidConfig = errors.New("invalid config")

// MaxChunkSize: предел длины ребра чанка
const MaxChunkSize = 64

// Config корневая структура конфигурации.
// Все значения фиксируются при запуске.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Streaming StreamingConfig `yaml:"streaming"`
	Meshing   MeshingConfig   `yaml:"meshing"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type WorldConfig struct {
	ChunkSize  int   `yaml:"chunk_size"`
	Seed       int64 `yaml:"seed"`
	Bounded    bool  `yaml:"bounded"`
	MinChunkY  int   `yaml:"min_chunk_y"`
	MaxChunkY  int   `yaml:"max_chunk_y"`
	EdgeOpaque bool  `yaml:"edge_opaque"`
}

type StreamingConfig struct {
	LoadRadius     int    `yaml:"load_radius"`
	UnloadRadius   int    `yaml:"unload_radius"`
	TaskBudget     int    `yaml:"task_budget"`
	ResultBudget   int    `yaml:"result_budget"`
	Distance       string `yaml:"distance"`
	RetryBaseTicks int    `yaml:"retry_base_ticks"`
	RetryMaxTicks  int    `yaml:"retry_max_ticks"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
}

type MeshingConfig struct {
	MissingNeighbor string `yaml:"missing_neighbor"`
	Greedy          bool   `yaml:"greedy"`
}

type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
	ToFile       bool   `yaml:"to_file"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	so := streaming.DefaultOptions()
	return &Config{
		World: WorldConfig{ChunkSize: 32},
		Streaming: StreamingConfig{
			LoadRadius:     so.LoadRadius,
			UnloadRadius:   so.UnloadRadius,
			TaskBudget:     so.TaskBudget,
			Distance:       so.Distance.String(),
			RetryBaseTicks: so.RetryBase,
			RetryMaxTicks:  so.RetryMax,
			QueueSize:      256,
		},
		Meshing:   MeshingConfig{MissingNeighbor: meshing.MissingOpaque.String()},
		Storage:   StorageConfig{Path: "data/chunks"},
		Metrics:   MetricsConfig{Addr: ""},
		Telemetry: TelemetryConfig{ServiceName: "cubescape"},
		Logging:   LoggingConfig{ConsoleLevel: "INFO", FileLevel: "DEBUG"},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV CUBESCAPE_CONFIG; без файла
// возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CUBESCAPE_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан: использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию целиком
func (c *Config) Validate() error {
	if c.World.ChunkSize < 1 || c.World.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk_size %d out of 1..%d", ErrInvalidConfig, c.World.ChunkSize, MaxChunkSize)
	}
	if c.World.Bounded && c.World.MinChunkY > c.World.MaxChunkY {
		return fmt.Errorf("%w: min_chunk_y %d > max_chunk_y %d", ErrInvalidConfig, c.World.MinChunkY, c.World.MaxChunkY)
	}
	if c.Streaming.Workers < 0 || c.Streaming.QueueSize < 1 {
		return fmt.Errorf("%w: workers %d, queue_size %d", ErrInvalidConfig, c.Streaming.Workers, c.Streaming.QueueSize)
	}
	if _, err := c.StreamingOptions(); err != nil {
		return err
	}
	if _, err := meshing.ParseMissingPolicy(c.Meshing.MissingNeighbor); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Storage.Enabled && !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage path is empty", ErrInvalidConfig)
	}
	for _, lvl := range []string{c.Logging.ConsoleLevel, c.Logging.FileLevel} {
		if _, err := logging.ParseLevel(lvl); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// StreamingOptions собирает настройки планировщика
func (c *Config) StreamingOptions() (streaming.Options, error) {
	metric, err := streaming.ParseDistanceMetric(c.Streaming.Distance)
	if err != nil {
		return streaming.Options{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	opts := streaming.Options{
		LoadRadius:   c.Streaming.LoadRadius,
		UnloadRadius: c.Streaming.UnloadRadius,
		TaskBudget:   c.Streaming.TaskBudget,
		ResultBudget: c.Streaming.ResultBudget,
		Distance:     metric,
		RetryBase:    c.Streaming.RetryBaseTicks,
		RetryMax:     c.Streaming.RetryMaxTicks,
	}
	if err := opts.Validate(); err != nil {
		return streaming.Options{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return opts, nil
}

// MesherOptions собирает настройки мешера
func (c *Config) MesherOptions() meshing.Options {
	policy, _ := meshing.ParseMissingPolicy(c.Meshing.MissingNeighbor)
	return meshing.Options{
		Missing:    policy,
		EdgeOpaque: c.World.EdgeOpaque,
		Greedy:     c.Meshing.Greedy,
	}
}

// StoreOptions собирает настройки хранилища чанков
func (c *Config) StoreOptions() world.StoreOptions {
	return world.StoreOptions{
		ChunkSize: c.World.ChunkSize,
		Seed:      c.World.Seed,
		Bounds: world.Bounds{
			Enabled: c.World.Bounded,
			MinY:    c.World.MinChunkY,
			MaxY:    c.World.MaxChunkY,
		},
	}
}

// LoggingOptions собирает настройки логирования
func (c *Config) LoggingOptions() logging.Options {
	console, _ := logging.ParseLevel(c.Logging.ConsoleLevel)
	file, _ := logging.ParseLevel(c.Logging.FileLevel)
	return logging.Options{ConsoleLevel: console, FileLevel: file, ToFile: c.Logging.ToFile}
}

// GetMetricsAddr возвращает адрес /metrics: config -> env -> default
func (m *MetricsConfig) GetMetricsAddr() string {
	if m.Addr != "" {
		return m.Addr
	}
	if env := os.Getenv("CUBESCAPE_METRICS_ADDR"); env != "" {
		return env
	}
	return ":2112"
}
