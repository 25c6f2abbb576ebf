package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tailored-agentic-units/backlog/orchestrate/config"
)

// Driver names.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverBadger = "badger"
)

// Config holds store initialization parameters.
//
// Example YAML:
//
//	store:
//	  driver: badger
//	  path: ./data/tasks
//	  gc_interval: 5m
type Config struct {
	Driver         string          `json:"driver" yaml:"driver" validate:"omitempty,oneof=memory file badger"`
	Path           string          `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Driver file,required_if=Driver badger"`
	SyncWritesNil  *bool           `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
	GCInterval     config.Duration `json:"gc_interval,omitempty" yaml:"gc_interval,omitempty"`
	GCDiscardRatio float64         `json:"gc_discard_ratio,omitempty" yaml:"gc_discard_ratio,omitempty" validate:"gte=0,lte=1"`
}

// SyncWrites reports whether badger fsyncs every write. Defaults to true.
func (c *Config) SyncWrites() bool {
	if c.SyncWritesNil == nil {
		return true
	}
	return *c.SyncWritesNil
}

// DefaultConfig returns the default store configuration: in-process memory.
func DefaultConfig() Config {
	return Config{
		Driver:         DriverMemory,
		GCInterval:     config.Duration(5 * time.Minute),
		GCDiscardRatio: 0.5,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Driver != "" {
		c.Driver = source.Driver
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.SyncWritesNil != nil {
		c.SyncWritesNil = source.SyncWritesNil
	}
	if source.GCInterval > 0 {
		c.GCInterval = source.GCInterval
	}
	if source.GCDiscardRatio > 0 {
		c.GCDiscardRatio = source.GCDiscardRatio
	}
}

// New creates a Store from configuration. logger receives badger's internal
// log output; nil silences it.
func New(cfg *Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: file driver", ErrMissingPath)
		}
		return NewFileStore(cfg.Path), nil
	case DriverBadger:
		return NewBadgerStore(BadgerOptions{
			Path:           cfg.Path,
			SyncWrites:     cfg.SyncWrites(),
			GCInterval:     cfg.GCInterval.Std(),
			GCDiscardRatio: cfg.GCDiscardRatio,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
