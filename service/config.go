package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/backlog/analysis"
	"github.com/tailored-agentic-units/backlog/notify"
	"github.com/tailored-agentic-units/backlog/orchestrate/config"
	"github.com/tailored-agentic-units/backlog/store"
	"github.com/tailored-agentic-units/backlog/telemetry"
)

// Environment variables applied by LoadConfig after the file is merged.
const (
	EnvGraph     = "BACKLOG_GRAPH"
	EnvLLMAPIKey = "BACKLOG_LLM_API_KEY"
	EnvLLMURL    = "BACKLOG_LLM_BASE_URL"
	EnvStorePath = "BACKLOG_STORE_PATH"
	EnvAddr      = "BACKLOG_ADDR"
)

var validate = validator.New()

// DuplicatesConfig tunes duplicate detection against stored tasks.
type DuplicatesConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
	Window    int     `json:"window" yaml:"window" validate:"gte=0"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string          `json:"addr" yaml:"addr" validate:"required"`
	ShutdownTimeout config.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// NotifyConfig selects the completion notifiers. The log notifier is always
// installed.
type NotifyConfig struct {
	SocketIO notify.SocketIOConfig `json:"socketio" yaml:"socketio"`
}

// Config holds initialization parameters for every subsystem. Each section
// is handed to that subsystem's config-driven constructor.
//
// Example YAML:
//
//	graph: configs/triage.yaml
//	executor:
//	  pipeline_timeout: 2m
//	  node_timeout: 30s
//	store:
//	  driver: badger
//	  path: ./data/tasks
//	server:
//	  addr: ":8080"
type Config struct {
	Graph      string                `json:"graph" yaml:"graph" validate:"required"`
	Executor   config.ExecutorConfig `json:"executor" yaml:"executor"`
	Batch      config.BatchConfig    `json:"batch" yaml:"batch"`
	Store      store.Config          `json:"store" yaml:"store"`
	LLM        analysis.LLMConfig    `json:"llm" yaml:"llm"`
	Duplicates DuplicatesConfig      `json:"duplicates" yaml:"duplicates"`
	Notify     NotifyConfig          `json:"notify" yaml:"notify"`
	Telemetry  telemetry.Config      `json:"telemetry" yaml:"telemetry"`
	Server     ServerConfig          `json:"server" yaml:"server"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Graph:    "configs/triage.yaml",
		Executor: config.DefaultExecutorConfig(),
		Batch:    config.DefaultBatchConfig(),
		Store:    store.DefaultConfig(),
		LLM:      analysis.DefaultLLMConfig(),
		Duplicates: DuplicatesConfig{
			Threshold: 0.6,
			Window:    100,
		},
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: config.Duration(10 * time.Second),
		},
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Graph != "" {
		c.Graph = source.Graph
	}

	c.Executor.Merge(&source.Executor)
	c.Batch.Merge(&source.Batch)
	c.Store.Merge(&source.Store)
	c.LLM.Merge(&source.LLM)
	c.Telemetry.Merge(&source.Telemetry)

	if source.Duplicates.Threshold > 0 {
		c.Duplicates.Threshold = source.Duplicates.Threshold
	}
	if source.Duplicates.Window > 0 {
		c.Duplicates.Window = source.Duplicates.Window
	}

	if source.Notify.SocketIO.Enabled() {
		c.Notify.SocketIO = source.Notify.SocketIO
	}

	if source.Server.Addr != "" {
		c.Server.Addr = source.Server.Addr
	}
	if source.Server.ShutdownTimeout > 0 {
		c.Server.ShutdownTimeout = source.Server.ShutdownTimeout
	}
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvGraph); v != "" {
		c.Graph = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads a JSON or YAML config file, merges it with defaults,
// applies environment overrides, and validates the result. An empty filename
// skips the file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		var loaded Config
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".yaml", ".yml":
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			err = dec.Decode(&loaded)
		default:
			err = json.Unmarshal(data, &loaded)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		cfg.Merge(&loaded)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
