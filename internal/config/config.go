// Package config defines codesearchd's configuration model and its
// hierarchical merge: built-in defaults, a user config file, a project
// config file, environment variables, and CLI flags, in that order.
package config

import "time"

// Config is the fully merged configuration for a codesearchd process.
type Config struct {
	DB        DBConfig        `yaml:"db" mapstructure:"db"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
}

// DBConfig locates the embedded database.
type DBConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WatchConfig controls the File Watcher.
type WatchConfig struct {
	Include    []string `yaml:"include" mapstructure:"include"`
	Exclude    []string `yaml:"exclude" mapstructure:"exclude"`
	DebounceMs int      `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// Debounce returns the configured debounce window as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// BatchConfig controls an embedding provider's adaptive batch sizing.
type BatchConfig struct {
	Min    int     `yaml:"min" mapstructure:"min"`
	Initial int    `yaml:"initial" mapstructure:"initial"`
	Max    int     `yaml:"max" mapstructure:"max"`
	Growth float64 `yaml:"growth_factor" mapstructure:"growth_factor"`
	Shrink float64 `yaml:"shrink_factor" mapstructure:"shrink_factor"`
}

// ProviderConfig describes one configured embedding provider.
type ProviderConfig struct {
	BaseURL  string      `yaml:"base_url" mapstructure:"base_url"`
	APIKey   string      `yaml:"api_key" mapstructure:"api_key"`
	Model    string      `yaml:"model" mapstructure:"model"`
	Dim      int         `yaml:"dim" mapstructure:"dim"`
	Distance string      `yaml:"distance" mapstructure:"distance"` // "cosine" or "l2"
	Batch    BatchConfig `yaml:"batch" mapstructure:"batch"`
	TimeoutS int         `yaml:"timeout_s" mapstructure:"timeout_s"`
	CharCap  int         `yaml:"char_cap" mapstructure:"char_cap"`
}

// Timeout returns the provider's call timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutS) * time.Second
}

// EmbeddingConfig configures the Embedding Orchestrator.
type EmbeddingConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	DefaultModel    string                    `yaml:"default_model" mapstructure:"default_model"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// SearchConfig configures the Search Service's response budget.
type SearchConfig struct {
	MaxResponseBytes int `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
}

// IndexConfig restricts which languages are active and sizes the Indexing
// Coordinator's event queue.
type IndexConfig struct {
	Languages     []string `yaml:"languages" mapstructure:"languages"`
	QueueCapacity int      `yaml:"queue_capacity" mapstructure:"queue_capacity"`
}

// LogConfig controls the shared zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // console, json
}

// HTTPConfig controls the optional HTTP surface.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// AppName is the configuration namespace used for user/project config file
// names and the environment variable prefix.
const AppName = "codesearchd"

// Default returns the built-in defaults, the bottom of the merge chain.
func Default() *Config {
	return &Config{
		DB: DBConfig{
			Path: ".codesearchd/index.db",
		},
		Watch: WatchConfig{
			Include: nil, // nil means "everything not excluded"
			Exclude: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/vendor/**",
				"**/target/**",
				"**/dist/**",
				"**/build/**",
				"**/__pycache__/**",
				"**/.codesearchd/**",
			},
			DebounceMs: 500,
		},
		Embedding: EmbeddingConfig{
			DefaultProvider: "local",
			DefaultModel:    "bge-small-en-v1.5",
			Providers: map[string]ProviderConfig{
				"local": {
					BaseURL:  "http://127.0.0.1:8121/embed",
					Model:    "bge-small-en-v1.5",
					Dim:      384,
					Distance: "cosine",
					Batch: BatchConfig{
						Min: 8, Initial: 16, Max: 100,
						Growth: 1.5, Shrink: 0.5,
					},
					TimeoutS: 30,
					CharCap:  8000,
				},
			},
		},
		Search: SearchConfig{
			MaxResponseBytes: 60000,
		},
		Index: IndexConfig{
			Languages:     nil, // nil means "all supported languages"
			QueueCapacity: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8787",
		},
	}
}
