package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader merges configuration from the layers spec.md §6 mandates, later
// layers winning: built-in defaults → user config file → project config
// file → environment variables → CLI flags.
type Loader interface {
	Load() (*Config, error)
}

type loader struct {
	projectRoot string
	userConfig  string // overrides $HOME/.codesearchrc.json for tests
	flags       *pflag.FlagSet
}

// Option customizes a Loader.
type Option func(*loader)

// WithUserConfigPath overrides the default $HOME/.codesearchrc.json location.
func WithUserConfigPath(path string) Option {
	return func(l *loader) { l.userConfig = path }
}

// WithFlags binds a CLI flag set as the final, highest-priority layer.
func WithFlags(flags *pflag.FlagSet) Option {
	return func(l *loader) { l.flags = flags }
}

// NewLoader creates a configuration loader rooted at projectRoot (normally
// the directory being indexed).
func NewLoader(projectRoot string, opts ...Option) Loader {
	l := &loader{projectRoot: projectRoot}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	// Layer 2: user config file.
	userPath := l.userConfig
	if userPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			userPath = filepath.Join(home, ".codesearchrc.json")
		}
	}
	if userPath != "" {
		if err := mergeFileIfExists(v, userPath); err != nil {
			return nil, fmt.Errorf("failed to read user config %s: %w", userPath, err)
		}
	}

	// Layer 3: project config file.
	projectPath := filepath.Join(l.projectRoot, ".codesearch.json")
	if err := mergeFileIfExists(v, projectPath); err != nil {
		return nil, fmt.Errorf("failed to read project config %s: %w", projectPath, err)
	}

	// Layer 4: environment variables, CODESEARCHD_ prefixed, __ nested delimiter.
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	bindEnv(v)

	// Layer 5: CLI flags, highest priority.
	if l.flags != nil {
		if err := v.BindPFlags(l.flags); err != nil {
			return nil, fmt.Errorf("failed to bind CLI flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeFileIfExists reads path into v if it exists, leaving v untouched
// (not an error) when the file is absent.
func mergeFileIfExists(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	v.SetConfigFile(path)
	return v.MergeInConfig()
}

func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"db.path",
		"watch.include", "watch.exclude", "watch.debounce_ms",
		"embedding.default_provider", "embedding.default_model",
		"search.max_response_bytes",
		"index.languages",
		"log.level", "log.format",
		"http.enabled", "http.addr",
	} {
		_ = v.BindEnv(key)
	}
}

// setDefaults seeds viper with Default()'s values so they sit at the bottom
// of the merge chain.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("db.path", d.DB.Path)

	v.SetDefault("watch.include", d.Watch.Include)
	v.SetDefault("watch.exclude", d.Watch.Exclude)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)

	v.SetDefault("embedding.default_provider", d.Embedding.DefaultProvider)
	v.SetDefault("embedding.default_model", d.Embedding.DefaultModel)
	providers := make(map[string]interface{}, len(d.Embedding.Providers))
	for name, p := range d.Embedding.Providers {
		providers[name] = map[string]interface{}{
			"base_url": p.BaseURL,
			"api_key":  p.APIKey,
			"model":    p.Model,
			"dim":      p.Dim,
			"distance": p.Distance,
			"batch": map[string]interface{}{
				"min": p.Batch.Min, "initial": p.Batch.Initial, "max": p.Batch.Max,
				"growth_factor": p.Batch.Growth, "shrink_factor": p.Batch.Shrink,
			},
			"timeout_s": p.TimeoutS,
			"char_cap":  p.CharCap,
		}
	}
	v.SetDefault("embedding.providers", providers)

	v.SetDefault("search.max_response_bytes", d.Search.MaxResponseBytes)

	v.SetDefault("index.languages", d.Index.Languages)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("http.enabled", d.HTTP.Enabled)
	v.SetDefault("http.addr", d.HTTP.Addr)
}

// Load is a convenience function that loads configuration rooted at the
// current working directory with no CLI flag layer.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadFromDir loads configuration rooted at a specific directory.
func LoadFromDir(rootDir string, opts ...Option) (*Config, error) {
	return NewLoader(rootDir, opts...).Load()
}
