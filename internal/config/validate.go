package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyDBPath indicates a missing database path.
	ErrEmptyDBPath = errors.New("empty db.path")

	// ErrInvalidDebounce indicates a non-positive debounce window.
	ErrInvalidDebounce = errors.New("invalid watch.debounce_ms")

	// ErrUnknownDefaultProvider indicates embedding.default_provider names a
	// provider absent from embedding.providers.
	ErrUnknownDefaultProvider = errors.New("unknown default embedding provider")

	// ErrInvalidDimensions indicates a non-positive provider dimension.
	ErrInvalidDimensions = errors.New("invalid provider dimensions")

	// ErrInvalidDistance indicates an unsupported distance metric.
	ErrInvalidDistance = errors.New("invalid distance metric")

	// ErrInvalidBatch indicates an inconsistent batch size configuration.
	ErrInvalidBatch = errors.New("invalid batch configuration")

	// ErrInvalidResponseBytes indicates a non-positive response byte budget.
	ErrInvalidResponseBytes = errors.New("invalid search.max_response_bytes")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.DB.Path) == "" {
		errs = append(errs, ErrEmptyDBPath)
	}

	if cfg.Watch.DebounceMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidDebounce, cfg.Watch.DebounceMs))
	}

	if err := validateEmbedding(&cfg.Embedding); err != nil {
		errs = append(errs, err)
	}

	if cfg.Search.MaxResponseBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidResponseBytes, cfg.Search.MaxResponseBytes))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateEmbedding(cfg *EmbeddingConfig) error {
	var errs []error

	if cfg.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDefaultProvider, cfg.DefaultProvider))
		}
	}

	for name, p := range cfg.Providers {
		if p.Dim <= 0 {
			errs = append(errs, fmt.Errorf("%w: provider %q has dim %d", ErrInvalidDimensions, name, p.Dim))
		}
		switch p.Distance {
		case "cosine", "l2":
		default:
			errs = append(errs, fmt.Errorf("%w: provider %q has distance %q (want cosine or l2)", ErrInvalidDistance, name, p.Distance))
		}
		if p.Batch.Min <= 0 || p.Batch.Max < p.Batch.Min || p.Batch.Initial < p.Batch.Min || p.Batch.Initial > p.Batch.Max {
			errs = append(errs, fmt.Errorf("%w: provider %q has min=%d initial=%d max=%d", ErrInvalidBatch, name, p.Batch.Min, p.Batch.Initial, p.Batch.Max))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
