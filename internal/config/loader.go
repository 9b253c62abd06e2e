package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if SEGRANK_CONFIG is set
//  3. env (prefix SEGRANK_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("SEGRANK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: SEGRANK_ADDR, SEGRANK_SCORE_WORKERS, ...
	// Map env keys like SEGRANK_SCORE_WORKERS -> score_workers (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("SEGRANK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "segrank_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ReferenceFile == "":
		return fmt.Errorf("%w: reference_file must not be empty", ErrInvalidConfig)
	case c.ResultsFile == "":
		return fmt.Errorf("%w: results_file must not be empty", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.MaxConcurrentEvaluations <= 0:
		return fmt.Errorf("%w: max_concurrent_evaluations must be positive", ErrInvalidConfig)
	case c.ScoreWorkers <= 0:
		return fmt.Errorf("%w: score_workers must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit <= 0:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	case c.PersistLockTimeoutMS <= 0:
		return fmt.Errorf("%w: persist_lock_timeout_ms must be positive", ErrInvalidConfig)
	case c.PersistRetries < 0:
		return fmt.Errorf("%w: persist_retries must not be negative", ErrInvalidConfig)
	}
	return nil
}
