// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ReferenceFile locates the NPZ archive holding the ground-truth volumes.
	ReferenceFile string `koanf:"reference_file"`

	// ResultsFile locates the JSON file the leaderboard persists to.
	ResultsFile string `koanf:"results_file"`

	// MaxUploadBytes caps the size of an uploaded submission archive.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxConcurrentEvaluations bounds how many submissions score at once.
	MaxConcurrentEvaluations int `koanf:"max_concurrent_evaluations"`

	// ScoreWorkers sets the number of per-subject scoring workers.
	ScoreWorkers int `koanf:"score_workers"`

	// DedupeSize sets the size of the duplicate-submission cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// PersistLockTimeoutMS bounds how long a write waits for the results
	// file lock before giving up.
	PersistLockTimeoutMS int `koanf:"persist_lock_timeout_ms"`

	// PersistRetries sets how many times a failed results write is retried.
	PersistRetries int `koanf:"persist_retries"`

	// ExpectedSubjects optionally pins the subject ids the reference file
	// must contain. Empty means any subject set is accepted.
	ExpectedSubjects []string `koanf:"expected_subjects"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use (e.g., loading
// from remote sources) and is currently unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:                 "info",
		Addr:                     ":9080",
		ReferenceFile:            "data/reference.npz",
		ResultsFile:              "data/results.json",
		MaxUploadBytes:           64 << 20,
		MaxConcurrentEvaluations: 4,
		ScoreWorkers:             runtime.NumCPU(),
		DedupeSize:               4096,
		MaxLeaderboardLimit:      100,
		PersistLockTimeoutMS:     5_000,
		PersistRetries:           2,
	}
	return c
}

// LockTimeout returns PersistLockTimeoutMS as a time.Duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.PersistLockTimeoutMS) * time.Millisecond
}
