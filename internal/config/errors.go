package config

import (
	"errors"
)

// Sentinel errors wrapped by Load and validate so callers can match
// with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
