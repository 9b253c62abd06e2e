package repository

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrNotFound     = errors.New("name not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
