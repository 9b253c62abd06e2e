// Package repository defines the leaderboard store interface and errors.
package repository

import (
	"context"
	"time"
)

// Entry represents a leaderboard row as persisted: one best score per
// name, stamped with the submission time that achieved it.
type Entry struct {
	Name        string    `json:"name"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Store provides read/write access to the leaderboard state.
type Store interface {
	// UpdateBest records score for name if it is strictly higher than
	// the stored best. It returns the entry stored after the call and
	// whether this call changed it. An equal score never replaces the
	// incumbent.
	UpdateBest(ctx context.Context, name string, score float64, submittedAt time.Time) (Entry, bool, error)

	// Rank returns the 1-based board position and entry for a name.
	// Returns ErrNotFound if the name is unknown.
	Rank(ctx context.Context, name string) (int, Entry, error)

	// TopN returns the best n entries in board order.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// All returns every entry in board order.
	All(ctx context.Context) ([]Entry, error)

	// Count returns the number of names on the board from the last
	// published snapshot.
	Count(ctx context.Context) int
}
