// Package types contains common types used across the application
package types

import "time"

// Entry represents a leaderboard row as served to clients.
type Entry struct {
	Rank        int       `json:"rank"`
	Name        string    `json:"name"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}
