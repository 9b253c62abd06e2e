package testsubs

import "time"

// Config holds configuration for the submission test
type Config struct {
	BaseURL            string        // Base URL of the service
	ReferenceFile      string        // Path of the ground-truth npz the service is started with
	NumTeams           int           // Number of teams to generate
	SubmissionsPerTeam int           // Submissions each team sends, best last
	TopN               int           // Number of top entries to fetch
	Workers            int           // Number of concurrent workers
	Timeout            time.Duration // HTTP request timeout
	Seed               int64         // Seed for the volume generator
	ReportFile         string        // Output file for the test report
	LogFile            string        // Log file for test output
	Verbose            bool          // Enable verbose logging
}

// Submission is one upload a team will send.
type Submission struct {
	Team    string  `json:"team"`
	Noise   float64 `json:"noise"` // fraction of voxels perturbed
	Archive []byte  `json:"-"`
}

// ScoreResponse is the answer to POST /dice-score.
type ScoreResponse struct {
	SubmissionID string  `json:"submission_id"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Best         float64 `json:"best"`
	Improved     bool    `json:"improved"`
	Recorded     bool    `json:"recorded"`
	Duplicate    bool    `json:"duplicate"`
}

// Entry represents a leaderboard entry
type Entry struct {
	Rank  int     `json:"rank"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Stats holds test statistics
type Stats struct {
	TeamsGenerated       int
	SubmissionsGenerated int
	SubmissionsSent      int
	SubmissionsScored    int
	SubmissionsImproved  int
	SubmissionsDuplicate int
	SubmissionsFailed    int
	RanksRetrieved       int
	LeaderboardEntries   int
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}
