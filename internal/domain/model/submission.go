package model

import "time"

// RawSubmission is an upload exactly as a transport received it.
type RawSubmission struct {
	SubmissionID string // unique id for tracing and idempotency
	Name         string // display name claimed by the submitter
	Archive      []byte // compressed npz payload
}

// Submission holds the decoded volumes of an upload keyed by subject
// identifier.
type Submission struct {
	Name    string
	Volumes map[string]Volume
}

// SubjectScore is one subject's macro Dice within a submission.
type SubjectScore struct {
	Subject string
	Dice    float64
}

// Result is the outcome of evaluating one submission.
type Result struct {
	SubmissionID string
	Name         string
	Score        float64        // aggregate score of this submission
	Best         float64        // best score stored for the name
	Improved     bool           // this submission raised the stored best
	Recorded     bool           // the leaderboard write went through
	Duplicate    bool           // served from the result cache
	PerSubject   []SubjectScore // reference order
	SubmittedAt  time.Time
}
