package testsubs

// HTTP status code constants.
const (
	StatusOK = 200
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	ScoreEpsilon         = 1e-9
)

// Volume generation constants.
const (
	SubjectDim       = 16 // edge length of each generated cubic volume
	ForegroundLabels = 3  // labels 1..3, 0 stays background
)
