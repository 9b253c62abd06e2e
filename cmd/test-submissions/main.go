package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/segrank/internal/testsubs"
)

// Default configuration constants.
const (
	defaultNumTeams    = 50
	defaultPerTeam     = 3
	defaultTopN        = 10
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultSeed        = 1
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		reference  = flag.String("reference", "data/reference.npz", "Ground-truth npz the service is started with; generated when missing")
		numTeams   = flag.Int("teams", defaultNumTeams, "Number of teams to generate")
		perTeam    = flag.Int("per-team", defaultPerTeam, "Submissions each team sends, noisiest first")
		topN       = flag.Int("top", defaultTopN, "Number of top entries to fetch from leaderboard")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed       = flag.Int64("seed", defaultSeed, "Seed for the volume generator")
		reportFile = flag.String("report", "", "Output file for the test report (default: submission_report_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testsubs.ShowHelp()
		return
	}

	// Setup logging
	if err := testsubs.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &testsubs.Config{
		BaseURL:            *baseURL,
		ReferenceFile:      *reference,
		NumTeams:           *numTeams,
		SubmissionsPerTeam: *perTeam,
		TopN:               *topN,
		Workers:            *workers,
		Timeout:            *timeout,
		Seed:               *seed,
		ReportFile:         *reportFile,
		LogFile:            *logFile,
		Verbose:            *verbose,
	}

	// Run the test
	if err := testsubs.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
