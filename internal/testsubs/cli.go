package testsubs

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/segrank/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the test submissions tool.
func ShowHelp() {
	os.Stdout.WriteString(`Segrank Submission Test Tool
============================

A concurrent tool for seeding and verifying the segmentation scoring service.
It generates a synthetic ground-truth archive, sends noisy team submissions,
and checks that the leaderboard keeps the best score per team.

Usage:
  go run cmd/test-submissions/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -reference string
        Ground-truth npz the service is started with; generated when missing
        (default "data/reference.npz")
  -teams int
        Number of teams to generate (default 50)
  -per-team int
        Submissions each team sends, noisiest first (default 3)
  -top int
        Number of top entries to fetch from leaderboard (default 10)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed int
        Seed for the volume generator (default 1)
  -report string
        Output file for the test report (default: submission_report_TIMESTAMP.json)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed the reference archive, then start the service against it
  go run cmd/test-submissions/main.go -reference data/reference.npz -teams 0

  # Full test with default settings against a running service
  go run cmd/test-submissions/main.go

  # Heavier run with custom parameters
  go run cmd/test-submissions/main.go -teams 200 -per-team 5 -workers 16
`)
}
