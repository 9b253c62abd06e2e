package testsubs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/okian/segrank/pkg/logger"
)

// File permission constants.
const (
	reportFilePermission = 0600
)

// Run executes the complete submission test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting segrank submission test",
		logger.String("baseURL", config.BaseURL),
		logger.String("reference", config.ReferenceFile),
		logger.Int("teams", config.NumTeams),
		logger.Int("perTeam", config.SubmissionsPerTeam),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("topN", config.TopN),
		logger.Any("verbose", config.Verbose))

	// Step 1: Load or generate the ground truth
	reference, created, err := loadOrCreateReference(ctx, config)
	if err != nil {
		return fmt.Errorf("reference setup failed: %w", err)
	}
	if created {
		logger.Get().Info(ctx, "reference archive was just generated; start the service against it before submitting",
			logger.String("path", config.ReferenceFile))
	}
	if config.NumTeams == 0 {
		logger.Get().Info(ctx, "no teams requested; reference seeding done")
		return nil
	}

	// Step 2: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 3: Generate team submissions
	submissions, err := generateSubmissions(ctx, config, reference, stats)
	if err != nil {
		return fmt.Errorf("submission generation failed: %w", err)
	}

	// Step 4: Submit concurrently, per-team order preserved
	best, err := submitAll(ctx, config, submissions, stats)
	if err != nil {
		return fmt.Errorf("submission phase failed: %w", err)
	}

	// Step 5: Resend every team's first upload to exercise the dedupe path
	if err := resubmitFirstUploads(ctx, config, submissions, stats); err != nil {
		return fmt.Errorf("duplicate resubmission failed: %w", err)
	}

	// Step 6: Retrieve per-team ranks concurrently
	teams := teamNames(submissions)
	rankings, err := retrieveRanks(ctx, config, teams, stats)
	if err != nil {
		return fmt.Errorf("rank retrieval failed: %w", err)
	}

	// Step 7: Get leaderboard
	leaderboard, err := getLeaderboard(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	// Step 8: Verify results
	if err := verifyResults(ctx, config, best, rankings, leaderboard); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 9: Save the report
	if err := saveReport(ctx, config, best, leaderboard, stats); err != nil {
		logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	healthURL := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, healthURL)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// resubmitFirstUploads replays each team's first archive byte for byte
// and expects the cached result back.
func resubmitFirstUploads(ctx context.Context, config *Config, submissions []Submission, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	endpoint := config.BaseURL + "/dice-score"

	seen := make(map[string]bool)
	replayed := 0
	for _, sub := range submissions {
		if seen[sub.Team] {
			continue
		}
		seen[sub.Team] = true

		res, err := submitSingle(ctx, client, endpoint, sub)
		if err != nil {
			return fmt.Errorf("replay for %s: %w", sub.Team, err)
		}
		if !res.Duplicate {
			logger.Get().Warn(ctx, "replayed submission was rescored instead of served from cache",
				logger.String("team", sub.Team))
		}
		stats.SubmissionsSent++
		if res.Duplicate {
			stats.SubmissionsDuplicate++
		}
		replayed++
	}

	logger.Get().Info(ctx, "replayed first uploads", logger.Int("count", replayed))
	return nil
}

// teamNames returns the distinct team names in first-seen order.
func teamNames(submissions []Submission) []string {
	seen := make(map[string]bool)
	teams := make([]string, 0)
	for _, sub := range submissions {
		if !seen[sub.Team] {
			seen[sub.Team] = true
			teams = append(teams, sub.Team)
		}
	}
	return teams
}

// report is the JSON document saved after a run.
type report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	BaseURL     string             `json:"base_url"`
	BestScores  map[string]float64 `json:"best_scores"`
	Leaderboard []Entry            `json:"leaderboard"`
	Stats       *Stats             `json:"stats"`
}

// saveReport writes the observed scores and final leaderboard to a file.
func saveReport(ctx context.Context, config *Config, best map[string]float64, leaderboard []Entry, stats *Stats) error {
	filename := config.ReportFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "submission_report_" + timestamp + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	doc := report{
		GeneratedAt: time.Now().UTC(),
		BaseURL:     config.BaseURL,
		BestScores:  best,
		Leaderboard: leaderboard,
		Stats:       stats,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, submissionsPerSecond float64

	if stats.SubmissionsSent > 0 {
		successRate = float64(stats.SubmissionsScored) / float64(stats.SubmissionsSent) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		submissionsPerSecond = float64(stats.SubmissionsSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("teamsGenerated", stats.TeamsGenerated),
		logger.Int("submissionsGenerated", stats.SubmissionsGenerated),
		logger.Int("submissionsSent", stats.SubmissionsSent),
		logger.Int("submissionsScored", stats.SubmissionsScored),
		logger.Int("submissionsImproved", stats.SubmissionsImproved),
		logger.Int("submissionsDuplicate", stats.SubmissionsDuplicate),
		logger.Int("submissionsFailed", stats.SubmissionsFailed),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("submissionsPerSecond", submissionsPerSecond))
}

// sortEntries orders entries the way the leaderboard does, best first.
func sortEntries(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}
