package testsubs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// PostSubmission uploads one npz archive as the multipart form the
// scoring endpoint expects: "name" plus a "file" part.
func (c *HTTPClient) PostSubmission(ctx context.Context, rawURL string, sub Submission) (*http.Response, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("name", sub.Team); err != nil {
		return nil, fmt.Errorf("failed to write name field: %w", err)
	}
	part, err := form.CreateFormFile("file", sub.Team+".npz")
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(sub.Archive); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.client.Do(req)
}

// unmarshalJSON unmarshals JSON to a struct
func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitAll sends every submission concurrently using a worker pool.
// Submissions of one team are sent in their generated order by keeping a
// team's uploads on the same worker.
func submitAll(ctx context.Context, config *Config, submissions []Submission, stats *Stats) (map[string]float64, error) {
	log.Printf("📤 Submitting %d submissions with %d workers...", len(submissions), config.Workers)

	client := newHTTPClient(config.Timeout)
	endpoint := config.BaseURL + "/dice-score"

	// Counters for statistics
	var (
		sent      int64
		scored    int64
		improved  int64
		duplicate int64
		failed    int64
	)

	// Best accepted score per team, as reported by the service.
	var mu sync.Mutex
	best := make(map[string]float64)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	// Group by team so each team's uploads stay ordered.
	byTeam := make(map[string][]Submission)
	for _, sub := range submissions {
		byTeam[sub.Team] = append(byTeam[sub.Team], sub)
	}

	teamChan := make(chan []Submission, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for teamSubs := range teamChan {
				for _, sub := range teamSubs {
					select {
					case <-ctx.Done():
						return
					default:
					}

					res, err := submitSingle(ctx, client, endpoint, sub)
					atomic.AddInt64(&sent, 1)
					switch {
					case err != nil:
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Printf("⚠️  Submission for %s failed: %v", sub.Team, err)
						}
					default:
						atomic.AddInt64(&scored, 1)
						if res.Improved {
							atomic.AddInt64(&improved, 1)
						}
						if res.Duplicate {
							atomic.AddInt64(&duplicate, 1)
						}
						mu.Lock()
						if res.Score > best[sub.Team] {
							best[sub.Team] = res.Score
						}
						mu.Unlock()
					}

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&sent)
						ok := atomic.LoadInt64(&scored)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d sent (scored: %d, failed: %d)",
								total, len(submissions), ok, fail)
						} else {
							fmt.Printf("\r📤 Sent: %d/%d (scored: %d, failed: %d)",
								total, len(submissions), ok, fail)
						}
					}
				}
			}
		}(i)
	}

	// Send team batches to workers
	go func() {
		defer close(teamChan)
		for _, teamSubs := range byTeam {
			select {
			case <-ctx.Done():
				return
			case teamChan <- teamSubs:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.SubmissionsSent = int(atomic.LoadInt64(&sent))
	stats.SubmissionsScored = int(atomic.LoadInt64(&scored))
	stats.SubmissionsImproved = int(atomic.LoadInt64(&improved))
	stats.SubmissionsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.SubmissionsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Submission phase completed:
   Scored: %d
   Improved: %d
   Duplicate: %d
   Failed: %d
`, stats.SubmissionsScored, stats.SubmissionsImproved, stats.SubmissionsDuplicate, stats.SubmissionsFailed)

	return best, nil
}

// submitSingle posts one submission and parses the score response.
func submitSingle(ctx context.Context, client *HTTPClient, endpoint string, sub Submission) (ScoreResponse, error) {
	resp, err := client.PostSubmission(ctx, endpoint, sub)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return ScoreResponse{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var res ScoreResponse
	if err := unmarshalJSON(body, &res); err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return res, nil
}

// retrieveRanks fetches /rank/{name} for every team concurrently.
func retrieveRanks(ctx context.Context, config *Config, teams []string, stats *Stats) ([]Entry, error) {
	log.Printf("🏆 Retrieving ranks for %d teams with %d workers...", len(teams), config.Workers)

	client := newHTTPClient(config.Timeout)

	rankings := make([]Entry, len(teams))
	var (
		retrieved int64
		failed    int64
	)

	teamChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for index := range teamChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				team := teams[index]
				entry, err := retrieveSingleRank(ctx, client, config.BaseURL, team)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Printf("⚠️  Failed to get rank for %s: %v", team, err)
					}
					continue
				}
				rankings[index] = entry
				atomic.AddInt64(&retrieved, 1)
			}
		}(i)
	}

	// Send team indices to workers
	go func() {
		defer close(teamChan)
		for i := range teams {
			select {
			case <-ctx.Done():
				return
			case teamChan <- i:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Filter out empty entries (failed retrievals)
	validRankings := make([]Entry, 0, len(rankings))
	for _, entry := range rankings {
		if entry.Name != "" { // Empty Name indicates failed retrieval
			validRankings = append(validRankings, entry)
		}
	}

	// Update stats
	stats.RanksRetrieved = len(validRankings)

	log.Printf(`✅ Rank retrieval completed:
   Retrieved: %d
   Failed: %d
`, len(validRankings), int(atomic.LoadInt64(&failed)))

	return validRankings, nil
}

// retrieveSingleRank retrieves the leaderboard row of a single team.
func retrieveSingleRank(ctx context.Context, client *HTTPClient, baseURL, team string) (Entry, error) {
	rankURL := baseURL + "/rank/" + url.PathEscape(team)

	resp, err := client.Get(ctx, rankURL)
	if err != nil {
		return Entry{}, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return Entry{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var entry Entry
	if err := unmarshalJSON(body, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to parse response: %w", err)
	}
	return entry, nil
}

// getLeaderboard retrieves the top N leaderboard entries.
func getLeaderboard(ctx context.Context, config *Config, stats *Stats) ([]Entry, error) {
	log.Printf("🥇 Getting top %d leaderboard entries...", config.TopN)

	client := newHTTPClient(config.Timeout)
	boardURL := fmt.Sprintf("%s/leaderboard?limit=%d", config.BaseURL, config.TopN)

	resp, err := client.Get(ctx, boardURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var leaderboard []Entry
	if err := unmarshalJSON(body, &leaderboard); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	stats.LeaderboardEntries = len(leaderboard)
	log.Printf("✅ Retrieved %d leaderboard entries", len(leaderboard))

	return leaderboard, nil
}
