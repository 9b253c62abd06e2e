// Package service provides the core evaluation service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/okian/segrank/internal/adapters/archive"
	"github.com/okian/segrank/internal/adapters/reference"
	repository "github.com/okian/segrank/internal/adapters/repository"
	"github.com/okian/segrank/internal/apperr"
	"github.com/okian/segrank/internal/domain/dedupe"
	"github.com/okian/segrank/internal/domain/model"
	"github.com/okian/segrank/internal/domain/scoring"
	"github.com/okian/segrank/internal/domain/types"
	"github.com/okian/segrank/internal/domain/validate"
	"github.com/okian/segrank/pkg/logger"
	"github.com/okian/segrank/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultEvaluationSlots = 4
	defaultDedupeSize      = 4096
	defaultLockTimeout     = 5 * time.Second
	defaultPersistRetries  = 2
)

// Service implements the evaluation and leaderboard operations for the
// scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	reference   *reference.Store
	leaderboard repository.Store
	cache       dedupe.Cache
	scorer      scoring.Scorer

	// Configuration
	referencePath    string
	resultsPath      string
	scoreWorkers     int
	maxConcurrent    int
	dedupeSize       int
	lockTimeout      time.Duration
	persistRetries   int
	expectedSubjects []string

	// slots bounds the number of evaluations in flight; a full channel
	// means new submissions are turned away, not queued.
	slots chan struct{}

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithReferencePath sets the path of the ground-truth archive.
func WithReferencePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.referencePath = path
		}
	}
}

// WithResultsPath sets the path of the persisted leaderboard file.
func WithResultsPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.resultsPath = path
		}
	}
}

// WithScoreWorkers sets the number of goroutines scoring subjects
// within one evaluation.
func WithScoreWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.scoreWorkers = count
		}
	}
}

// WithEvaluationSlots sets how many evaluations may run at once.
func WithEvaluationSlots(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.maxConcurrent = count
		}
	}
}

// WithDedupeSize sets the size of the duplicate-result cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLockTimeout bounds how long a leaderboard write waits for the
// results file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithPersistRetries sets how many times a failed leaderboard write is
// retried before the persistence error surfaces.
func WithPersistRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.persistRetries = n
		}
	}
}

// WithExpectedSubjects pins the subject ids the reference archive must
// contain; Start fails when the loaded set differs.
func WithExpectedSubjects(ids []string) Option {
	return func(s *Service) {
		if len(ids) > 0 {
			s.expectedSubjects = append([]string(nil), ids...)
		}
	}
}

// WithScorer replaces the per-subject scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		referencePath:  "reference.npz",
		resultsPath:    "results.json",
		scoreWorkers:   runtime.NumCPU(),
		maxConcurrent:  defaultEvaluationSlots,
		dedupeSize:     defaultDedupeSize,
		lockTimeout:    defaultLockTimeout,
		persistRetries: defaultPersistRetries,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the reference set, opens the leaderboard store and makes
// the service ready to evaluate.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting evaluation service...")

	var refOpts []reference.Option
	if len(s.expectedSubjects) > 0 {
		refOpts = append(refOpts, reference.WithExpectedSubjects(s.expectedSubjects))
	}
	ref, err := reference.Load(ctx, s.referencePath, refOpts...)
	if err != nil {
		return err
	}
	s.reference = ref

	store, err := repository.Open(ctx, s.resultsPath,
		repository.WithLockTimeout(s.lockTimeout),
		repository.WithPersistRetries(s.persistRetries),
	)
	if err != nil {
		return err
	}
	s.leaderboard = store

	s.cache = dedupe.NewInMemoryCache(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	if s.scorer == nil {
		s.scorer = scoring.NewDiceScorer()
	}
	s.slots = make(chan struct{}, s.maxConcurrent)
	metrics.UpdateEvaluationSlots(s.maxConcurrent)

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.String("reference", s.reference.Path()),
		logger.Int("referenceSubjects", s.reference.Count()),
		logger.String("results", s.resultsPath),
		logger.Int("teams", s.leaderboard.Count(ctx)),
		logger.Int("scoreWorkers", s.scoreWorkers),
		logger.Int("evaluationSlots", s.maxConcurrent),
	)

	return nil
}

// Stop marks the service stopped. In-flight evaluations are owned by
// their HTTP requests and drain with the server.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.started = false
	s.logger.Info(context.Background(), "evaluation service stopped")
}

// Evaluate scores one submission end to end: validate, decode, score
// every reference subject, aggregate, then record the result on the
// leaderboard. A persistence failure still returns the computed score,
// flagged Recorded=false, next to the error.
func (s *Service) Evaluate(ctx context.Context, raw model.RawSubmission) (model.Result, error) {
	const op = "service.Evaluate"

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return model.Result{}, apperr.New(apperr.KindUnknown, op, "service not started")
	}

	metrics.RecordSubmissionReceived()

	name, err := validate.TeamName(raw.Name)
	if err != nil {
		return model.Result{}, s.reject(ctx, err)
	}
	if len(raw.Archive) == 0 {
		return model.Result{}, s.reject(ctx, apperr.New(apperr.KindMissingField, op, "submission file is required"))
	}

	digest := dedupe.Digest(name, raw.Archive)
	if cached, ok := s.cache.Recall(ctx, digest); ok {
		metrics.RecordSubmissionDuplicate()
		metrics.RecordEvaluationOutcome("duplicate")
		cached.SubmissionID = raw.SubmissionID
		cached.Duplicate = true
		s.logger.Info(ctx, "duplicate submission served from cache",
			logger.String("name", name),
			logger.String("submissionID", raw.SubmissionID),
		)
		return cached, nil
	}

	select {
	case s.slots <- struct{}{}:
		metrics.UpdateEvaluationsInFlight(len(s.slots))
	default:
		metrics.RecordSubmissionRejectedBusy()
		metrics.RecordEvaluationOutcome("busy")
		return model.Result{}, apperr.New(apperr.KindBusy, op, "evaluation capacity exhausted, retry shortly")
	}
	defer func() {
		<-s.slots
		metrics.UpdateEvaluationsInFlight(len(s.slots))
	}()

	start := time.Now()
	defer func() {
		metrics.RecordEvaluationLatency(float64(time.Since(start).Milliseconds()))
	}()

	volumes, err := archive.Decode(raw.Archive, archive.WithMaxElems(s.reference.MaxVolumeElems()))
	if err != nil {
		return model.Result{}, s.reject(ctx, err)
	}

	sub, err := validate.Submission(model.Submission{Name: name, Volumes: volumes}, s.reference)
	if err != nil {
		return model.Result{}, s.reject(ctx, err)
	}

	perSubject, err := s.scoreSubjects(ctx, sub.Volumes)
	if err != nil {
		metrics.RecordErrorByComponent("service", "scoring")
		metrics.RecordEvaluationOutcome("failed")
		s.logger.Error(ctx, "scoring failed",
			logger.String("name", name),
			logger.Error(err),
		)
		return model.Result{}, err
	}

	score, err := scoring.Aggregate(perSubject, s.reference.Count())
	if err != nil {
		metrics.RecordErrorByComponent("service", "aggregate")
		metrics.RecordEvaluationOutcome("failed")
		return model.Result{}, err
	}

	submittedAt := time.Now().UTC()
	result := model.Result{
		SubmissionID: raw.SubmissionID,
		Name:         name,
		Score:        score,
		Best:         score,
		PerSubject:   perSubject,
		SubmittedAt:  submittedAt,
	}

	stored, improved, err := s.leaderboard.UpdateBest(ctx, name, score, submittedAt)
	if err != nil {
		// The score stands, the record does not. The digest is not
		// cached, so a retry of the same bytes is evaluated and
		// recorded again.
		metrics.RecordEvaluationOutcome("unrecorded")
		s.logger.Error(ctx, "score computed but not recorded",
			logger.String("name", name),
			logger.Float64("score", score),
			logger.Error(err),
		)
		return result, err
	}

	result.Best = stored.Score
	result.Improved = improved
	result.Recorded = true
	s.cache.Remember(ctx, digest, result)
	metrics.UpdateResultCacheSize(int(s.cache.Size()))

	if improved {
		metrics.RecordLeaderboardImprovement()
	}
	metrics.RecordEvaluationOutcome("scored")
	s.logger.Info(ctx, "submission scored",
		logger.String("name", name),
		logger.Float64("score", score),
		logger.Bool("improved", improved),
		logger.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// reject records a validation failure and passes the error through.
func (s *Service) reject(ctx context.Context, err error) error {
	kind := apperr.KindOf(err)
	metrics.RecordValidationFailure(string(kind))
	metrics.RecordEvaluationOutcome("rejected")
	s.logger.Warn(ctx, "submission rejected",
		logger.String("kind", string(kind)),
		logger.Error(err),
	)
	return err
}

// scoreSubjects fans per-subject scoring out over a bounded pool and
// collects the results in reference order.
func (s *Service) scoreSubjects(ctx context.Context, volumes map[string]model.Volume) ([]model.SubjectScore, error) {
	subjects := s.reference.Subjects()
	workers := s.scoreWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(subjects) {
		workers = len(subjects)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scores := make([]model.SubjectScore, len(subjects))
	errs := make([]error, len(subjects))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				subject := subjects[i]
				truth, _ := s.reference.Volume(subject)
				scoreStart := time.Now()
				res, err := s.scorer.Score(ctx, scoring.Input{
					Subject: subject,
					Pred:    volumes[subject],
					Truth:   truth,
				})
				metrics.RecordSubjectScoreLatency(float64(time.Since(scoreStart).Milliseconds()))
				if err != nil {
					errs[i] = err
					cancel()
					continue
				}
				metrics.RecordSubjectScored()
				scores[i] = model.SubjectScore{Subject: res.Subject, Dice: res.Dice}
			}
		}()
	}

feed:
	for i := range subjects {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// Prefer a root cause over cancellation fallout from other workers.
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			first = err
			break
		}
	}
	if first != nil {
		return nil, first
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindComputation, "service.scoreSubjects", "scoring cancelled", err)
	}
	return scores, nil
}

// TopN returns the best n leaderboard entries in rank order.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	entries, err := s.leaderboard.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	return toEntries(entries), nil
}

// Snapshot returns the whole leaderboard in rank order.
func (s *Service) Snapshot(ctx context.Context) ([]types.Entry, error) {
	entries, err := s.leaderboard.All(ctx)
	if err != nil {
		return nil, err
	}
	return toEntries(entries), nil
}

// Rank returns the leaderboard row for one team.
func (s *Service) Rank(ctx context.Context, name string) (types.Entry, error) {
	pos, entry, err := s.leaderboard.Rank(ctx, name)
	if err != nil {
		return types.Entry{}, err
	}
	return types.Entry{
		Rank:        pos,
		Name:        entry.Name,
		Score:       entry.Score,
		SubmittedAt: entry.SubmittedAt,
	}, nil
}

// toEntries converts stored rows to API rows with positional ranks.
func toEntries(entries []repository.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.Entry{
			Rank:        i + 1,
			Name:        e.Name,
			Score:       e.Score,
			SubmittedAt: e.SubmittedAt,
		}
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"scoreWorkers":    s.scoreWorkers,
		"evaluationSlots": s.maxConcurrent,
		"dedupeSize":      s.dedupeSize,
	}

	if s.started {
		ctx := context.Background()
		teams := s.leaderboard.Count(ctx)

		stats["referencePath"] = s.reference.Path()
		stats["referenceSubjects"] = s.reference.Count()
		stats["resultsPath"] = s.resultsPath
		stats["teams"] = teams
		stats["inFlight"] = len(s.slots)
		stats["cachedResults"] = s.cache.Size()

		// Update metrics
		metrics.UpdateEvaluationsInFlight(len(s.slots))
		metrics.UpdateResultCacheSize(int(s.cache.Size()))
	}

	return stats
}
