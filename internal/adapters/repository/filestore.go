package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/okian/segrank/internal/apperr"
	"github.com/okian/segrank/pkg/metrics"
)

const (
	defaultLockTimeout = 5 * time.Second
	defaultRetries     = 2
	defaultRetryDelay  = 50 * time.Millisecond
)

// boardSnapshot is an immutable view published at Open and after every
// successful write. Count serves from it without touching the file.
type boardSnapshot struct {
	entries []Entry
}

// FileStore keeps the leaderboard in a single JSON file, one entry per
// name, guarded by an advisory lock on a sidecar file so concurrent
// writers in any process never interleave read-modify-write cycles.
// Writes land through a rename of a synced temp file, so readers see
// either the old board or the new one, never a torn file.
type FileStore struct {
	path     string
	lockPath string

	// mu serializes in-process writers; the file lock arbitrates with
	// other processes.
	mu  sync.Mutex
	flk *flock.Flock

	snapshot atomic.Pointer[boardSnapshot]

	lockTimeout time.Duration
	retries     int
	retryDelay  time.Duration
}

var _ Store = (*FileStore)(nil)

// Open prepares a FileStore on path, creating the parent directory if
// needed and validating any existing file. A missing or blank file is
// an empty board; a file that does not parse fails fast.
func Open(ctx context.Context, path string, opts ...Option) (*FileStore, error) {
	const op = "repository.Open"
	if path == "" {
		return nil, apperr.New(apperr.KindPersistence, op, "results file path is empty")
	}
	s := &FileStore{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: defaultLockTimeout,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "creating results directory", err)
	}
	s.flk = flock.New(s.lockPath)

	entries, err := s.readBoardShared(ctx, op)
	if err != nil {
		return nil, err
	}
	s.publish(entries)
	return s, nil
}

// UpdateBest implements Store. The read-modify-write runs under the
// exclusive file lock, so concurrent submitters agree on the stored
// best even across processes.
func (s *FileStore) UpdateBest(ctx context.Context, name string, score float64, submittedAt time.Time) (Entry, bool, error) {
	const op = "repository.UpdateBest"
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.flk.TryLockContext(lockCtx, s.retryDelay)
	if err != nil || !locked {
		metrics.RecordStorePersistFailure()
		return Entry{}, false, apperr.Wrap(apperr.KindPersistence, op, "acquiring exclusive lock on "+s.lockPath, err)
	}
	defer func() {
		if uerr := s.flk.Unlock(); uerr != nil {
			metrics.RecordErrorByComponent("repository", "unlock")
		}
	}()

	entries, err := s.loadEntries(op)
	if err != nil {
		metrics.RecordStorePersistFailure()
		return Entry{}, false, err
	}

	idx := indexOf(entries, name)
	if idx >= 0 && entries[idx].Score >= score {
		// An equal score never displaces the incumbent.
		cur := entries[idx]
		s.publish(entries)
		return cur, false, nil
	}
	next := Entry{Name: name, Score: score, SubmittedAt: submittedAt}
	if idx >= 0 {
		entries[idx] = next
	} else {
		entries = append(entries, next)
	}
	sortEntries(entries)

	if err := s.writeBoard(ctx, op, entries); err != nil {
		return Entry{}, false, err
	}
	s.publish(entries)
	return next, true, nil
}

// Rank implements Store.
func (s *FileStore) Rank(ctx context.Context, name string) (int, Entry, error) {
	const op = "repository.Rank"
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	entries, err := s.readBoardShared(ctx, op)
	if err != nil {
		return 0, Entry{}, err
	}
	for i, e := range entries {
		if e.Name == name {
			return i + 1, e, nil
		}
	}
	metrics.RecordErrorByComponent("repository", "not_found")
	return 0, Entry{}, ErrNotFound
}

// TopN implements Store.
func (s *FileStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	const op = "repository.TopN"
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	entries, err := s.readBoardShared(ctx, op)
	if err != nil {
		return nil, err
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, n)
	copy(out, entries[:n])
	return out, nil
}

// All implements Store.
func (s *FileStore) All(ctx context.Context) ([]Entry, error) {
	const op = "repository.All"
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	entries, err := s.readBoardShared(ctx, op)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Count implements Store. It reads the last published snapshot and
// never touches the file. Snapshots are published at Open and after
// every write, so the count tracks this process's view of the board.
func (s *FileStore) Count(_ context.Context) int {
	if snap := s.snapshot.Load(); snap != nil {
		return len(snap.entries)
	}
	return 0
}

// publish replaces the cached snapshot. Only Open and writers holding
// mu call it, so a slow reader can never overwrite a fresher board.
// The slice must not be mutated after the call.
func (s *FileStore) publish(entries []Entry) {
	s.snapshot.Store(&boardSnapshot{entries: entries})
	metrics.RecordStoreSnapshot()
	metrics.UpdateLeaderboardSize(len(entries))
}

// readBoardShared loads the board under a shared lock taken on its own
// descriptor, so it can wait out an in-process writer holding the
// exclusive lock.
func (s *FileStore) readBoardShared(ctx context.Context, op string) ([]Entry, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	rl := flock.New(s.lockPath)
	locked, err := rl.TryRLockContext(lockCtx, s.retryDelay)
	if err != nil || !locked {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "acquiring shared lock on "+s.lockPath, err)
	}
	defer rl.Unlock()
	return s.loadEntries(op)
}

// loadEntries reads and parses the results file. A missing or blank
// file is an empty board. Entries are re-sorted in case the file was
// edited by hand.
func (s *FileStore) loadEntries(op string) ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "reading "+s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "parsing "+s.path, err)
	}
	sortEntries(entries)
	return entries, nil
}

// writeBoard persists entries with bounded retries.
func (s *FileStore) writeBoard(ctx context.Context, op string, entries []Entry) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordStorePersistRetry()
			select {
			case <-ctx.Done():
				metrics.RecordStorePersistFailure()
				return apperr.Wrap(apperr.KindPersistence, op, "writing "+s.path, err)
			case <-time.After(s.retryDelay):
			}
		}
		if err = s.writeFileAtomic(entries); err == nil {
			return nil
		}
	}
	metrics.RecordStorePersistFailure()
	return apperr.Wrap(apperr.KindPersistence, op, fmt.Sprintf("writing %s after %d attempts", s.path, s.retries+1), err)
}

// writeFileAtomic encodes entries into a temp file in the same
// directory, syncs it, then renames it over the results file. The
// directory is synced afterwards so the rename survives a crash.
func (s *FileStore) writeFileAtomic(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".results-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	tmpName = ""
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func indexOf(entries []Entry, name string) int {
	for i := range entries {
		if entries[i].Name == name {
			return i
		}
	}
	return -1
}

// sortEntries orders the board: higher score first, then earlier
// submission, then name.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
		}
		return entries[i].Name < entries[j].Name
	})
}
