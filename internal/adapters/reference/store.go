// Package reference loads the fixed ground-truth volume set and serves
// it to the evaluation pipeline. The set is read once at startup and
// never changes while the process runs, so lookups are lock-free.
package reference

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/okian/segrank/internal/adapters/archive"
	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
	"github.com/okian/segrank/pkg/metrics"
)

// Store holds the reference volumes keyed by subject identifier.
// Subjects are served in lexical order, which fixes the order of every
// per-subject score downstream.
type Store struct {
	path     string
	subjects []string
	volumes  map[string]model.Volume
	maxElems int
	expected []string
}

// Load reads and decodes the reference archive at path. Every volume
// must carry at least one foreground voxel; a reference that cannot
// score submissions is refused at startup rather than at first upload.
func Load(ctx context.Context, path string, opts ...Option) (*Store, error) {
	const op = "reference.Load"

	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindReferenceLoad, op, "context done before load", err)
	}

	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindReferenceLoad, op, "reading "+path, err)
	}

	var decodeOpts []archive.Option
	if s.maxElems > 0 {
		decodeOpts = append(decodeOpts, archive.WithMaxElems(s.maxElems))
	}
	volumes, err := archive.Decode(data, decodeOpts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindReferenceLoad, op, "decoding "+path, err)
	}

	subjects := make([]string, 0, len(volumes))
	for id, vol := range volumes {
		if !hasForeground(vol) {
			return nil, apperr.Newf(apperr.KindReferenceLoad, op,
				"subject %q has no foreground voxels and can never be scored", id)
		}
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)

	if len(s.expected) > 0 {
		if err := checkSubjectSet(op, subjects, s.expected); err != nil {
			return nil, err
		}
	}

	s.subjects = subjects
	s.volumes = volumes

	metrics.UpdateReferenceSubjects(len(subjects))
	metrics.UpdateReferenceLoadDuration(float64(time.Since(start).Milliseconds()))

	return s, nil
}

// checkSubjectSet verifies the loaded subject ids match the pinned set.
func checkSubjectSet(op string, got, want []string) error {
	wantSet := make(map[string]bool, len(want))
	for _, id := range want {
		wantSet[id] = true
	}
	gotSet := make(map[string]bool, len(got))
	for _, id := range got {
		gotSet[id] = true
	}

	var missing, extra []string
	for id := range wantSet {
		if !gotSet[id] {
			missing = append(missing, id)
		}
	}
	for id := range gotSet {
		if !wantSet[id] {
			extra = append(extra, id)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)

	switch {
	case len(missing) > 0 && len(extra) > 0:
		return apperr.Newf(apperr.KindReferenceLoad, op,
			"subject set mismatch: missing %s, unexpected %s",
			strings.Join(missing, ", "), strings.Join(extra, ", "))
	case len(missing) > 0:
		return apperr.Newf(apperr.KindReferenceLoad, op,
			"subject set mismatch: missing %s", strings.Join(missing, ", "))
	default:
		return apperr.Newf(apperr.KindReferenceLoad, op,
			"subject set mismatch: unexpected %s", strings.Join(extra, ", "))
	}
}

// hasForeground reports whether any voxel carries a non-background label.
func hasForeground(v model.Volume) bool {
	for _, label := range v.Labels {
		if label != 0 {
			return true
		}
	}
	return false
}

// Path reports where the reference was loaded from.
func (s *Store) Path() string {
	return s.path
}

// Subjects returns the subject identifiers in canonical order.
func (s *Store) Subjects() []string {
	out := make([]string, len(s.subjects))
	copy(out, s.subjects)
	return out
}

// Count reports the number of reference subjects.
func (s *Store) Count() int {
	return len(s.subjects)
}

// ShapeOf reports the expected array shape for a subject.
func (s *Store) ShapeOf(id string) (model.Shape, bool) {
	vol, ok := s.volumes[id]
	if !ok {
		return nil, false
	}
	return vol.Shape, true
}

// Volume returns the ground-truth volume for a subject.
func (s *Store) Volume(id string) (model.Volume, bool) {
	vol, ok := s.volumes[id]
	return vol, ok
}

// MaxVolumeElems reports the element count of the largest reference
// volume. Submissions never legitimately carry a bigger array, so this
// bounds their decode.
func (s *Store) MaxVolumeElems() int {
	max := 0
	for _, vol := range s.volumes {
		if n := vol.Shape.Elems(); n > max {
			max = n
		}
	}
	return max
}
