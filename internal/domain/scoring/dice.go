// Package scoring computes macro Dice scores for segmentation volumes.
package scoring

import (
	"context"
	"sort"

	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
)

// defaultBackground is the label treated as "not part of any structure".
const defaultBackground int32 = 0

// Option applies a configuration option to the DiceScorer.
type Option func(*DiceScorer)

// WithBackgroundLabel overrides the label excluded from the class set.
func WithBackgroundLabel(label int32) Option {
	return func(s *DiceScorer) {
		s.background = label
	}
}

// Input carries one subject's prediction and its ground truth.
type Input struct {
	Subject string
	Pred    model.Volume
	Truth   model.Volume
}

// Result contains the computed macro Dice for a subject.
type Result struct {
	Subject string
	Dice    float64
}

// Scorer computes a per-subject score.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// DiceScorer implements Scorer as the mean Dice coefficient over every
// foreground class present in either the prediction or the ground
// truth. A class absent from both counts as a perfect 1.0, so
// correctly predicting the absence of a structure is rewarded.
type DiceScorer struct {
	background int32
}

// NewDiceScorer creates a scorer with configuration options.
func NewDiceScorer(opts ...Option) *DiceScorer {
	s := &DiceScorer{background: defaultBackground}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the macro Dice for one subject. The ground truth must
// carry at least one foreground voxel; a truth that is all background
// makes every candidate class degenerate and the subject unscorable.
func (s *DiceScorer) Score(ctx context.Context, in Input) (Result, error) {
	const op = "scoring.Score"

	if !in.Pred.Shape.Equal(in.Truth.Shape) {
		return Result{}, apperr.Newf(apperr.KindShapeMismatch, op,
			"subject %s: prediction shape %s does not match reference shape %s",
			in.Subject, in.Pred.Shape, in.Truth.Shape)
	}

	classes, truthForeground := s.foregroundClasses(in.Pred, in.Truth)
	if !truthForeground {
		return Result{}, apperr.Newf(apperr.KindComputation, op,
			"subject %s: ground truth contains no foreground voxels", in.Subject)
	}

	var sum float64
	for _, class := range classes {
		select {
		case <-ctx.Done():
			return Result{}, apperr.Wrap(apperr.KindComputation, op,
				"subject "+in.Subject+": cancelled", ctx.Err())
		default:
		}
		sum += DiceCoefficient(in.Pred, in.Truth, class)
	}

	return Result{Subject: in.Subject, Dice: sum / float64(len(classes))}, nil
}

// foregroundClasses collects the union of non-background labels across
// both volumes in ascending order, and reports whether the truth holds
// any foreground at all. The fixed order keeps the floating-point sum
// reproducible run to run.
func (s *DiceScorer) foregroundClasses(pred, truth model.Volume) ([]int32, bool) {
	seen := make(map[int32]struct{})
	truthForeground := false
	for _, label := range truth.Labels {
		if label == s.background {
			continue
		}
		truthForeground = true
		seen[label] = struct{}{}
	}
	for _, label := range pred.Labels {
		if label != s.background {
			seen[label] = struct{}{}
		}
	}

	classes := make([]int32, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes, truthForeground
}

// DiceCoefficient computes 2|P∩G| / (|P|+|G|) for one class, where P
// and G are the voxel sets carrying that class in the prediction and
// the ground truth. A class absent from both sides scores 1.0. Both
// volumes must share a shape.
func DiceCoefficient(pred, truth model.Volume, class int32) float64 {
	var predCount, truthCount, overlap int
	for i := range truth.Labels {
		p := pred.Labels[i] == class
		g := truth.Labels[i] == class
		if p {
			predCount++
		}
		if g {
			truthCount++
		}
		if p && g {
			overlap++
		}
	}
	if predCount+truthCount == 0 {
		return 1.0
	}
	return 2 * float64(overlap) / float64(predCount+truthCount)
}
