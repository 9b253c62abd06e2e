package scoring

import (
	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
)

// Aggregate reduces per-subject scores to the single submission score:
// the arithmetic mean over exactly want subjects. A partial score set
// never produces a score; missing subjects are a hard failure.
func Aggregate(scores []model.SubjectScore, want int) (float64, error) {
	const op = "scoring.Aggregate"

	if want <= 0 {
		return 0, apperr.New(apperr.KindIncomplete, op, "reference subject count is zero")
	}
	if len(scores) != want {
		return 0, apperr.Newf(apperr.KindIncomplete, op, "have %d subject scores, want %d", len(scores), want)
	}

	var sum float64
	for _, s := range scores {
		sum += s.Dice
	}
	return sum / float64(want), nil
}
