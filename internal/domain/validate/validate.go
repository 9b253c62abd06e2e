// Package validate checks submissions against the reference contract
// before any scoring work is spent on them.
package validate

import (
	"regexp"
	"strings"

	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
)

// nameRE bounds what may appear on a public leaderboard: 1-40
// characters of letters, digits, spaces and _-.() punctuation.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9 _\-.()]{1,40}$`)

// Reference is the slice of the reference store the validator needs.
type Reference interface {
	Subjects() []string
	ShapeOf(id string) (model.Shape, bool)
}

// TeamName normalizes a submitted display name and enforces the
// leaderboard charset. The trimmed name is the identity used for
// best-score bookkeeping, so "team a" and " team a " are one team.
func TeamName(raw string) (string, error) {
	const op = "validate.TeamName"

	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.New(apperr.KindMissingField, op, "name is required")
	}
	if !nameRE.MatchString(name) {
		return "", apperr.Newf(apperr.KindMissingField, op,
			"name %q must be 1-40 characters of letters, digits, spaces or _-.()", name)
	}
	return name, nil
}

// Submission verifies that the decoded volumes cover every reference
// subject and that each covering array matches its reference shape.
// Predictions for subjects outside the reference set are dropped, not
// rejected. Subject coverage is checked before shapes so an incomplete
// submission is reported as such even when shapes also differ. The
// returned submission holds exactly the reference subjects.
func Submission(sub model.Submission, ref Reference) (model.Submission, error) {
	const op = "validate.Submission"

	want := ref.Subjects()

	var missing []string
	for _, id := range want {
		if _, ok := sub.Volumes[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return model.Submission{}, apperr.Newf(apperr.KindSubjectMismatch, op,
			"missing predictions for: %s", strings.Join(missing, ", "))
	}

	kept := make(map[string]model.Volume, len(want))
	for _, id := range want {
		refShape, _ := ref.ShapeOf(id)
		vol := sub.Volumes[id]
		if !vol.Shape.Equal(refShape) {
			return model.Submission{}, apperr.Newf(apperr.KindShapeMismatch, op,
				"subject %s: shape %s does not match reference shape %s", id, vol.Shape, refShape)
		}
		kept[id] = vol
	}
	return model.Submission{Name: sub.Name, Volumes: kept}, nil
}
