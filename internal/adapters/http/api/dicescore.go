// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/segrank/internal/apperr"
	"github.com/okian/segrank/internal/domain/model"
)

// Evaluator defines the interface for scoring submissions.
type Evaluator interface {
	Evaluate(ctx context.Context, raw model.RawSubmission) (model.Result, error)
}

// ScoreHandler handles submission scoring requests.
type ScoreHandler struct {
	deps           Evaluator
	maxUploadBytes int64
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps Evaluator, maxUploadBytes int64) *ScoreHandler {
	return &ScoreHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

// HandlePostScore handles POST /dice-score requests. The body is a
// multipart form with the team name in "name" and the npz archive in
// "file".
func (h *ScoreHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, string(apperr.KindTooLarge),
				apperr.Wrap(apperr.KindTooLarge, op, "archive exceeds the upload cap", err))
			return
		}
		writeError(w, http.StatusBadRequest, string(apperr.KindFormat),
			apperr.Wrap(apperr.KindFormat, op, "parsing multipart form", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindMissingField),
			apperr.Wrap(apperr.KindMissingField, op, `form field "file" is required`, err))
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".npz") {
		writeError(w, http.StatusBadRequest, string(apperr.KindFormat),
			apperr.Newf(apperr.KindFormat, op, "file %q must be a .npz archive", header.Filename))
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	raw := model.RawSubmission{
		SubmissionID: uuid.NewString(),
		Name:         r.FormValue("name"),
		Archive:      payload,
	}

	res, err := h.deps.Evaluate(r.Context(), raw)
	if err != nil {
		kind := apperr.KindOf(err)
		// A submission scored but not recorded still answers with its
		// score; Recorded stays false so the caller can retry.
		if kind == apperr.KindPersistence && res.Name != "" {
			writeJSON(w, http.StatusOK, newScoreResponse(res))
			return
		}
		writeError(w, statusFor(kind), string(kind), err)
		return
	}
	writeJSON(w, http.StatusOK, newScoreResponse(res))
}
