package api

import (
	"errors"
	"net/http"

	"github.com/okian/segrank/internal/adapters/repository"
	"github.com/okian/segrank/internal/apperr"
)

// errorResponse is the wire shape of every non-2xx answer.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps an evaluation error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch {
	case kind == apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case kind == apperr.KindBusy:
		return http.StatusTooManyRequests
	case kind == apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.IsClientFault(kind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// isNotFound reports whether err marks a name absent from the leaderboard.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || apperr.IsKind(err, apperr.KindNotFound)
}
