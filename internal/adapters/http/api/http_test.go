package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/segrank/internal/adapters/http/api"
	repository "github.com/okian/segrank/internal/adapters/repository"
	"github.com/okian/segrank/internal/apperr"
	"github.com/okian/segrank/internal/domain/model"
	"github.com/okian/segrank/internal/domain/types"
)

// Mock implementations for testing

type mockEvaluator struct {
	result model.Result
	err    error
	got    model.RawSubmission
}

func (m *mockEvaluator) Evaluate(ctx context.Context, raw model.RawSubmission) (model.Result, error) {
	m.got = raw
	if m.err != nil {
		return m.result, m.err
	}
	res := m.result
	if res.SubmissionID == "" {
		res.SubmissionID = raw.SubmissionID
	}
	if res.Name == "" {
		res.Name = raw.Name
	}
	return res, nil
}

type mockLeaderboard struct {
	entries  []types.Entry
	rank     types.Entry
	rankName string
	rankErr  error
	queryErr error
}

func (m *mockLeaderboard) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if n > len(m.entries) {
		return m.entries, nil
	}
	return m.entries[:n], nil
}

func (m *mockLeaderboard) Snapshot(ctx context.Context) ([]types.Entry, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.entries, nil
}

func (m *mockLeaderboard) Rank(ctx context.Context, name string) (types.Entry, error) {
	m.rankName = name
	if m.rankErr != nil {
		return types.Entry{}, m.rankErr
	}
	return m.rank, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

// mockDependencies implements the Dependencies interface.
type mockDependencies struct {
	eval *mockEvaluator
	lb   *mockLeaderboard
}

func (m *mockDependencies) Evaluate(ctx context.Context, raw model.RawSubmission) (model.Result, error) {
	return m.eval.Evaluate(ctx, raw)
}

func (m *mockDependencies) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	return m.lb.TopN(ctx, n)
}

func (m *mockDependencies) Snapshot(ctx context.Context) ([]types.Entry, error) {
	return m.lb.Snapshot(ctx)
}

func (m *mockDependencies) Rank(ctx context.Context, name string) (types.Entry, error) {
	return m.lb.Rank(ctx, name)
}

// multipartBody builds a form body with an optional name field and file part.
func multipartBody(t *testing.T, name, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			t.Fatalf("writing name field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := fw.Write(payload); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// Local types mirroring the wire shapes for decoding.
type scoreResponse struct {
	SubmissionID string    `json:"submission_id"`
	Name         string    `json:"name"`
	Score        float64   `json:"score"`
	Best         float64   `json:"best"`
	Improved     bool      `json:"improved"`
	Recorded     bool      `json:"recorded"`
	Duplicate    bool      `json:"duplicate"`
	SubmittedAt  time.Time `json:"submitted_at"`
	PerSubject   []struct {
		Subject string  `json:"subject"`
		Dice    float64 `json:"dice"`
	} `json:"per_subject"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{
			eval: &mockEvaluator{},
			lb: &mockLeaderboard{
				entries: []types.Entry{
					{Rank: 1, Name: "alpha", Score: 0.9},
				},
			},
		}
		statsProvider := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		server := api.NewServer(deps, statsProvider, 1<<20, 100)
		mux := http.NewServeMux()

		Convey("When registering routes", func() {
			server.Register(context.Background(), mux)

			Convey("Then health endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/healthz", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And stats endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/stats", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And dice-score endpoint should reject a non-multipart body", func() {
				req := httptest.NewRequest("POST", "/dice-score", strings.NewReader(`{}`))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("And leaderboard endpoint should serve the full board without a limit", func() {
				req := httptest.NewRequest("GET", "/leaderboard", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var entries []types.Entry
				So(json.NewDecoder(w.Body).Decode(&entries), ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
			})

			Convey("And rank endpoint should be accessible", func() {
				req := httptest.NewRequest("GET", "/rank/alpha", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And unknown paths should 404", func() {
				req := httptest.NewRequest("GET", "/unknown", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("And dashboard endpoint should serve HTML with refresh control", func() {
				req := httptest.NewRequest("GET", "/dashboard", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				body := w.Body.String()
				So(body, ShouldContainSubstring, "id=\"refresh-interval\"")
				So(body, ShouldContainSubstring, "id=\"refresh-control\"")
			})
		})
	})
}

func TestScoreHandler_HandlePostScore(t *testing.T) {
	Convey("Given a score handler", t, func() {
		eval := &mockEvaluator{
			result: model.Result{
				Score:    0.875,
				Best:     0.875,
				Improved: true,
				Recorded: true,
				PerSubject: []model.SubjectScore{
					{Subject: "case_01", Dice: 0.75},
					{Subject: "case_02", Dice: 1.0},
				},
				SubmittedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			},
		}
		handler := api.NewScoreHandler(eval, 1<<20)

		Convey("When handling a valid multipart POST", func() {
			body, contentType := multipartBody(t, "team rocket", "predictions.npz", []byte("npz-bytes"))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return the evaluation result", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var resp scoreResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Name, ShouldEqual, "team rocket")
				So(resp.Score, ShouldEqual, 0.875)
				So(resp.Improved, ShouldBeTrue)
				So(resp.Recorded, ShouldBeTrue)
				So(resp.Duplicate, ShouldBeFalse)
				So(resp.SubmissionID, ShouldNotBeEmpty)
				So(len(resp.PerSubject), ShouldEqual, 2)
				So(resp.PerSubject[0].Subject, ShouldEqual, "case_01")
			})

			Convey("And the evaluator received the uploaded bytes", func() {
				So(string(eval.got.Archive), ShouldEqual, "npz-bytes")
				So(eval.got.Name, ShouldEqual, "team rocket")
				So(eval.got.SubmissionID, ShouldNotBeEmpty)
			})
		})

		Convey("When the file part is missing", func() {
			body, contentType := multipartBody(t, "team rocket", "", nil)
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return 400 missing_field", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "missing_field")
			})
		})

		Convey("When the upload is not named .npz", func() {
			body, contentType := multipartBody(t, "team rocket", "predictions.zip", []byte("zip-bytes"))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return 400 format", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "format")
			})
		})

		Convey("When the upload exceeds the byte cap", func() {
			small := api.NewScoreHandler(eval, 64)
			body, contentType := multipartBody(t, "team rocket", "predictions.npz", bytes.Repeat([]byte("x"), 2048))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			small.HandlePostScore(w, req)

			Convey("Then it should return 413 too_large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "too_large")
			})
		})

		Convey("When the evaluator reports exhausted capacity", func() {
			eval.err = apperr.New(apperr.KindBusy, "service.evaluate", "evaluation capacity exhausted, retry shortly")
			body, contentType := multipartBody(t, "team rocket", "predictions.npz", []byte("npz-bytes"))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return 429 busy", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "busy")
			})
		})

		Convey("When the evaluator rejects the submission", func() {
			eval.err = apperr.New(apperr.KindSubjectMismatch, "validate.submission", "missing predictions for: case_02")
			body, contentType := multipartBody(t, "team rocket", "predictions.npz", []byte("npz-bytes"))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return 400 with the kind as code", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "subject_mismatch")
				So(resp.Message, ShouldContainSubstring, "case_02")
			})
		})

		Convey("When scoring succeeded but the write did not stick", func() {
			eval.result = model.Result{
				SubmissionID: "sub-9",
				Name:         "team rocket",
				Score:        0.9,
				Best:         0.9,
				Recorded:     false,
				SubmittedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			}
			eval.err = apperr.New(apperr.KindPersistence, "repository.update_best", "acquiring exclusive lock")
			body, contentType := multipartBody(t, "team rocket", "predictions.npz", []byte("npz-bytes"))
			req := httptest.NewRequest("POST", "/dice-score", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should still answer 200 with recorded false", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var resp scoreResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Score, ShouldEqual, 0.9)
				So(resp.Recorded, ShouldBeFalse)
			})
		})

		Convey("When handling a non-POST request", func() {
			req := httptest.NewRequest("GET", "/dice-score", nil)
			w := httptest.NewRecorder()

			handler.HandlePostScore(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestLeaderboardHandler_HandleGetLeaderboard(t *testing.T) {
	Convey("Given a leaderboard handler", t, func() {
		mockLB := &mockLeaderboard{
			entries: []types.Entry{
				{Rank: 1, Name: "alpha", Score: 1.0},
				{Rank: 2, Name: "bravo", Score: 0.95},
				{Rank: 3, Name: "charlie", Score: 0.9},
			},
		}
		handler := api.NewLeaderboardHandler(mockLB, 100)

		Convey("When requesting top N entries", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=2", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the top N entries", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 2)
				So(response[0].Name, ShouldEqual, "alpha")
				So(response[1].Name, ShouldEqual, "bravo")
			})
		})

		Convey("When no limit is specified", func() {
			req := httptest.NewRequest("GET", "/leaderboard", nil)
			w := httptest.NewRecorder()

			handler.HandleGetLeaderboard(w, req)

			Convey("Then it should return the whole board", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var response []types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(len(response), ShouldEqual, 3)
			})
		})

		Convey("When the limit is not a positive integer", func() {
			for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
				req := httptest.NewRequest("GET", "/leaderboard?"+q, nil)
				w := httptest.NewRecorder()
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the limit exceeds the configured cap", func() {
			req := httptest.NewRequest("GET", "/leaderboard?limit=101", nil)
			w := httptest.NewRecorder()

			handler.HandleGetLeaderboard(w, req)

			Convey("Then it should return limit_exceeded", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var resp errorResponse
				So(json.NewDecoder(w.Body).Decode(&resp), ShouldBeNil)
				So(resp.Code, ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When the leaderboard query fails", func() {
			mockLB.queryErr = fmt.Errorf("store unavailable")
			req := httptest.NewRequest("GET", "/leaderboard?limit=10", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return internal server error", func() {
				handler.HandleGetLeaderboard(w, req)
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestRankHandler_HandleGetRank(t *testing.T) {
	Convey("Given a rank handler", t, func() {
		mockLB := &mockLeaderboard{
			rank: types.Entry{Rank: 5, Name: "team rocket", Score: 0.85},
		}
		handler := api.NewRankHandler(mockLB)

		Convey("When requesting rank for an existing team", func() {
			req := httptest.NewRequest("GET", "/rank/team%20rocket", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return the rank information", func() {
				handler.HandleGetRank(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var response types.Entry
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response.Name, ShouldEqual, "team rocket")
				So(response.Rank, ShouldEqual, 5)
				So(response.Score, ShouldEqual, 0.85)
			})

			Convey("And the path segment is decoded before lookup", func() {
				handler.HandleGetRank(w, req)
				So(mockLB.rankName, ShouldEqual, "team rocket")
			})
		})

		Convey("When requesting rank for an unknown team", func() {
			req := httptest.NewRequest("GET", "/rank/nonexistent", nil)
			w := httptest.NewRecorder()

			mockLB.rankErr = repository.ErrNotFound

			handler.HandleGetRank(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the team name is empty", func() {
			req := httptest.NewRequest("GET", "/rank/", nil)
			w := httptest.NewRecorder()

			handler.HandleGetRank(w, req)

			Convey("Then it should return bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the lookup fails for another reason", func() {
			req := httptest.NewRequest("GET", "/rank/team%20rocket", nil)
			w := httptest.NewRecorder()

			mockLB.rankErr = fmt.Errorf("store unavailable")

			handler.HandleGetRank(w, req)

			Convey("Then it should return internal server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	Convey("Given a health handler", t, func() {
		handler := api.NewHealthHandler()

		Convey("When handling health check request", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return OK status", func() {
				handler.HandleHealth(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestStatsHandler_HandleStats(t *testing.T) {
	Convey("Given a stats handler", t, func() {
		mockStats := &mockStatsProvider{
			stats: map[string]interface{}{
				"teams":             12,
				"referenceSubjects": 40,
			},
		}
		handler := api.NewStatsHandler(mockStats)

		Convey("When handling stats request", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()

			Convey("Then it should return stats", func() {
				handler.HandleStats(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)

				var response map[string]interface{}
				err := json.NewDecoder(w.Body).Decode(&response)
				So(err, ShouldBeNil)
				So(response["teams"], ShouldEqual, 12)
				So(response["referenceSubjects"], ShouldEqual, 40)
			})
		})

		Convey("When handling a non-GET request", func() {
			req := httptest.NewRequest("POST", "/stats", nil)
			w := httptest.NewRecorder()

			handler.HandleStats(w, req)

			Convey("Then it should return not found status", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
