package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quizrun/quizrun/internal/quiz"
	"github.com/quizrun/quizrun/internal/rbac"

	"github.com/go-chi/chi/v5"
)

// POST /attempts {quiz_id} — create or resume the learner's open attempt.
func StartAttemptHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.QuizID == "" {
			http.Error(w, "quiz_id required", 400)
			return
		}
		a, err := lc.Start(r.Context(), req.QuizID, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"attempt_id":        a.ID,
			"status":            a.Status,
			"question_ids":      a.QuestionIDs,
			"remaining_seconds": remainingOrNull(lc.RemainingSeconds(a)),
		})
	}
}

// POST /attempts/{attemptID}/answer {question_id, value}
// value is a bare index (single_choice) or an index array (multiple_choice).
func SaveAnswerHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID string          `json:"question_id"`
			Value      json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if req.QuestionID == "" || len(req.Value) == 0 {
			http.Error(w, "question_id and value required", 400)
			return
		}
		err := lc.SaveAnswer(r.Context(), chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(r.Context()), req.QuestionID, req.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// POST /attempts/{attemptID}/submit — close and grade the attempt.
// POST /attempts/{attemptID}/complete is mounted as an alias.
func SubmitAttemptHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "attemptID")
		a, err := lc.Submit(r.Context(), id, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"status":       a.Status,
			"score":        a.Score,
			"percent":      a.Percent,
			"passed":       a.Passed,
			"redirect_url": "/attempts/" + a.ID + "/results",
		})
	}
}

// GET /attempts/{attemptID}/state — resume/reload support. Overdue attempts
// expire (and score) on the way through.
func AttemptStateHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		a, answers, err := lc.State(ctx, chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(ctx), rbac.CanViewAll(r))
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{
			"attempt_id":        a.ID,
			"quiz_id":           a.QuizID,
			"status":            a.Status,
			"question_ids":      a.QuestionIDs,
			"answers":           answers,
			"remaining_seconds": remainingOrNull(lc.RemainingSeconds(a)),
		}
		if a.Status == quiz.StatusScored {
			resp["score"] = a.Score
			resp["percent"] = a.Percent
			resp["passed"] = a.Passed
		} else {
			resp["score"] = nil
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GET /attempts/{attemptID}/results — scored summary with per-question
// feedback and explanations.
func AttemptResultsHandler(lc *quiz.Lifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		a, fb, err := lc.Results(ctx, chi.URLParam(r, "attemptID"),
			rbac.SubjectFromContext(ctx), rbac.CanViewAll(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempt": a, "feedback": fb})
	}
}

// GET /attempts?quiz_id=...&status=...&limit=50&offset=0&sort=started_at
// Roles without attempt:view-all are pinned to their own attempts.
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if !rbac.CanViewAll(r) {
			userID = rbac.SubjectFromContext(ctx)
		}
		list, err := store.ListAttempts(ctx, quiz.AttemptListOpts{
			QuizID: strings.TrimSpace(r.URL.Query().Get("quiz_id")),
			UserID: userID,
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
			Sort:   strings.TrimSpace(r.URL.Query().Get("sort")),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
