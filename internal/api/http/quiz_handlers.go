package http

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/quizrun/quizrun/internal/quiz"

	"github.com/go-chi/chi/v5"
)

// POST /quizzes — author/update a quiz definition (answer key included).
func UploadQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var z quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if z.ID == "" || z.Title == "" || len(z.Questions) == 0 {
			http.Error(w, "id, title and questions required", 400)
			return
		}
		for _, q := range z.Questions {
			if q.ID == "" || len(q.Options) == 0 || len(q.CorrectIndices()) == 0 {
				http.Error(w, "every question needs an id, options and a correct option", 400)
				return
			}
			if q.Type == quiz.SingleChoice && len(q.CorrectIndices()) != 1 {
				http.Error(w, "single_choice questions need exactly one correct option", 400)
				return
			}
		}
		if err := store.PutQuiz(r.Context(), z); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "quiz_id": z.ID})
	}
}

// GET /quizzes/{quizID} — learner-safe view; correctness flags and
// explanations are stripped. When the quiz randomizes answers the payload
// also carries a per-question display order with original indices preserved,
// so clients render shuffled but submit authored indices.
func GetQuizHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		z, err := store.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{"quiz": z}
		if z.RandomizeAnswers {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			display := make(map[string][]quiz.IndexedOption, len(z.Questions))
			for _, q := range z.Questions {
				display[q.ID] = quiz.ShuffledOptions(q, rng)
			}
			resp["display_order"] = display
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
