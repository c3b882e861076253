package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/quizrun/quizrun/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto the wire contract. Everything in the
// taxonomy is recoverable at the request boundary; nothing here panics or
// kills the process.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrInvalidAnswer):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, quiz.ErrAttemptClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "this attempt is no longer open"})
	case errors.Is(err, quiz.ErrAttemptNotResumable):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "attempt not resumable", "redirect": "start"})
	case errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, quiz.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, quiz.ErrAttemptNotClosed):
		// Not reachable through the public API; a sighting is a server bug.
		log.Printf("defect: scoring requested on open attempt: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		// Unexpected (driver, I/O): detail goes to the log, never the client.
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// remainingOrNull maps the no-limit sentinel onto a null remaining_seconds.
func remainingOrNull(rem int64) *int64 {
	if rem == quiz.NoTimeLimit {
		return nil
	}
	return &rem
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
