package quiz

import (
	"context"
	"encoding/json"
)

type AttemptListOpts struct {
	QuizID string
	UserID string
	Status string // optional: in_progress|submitted|expired|scored
	Limit  int
	Offset int
	Sort   string // started_at|submitted_at desc (default: started_at desc)
}

// ScoreResult is the outcome of grading a closed attempt.
type ScoreResult struct {
	Score     float64
	MaxPoints float64
	Percent   float64
	Passed    bool
}

// Store is the persistence surface for quizzes, attempts and answers. It is
// deliberately dumb: lifecycle rules (ownership, timer, transition ordering)
// live in Lifecycle; the store only guarantees atomicity of each operation.
//
// CloseAttempt and MarkScored are conditional writes: they apply only when
// the stored status still matches the expected prior state and report whether
// the transition took effect. This is the compare-and-set that resolves the
// submit-vs-expire race under concurrent server processes.
type Store interface {
	PutQuiz(ctx context.Context, z Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)      // student-safe, keys stripped
	GetQuizAdmin(ctx context.Context, id string) (Quiz, error) // full quiz with answer key

	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// FindInProgress returns the learner's open attempt on a quiz, or
	// ErrAttemptNotFound when none exists.
	FindInProgress(ctx context.Context, quizID, userID string) (Attempt, error)

	// UpsertAnswer replaces any prior value for (attempt, question) and
	// stamps the write time. The write is rejected (no rows affected,
	// ErrAttemptClosed) when the attempt is no longer in_progress.
	UpsertAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage, now int64) error
	GetAnswers(ctx context.Context, attemptID string) (map[string]json.RawMessage, error)

	// CloseAttempt transitions in_progress -> to (submitted or expired),
	// recording the submit timestamp and elapsed time. Returns false when
	// the attempt was already closed.
	CloseAttempt(ctx context.Context, attemptID string, to AttemptStatus, now, timeTakenSec int64) (bool, error)
	// MarkScored transitions submitted|expired -> scored with the grading
	// result. Returns false when the guard fails (already scored, or still
	// open).
	MarkScored(ctx context.Context, attemptID string, res ScoreResult) (bool, error)

	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
}
