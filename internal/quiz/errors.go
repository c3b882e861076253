package quiz

import "errors"

var (
	// ErrAttemptClosed: mutation attempted on an attempt that already left
	// in_progress (submit/expire lost the race, or a stale client write).
	ErrAttemptClosed = errors.New("attempt is no longer open")

	// ErrAttemptNotResumable: attempt exists but belongs to another learner
	// or is already closed; callers redirect to the quiz start flow.
	ErrAttemptNotResumable = errors.New("attempt not resumable")

	// ErrInvalidAnswer: answer payload does not match the question's shape.
	ErrInvalidAnswer = errors.New("invalid answer")

	// ErrAttemptNotClosed: scoring requested while still in_progress. Not
	// reachable through the public API; logged as a defect if seen.
	ErrAttemptNotClosed = errors.New("attempt not closed")

	ErrQuizNotFound    = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")
)
