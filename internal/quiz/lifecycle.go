package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizrun/quizrun/internal/scoring"
)

// Events receives lifecycle transitions for the append-only event log.
type Events interface {
	Append(ctx context.Context, typ, key string, data any) error
}

// Lifecycle is the attempt state machine: it owns the transition rules
// (in_progress -> submitted|expired -> scored), ownership checks, lazy timer
// expiry and grading. The Store underneath only provides atomic conditional
// writes; every guard decision is made here and enforced there.
type Lifecycle struct {
	store  Store
	engine *scoring.Engine
	events Events
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type LifecycleOption func(*Lifecycle)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

// WithEvents wires an event log sink.
func WithEvents(ev Events) LifecycleOption {
	return func(l *Lifecycle) { l.events = ev }
}

// WithRand overrides the sampling source (tests).
func WithRand(rng *rand.Rand) LifecycleOption {
	return func(l *Lifecycle) { l.rng = rng }
}

func NewLifecycle(store Store, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		store:  store,
		engine: scoring.NewEngine(),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Start creates a new attempt, or resumes the learner's open attempt on the
// quiz if one exists. An open attempt whose deadline has already passed is
// expired (and scored) first, then a fresh attempt is created.
func (l *Lifecycle) Start(ctx context.Context, quizID, userID string) (Attempt, error) {
	existing, err := l.store.FindInProgress(ctx, quizID, userID)
	switch {
	case err == nil:
		a, err := l.refresh(ctx, existing)
		if err != nil {
			return Attempt{}, err
		}
		if a.Status == StatusInProgress {
			return a, nil // resume
		}
	case !errors.Is(err, ErrAttemptNotFound):
		return Attempt{}, err
	}

	z, err := l.store.GetQuizAdmin(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	now := l.now()
	l.mu.Lock()
	ids := SampleQuestionIDs(z, l.rng)
	l.mu.Unlock()

	a := Attempt{
		ID:          uuid.NewString(),
		QuizID:      quizID,
		UserID:      userID,
		Status:      StatusInProgress,
		QuestionIDs: ids,
		StartedAt:   now.Unix(),
		Deadline:    Deadline(now.Unix(), z.TimeLimitMin),
	}
	if err := l.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	l.emit(ctx, "AttemptStarted", a.ID, map[string]any{"quiz_id": quizID, "user_id": userID})
	return a, nil
}

// SaveAnswer validates and persists one answer. Permitted only while the
// attempt is in_progress and owned by userID; repeated writes of the same
// value are idempotent upserts.
func (l *Lifecycle) SaveAnswer(ctx context.Context, attemptID, userID, questionID string, raw json.RawMessage) error {
	a, err := l.owned(ctx, attemptID, userID)
	if err != nil {
		return err
	}
	a, err = l.refresh(ctx, a)
	if err != nil {
		return err
	}
	if a.Status.Closed() {
		return ErrAttemptClosed
	}

	z, err := l.store.GetQuizAdmin(ctx, a.QuizID)
	if err != nil {
		return err
	}
	var question *Question
	for _, q := range z.QuestionsByID(a.QuestionIDs) {
		if q.ID == questionID {
			q := q
			question = &q
			break
		}
	}
	if question == nil {
		return ErrInvalidAnswer
	}
	v, err := ParseAnswerValue(*question, raw)
	if err != nil {
		return err
	}
	// The store statement re-checks in_progress, so a submit/expire that
	// committed between our read and this write rejects the answer.
	return l.store.UpsertAnswer(ctx, a.ID, questionID, v.JSON(), l.now().Unix())
}

// Submit closes the attempt on behalf of the learner and grades it. Exactly
// one of a raced submit/expire wins the conditional close; the loser gets
// ErrAttemptClosed.
func (l *Lifecycle) Submit(ctx context.Context, attemptID, userID string) (Attempt, error) {
	a, err := l.owned(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	now := l.now()
	if a.Status == StatusInProgress && DeadlinePassed(a.Deadline, now) {
		// Deadline ran out before the submit arrived: expiry wins.
		if _, err := l.Expire(ctx, a.ID); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, ErrAttemptClosed
	}
	ok, err := l.store.CloseAttempt(ctx, a.ID, StatusSubmitted, now.Unix(), now.Unix()-a.StartedAt)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, ErrAttemptClosed
	}
	l.emit(ctx, "AttemptSubmitted", a.ID, map[string]any{"quiz_id": a.QuizID, "user_id": a.UserID})
	return l.Score(ctx, a.ID)
}

// Expire is the system-initiated terminal transition. It tolerates losing the
// race against a concurrent submit: either way the attempt ends up closed and
// scored, and the settled attempt is returned.
func (l *Lifecycle) Expire(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status == StatusInProgress {
		now := l.now()
		ok, err := l.store.CloseAttempt(ctx, a.ID, StatusExpired, now.Unix(), now.Unix()-a.StartedAt)
		if err != nil {
			return Attempt{}, err
		}
		if ok {
			l.emit(ctx, "AttemptExpired", a.ID, map[string]any{"quiz_id": a.QuizID, "user_id": a.UserID})
		}
	}
	return l.Score(ctx, attemptID)
}

// Score grades a closed attempt. Idempotent: a scored attempt is returned
// as-is without regrading. Calling it on an open attempt is a caller bug and
// yields ErrAttemptNotClosed.
func (l *Lifecycle) Score(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	switch a.Status {
	case StatusScored:
		return a, nil
	case StatusInProgress:
		return Attempt{}, ErrAttemptNotClosed
	}

	z, err := l.store.GetQuizAdmin(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	answers, err := l.store.GetAnswers(ctx, a.ID)
	if err != nil {
		return Attempt{}, err
	}
	res := l.grade(z, a, answers)

	ok, err := l.store.MarkScored(ctx, a.ID, res)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		// Raced with another scorer; accept theirs.
		a2, err := l.store.GetAttempt(ctx, a.ID)
		if err != nil {
			return Attempt{}, err
		}
		if a2.Status == StatusScored {
			return a2, nil
		}
		return Attempt{}, ErrAttemptNotClosed
	}
	l.emit(ctx, "AttemptScored", a.ID, map[string]any{"score": res.Score, "percent": res.Percent, "passed": res.Passed})
	return l.store.GetAttempt(ctx, a.ID)
}

// State returns the attempt, its saved answers and the ticking clock for
// resume/reload. Overdue attempts are expired (and scored) on the way out.
func (l *Lifecycle) State(ctx context.Context, attemptID, userID string, viewAll bool) (Attempt, map[string]json.RawMessage, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if a.UserID != userID && !viewAll {
		return Attempt{}, nil, ErrAttemptNotResumable
	}
	a, err = l.refresh(ctx, a)
	if err != nil {
		return Attempt{}, nil, err
	}
	answers, err := l.store.GetAnswers(ctx, a.ID)
	if err != nil {
		return Attempt{}, nil, err
	}
	return a, answers, nil
}

// RemainingSeconds derives the countdown for responses; NoTimeLimit maps to
// a null remaining_seconds on the wire.
func (l *Lifecycle) RemainingSeconds(a Attempt) int64 {
	if a.Status.Closed() {
		return 0
	}
	return RemainingUntilDeadline(a.Deadline, l.now())
}

// refresh applies lazy expiry: an in_progress attempt whose deadline has
// passed transitions to expired (and is scored) before anything else sees it.
func (l *Lifecycle) refresh(ctx context.Context, a Attempt) (Attempt, error) {
	if a.Status == StatusInProgress && DeadlinePassed(a.Deadline, l.now()) {
		return l.Expire(ctx, a.ID)
	}
	return a, nil
}

func (l *Lifecycle) owned(ctx context.Context, attemptID, userID string) (Attempt, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.UserID != userID {
		return Attempt{}, ErrAttemptNotResumable
	}
	return a, nil
}

func (l *Lifecycle) grade(z Quiz, a Attempt, answers map[string]json.RawMessage) ScoreResult {
	var tally scoring.Tally
	for _, q := range z.QuestionsByID(a.QuestionIDs) {
		raw, answered := answers[q.ID]
		var selected []int
		if answered {
			v, err := ParseAnswerValue(q, raw)
			if err != nil {
				answered = false // malformed stored value counts as unanswered
			} else {
				selected = v.SelectedIndices()
			}
		}
		tally.Add(l.engine.Grade(scoring.Q{
			Type:    string(q.Type),
			Points:  q.Points,
			Correct: q.CorrectIndices(),
		}, selected, answered))
	}
	sum := tally.Summary(z.PassingScore)
	return ScoreResult{Score: sum.Points, MaxPoints: sum.MaxPoints, Percent: sum.Percent, Passed: sum.Passed}
}

func (l *Lifecycle) emit(ctx context.Context, typ, key string, data any) {
	if l.events == nil {
		return
	}
	// Best effort: a transition never fails because the log is down, but the
	// gap in the audit trail is noted.
	if err := l.events.Append(ctx, typ, key, data); err != nil {
		log.Printf("event log append %s %s: %v", typ, key, err)
	}
}
