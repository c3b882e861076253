package quiz

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type answerKey struct{ attemptID, questionID string }

type memoryStore struct {
	mu       sync.Mutex
	quizzes  map[string]Quiz
	attempts map[string]Attempt
	answers  map[answerKey]json.RawMessage
}

// NewMemoryStore returns an in-process Store with the same transition guards
// as the SQL store, for tests and single-binary demos.
func NewMemoryStore() Store {
	return &memoryStore{
		quizzes:  map[string]Quiz{},
		attempts: map[string]Attempt{},
		answers:  map[answerKey]json.RawMessage{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, z Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[z.ID] = z
	return nil
}

func (m *memoryStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	z, err := m.GetQuizAdmin(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	return StripAnswerKey(z), nil
}

func (m *memoryStore) GetQuizAdmin(_ context.Context, id string) (Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return z, nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[a.QuizID]; !ok {
		return ErrQuizNotFound
	}
	m.attempts[a.ID] = a
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryStore) FindInProgress(_ context.Context, quizID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Status == StatusInProgress {
			return a, nil
		}
	}
	return Attempt{}, ErrAttemptNotFound
}

func (m *memoryStore) UpsertAnswer(_ context.Context, attemptID, questionID string, value json.RawMessage, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if a.Status.Closed() {
		return ErrAttemptClosed
	}
	m.answers[answerKey{attemptID, questionID}] = append(json.RawMessage(nil), value...)
	return nil
}

func (m *memoryStore) GetAnswers(_ context.Context, attemptID string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]json.RawMessage{}
	for k, v := range m.answers {
		if k.attemptID == attemptID {
			out[k.questionID] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

func (m *memoryStore) CloseAttempt(_ context.Context, attemptID string, to AttemptStatus, now, timeTakenSec int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return false, ErrAttemptNotFound
	}
	if a.Status != StatusInProgress {
		return false, nil
	}
	a.Status = to
	a.SubmittedAt = &now
	a.TimeTakenSec = &timeTakenSec
	m.attempts[attemptID] = a
	return true, nil
}

func (m *memoryStore) MarkScored(_ context.Context, attemptID string, res ScoreResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return false, ErrAttemptNotFound
	}
	if a.Status != StatusSubmitted && a.Status != StatusExpired {
		return false, nil
	}
	a.Status = StatusScored
	a.Score = res.Score
	a.MaxPoints = res.MaxPoints
	a.Percent = res.Percent
	a.Passed = res.Passed
	m.attempts[attemptID] = a
	return true, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Status != "" && string(a.Status) != opts.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Attempt{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// StripAnswerKey returns a learner-safe copy of the quiz: correctness flags
// and explanations removed.
func StripAnswerKey(z Quiz) Quiz {
	qs := make([]Question, len(z.Questions))
	for i, q := range z.Questions {
		opts := make([]AnswerOption, len(q.Options))
		for j, o := range q.Options {
			opts[j] = AnswerOption{Text: o.Text}
		}
		q.Options = opts
		qs[i] = q
	}
	z.Questions = qs
	return z
}
