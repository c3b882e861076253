package quiz

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrun/quizrun/internal/db"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	// A shared-cache memory DB lives only while a connection is open; pin the
	// pool to one so it survives the whole test.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(conn, "sqlite", NewMemoryQuizCache())
}

func seedAttempt(t *testing.T, s *SQLStore, id, user string) Attempt {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutQuiz(ctx, timedQuiz()))
	a := Attempt{
		ID:          id,
		QuizID:      "quiz-1",
		UserID:      user,
		Status:      StatusInProgress,
		QuestionIDs: []string{"q1", "q2"},
		StartedAt:   1_700_000_000,
		Deadline:    1_700_000_600,
	}
	require.NoError(t, s.CreateAttempt(ctx, a))
	return a
}

func TestSQLQuizRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	want := timedQuiz()
	require.NoError(t, s.PutQuiz(ctx, want))

	got, err := s.GetQuizAdmin(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.TimeLimitMin, got.TimeLimitMin)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, []int{2}, got.Questions[0].CorrectIndices())

	// Learner view has the answer key stripped.
	safe, err := s.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	for _, q := range safe.Questions {
		assert.Empty(t, q.CorrectIndices())
		for _, o := range q.Options {
			assert.Empty(t, o.Explanation)
		}
	}

	_, err = s.GetQuiz(ctx, "missing")
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestSQLPutQuizUpsertInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	z := timedQuiz()
	require.NoError(t, s.PutQuiz(ctx, z))
	_, err := s.GetQuizAdmin(ctx, z.ID) // warm the cache
	require.NoError(t, err)

	z.Title = "Networking basics v2"
	require.NoError(t, s.PutQuiz(ctx, z))
	got, err := s.GetQuizAdmin(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, "Networking basics v2", got.Title, "stale cached copy survived the republish")
}

func TestSQLAttemptRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a := seedAttempt(t, s, "att-1", "alice")

	got, err := s.GetAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, a.QuizID, got.QuizID)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, []string{"q1", "q2"}, got.QuestionIDs)
	assert.Nil(t, got.SubmittedAt)
	assert.Nil(t, got.TimeTakenSec)

	found, err := s.FindInProgress(ctx, "quiz-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "att-1", found.ID)

	_, err = s.FindInProgress(ctx, "quiz-1", "bob")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = s.GetAttempt(ctx, "missing")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestSQLUpsertAnswerIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a := seedAttempt(t, s, "att-1", "alice")

	require.NoError(t, s.UpsertAnswer(ctx, a.ID, "q1", json.RawMessage("1"), 1))
	require.NoError(t, s.UpsertAnswer(ctx, a.ID, "q1", json.RawMessage("1"), 2))
	require.NoError(t, s.UpsertAnswer(ctx, a.ID, "q1", json.RawMessage("2"), 3))
	require.NoError(t, s.UpsertAnswer(ctx, a.ID, "q2", json.RawMessage("[0,2]"), 4))

	answers, err := s.GetAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2, "one row per (attempt,question)")
	assert.Equal(t, "2", string(answers["q1"]))
	assert.Equal(t, "[0,2]", string(answers["q2"]))
}

func TestSQLUpsertAnswerGuard(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a := seedAttempt(t, s, "att-1", "alice")

	assert.ErrorIs(t, s.UpsertAnswer(ctx, "missing", "q1", json.RawMessage("1"), 1), ErrAttemptNotFound)

	ok, err := s.CloseAttempt(ctx, a.ID, StatusExpired, 1_700_000_601, 601)
	require.NoError(t, err)
	require.True(t, ok)

	// The guard is part of the insert statement: a write racing the close
	// simply affects zero rows.
	assert.ErrorIs(t, s.UpsertAnswer(ctx, a.ID, "q1", json.RawMessage("1"), 602), ErrAttemptClosed)

	answers, err := s.GetAnswers(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestSQLCloseAttemptCAS(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a := seedAttempt(t, s, "att-1", "alice")

	ok, err := s.CloseAttempt(ctx, a.ID, StatusSubmitted, 1_700_000_300, 300)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second close of either flavor loses the compare-and-set.
	ok, err = s.CloseAttempt(ctx, a.ID, StatusExpired, 1_700_000_400, 400)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.CloseAttempt(ctx, a.ID, StatusSubmitted, 1_700_000_400, 400)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
	require.NotNil(t, got.SubmittedAt)
	assert.Equal(t, int64(1_700_000_300), *got.SubmittedAt)
	require.NotNil(t, got.TimeTakenSec)
	assert.Equal(t, int64(300), *got.TimeTakenSec)

	_, err = s.CloseAttempt(ctx, "missing", StatusSubmitted, 1, 1)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	_, err = s.CloseAttempt(ctx, a.ID, StatusScored, 1, 1)
	assert.Error(t, err, "scored is not a close target")
}

func TestSQLMarkScoredCAS(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	a := seedAttempt(t, s, "att-1", "alice")

	res := ScoreResult{Score: 5, MaxPoints: 10, Percent: 50, Passed: false}

	// Guard: scoring requires a closed attempt.
	ok, err := s.MarkScored(ctx, a.ID, res)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CloseAttempt(ctx, a.ID, StatusSubmitted, 1_700_000_300, 300)
	require.NoError(t, err)

	ok, err = s.MarkScored(ctx, a.ID, res)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second scorer loses and must not overwrite.
	ok, err = s.MarkScored(ctx, a.ID, ScoreResult{Score: 99, MaxPoints: 10, Percent: 990, Passed: true})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScored, got.Status)
	assert.Equal(t, 5.0, got.Score)
	assert.Equal(t, 50.0, got.Percent)
	assert.False(t, got.Passed)
}

func TestSQLListAttempts(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	require.NoError(t, s.PutQuiz(ctx, timedQuiz()))

	mk := func(id, user string, startedAt int64, status AttemptStatus) {
		require.NoError(t, s.CreateAttempt(ctx, Attempt{
			ID: id, QuizID: "quiz-1", UserID: user, Status: StatusInProgress,
			QuestionIDs: []string{"q1"}, StartedAt: startedAt,
		}))
		if status != StatusInProgress {
			_, err := s.CloseAttempt(ctx, id, status, startedAt+60, 60)
			require.NoError(t, err)
		}
	}
	mk("a1", "alice", 100, StatusSubmitted)
	mk("a2", "alice", 200, StatusInProgress)
	mk("a3", "bob", 300, StatusExpired)

	all, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID, "newest first")

	mine, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1", UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	open, err := s.ListAttempts(ctx, AttemptListOpts{Status: "in_progress"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a2", open[0].ID)

	paged, err := s.ListAttempts(ctx, AttemptListOpts{QuizID: "quiz-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "a2", paged[0].ID)
}

func TestSQLCorruptQuestionIDsSurface(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedAttempt(t, s, "att-1", "alice")

	_, err := s.db.ExecContext(ctx, `UPDATE attempts SET question_ids_json='not-json' WHERE id=$1`, "att-1")
	require.NoError(t, err)

	_, err = s.GetAttempt(ctx, "att-1")
	require.Error(t, err, "corrupt row must not read back as an empty question set")
	assert.NotErrorIs(t, err, ErrAttemptNotFound)
}

// The SQL store must satisfy the same lifecycle properties as the in-memory
// store; run the state machine end to end against sqlite once.
func TestSQLStoreDrivesLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	clk := newFakeClock(1_700_000_000)
	require.NoError(t, s.PutQuiz(ctx, timedQuiz()))
	l := NewLifecycle(s, WithClock(clk.Now))

	a, err := l.Start(ctx, "quiz-1", "alice")
	require.NoError(t, err)
	require.NoError(t, l.SaveAnswer(ctx, a.ID, "alice", "q1", json.RawMessage("2")))
	require.NoError(t, l.SaveAnswer(ctx, a.ID, "alice", "q2", json.RawMessage("[0,2]")))

	got, err := l.Submit(ctx, a.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusScored, got.Status)
	assert.Equal(t, 10.0, got.Score)
	assert.True(t, got.Passed)

	assert.ErrorIs(t, l.SaveAnswer(ctx, a.ID, "alice", "q1", json.RawMessage("0")), ErrAttemptClosed)
}
