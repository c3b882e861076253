package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists quizzes, attempts and answers through database/sql.
// Works against sqlite (modernc) and postgres (pgx stdlib); the terminal
// transitions are conditional UPDATEs so correctness does not depend on a
// single server process.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	cache  QuizCache
}

func NewSQLStore(db *sql.DB, driver string, cache QuizCache) *SQLStore {
	return &SQLStore{db: db, driver: driver, cache: cache}
}

func (s *SQLStore) PutQuiz(ctx context.Context, z Quiz) error {
	qj, err := json.Marshal(z.Questions)
	if err != nil {
		return err
	}
	if z.CreatedAt == 0 {
		z.CreatedAt = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes
		(id,title,description,time_limit_min,passing_score,question_pool_size,randomize_answers,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
		  title=EXCLUDED.title, description=EXCLUDED.description,
		  time_limit_min=EXCLUDED.time_limit_min, passing_score=EXCLUDED.passing_score,
		  question_pool_size=EXCLUDED.question_pool_size, randomize_answers=EXCLUDED.randomize_answers,
		  questions_json=EXCLUDED.questions_json`,
		z.ID, z.Title, z.Description, z.TimeLimitMin, z.PassingScore,
		z.QuestionPoolSize, z.RandomizeAnswers, string(qj), z.CreatedAt)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, z.ID)
	}
	return nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	z, err := s.GetQuizAdmin(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	return StripAnswerKey(z), nil
}

func (s *SQLStore) GetQuizAdmin(ctx context.Context, id string) (Quiz, error) {
	if s.cache != nil {
		if z, ok := s.cache.Get(ctx, id); ok {
			return z, nil
		}
	}
	row := s.db.QueryRowContext(ctx, `SELECT id,title,description,time_limit_min,passing_score,
		question_pool_size,randomize_answers,questions_json,created_at FROM quizzes WHERE id=$1`, id)
	var z Quiz
	var qjson string
	if err := row.Scan(&z.ID, &z.Title, &z.Description, &z.TimeLimitMin, &z.PassingScore,
		&z.QuestionPoolSize, &z.RandomizeAnswers, &qjson, &z.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &z.Questions); err != nil {
		return Quiz{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, z)
	}
	return z, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	ij, err := json.Marshal(a.QuestionIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,user_id,status,score,max_points,percent,passed,question_ids_json,started_at,deadline)
		VALUES ($1,$2,$3,$4,0,0,0,$5,$6,$7,$8)`,
		a.ID, a.QuizID, a.UserID, string(a.Status), false, string(ij), a.StartedAt, a.Deadline)
	return err
}

const attemptCols = `id,quiz_id,user_id,status,score,max_points,percent,passed,question_ids_json,started_at,deadline,submitted_at,time_taken_sec`

func scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var ids string
	var submittedAt, timeTaken sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Status, &a.Score, &a.MaxPoints,
		&a.Percent, &a.Passed, &ids, &a.StartedAt, &a.Deadline, &submittedAt, &timeTaken); err != nil {
		return Attempt{}, err
	}
	// A corrupt id list must not slip through as an empty question set and
	// grade to zero max points.
	if err := json.Unmarshal([]byte(ids), &a.QuestionIDs); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s: question ids: %w", a.ID, err)
	}
	if submittedAt.Valid {
		a.SubmittedAt = &submittedAt.Int64
	}
	if timeTaken.Valid {
		a.TimeTakenSec = &timeTaken.Int64
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

func (s *SQLStore) FindInProgress(ctx context.Context, quizID, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts
		WHERE quiz_id=$1 AND user_id=$2 AND status='in_progress'
		ORDER BY started_at DESC LIMIT 1`, quizID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, err
}

// UpsertAnswer writes the answer only while the owning attempt is still
// in_progress; the guard and the write are one statement so a concurrent
// submit/expire cannot interleave between check and insert.
func (s *SQLStore) UpsertAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage, now int64) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO attempt_answers (attempt_id,question_id,value_json,updated_at)
		SELECT $1,$2,$3,$4 WHERE EXISTS (SELECT 1 FROM attempts WHERE id=$1 AND status='in_progress')
		ON CONFLICT (attempt_id,question_id) DO UPDATE SET
		  value_json=EXCLUDED.value_json, updated_at=EXCLUDED.updated_at`,
		attemptID, questionID, string(value), now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, attemptID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAttemptNotFound
		}
		if err != nil {
			return err
		}
		return ErrAttemptClosed
	}
	return nil
}

func (s *SQLStore) GetAnswers(ctx context.Context, attemptID string) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_id,value_json FROM attempt_answers WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]json.RawMessage{}
	for rows.Next() {
		var qid, vj string
		if err := rows.Scan(&qid, &vj); err != nil {
			return nil, err
		}
		out[qid] = json.RawMessage(vj)
	}
	return out, rows.Err()
}

func (s *SQLStore) CloseAttempt(ctx context.Context, attemptID string, to AttemptStatus, now, timeTakenSec int64) (bool, error) {
	if to != StatusSubmitted && to != StatusExpired {
		return false, fmt.Errorf("close attempt: bad target status %q", to)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET status=$1, submitted_at=$2, time_taken_sec=$3
		WHERE id=$4 AND status='in_progress'`,
		string(to), now, timeTakenSec, attemptID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish "guard failed" from "no such attempt".
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (s *SQLStore) MarkScored(ctx context.Context, attemptID string, r ScoreResult) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE attempts
		SET status='scored', score=$1, max_points=$2, percent=$3, passed=$4
		WHERE id=$5 AND status IN ('submitted','expired')`,
		r.Score, r.MaxPoints, r.Percent, r.Passed, attemptID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.QuizID != "" {
		add("quiz_id=$%d", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id=$%d", opts.UserID)
	}
	if opts.Status != "" {
		add("status=$%d", opts.Status)
	}
	q := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	switch opts.Sort {
	case "submitted_at":
		q += ` ORDER BY submitted_at DESC`
	default:
		q += ` ORDER BY started_at DESC`
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(` LIMIT $%d`, len(args))
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
