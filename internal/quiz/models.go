package quiz

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
)

// AnswerOption is one selectable option of a question. Correct and
// Explanation are authoring-side fields and are stripped before a quiz is
// served to a learner.
type AnswerOption struct {
	Text        string `json:"text"`
	Correct     bool   `json:"correct,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

type Question struct {
	ID      string         `json:"id"`
	Type    QuestionType   `json:"type"`
	Text    string         `json:"text"`
	Options []AnswerOption `json:"options"`
	Points  float64        `json:"points"`
}

// CorrectIndices returns the option indices marked correct, in ascending order.
func (q Question) CorrectIndices() []int {
	out := make([]int, 0, len(q.Options))
	for i, o := range q.Options {
		if o.Correct {
			out = append(out, i)
		}
	}
	return out
}

// Quiz is immutable once published. TimeLimitMin==0 means no time limit;
// QuestionPoolSize==0 means every question is delivered.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	TimeLimitMin     int        `json:"time_limit_min,omitempty"`
	PassingScore     int        `json:"passing_score"` // percent 0-100
	QuestionPoolSize int        `json:"question_pool_size,omitempty"`
	RandomizeAnswers bool       `json:"randomize_answers"`
	Questions        []Question `json:"questions"`
	CreatedAt        int64      `json:"created_at,omitempty"`
}

// MaxPoints sums the point values of the given question IDs (all questions
// when ids is nil).
func (z Quiz) MaxPoints(ids []string) float64 {
	if ids == nil {
		total := 0.0
		for _, q := range z.Questions {
			total += q.Points
		}
		return total
	}
	total := 0.0
	for _, q := range z.QuestionsByID(ids) {
		total += q.Points
	}
	return total
}

// QuestionsByID resolves ids against the quiz, preserving the order of ids.
// Unknown ids are skipped.
func (z Quiz) QuestionsByID(ids []string) []Question {
	byID := make(map[string]Question, len(z.Questions))
	for _, q := range z.Questions {
		byID[q.ID] = q
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusSubmitted  AttemptStatus = "submitted"
	StatusExpired    AttemptStatus = "expired"
	StatusScored     AttemptStatus = "scored"
)

// Closed reports whether the attempt has left in_progress. Answers are frozen
// and only the scoring transition may still touch the row.
func (s AttemptStatus) Closed() bool { return s != StatusInProgress }

// Attempt is one learner's pass through a quiz. QuestionIDs pins the question
// set sampled at start time (pool quizzes deliver a subset). Score fields stay
// zero until the scoring transition.
type Attempt struct {
	ID          string        `json:"id"`
	QuizID      string        `json:"quiz_id"`
	UserID      string        `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	QuestionIDs []string      `json:"question_ids"`

	Score     float64 `json:"score"`
	MaxPoints float64 `json:"max_points"`
	Percent   float64 `json:"percent"`
	Passed    bool    `json:"passed"`

	StartedAt    int64  `json:"started_at"`
	Deadline     int64  `json:"deadline,omitempty"` // unix seconds; 0 = no limit
	SubmittedAt  *int64 `json:"submitted_at,omitempty"`
	TimeTakenSec *int64 `json:"time_taken_sec,omitempty"`
}
