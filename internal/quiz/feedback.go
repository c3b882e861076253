package quiz

import (
	"context"

	"github.com/quizrun/quizrun/internal/scoring"
)

// QuestionFeedback is the per-question breakdown shown on the results page:
// what was selected, what was right, and the authored explanations for the
// correct options.
type QuestionFeedback struct {
	QuestionID      string   `json:"question_id"`
	Text            string   `json:"text"`
	Answered        bool     `json:"answered"`
	Correct         bool     `json:"correct"`
	PointsEarned    float64  `json:"points_earned"`
	MaxPoints       float64  `json:"max_points"`
	SelectedIndices []int    `json:"selected_indices"`
	CorrectIndices  []int    `json:"correct_indices"`
	Explanations    []string `json:"explanations,omitempty"`
}

// Results returns the scored attempt plus per-question feedback. Attempts
// that are submitted or expired but not yet scored are scored on the way
// through (idempotent).
func (l *Lifecycle) Results(ctx context.Context, attemptID, userID string, viewAll bool) (Attempt, []QuestionFeedback, error) {
	a, err := l.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, nil, err
	}
	if a.UserID != userID && !viewAll {
		return Attempt{}, nil, ErrAttemptNotResumable
	}
	if a.Status == StatusInProgress {
		a, err = l.refresh(ctx, a)
		if err != nil {
			return Attempt{}, nil, err
		}
		if a.Status == StatusInProgress {
			return Attempt{}, nil, ErrAttemptNotClosed
		}
	}
	if a.Status != StatusScored {
		a, err = l.Score(ctx, a.ID)
		if err != nil {
			return Attempt{}, nil, err
		}
	}

	z, err := l.store.GetQuizAdmin(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, nil, err
	}
	answers, err := l.store.GetAnswers(ctx, a.ID)
	if err != nil {
		return Attempt{}, nil, err
	}

	fb := make([]QuestionFeedback, 0, len(a.QuestionIDs))
	for _, q := range z.QuestionsByID(a.QuestionIDs) {
		raw, answered := answers[q.ID]
		var selected []int
		if answered {
			v, err := ParseAnswerValue(q, raw)
			if err != nil {
				answered = false
			} else {
				selected = v.SelectedIndices()
			}
		}
		res := l.engine.Grade(scoring.Q{
			Type:    string(q.Type),
			Points:  q.Points,
			Correct: q.CorrectIndices(),
		}, selected, answered)

		var explanations []string
		for _, i := range q.CorrectIndices() {
			if e := q.Options[i].Explanation; e != "" {
				explanations = append(explanations, e)
			}
		}
		if selected == nil {
			selected = []int{}
		}
		fb = append(fb, QuestionFeedback{
			QuestionID:      q.ID,
			Text:            q.Text,
			Answered:        answered,
			Correct:         res.Correct,
			PointsEarned:    res.Points,
			MaxPoints:       res.MaxPoints,
			SelectedIndices: selected,
			CorrectIndices:  q.CorrectIndices(),
			Explanations:    explanations,
		})
	}
	return a, fb, nil
}
