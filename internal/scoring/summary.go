package scoring

// Summary aggregates per-question results for one attempt.
type Summary struct {
	Points           float64
	MaxPoints        float64
	Percent          float64
	QuestionsCorrect int
	TotalQuestions   int
	Passed           bool
}

// Tally accumulates Results; call Summary once with the quiz's passing
// threshold (percent) to finish.
type Tally struct {
	points    float64
	maxPoints float64
	correct   int
	total     int
}

func (t *Tally) Add(r Result) {
	t.points += r.Points
	t.maxPoints += r.MaxPoints
	t.total++
	if r.Correct {
		t.correct++
	}
}

func (t *Tally) Summary(passingPercent int) Summary {
	s := Summary{
		Points:           t.points,
		MaxPoints:        t.maxPoints,
		QuestionsCorrect: t.correct,
		TotalQuestions:   t.total,
	}
	if t.maxPoints > 0 {
		s.Percent = t.points / t.maxPoints * 100
	}
	s.Passed = s.Percent >= float64(passingPercent)
	return s
}
