// Package scoring grades answered questions. It is pure: no clock, no I/O,
// no knowledge of attempts or persistence. Callers feed it one question view
// per delivered question and collect per-question results into a Tally.
package scoring

import "sort"

// Q is the minimal view of a question needed for grading.
type Q struct {
	Type    string
	Points  float64
	Correct []int // indices of correct options
}

// Result is the outcome of grading a single question.
type Result struct {
	Correct   bool
	Points    float64 // points awarded
	MaxPoints float64
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q Q, selected []int, answered bool) Result
}

// Engine routes by question type to the correct Strategy. Unanswered
// questions and unknown types earn zero.
type Engine struct {
	strategies map[string]Strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[string]Strategy{
			"single_choice":   singleChoiceStrategy{},
			"multiple_choice": multipleChoiceStrategy{},
		},
	}
}

func (e *Engine) Grade(q Q, selected []int, answered bool) Result {
	s, ok := e.strategies[q.Type]
	if !ok {
		return Result{MaxPoints: q.Points}
	}
	return s.Grade(q, selected, answered)
}

type singleChoiceStrategy struct{}

// Correct iff exactly one option is selected and it is the designated one.
func (singleChoiceStrategy) Grade(q Q, selected []int, answered bool) Result {
	res := Result{MaxPoints: q.Points}
	if !answered || len(selected) != 1 {
		return res
	}
	for _, c := range q.Correct {
		if selected[0] == c {
			res.Correct = true
			res.Points = q.Points
			return res
		}
	}
	return res
}

type multipleChoiceStrategy struct{}

// All-or-nothing: the selected set must equal the correct set exactly.
// Partial overlap earns zero.
func (multipleChoiceStrategy) Grade(q Q, selected []int, answered bool) Result {
	res := Result{MaxPoints: q.Points}
	if !answered {
		return res
	}
	if setEqual(selected, q.Correct) {
		res.Correct = true
		res.Points = q.Points
	}
	return res
}

func setEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	bs := append([]int(nil), b...)
	sort.Ints(as)
	sort.Ints(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
