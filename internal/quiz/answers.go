package quiz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// AnswerValue is a validated learner response. Exactly one of the two fields
// is meaningful, driven by the question type: Single holds the selected index
// for single_choice; Indices holds the sorted, de-duplicated selection for
// multiple_choice (possibly empty).
type AnswerValue struct {
	Single  *int
	Indices []int
}

// ParseAnswerValue validates a raw JSON answer payload against the question's
// shape: a single in-range index for single_choice, an array of in-range
// indices for multiple_choice. Shape mismatches yield ErrInvalidAnswer.
func ParseAnswerValue(q Question, raw json.RawMessage) (AnswerValue, error) {
	// json.Unmarshal treats null as a no-op, which would silently read as
	// index 0; reject it up front.
	if string(bytes.TrimSpace(raw)) == "null" {
		return AnswerValue{}, fmt.Errorf("%w: null value", ErrInvalidAnswer)
	}
	switch q.Type {
	case SingleChoice:
		var idx int
		if err := json.Unmarshal(raw, &idx); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: single_choice expects one index", ErrInvalidAnswer)
		}
		if idx < 0 || idx >= len(q.Options) {
			return AnswerValue{}, fmt.Errorf("%w: index %d out of range", ErrInvalidAnswer, idx)
		}
		return AnswerValue{Single: &idx}, nil

	case MultipleChoice:
		var idxs []int
		if err := json.Unmarshal(raw, &idxs); err != nil {
			return AnswerValue{}, fmt.Errorf("%w: multiple_choice expects an index array", ErrInvalidAnswer)
		}
		seen := make(map[int]bool, len(idxs))
		out := make([]int, 0, len(idxs))
		for _, i := range idxs {
			if i < 0 || i >= len(q.Options) {
				return AnswerValue{}, fmt.Errorf("%w: index %d out of range", ErrInvalidAnswer, i)
			}
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
		sort.Ints(out)
		return AnswerValue{Indices: out}, nil

	default:
		return AnswerValue{}, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, q.Type)
	}
}

// JSON renders the canonical wire form: a bare number for single_choice, a
// sorted array for multiple_choice. Canonical form makes repeated writes of
// the same selection byte-identical in the store.
func (v AnswerValue) JSON() json.RawMessage {
	if v.Single != nil {
		b, _ := json.Marshal(*v.Single)
		return b
	}
	if v.Indices == nil {
		return json.RawMessage("[]")
	}
	b, _ := json.Marshal(v.Indices)
	return b
}

// SelectedIndices returns the selection as a flat slice regardless of shape.
func (v AnswerValue) SelectedIndices() []int {
	if v.Single != nil {
		return []int{*v.Single}
	}
	return v.Indices
}
