package quiz

import "math/rand"

// SampleQuestionIDs picks the question set for a new attempt. Quizzes with a
// pool size smaller than the question count deliver a random sample; all
// other quizzes deliver every question in authored order.
func SampleQuestionIDs(z Quiz, rng *rand.Rand) []string {
	ids := make([]string, len(z.Questions))
	for i, q := range z.Questions {
		ids[i] = q.ID
	}
	n := z.QuestionPoolSize
	if n <= 0 || n >= len(ids) {
		return ids
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:n]
}

// IndexedOption pairs an option with its authored index so a shuffled display
// order still submits original indices.
type IndexedOption struct {
	Index  int          `json:"index"`
	Option AnswerOption `json:"option"`
}

// ShuffledOptions returns the question's options in random display order with
// original indices preserved. Used when the quiz has randomize_answers set.
func ShuffledOptions(q Question, rng *rand.Rand) []IndexedOption {
	out := make([]IndexedOption, len(q.Options))
	for i, o := range q.Options {
		out[i] = IndexedOption{Index: i, Option: o}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
