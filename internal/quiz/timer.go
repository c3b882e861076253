package quiz

import "time"

// NoTimeLimit is the sentinel returned by RemainingSeconds for attempts on
// quizzes without a configured time limit.
const NoTimeLimit int64 = -1

// RemainingSeconds computes how many seconds are left on a time-boxed
// attempt, floored at zero. startedAt is unix seconds. timeLimitMin<=0 means
// no limit and yields NoTimeLimit.
func RemainingSeconds(startedAt int64, timeLimitMin int, now time.Time) int64 {
	if timeLimitMin <= 0 {
		return NoTimeLimit
	}
	rem := int64(timeLimitMin)*60 - (now.Unix() - startedAt)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Expired reports whether a configured limit has run out.
func Expired(startedAt int64, timeLimitMin int, now time.Time) bool {
	return timeLimitMin > 0 && RemainingSeconds(startedAt, timeLimitMin, now) == 0
}

// Deadline returns the unix second at which the attempt expires, or 0 when
// no limit is configured.
func Deadline(startedAt int64, timeLimitMin int) int64 {
	if timeLimitMin <= 0 {
		return 0
	}
	return startedAt + int64(timeLimitMin)*60
}

// RemainingUntilDeadline is the deadline-based form used once an attempt has
// its deadline pinned. deadline==0 yields NoTimeLimit.
func RemainingUntilDeadline(deadline int64, now time.Time) int64 {
	if deadline == 0 {
		return NoTimeLimit
	}
	rem := deadline - now.Unix()
	if rem < 0 {
		rem = 0
	}
	return rem
}

// DeadlinePassed reports whether a pinned deadline has run out.
func DeadlinePassed(deadline int64, now time.Time) bool {
	return deadline != 0 && RemainingUntilDeadline(deadline, now) == 0
}
