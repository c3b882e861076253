package attemptclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	defaultQuiet   = 750 * time.Millisecond
	defaultTimeout = 10 * time.Second
)

// Session drives one in-progress attempt. Answer edits land in a local
// optimistic map immediately; a resettable timer flushes the dirty set to the
// server once edits go quiet, so a burst of changes costs one network write
// per question. Submit fires at most once no matter how many triggers race
// (countdown reaching zero, user click, duplicate tab events).
type Session struct {
	client    *Client
	attemptID string
	quiet     time.Duration
	timeout   time.Duration
	onError   func(error)

	mu        sync.Mutex
	answers   map[string]json.RawMessage // local optimistic state
	dirty     map[string]json.RawMessage // not yet persisted
	timer     *time.Timer
	closed    bool
	noLimit   bool
	deadline  time.Time // local wall-clock deadline derived from the server snapshot

	submitOnce sync.Once
	submitRes  SubmitResult
	submitErr  error
}

type SessionOption func(*Session)

// WithQuietPeriod sets the debounce interval.
func WithQuietPeriod(d time.Duration) SessionOption {
	return func(s *Session) { s.quiet = d }
}

// WithRequestTimeout bounds each persistence call.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithErrorHandler receives persistence failures from debounced flushes.
// Failures are surfaced, never retried automatically; the dirty answers stay
// queued and ride along with the next flush.
func WithErrorHandler(fn func(error)) SessionOption {
	return func(s *Session) { s.onError = fn }
}

// NewSession wraps a started (or resumed) attempt.
func NewSession(client *Client, start StartResult, opts ...SessionOption) *Session {
	s := &Session{
		client:    client,
		attemptID: start.AttemptID,
		quiet:     defaultQuiet,
		timeout:   defaultTimeout,
		answers:   map[string]json.RawMessage{},
		dirty:     map[string]json.RawMessage{},
		noLimit:   start.RemainingSeconds == nil,
	}
	if start.RemainingSeconds != nil {
		s.deadline = time.Now().Add(time.Duration(*start.RemainingSeconds) * time.Second)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetAnswer records the answer locally and (re)arms the debounce timer. Edits
// after submit/expiry are dropped: input is disabled once the session closes.
func (s *Session) SetAnswer(questionID string, value json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	v := append(json.RawMessage(nil), value...)
	s.answers[questionID] = v
	s.dirty[questionID] = v

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, func() {
		if err := s.Flush(context.Background()); err != nil && s.onError != nil {
			s.onError(err)
		}
	})
}

// Answer returns the local optimistic value for a question.
func (s *Session) Answer(questionID string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Flush persists all dirty answers now. A write rejected with
// ErrAttemptClosed closes the session; other failures keep the answers dirty
// for the next flush.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.dirty) == 0 || s.closed {
		s.mu.Unlock()
		return nil
	}
	batch := s.dirty
	s.dirty = map[string]json.RawMessage{}
	s.mu.Unlock()

	sent := make(map[string]bool, len(batch))
	for qid, v := range batch {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.client.SaveAnswer(cctx, s.attemptID, qid, v)
		cancel()
		if err == ErrAttemptClosed {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return err
		}
		if err != nil {
			// Requeue the whole unsent remainder of the batch, not just the
			// failing write; keys the user re-edited meanwhile keep their
			// newer value.
			s.mu.Lock()
			for k, bv := range batch {
				if sent[k] {
					continue
				}
				if _, overwritten := s.dirty[k]; !overwritten {
					s.dirty[k] = bv
				}
			}
			s.mu.Unlock()
			return err
		}
		sent[qid] = true
	}
	return nil
}

// RemainingSeconds is the locally recomputed countdown; -1 means no limit.
// The caller should invoke Submit exactly when this reaches zero.
func (s *Session) RemainingSeconds(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noLimit {
		return -1
	}
	rem := int64(s.deadline.Sub(now) / time.Second)
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Submit flushes pending answers and performs the terminal transition exactly
// once; every later call returns the first outcome. A server-side 409 (the
// expiry transition won the race) is returned as ErrAttemptClosed.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.submitOnce.Do(func() {
		if err := s.Flush(ctx); err != nil && err != ErrAttemptClosed {
			// Unsaved answers are reported but do not block submission;
			// the server grades what it has.
			if s.onError != nil {
				s.onError(err)
			}
		}
		s.mu.Lock()
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		s.submitRes, s.submitErr = s.client.Submit(cctx, s.attemptID)
	})
	return s.submitRes, s.submitErr
}

// Closed reports whether input is disabled (submitted, expired or abandoned).
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels the debounce timer without submitting; the attempt stays
// in_progress server-side until resumed or expired.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
