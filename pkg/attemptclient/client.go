// Package attemptclient is a small client for the attempt API: it drives one
// in-progress attempt through the wire contract, coalescing rapid answer
// edits into debounced writes and guaranteeing the terminal submit fires at
// most once.
package attemptclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrAttemptClosed mirrors the server's 409: the attempt reached a
	// terminal state and no longer accepts this action.
	ErrAttemptClosed = errors.New("attempt is no longer open")
	// ErrInvalidAnswer mirrors the server's 400 on answer writes.
	ErrInvalidAnswer = errors.New("invalid answer")
)

type Client struct {
	BaseURL string
	Token   string // bearer token from /auth/login
	CSRF    string // csrf token from /auth/login

	// HTTPClient defaults to a 10s-timeout client; persistence calls are
	// always bounded.
	HTTPClient *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

type StartResult struct {
	AttemptID        string   `json:"attempt_id"`
	Status           string   `json:"status"`
	QuestionIDs      []string `json:"question_ids"`
	RemainingSeconds *int64   `json:"remaining_seconds"`
}

type SubmitResult struct {
	Success     bool    `json:"success"`
	Status      string  `json:"status"`
	Score       float64 `json:"score"`
	Percent     float64 `json:"percent"`
	Passed      bool    `json:"passed"`
	RedirectURL string  `json:"redirect_url"`
}

type StateResult struct {
	AttemptID        string                     `json:"attempt_id"`
	QuizID           string                     `json:"quiz_id"`
	Status           string                     `json:"status"`
	QuestionIDs      []string                   `json:"question_ids"`
	Answers          map[string]json.RawMessage `json:"answers"`
	RemainingSeconds *int64                     `json:"remaining_seconds"`
	Score            *float64                   `json:"score"`
}

func (c *Client) Start(ctx context.Context, quizID string) (StartResult, error) {
	var out StartResult
	err := c.do(ctx, http.MethodPost, "/attempts", map[string]string{"quiz_id": quizID}, &out)
	return out, err
}

func (c *Client) SaveAnswer(ctx context.Context, attemptID, questionID string, value json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/answer",
		map[string]any{"question_id": questionID, "value": value}, nil)
}

func (c *Client) Submit(ctx context.Context, attemptID string) (SubmitResult, error) {
	var out SubmitResult
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/submit", struct{}{}, &out)
	return out, err
}

func (c *Client) State(ctx context.Context, attemptID string) (StateResult, error) {
	var out StateResult
	err := c.do(ctx, http.MethodGet, "/attempts/"+attemptID+"/state", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if method != http.MethodGet && c.CSRF != "" {
		req.Header.Set("X-CSRF-Token", c.CSRF)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusConflict:
		return ErrAttemptClosed
	case http.StatusBadRequest:
		return ErrInvalidAnswer
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
}
