package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizrun/quizrun/internal/auth"
	"github.com/quizrun/quizrun/internal/db"
	"github.com/quizrun/quizrun/internal/quiz"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	srv   *httptest.Server
	auth  *auth.AuthService
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := &testClock{t: time.Unix(1_700_000_000, 0)}
	store := quiz.NewMemoryStore()
	lc := quiz.NewLifecycle(store, quiz.WithClock(clk.Now))

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	authSvc := auth.NewAuthService("test-secret", conn, "admin", string(hash))

	srv := httptest.NewServer(NewRouter(Deps{Store: store, Lifecycle: lc, Auth: authSvc}))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, auth: authSvc, clock: clk}
}

// call issues a request as the given subject/role and decodes the JSON body.
func (e *testEnv) call(t *testing.T, method, path, sub, role string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if sub != "" {
		tok, err := e.auth.IssueJWT(sub, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		if method != http.MethodGet {
			req.Header.Set("X-CSRF-Token", e.auth.CSRFToken(sub))
		}
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func jstr(t *testing.T, m map[string]json.RawMessage, key string) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(m[key], &s), "field %s in %v", key, m)
	return s
}

var quizBody = map[string]any{
	"id":             "quiz-1",
	"title":          "Networking basics",
	"time_limit_min": 10,
	"passing_score":  70,
	"questions": []map[string]any{
		{
			"id": "q1", "type": "single_choice", "text": "Default HTTPS port?", "points": 5,
			"options": []map[string]any{
				{"text": "80"}, {"text": "8080"}, {"text": "443", "correct": true, "explanation": "TLS default"},
			},
		},
		{
			"id": "q2", "type": "multiple_choice", "text": "Transport protocols?", "points": 5,
			"options": []map[string]any{
				{"text": "TCP", "correct": true}, {"text": "IP"}, {"text": "UDP", "correct": true},
			},
		},
	},
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Post(e.srv.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"username":"admin","password":"admin-pass"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out["access_token"])
	assert.Equal(t, e.auth.CSRFToken("admin"), out["csrf_token"])

	resp2, err := http.Post(e.srv.URL+"/auth/login", "application/json",
		bytes.NewReader([]byte(`{"username":"admin","password":"wrong"}`)))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, 401, resp2.StatusCode)
}

func TestFullAttemptFlow(t *testing.T) {
	e := newTestEnv(t)

	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)

	// Learner view must not leak the answer key.
	code, body := e.call(t, "GET", "/quizzes/quiz-1", "alice", "student", nil)
	require.Equal(t, 200, code)
	assert.NotContains(t, string(body["quiz"]), `"correct"`)
	assert.NotContains(t, string(body["quiz"]), "explanation")

	code, body = e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	attemptID := jstr(t, body, "attempt_id")
	assert.Equal(t, "in_progress", jstr(t, body, "status"))
	assert.Equal(t, "600", string(body["remaining_seconds"]))

	// Starting again resumes the same attempt.
	code, body = e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	assert.Equal(t, attemptID, jstr(t, body, "attempt_id"))

	answerPath := "/attempts/" + attemptID + "/answer"
	code, _ = e.call(t, "POST", answerPath, "alice", "student",
		map[string]any{"question_id": "q1", "value": 2})
	require.Equal(t, 200, code)
	code, body = e.call(t, "POST", answerPath, "alice", "student",
		map[string]any{"question_id": "q2", "value": []int{7}})
	assert.Equal(t, 400, code, "out-of-range index: %v", body)
	code, _ = e.call(t, "POST", answerPath, "alice", "student",
		map[string]any{"question_id": "q2", "value": []int{0}})
	require.Equal(t, 200, code)

	code, body = e.call(t, "GET", "/attempts/"+attemptID+"/state", "alice", "student", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "in_progress", jstr(t, body, "status"))
	assert.Equal(t, "null", string(body["score"]), "score withheld until scored")

	e.clock.Advance(2 * time.Minute)
	code, body = e.call(t, "POST", "/attempts/"+attemptID+"/submit", "alice", "student", struct{}{})
	require.Equal(t, 200, code)
	assert.Equal(t, "scored", jstr(t, body, "status"))
	assert.Equal(t, "5", string(body["score"]), "partial multi earns zero")
	assert.Equal(t, "50", string(body["percent"]))
	assert.Equal(t, "false", string(body["passed"]))
	assert.Equal(t, "/attempts/"+attemptID+"/results", jstr(t, body, "redirect_url"))

	// Terminal state: no more writes, no second submit.
	code, _ = e.call(t, "POST", answerPath, "alice", "student",
		map[string]any{"question_id": "q1", "value": 1})
	assert.Equal(t, 409, code)
	code, _ = e.call(t, "POST", "/attempts/"+attemptID+"/submit", "alice", "student", struct{}{})
	assert.Equal(t, 409, code)

	code, body = e.call(t, "GET", "/attempts/"+attemptID+"/results", "alice", "student", nil)
	require.Equal(t, 200, code)
	assert.Contains(t, string(body["feedback"]), "TLS default", "explanations surface after scoring")
}

func TestCompleteAlias(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)
	code, body := e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	attemptID := jstr(t, body, "attempt_id")

	code, body = e.call(t, "POST", "/attempts/"+attemptID+"/complete", "alice", "student", struct{}{})
	require.Equal(t, 200, code)
	assert.Equal(t, "scored", jstr(t, body, "status"))
}

func TestSingularPathAliases(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)

	code, body := e.call(t, "POST", "/attempt/start", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	attemptID := jstr(t, body, "attempt_id")

	code, _ = e.call(t, "POST", "/attempt/"+attemptID+"/answer", "alice", "student",
		map[string]any{"question_id": "q1", "value": 2})
	require.Equal(t, 200, code)

	code, body = e.call(t, "GET", "/attempt/"+attemptID+"/state", "alice", "student", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "in_progress", jstr(t, body, "status"))

	code, body = e.call(t, "POST", "/attempt/"+attemptID+"/submit", "alice", "student", struct{}{})
	require.Equal(t, 200, code)
	assert.Equal(t, "scored", jstr(t, body, "status"))

	code, _ = e.call(t, "POST", "/attempt/"+attemptID+"/complete", "alice", "student", struct{}{})
	assert.Equal(t, 409, code, "alias shares the terminal transition")
}

func TestExpiryOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)
	code, body := e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	attemptID := jstr(t, body, "attempt_id")

	code, _ = e.call(t, "POST", "/attempts/"+attemptID+"/answer", "alice", "student",
		map[string]any{"question_id": "q1", "value": 2})
	require.Equal(t, 200, code)

	// Past the deadline the submit is refused and the attempt settles expired.
	e.clock.Advance(601 * time.Second)
	code, _ = e.call(t, "POST", "/attempts/"+attemptID+"/submit", "alice", "student", struct{}{})
	assert.Equal(t, 409, code)

	code, body = e.call(t, "GET", "/attempts/"+attemptID+"/state", "alice", "student", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "scored", jstr(t, body, "status"))
	assert.Equal(t, "5", string(body["score"]), "pre-deadline answers still count")
	assert.Equal(t, "0", string(body["remaining_seconds"]))
}

func TestAuthz(t *testing.T) {
	e := newTestEnv(t)

	// No token at all.
	resp, err := http.Post(e.srv.URL+"/attempts", "application/json",
		bytes.NewReader([]byte(`{"quiz_id":"quiz-1"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)

	// Students cannot author quizzes.
	code, _ := e.call(t, "POST", "/quizzes", "alice", "student", quizBody)
	assert.Equal(t, 403, code)

	// Missing CSRF token on a mutation.
	tok, err := e.auth.IssueJWT("alice", "student")
	require.NoError(t, err)
	req, err := http.NewRequest("POST", e.srv.URL+"/attempts",
		bytes.NewReader([]byte(`{"quiz_id":"quiz-1"}`)))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)
}

func TestOwnership(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)
	code, body := e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "quiz-1"})
	require.Equal(t, 200, code)
	attemptID := jstr(t, body, "attempt_id")

	// Another student can neither read nor submit it; the error carries the
	// restart hint.
	code, body = e.call(t, "GET", "/attempts/"+attemptID+"/state", "bob", "student", nil)
	assert.Equal(t, 403, code)
	assert.Equal(t, "start", jstr(t, body, "redirect"))
	code, _ = e.call(t, "POST", "/attempts/"+attemptID+"/submit", "bob", "student", struct{}{})
	assert.Equal(t, 403, code)

	// A teacher can read any attempt.
	code, _ = e.call(t, "GET", "/attempts/"+attemptID+"/state", "teach", "teacher", nil)
	assert.Equal(t, 200, code)
}

func TestListAttemptsScoping(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", quizBody)
	require.Equal(t, 200, code)
	for _, user := range []string{"alice", "bob"} {
		code, _ = e.call(t, "POST", "/attempts", user, "student", map[string]string{"quiz_id": "quiz-1"})
		require.Equal(t, 200, code)
	}

	get := func(sub, role, query string) []quiz.Attempt {
		req, err := http.NewRequest("GET", e.srv.URL+"/attempts"+query, nil)
		require.NoError(t, err)
		tok, err := e.auth.IssueJWT(sub, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, 200, resp.StatusCode)
		var list []quiz.Attempt
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		return list
	}

	// A student sees only their own attempts even when asking for someone
	// else's.
	mine := get("alice", "student", "?user_id=bob")
	require.Len(t, mine, 1)
	assert.Equal(t, "alice", mine[0].UserID)

	all := get("teach", "teacher", "")
	assert.Len(t, all, 2)
}

func TestUploadValidation(t *testing.T) {
	e := newTestEnv(t)

	bad := []map[string]any{
		{"id": "", "title": "x", "questions": []map[string]any{{"id": "q"}}},
		{"id": "z", "title": "x", "questions": []map[string]any{}},
		{"id": "z", "title": "x", "questions": []map[string]any{
			{"id": "q", "type": "single_choice", "options": []map[string]any{{"text": "a"}}},
		}},
		{"id": "z", "title": "x", "questions": []map[string]any{
			{"id": "q", "type": "single_choice", "options": []map[string]any{
				{"text": "a", "correct": true}, {"text": "b", "correct": true},
			}},
		}},
	}
	for i, b := range bad {
		code, _ := e.call(t, "POST", "/quizzes", "teach", "teacher", b)
		assert.Equal(t, 400, code, fmt.Sprintf("case %d", i))
	}
}

func TestUnknownQuiz(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.call(t, "POST", "/attempts", "alice", "student", map[string]string{"quiz_id": "missing"})
	assert.Equal(t, 404, code)
	code, _ = e.call(t, "GET", "/quizzes/missing", "alice", "student", nil)
	assert.Equal(t, 404, code)
}
