// Copyright (c) 2026 Griffin Hampton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griffinhampton/mailflow/internal/condition"
	"github.com/griffinhampton/mailflow/internal/digest"
	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/inbox"
	"github.com/griffinhampton/mailflow/internal/trigger"
	"github.com/griffinhampton/mailflow/internal/workflow"
)

type fakeRunner struct {
	mu   sync.Mutex
	reqs []workflow.RunRequest
	err  error
}

func (f *fakeRunner) Run(_ context.Context, req workflow.RunRequest) (*workflow.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.RunResult{WorkflowID: req.WorkflowID, Source: req.Source, Results: []workflow.ActionResult{}}, nil
}

type fakePoller struct{ calls int }

func (f *fakePoller) PollAndTrigger(context.Context) (*trigger.PollResult, error) {
	f.calls++
	return &trigger.PollResult{Checked: 3, Triggered: 1, TriggeredWorkflowIDs: []int64{9}}, nil
}

type fakeDigests struct {
	mu       sync.Mutex
	start    time.Time
	end      time.Time
	err      error
	stored   *digest.Result
	requests []digest.Request
}

func (f *fakeDigests) Window(context.Context, int64) (time.Time, time.Time, error) {
	return f.start, f.end, f.err
}

func (f *fakeDigests) Lookup(context.Context, int64, string) (*digest.Result, error) {
	return f.stored, nil
}

func (f *fakeDigests) Generate(_ context.Context, req digest.Request) (*digest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &digest.Result{RecordID: 1, WindowStart: f.start, WindowEnd: f.end, SummaryText: digest.NoEmailsText}, nil
}

type fakeInbox struct {
	unsubscribed []string
	replies      []inbox.ReplyRequest
}

func (f *fakeInbox) HasNewEmail(_ context.Context, userID int64) (bool, error) {
	if userID == 404 {
		return false, inbox.ErrUserNotFound
	}
	return true, nil
}

func (f *fakeInbox) Unsubscribe(_ context.Context, _ int64, to string) (*gmail.SendReceipt, error) {
	if strings.TrimSpace(to) == "" {
		return nil, inbox.ErrMissingRecipient
	}
	f.unsubscribed = append(f.unsubscribed, to)
	return &gmail.SendReceipt{ID: "s1"}, nil
}

func (f *fakeInbox) RespondWithAI(_ context.Context, _ int64, req inbox.ReplyRequest) (*inbox.Reply, error) {
	f.replies = append(f.replies, req)
	return &inbox.Reply{To: "ann@example.org", Subject: "Re: hi", Body: "ok"}, nil
}

type fixture struct {
	runner  *fakeRunner
	poller  *fakePoller
	digests *fakeDigests
	inbox   *fakeInbox
	router  http.Handler
}

func newFixture(secret string) *fixture {
	f := &fixture{
		runner: &fakeRunner{},
		poller: &fakePoller{},
		digests: &fakeDigests{
			start: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			end:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		},
		inbox: &fakeInbox{},
	}
	f.router = NewHandler(Config{
		Runner:        f.runner,
		Poller:        f.poller,
		Digests:       f.digests,
		Inbox:         f.inbox,
		TriggerSecret: secret,
	}).Router()
	return f
}

func (f *fixture) do(method, target, body string, userID string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCompile(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodPost, "/api/workflows/compile", `{
		"nodes": [{"id": "start", "kind": "start"}, {"id": "l", "kind": "gmailEnsureLabel", "config": {"name": "VIP"}}],
		"edges": [{"id": "e", "source": "start", "target": "l"}]
	}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	actions := decodeJSON(t, rec)["actions"].([]any)
	require.Len(t, actions, 1)
	assert.Equal(t, "gmailEnsureLabel", actions[0].(map[string]any)["type"])
	assert.Equal(t, "VIP", actions[0].(map[string]any)["name"])

	rec = f.do(http.MethodPost, "/api/workflows/compile", `{"nodes": []}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeJSON(t, rec)["actions"])

	rec = f.do(http.MethodPost, "/api/workflows/compile", `nope`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunWorkflow(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodPost, "/api/workflows/5/run", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/workflows/5/run", "", "12")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.runner.reqs, 1)
	assert.Equal(t, workflow.RunRequest{WorkflowID: 5, UserID: 12, Source: workflow.SourceManual}, f.runner.reqs[0])

	f.runner.err = workflow.ErrWorkflowNotFound
	rec = f.do(http.MethodPost, "/api/workflows/5/run", "", "12")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.runner.err = errors.New("record run: db gone")
	rec = f.do(http.MethodPost, "/api/workflows/5/run", "", "12")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTrigger_Auth(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"no secret configured", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, "/api/triggers/email", http.StatusUnauthorized},
		{"missing credentials", "s3cret", func(*http.Request) {}, "/api/triggers/email", http.StatusUnauthorized},
		{"wrong bearer", "s3cret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/api/triggers/email", http.StatusUnauthorized},
		{"bearer", "s3cret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }, "/api/triggers/email", http.StatusOK},
		{"query token", "s3cret", func(*http.Request) {}, "/api/triggers/email?token=s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.secret)
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTrigger_Result(t *testing.T) {
	f := newFixture("s3cret")

	rec := f.do(http.MethodGet, "/api/triggers/email?token=s3cret", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(3), body["checked"])
	assert.Equal(t, float64(1), body["triggered"])
	assert.Equal(t, []any{float64(9)}, body["triggeredWorkflowIds"])
	assert.Equal(t, 1, f.poller.calls)
}

func TestDigestLookup(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/digests/login-window", "", "7")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "2026-03-01T09:00:00Z", body["windowStart"])
	assert.Nil(t, body["summary"])

	f.digests.stored = &digest.Result{RecordID: 4, SummaryText: digest.NoEmailsText, Cached: true}
	rec = f.do(http.MethodGet, "/api/digests/login-window", "", "7")
	summary := decodeJSON(t, rec)["summary"].(map[string]any)
	assert.Equal(t, float64(4), summary["recordId"])

	f.digests.err = digest.ErrNoLoginWindow
	rec = f.do(http.MethodGet, "/api/digests/login-window", "", "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDigestGenerate(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodPost, "/api/digests/login-window", "", "7")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/digests/login-window", `{"condition": "invoice", "limit": 20, "source": "custom"}`, "7")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.digests.requests, 2)
	assert.Equal(t, digest.Request{UserID: 7, Condition: condition.None(), Limit: digest.MaxLimit}, f.digests.requests[0])
	assert.Equal(t, digest.Request{UserID: 7, Source: "custom", Condition: condition.Contains("invoice"), Limit: 20}, f.digests.requests[1])

	f.digests.err = digest.ErrUserNotFound
	rec = f.do(http.MethodPost, "/api/digests/login-window", "", "7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmailEndpoints(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/email/new", "", "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeJSON(t, rec)["hasNewEmail"])

	rec = f.do(http.MethodGet, "/api/email/new", "", "404")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/email/unsubscribe", `{"toEmail": ""}`, "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/email/unsubscribe", `{"toEmail": "deals@shop.example"}`, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"deals@shop.example"}, f.inbox.unsubscribed)

	rec = f.do(http.MethodPost, "/api/email/respond-ai", `{"messageId": "m1", "instruction": "decline"}`, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []inbox.ReplyRequest{{MessageID: "m1", Instruction: "decline"}}, f.inbox.replies)

	rec = f.do(http.MethodPost, "/api/email/respond-ai", `{`, "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	healthy := NewHandler(Config{Health: map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	}}).Router()
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	sick := NewHandler(Config{Health: map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("refused") },
	}}).Router()
	rec = httptest.NewRecorder()
	sick.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres unhealthy")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture("").do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done, err := Serve(ctx, 0, http.NotFoundHandler())
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
