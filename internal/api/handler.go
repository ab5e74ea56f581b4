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

// Package api serves the HTTP endpoints of the service. The dashboard's
// session layer authenticates users and forwards their id in the
// X-User-ID header; the trigger endpoint is called by a scheduler holding
// the shared trigger secret.
package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/griffinhampton/mailflow/internal/condition"
	"github.com/griffinhampton/mailflow/internal/digest"
	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/inbox"
	"github.com/griffinhampton/mailflow/internal/trigger"
	"github.com/griffinhampton/mailflow/internal/workflow"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Runner runs a workflow on demand.
type Runner interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.RunResult, error)
}

// Poller checks mail-triggered workflows.
type Poller interface {
	PollAndTrigger(ctx context.Context) (*trigger.PollResult, error)
}

// Digests generates and looks up login-window digests.
type Digests interface {
	Window(ctx context.Context, userID int64) (time.Time, time.Time, error)
	Lookup(ctx context.Context, userID int64, source string) (*digest.Result, error)
	Generate(ctx context.Context, req digest.Request) (*digest.Result, error)
}

// Inbox performs single-message mailbox actions.
type Inbox interface {
	HasNewEmail(ctx context.Context, userID int64) (bool, error)
	Unsubscribe(ctx context.Context, userID int64, to string) (*gmail.SendReceipt, error)
	RespondWithAI(ctx context.Context, userID int64, req inbox.ReplyRequest) (*inbox.Reply, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds the handler's dependencies.
type Config struct {
	Runner        Runner
	Poller        Poller
	Digests       Digests
	Inbox         Inbox
	TriggerSecret string
	// Health checks keyed by dependency name, run by /health.
	Health map[string]HealthCheck
}

// Handler serves the API.
type Handler struct {
	runner        Runner
	poller        Poller
	digests       Digests
	inbox         Inbox
	triggerSecret string
	health        map[string]HealthCheck
}

// NewHandler creates an API handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		runner:        cfg.Runner,
		poller:        cfg.Poller,
		digests:       cfg.Digests,
		inbox:         cfg.Inbox,
		triggerSecret: cfg.TriggerSecret,
		health:        cfg.Health,
	}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.serveHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/workflows/compile", h.serveCompile).Methods(http.MethodPost)
	api.HandleFunc("/workflows/{id:[0-9]+}/run", h.withUser(h.serveRun)).Methods(http.MethodPost)
	api.HandleFunc("/triggers/email", h.serveTrigger).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/digests/login-window", h.withUser(h.serveDigestLookup)).Methods(http.MethodGet)
	api.HandleFunc("/digests/login-window", h.withUser(h.serveDigestGenerate)).Methods(http.MethodPost)
	api.HandleFunc("/email/new", h.withUser(h.serveHasNewEmail)).Methods(http.MethodGet)
	api.HandleFunc("/email/unsubscribe", h.withUser(h.serveUnsubscribe)).Methods(http.MethodPost)
	api.HandleFunc("/email/respond-ai", h.withUser(h.serveRespondAI)).Methods(http.MethodPost)

	return r
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID int64)

// withUser rejects requests without a valid user header.
func (h *Handler) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(UserHeader)), 10, 64)
		if err != nil || userID <= 0 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, userID)
	}
}

func (h *Handler) serveHealth(w http.ResponseWriter, r *http.Request) {
	for name, check := range h.health {
		if err := check(r.Context()); err != nil {
			slog.Warn("health check failed", "dependency", name, "error", err)
			writeError(w, http.StatusServiceUnavailable, name+" unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) serveCompile(w http.ResponseWriter, r *http.Request) {
	var g workflow.Graph
	if !decodeBody(w, r, &g) {
		return
	}
	actions := workflow.Compile(g)
	if actions == nil {
		actions = []workflow.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) serveRun(w http.ResponseWriter, r *http.Request, userID int64) {
	workflowID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}

	res, err := h.runner.Run(r.Context(), workflow.RunRequest{
		WorkflowID: workflowID,
		UserID:     userID,
		Source:     workflow.SourceManual,
	})
	switch {
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "Workflow not found")
	case err != nil:
		slog.Error("manual workflow run failed", "workflow_id", workflowID, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
	}
}

func (h *Handler) serveTrigger(w http.ResponseWriter, r *http.Request) {
	if !h.triggerAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	res, err := h.poller.PollAndTrigger(r.Context())
	if err != nil {
		slog.Error("trigger poll failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"checked":              res.Checked,
		"triggered":            res.Triggered,
		"triggeredWorkflowIds": res.TriggeredWorkflowIDs,
	})
}

// triggerAuthorized accepts the secret as a bearer token or a token query
// parameter. With no secret configured every request is refused.
func (h *Handler) triggerAuthorized(r *http.Request) bool {
	if h.triggerSecret == "" {
		return false
	}
	presented := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.triggerSecret)) == 1
}

// digestResponse is the dashboard's view of a login-window digest.
type digestResponse struct {
	WindowStart time.Time      `json:"windowStart"`
	WindowEnd   time.Time      `json:"windowEnd"`
	Summary     *digest.Result `json:"summary"`
}

func (h *Handler) serveDigestLookup(w http.ResponseWriter, r *http.Request, userID int64) {
	source := r.URL.Query().Get("source")

	start, end, err := h.digests.Window(r.Context(), userID)
	if err != nil {
		writeDigestError(w, err)
		return
	}
	res, err := h.digests.Lookup(r.Context(), userID, source)
	if err != nil {
		writeDigestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, digestResponse{WindowStart: start, WindowEnd: end, Summary: res})
}

type generateRequest struct {
	Source    string          `json:"source"`
	Condition json.RawMessage `json:"condition"`
	Limit     int             `json:"limit"`
}

func (h *Handler) serveDigestGenerate(w http.ResponseWriter, r *http.Request, userID int64) {
	var body generateRequest
	if !decode(w, r, &body, false) {
		return
	}
	if body.Limit == 0 {
		body.Limit = digest.MaxLimit
	}

	res, err := h.digests.Generate(r.Context(), digest.Request{
		UserID:    userID,
		Source:    body.Source,
		Condition: condition.Normalize(body.Condition),
		Limit:     body.Limit,
	})
	if err != nil {
		writeDigestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, digestResponse{WindowStart: res.WindowStart, WindowEnd: res.WindowEnd, Summary: res})
}

func writeDigestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, digest.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, digest.ErrNoLoginWindow):
		writeError(w, http.StatusBadRequest, "Missing current login timestamp")
	default:
		slog.Error("digest request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) serveHasNewEmail(w http.ResponseWriter, r *http.Request, userID int64) {
	has, err := h.inbox.HasNewEmail(r.Context(), userID)
	if err != nil {
		writeInboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasNewEmail": has})
}

func (h *Handler) serveUnsubscribe(w http.ResponseWriter, r *http.Request, userID int64) {
	var body struct {
		ToEmail string `json:"toEmail"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	receipt, err := h.inbox.Unsubscribe(r.Context(), userID, body.ToEmail)
	if err != nil {
		writeInboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "receipt": receipt})
}

func (h *Handler) serveRespondAI(w http.ResponseWriter, r *http.Request, userID int64) {
	var body inbox.ReplyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	reply, err := h.inbox.RespondWithAI(r.Context(), userID, body)
	if err != nil {
		writeInboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reply": reply})
}

func writeInboxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inbox.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, inbox.ErrMissingRecipient),
		errors.Is(err, inbox.ErrMissingMessageID),
		errors.Is(err, inbox.ErrNoSender),
		errors.Is(err, inbox.ErrDrafterDisabled):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("mailbox action failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody reads a required JSON request body into v, writing a 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	return decode(w, r, v, true)
}

func decode(w http.ResponseWriter, r *http.Request, v any, required bool) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if !required && len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
