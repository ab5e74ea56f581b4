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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/griffinhampton/mailflow/internal/digest"
	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/queue"
)

// Run sources.
const (
	SourceManual  = "manual"
	SourceTrigger = "trigger"
)

// ReasonConditionNotMet marks an action skipped by its condition.
const ReasonConditionNotMet = "condition_not_met"

// ErrWorkflowNotFound is returned when the workflow does not exist or
// belongs to another user.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Store is the workflow persistence the runner needs.
type Store interface {
	GetWorkflow(ctx context.Context, workflowID, userID int64) (*models.Workflow, error)
	RecordRun(ctx context.Context, workflowID int64, ranAt time.Time, triggerAt *time.Time) error
}

// Mailer performs the mailbox side effects of actions.
type Mailer interface {
	SendTextEmail(ctx context.Context, userID int64, out gmail.OutgoingMessage) (*gmail.SendReceipt, error)
	EnsureLabel(ctx context.Context, userID int64, name string) (*gmail.Label, error)
}

// Digests generates summaries for gmailSummarizeEmails actions.
type Digests interface {
	Generate(ctx context.Context, req digest.Request) (*digest.Result, error)
}

// EventPublisher announces completed runs. It is optional.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, userID int64, payload any) error
}

// RunnerConfig holds the runner's dependencies.
type RunnerConfig struct {
	Store   Store
	Mailer  Mailer
	Digests Digests
	Events  EventPublisher
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner executes a workflow's actions in order.
type Runner struct {
	store   Store
	mailer  Mailer
	digests Digests
	events  EventPublisher
	now     func() time.Time
}

// NewRunner creates a workflow runner.
func NewRunner(cfg RunnerConfig) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		store:   cfg.Store,
		mailer:  cfg.Mailer,
		digests: cfg.Digests,
		events:  cfg.Events,
		now:     now,
	}
}

// RunRequest identifies a run.
type RunRequest struct {
	WorkflowID int64
	UserID     int64
	Source     string
	// TriggerAt, when set, becomes the workflow's new polling cursor.
	TriggerAt *time.Time
}

// ActionResult is the outcome of one action.
type ActionResult struct {
	Action  Action `json:"action"`
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	WorkflowID int64          `json:"workflowId"`
	Source     string         `json:"source"`
	Results    []ActionResult `json:"results"`
}

// Failed counts actions that ran and failed.
func (r *RunResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK {
			n++
		}
	}
	return n
}

// Run executes every action of the workflow. Skipped and failed actions
// never stop the ones after them. Run bookkeeping is written after the
// actions regardless of their outcome; only a bookkeeping failure is
// returned as an error alongside the result.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	wf, err := r.store.GetWorkflow(ctx, req.WorkflowID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %d: %w", req.WorkflowID, err)
	}
	if wf == nil {
		return nil, ErrWorkflowNotFound
	}

	logger := slog.With("workflow_id", wf.ID, "user_id", req.UserID, "source", req.Source)

	actions, err := ParseActions(wf.Actions)
	if err != nil {
		logger.Warn("unreadable workflow actions, running none", "error", err)
		actions = nil
	}

	result := &RunResult{WorkflowID: wf.ID, Source: req.Source, Results: make([]ActionResult, 0, len(actions))}
	for _, action := range actions {
		res := r.runAction(ctx, wf, action)
		result.Results = append(result.Results, res)
		metrics.RecordAction(string(action.Type), outcome(res))
		if !res.OK {
			logger.Warn("workflow action failed", "action", action.Type, "error", res.Error)
		}
	}
	metrics.RecordWorkflowRun(req.Source)

	if err := r.store.RecordRun(ctx, wf.ID, r.now(), req.TriggerAt); err != nil {
		return result, fmt.Errorf("record run: %w", err)
	}

	logger.Info("workflow run complete", "actions", len(result.Results), "failed", result.Failed())

	if r.events != nil {
		if err := r.events.Publish(ctx, queue.EventWorkflowRunCompleted, req.UserID, result); err != nil {
			logger.Warn("failed to publish run event", "error", err)
		}
	}
	return result, nil
}

func (r *Runner) runAction(ctx context.Context, wf *models.Workflow, action Action) ActionResult {
	if !action.Condition.MatchesNow(r.now()) {
		return ActionResult{Action: action, OK: true, Skipped: true, Reason: ReasonConditionNotMet}
	}

	detail, err := r.dispatch(ctx, wf, action)
	if err != nil {
		return ActionResult{Action: action, Error: err.Error()}
	}
	return ActionResult{Action: action, OK: true, Detail: detail}
}

func (r *Runner) dispatch(ctx context.Context, wf *models.Workflow, action Action) (any, error) {
	switch {
	case action.Type == ActionGmailSend && action.Send != nil:
		return r.mailer.SendTextEmail(ctx, wf.UserID, gmail.OutgoingMessage{
			To:       action.Send.To,
			Subject:  action.Send.Subject,
			BodyText: action.Send.BodyText,
		})
	case action.Type == ActionGmailEnsureLabel && action.Label != nil:
		return r.mailer.EnsureLabel(ctx, wf.UserID, action.Label.Name)
	case action.Type == ActionGmailSummarizeEmails && action.Summarize != nil:
		return r.digests.Generate(ctx, digest.Request{
			UserID:    wf.UserID,
			Source:    "workflow:" + strconv.FormatInt(wf.ID, 10),
			Condition: action.Condition,
			Limit:     action.Summarize.MaxEmails,
		})
	default:
		return nil, fmt.Errorf("unsupported action type %q", action.Type)
	}
}

func outcome(res ActionResult) string {
	switch {
	case res.Skipped:
		return "skipped"
	case res.OK:
		return "ok"
	default:
		return "failed"
	}
}
