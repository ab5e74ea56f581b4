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

// Package trigger runs workflows whose trigger is new mail arriving.
// Each poll checks every active gmailNewEmail workflow for mail newer than
// its cursor and runs the ones that have some.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/workflow"
)

// Store lists workflows and their owners.
type Store interface {
	ListActiveWorkflows(ctx context.Context) ([]models.Workflow, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// Mailbox answers whether a user has mail matching a query.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, userID int64, query string, maxResults int) ([]string, error)
}

// Runner executes a workflow.
type Runner interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.RunResult, error)
}

// Claims keeps two pollers from running the same workflow at once. It is
// optional.
type Claims interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// PollerConfig holds the poller's dependencies.
type PollerConfig struct {
	Store    Store
	Mailbox  Mailbox
	Runner   Runner
	Claims   Claims
	Interval time.Duration
	Now      func() time.Time
}

// Poller checks mail-triggered workflows for new mail.
type Poller struct {
	store    Store
	mailbox  Mailbox
	runner   Runner
	claims   Claims
	interval time.Duration
	now      func() time.Time
}

// NewPoller creates a trigger poller.
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		store:    cfg.Store,
		mailbox:  cfg.Mailbox,
		runner:   cfg.Runner,
		claims:   cfg.Claims,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
	if p.interval <= 0 {
		p.interval = time.Minute
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// PollResult summarizes one poll.
type PollResult struct {
	Checked              int     `json:"checked"`
	Triggered            int     `json:"triggered"`
	TriggeredWorkflowIDs []int64 `json:"triggeredWorkflowIds"`
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("trigger poller starting", "interval", p.interval)

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trigger poller stopping")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	res, err := p.PollAndTrigger(ctx)
	if err != nil {
		slog.Error("trigger poll failed", "error", err)
		return
	}
	if res.Triggered > 0 {
		slog.Info("trigger poll complete", "checked", res.Checked, "triggered", res.Triggered)
	} else {
		slog.Debug("trigger poll complete", "checked", res.Checked)
	}
}

// PollAndTrigger runs every mail-triggered workflow that has new mail.
// Failures are isolated per workflow; only failing to list workflows is
// returned as an error.
func (p *Poller) PollAndTrigger(ctx context.Context) (*PollResult, error) {
	workflows, err := p.store.ListActiveWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}

	result := &PollResult{TriggeredWorkflowIDs: []int64{}}
	for _, wf := range workflows {
		if wf.TriggerType() != models.TriggerGmailNewEmail {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		checked, triggered := p.process(ctx, wf)
		if checked {
			result.Checked++
		}
		if triggered {
			result.Triggered++
			result.TriggeredWorkflowIDs = append(result.TriggeredWorkflowIDs, wf.ID)
		}
	}
	return result, nil
}

// process checks one workflow and runs it when there is new mail.
func (p *Poller) process(ctx context.Context, wf models.Workflow) (checked, triggered bool) {
	logger := slog.With("workflow_id", wf.ID, "user_id", wf.UserID)

	user, err := p.store.GetUser(ctx, wf.UserID)
	if err != nil {
		logger.Error("failed to load workflow owner", "error", err)
		metrics.RecordTriggerPoll("error")
		return false, false
	}
	if user == nil {
		logger.Warn("workflow owner not found")
		return false, false
	}

	after := cursor(wf, user)
	ids, err := p.mailbox.ListMessageIDs(ctx, user.ID, fmt.Sprintf("after:%d", after.Unix()), 1)
	if err != nil {
		logger.Warn("new mail check failed, skipping", "error", err)
		metrics.RecordTriggerPoll("gateway_error")
		return false, false
	}
	if len(ids) == 0 {
		metrics.RecordTriggerPoll("no_mail")
		return true, false
	}

	key := "workflow:" + strconv.FormatInt(wf.ID, 10)
	if p.claims != nil {
		ok, err := p.claims.Claim(ctx, key)
		switch {
		case err != nil:
			logger.Warn("claim failed, running unclaimed", "error", err)
		case !ok:
			logger.Debug("workflow claimed by another poller")
			metrics.RecordTriggerPoll("claimed")
			return true, false
		default:
			defer func() {
				if err := p.claims.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.Warn("failed to release claim", "error", err)
				}
			}()
		}
	}

	now := p.now()
	if _, err := p.runner.Run(ctx, workflow.RunRequest{
		WorkflowID: wf.ID,
		UserID:     user.ID,
		Source:     workflow.SourceTrigger,
		TriggerAt:  &now,
	}); err != nil {
		// The cursor stays put so the next poll retries this workflow.
		logger.Error("triggered run failed", "error", err)
		metrics.RecordTriggerPoll("run_error")
		return true, false
	}

	metrics.RecordTriggerPoll("triggered")
	return true, true
}

// cursor is the time after which mail counts as new for wf.
func cursor(wf models.Workflow, user *models.User) time.Time {
	switch {
	case wf.LastEmailTriggerAt != nil:
		return *wf.LastEmailTriggerAt
	case user.LastLogin != nil:
		return *user.LastLogin
	default:
		return wf.CreatedAt
	}
}
