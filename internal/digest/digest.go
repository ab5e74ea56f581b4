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

// Package digest builds the prioritized summary of mail a user received
// between their previous and current login.
//
// A digest is computed once per (user, window, source) and stored; later
// requests for the same key return the stored record untouched.
package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/griffinhampton/mailflow/internal/condition"
	"github.com/griffinhampton/mailflow/internal/llm"
	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/queue"
	"github.com/griffinhampton/mailflow/internal/triage"
)

const (
	// SourceLoginWindowAll is the source of the dashboard's own digest.
	SourceLoginWindowAll = "loginWindowAll"

	// MaxLimit caps how many messages one digest lists.
	MaxLimit = 500

	// NoEmailsText is the summary stored for an empty window.
	NoEmailsText = "No new emails."

	// DefaultInboxLink points at the Gmail web inbox.
	DefaultInboxLink = "https://mail.google.com/mail/u/0/#inbox"
)

var (
	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoLoginWindow is returned when the user has never logged in.
	ErrNoLoginWindow = errors.New("no login timestamp recorded")
)

// Store is the persistence the builder needs.
type Store interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetDigest(ctx context.Context, key models.DigestKey) (*models.DigestRecord, error)
	InsertDigest(ctx context.Context, rec models.DigestRecord) (*models.DigestRecord, error)
}

// Mailbox lists and fetches a user's messages.
type Mailbox interface {
	ListAllMessageIDs(ctx context.Context, userID int64, query string, limit int) ([]string, error)
	GetMessage(ctx context.Context, userID int64, messageID string) (*models.Email, error)
}

// Summarizer writes the overview. It is optional.
type Summarizer interface {
	ChatComplete(ctx context.Context, req llm.Request) (string, error)
}

// EventPublisher announces generated digests. It is optional.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, userID int64, payload any) error
}

// Config holds the builder's dependencies and tuning.
type Config struct {
	Store      Store
	Mailbox    Mailbox
	Scorer     *triage.Scorer
	Summarizer Summarizer
	Events     EventPublisher

	InboxLink string
	// FetchConcurrency bounds parallel message fetches. 1 fetches in order.
	FetchConcurrency int
	// SummaryMaxEmails and SummarySnippetChars bound the summarizer prompt.
	SummaryMaxEmails    int
	SummarySnippetChars int
}

// Builder generates and stores digests.
type Builder struct {
	store      Store
	mailbox    Mailbox
	scorer     *triage.Scorer
	summarizer Summarizer
	events     EventPublisher

	inboxLink        string
	fetchConcurrency int
	promptEmails     int
	promptSnippet    int
}

// NewBuilder creates a digest builder.
func NewBuilder(cfg Config) *Builder {
	b := &Builder{
		store:            cfg.Store,
		mailbox:          cfg.Mailbox,
		scorer:           cfg.Scorer,
		summarizer:       cfg.Summarizer,
		events:           cfg.Events,
		inboxLink:        cfg.InboxLink,
		fetchConcurrency: cfg.FetchConcurrency,
		promptEmails:     cfg.SummaryMaxEmails,
		promptSnippet:    cfg.SummarySnippetChars,
	}
	if b.scorer == nil {
		b.scorer = triage.NewScorer(triage.DefaultTables())
	}
	if b.inboxLink == "" {
		b.inboxLink = DefaultInboxLink
	}
	if b.fetchConcurrency < 1 {
		b.fetchConcurrency = 1
	}
	if b.promptEmails < 1 {
		b.promptEmails = 25
	}
	b.promptEmails = min(b.promptEmails, 50)
	if b.promptSnippet < 1 {
		b.promptSnippet = 400
	}
	b.promptSnippet = min(max(b.promptSnippet, 50), 1500)
	return b
}

// Request describes a digest to generate.
type Request struct {
	UserID    int64
	Source    string
	Condition condition.Condition
	Limit     int
}

// Result is a digest as returned to callers.
type Result struct {
	RecordID        int64            `json:"recordId"`
	Source          string           `json:"source"`
	WindowStart     time.Time        `json:"windowStart"`
	WindowEnd       time.Time        `json:"windowEnd"`
	EmailCount      int              `json:"emailCount"`
	LatestEmailAt   *time.Time       `json:"latestEmailAt,omitempty"`
	SummaryText     string           `json:"summaryText"`
	PrioritySummary *PrioritySummary `json:"prioritySummary,omitempty"`
	Overview        string           `json:"overview"`
	Truncated       bool             `json:"truncated"`
	Cached          bool             `json:"cached"`
}

// window returns the user's login window.
func (b *Builder) window(ctx context.Context, userID int64) (*models.User, time.Time, time.Time, error) {
	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	if user == nil {
		return nil, time.Time{}, time.Time{}, ErrUserNotFound
	}
	if user.LastLogin == nil {
		return nil, time.Time{}, time.Time{}, ErrNoLoginWindow
	}

	start := user.CreatedAt
	if user.PreviousLogin != nil {
		start = *user.PreviousLogin
	}
	return user, start, *user.LastLogin, nil
}

// Window returns the bounds of the user's current login window.
func (b *Builder) Window(ctx context.Context, userID int64) (start, end time.Time, err error) {
	_, start, end, err = b.window(ctx, userID)
	return start, end, err
}

// Lookup returns the stored digest for the user's current login window
// without generating one. It returns nil when none exists yet.
func (b *Builder) Lookup(ctx context.Context, userID int64, source string) (*Result, error) {
	if source == "" {
		source = SourceLoginWindowAll
	}
	_, start, end, err := b.window(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := b.store.GetDigest(ctx, models.DigestKey{UserID: userID, WindowStart: start, WindowEnd: end, Source: source})
	if err != nil || rec == nil {
		return nil, err
	}
	res := resultFromRecord(rec)
	res.Cached = true
	return res, nil
}

// Generate returns the digest for the user's current login window,
// computing and storing it if this is the first request for the window.
func (b *Builder) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Source == "" {
		req.Source = SourceLoginWindowAll
	}
	if req.Condition.Type == "" {
		req.Condition = condition.None()
	}
	limit := min(max(req.Limit, 1), MaxLimit)

	user, start, end, err := b.window(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	key := models.DigestKey{UserID: req.UserID, WindowStart: start, WindowEnd: end, Source: req.Source}

	existing, err := b.store.GetDigest(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.RecordDigest("existing")
		res := resultFromRecord(existing)
		res.Cached = true
		return res, nil
	}

	logger := slog.With("user_id", req.UserID, "source", req.Source)

	ids, err := b.mailbox.ListAllMessageIDs(ctx, req.UserID, buildQuery(start, end, req.Condition), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	truncated := len(ids) >= limit

	emails, err := b.fetch(ctx, req.UserID, ids)
	if err != nil {
		return nil, err
	}

	// The provider query only narrows the listing; the condition decides.
	matched := emails[:0]
	for _, e := range emails {
		if req.Condition.MatchesEmail(condition.Content{
			Subject:       e.Subject,
			From:          e.From,
			BodyText:      e.BodyText,
			HasAttachment: e.HasAttachment,
		}) {
			matched = append(matched, e)
		}
	}

	condJSON, err := json.Marshal(req.Condition)
	if err != nil {
		return nil, fmt.Errorf("encode condition: %w", err)
	}
	rec := models.DigestRecord{
		UserID:      req.UserID,
		Provider:    models.ProviderGoogle,
		Source:      req.Source,
		WindowStart: start,
		WindowEnd:   end,
		Condition:   condJSON,
		EmailCount:  len(matched),
		SummaryText: NoEmailsText,
	}

	if len(matched) > 0 {
		summary := b.prioritize(matched, start, end, triage.UserContext{Email: user.Email, Username: user.Username})
		summary.Overview = b.overview(ctx, overviewInput{
			emails:    matched,
			summary:   summary,
			condition: req.Condition,
			truncated: truncated,
			limit:     limit,
		})

		text, err := json.Marshal(summary)
		if err != nil {
			return nil, fmt.Errorf("encode priority summary: %w", err)
		}
		rec.SummaryText = string(text)
		rec.LatestEmailAt = latest(matched)
		metrics.RecordDigest("generated")
	} else {
		metrics.RecordDigest("empty")
	}

	stored, err := b.store.InsertDigest(ctx, rec)
	if err != nil {
		return nil, err
	}

	res := resultFromRecord(stored)
	if stored.SummaryText == rec.SummaryText {
		res.Truncated = truncated
	}

	logger.Info("digest generated",
		"record_id", stored.ID,
		"listed", len(ids),
		"emails", rec.EmailCount,
		"truncated", truncated,
	)

	if b.events != nil {
		payload := map[string]any{
			"recordId":   stored.ID,
			"source":     stored.Source,
			"emailCount": stored.EmailCount,
		}
		if err := b.events.Publish(ctx, queue.EventDigestGenerated, req.UserID, payload); err != nil {
			logger.Warn("failed to publish digest event", "error", err)
		}
	}

	return res, nil
}

// fetch loads messages, at most fetchConcurrency at a time. The result
// keeps the listing order.
func (b *Builder) fetch(ctx context.Context, userID int64, ids []string) ([]models.Email, error) {
	out := make([]*models.Email, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			e, err := b.mailbox.GetMessage(gctx, userID, id)
			if err != nil {
				return fmt.Errorf("get message %s: %w", id, err)
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	emails := make([]models.Email, 0, len(out))
	for _, e := range out {
		if e != nil {
			emails = append(emails, *e)
		}
	}
	return emails, nil
}

// buildQuery renders the Gmail search for a window and condition.
func buildQuery(start, end time.Time, c condition.Condition) string {
	parts := []string{
		fmt.Sprintf("after:%d", start.Unix()),
		fmt.Sprintf("before:%d", end.Unix()),
	}
	switch c.Type {
	case condition.TypeEmailHasAttachment:
		parts = append(parts, "has:attachment")
	case condition.TypeEmailContains:
		if v := strings.TrimSpace(c.Value); v != "" {
			escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
			parts = append(parts, `"`+escaped+`"`)
		}
	}
	return strings.Join(parts, " ")
}

func latest(emails []models.Email) *time.Time {
	var newest time.Time
	for _, e := range emails {
		if e.ReceivedAt.After(newest) {
			newest = e.ReceivedAt
		}
	}
	if newest.IsZero() {
		return nil
	}
	return &newest
}

func resultFromRecord(rec *models.DigestRecord) *Result {
	res := &Result{
		RecordID:      rec.ID,
		Source:        rec.Source,
		WindowStart:   rec.WindowStart,
		WindowEnd:     rec.WindowEnd,
		EmailCount:    rec.EmailCount,
		LatestEmailAt: rec.LatestEmailAt,
		SummaryText:   rec.SummaryText,
		Overview:      rec.SummaryText,
	}
	if ps, ok := ParseSummary(rec.SummaryText); ok {
		res.PrioritySummary = ps
		res.Overview = ps.Overview
	}
	return res
}

// sortNewestFirst orders entries by receive time, newest first. Entries
// with equal times keep their order.
func sortNewestFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return b.receivedAt().Compare(a.receivedAt())
	})
}
