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

package digest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/triage"
)

const (
	summaryType    = "prioritySummary"
	summaryVersion = 1
)

// Entry is one scored message in a digest bucket.
type Entry struct {
	MessageID     string     `json:"messageId"`
	ThreadID      string     `json:"threadId,omitempty"`
	From          string     `json:"from"`
	FromEmail     string     `json:"fromEmail,omitempty"`
	Subject       string     `json:"subject"`
	Snippet       string     `json:"snippet"`
	HasAttachment bool       `json:"hasAttachment"`
	ReceivedAt    *time.Time `json:"receivedAt"`
	Link          string     `json:"link"`

	triage.Assessment
}

func (e Entry) receivedAt() time.Time {
	if e.ReceivedAt == nil {
		return time.Time{}
	}
	return *e.ReceivedAt
}

// Counts are the bucket sizes.
type Counts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	Total  int `json:"total"`
}

// Categories holds the three buckets, each newest first.
type Categories struct {
	High   []Entry `json:"high"`
	Medium []Entry `json:"medium"`
	Low    []Entry `json:"low"`
}

// PrioritySummary is the structured digest stored in summaryText.
type PrioritySummary struct {
	Type        string     `json:"type"`
	Version     int        `json:"version"`
	WindowStart time.Time  `json:"windowStart"`
	WindowEnd   time.Time  `json:"windowEnd"`
	InboxLink   string     `json:"inboxLink"`
	Counts      Counts     `json:"counts"`
	Categories  Categories `json:"categories"`
	Overview    string     `json:"overview"`
}

// ParseSummary reports whether text is a stored PrioritySummary and
// decodes it. Plain-text summaries return false.
func ParseSummary(text string) (*PrioritySummary, bool) {
	if !strings.HasPrefix(strings.TrimSpace(text), "{") {
		return nil, false
	}
	var ps PrioritySummary
	if err := json.Unmarshal([]byte(text), &ps); err != nil {
		return nil, false
	}
	if ps.Type != summaryType || ps.Version != summaryVersion {
		return nil, false
	}
	return &ps, true
}

// prioritize scores every email and builds the bucketed summary without
// its overview.
func (b *Builder) prioritize(emails []models.Email, start, end time.Time, user triage.UserContext) *PrioritySummary {
	ps := &PrioritySummary{
		Type:        summaryType,
		Version:     summaryVersion,
		WindowStart: start,
		WindowEnd:   end,
		InboxLink:   b.inboxLink,
		Categories: Categories{
			High:   []Entry{},
			Medium: []Entry{},
			Low:    []Entry{},
		},
	}

	for _, e := range emails {
		entry := b.entry(e, user)
		switch entry.Category {
		case triage.CategoryHigh:
			ps.Categories.High = append(ps.Categories.High, entry)
		case triage.CategoryMedium:
			ps.Categories.Medium = append(ps.Categories.Medium, entry)
		default:
			ps.Categories.Low = append(ps.Categories.Low, entry)
		}
	}

	sortNewestFirst(ps.Categories.High)
	sortNewestFirst(ps.Categories.Medium)
	sortNewestFirst(ps.Categories.Low)

	ps.Counts = Counts{
		High:   len(ps.Categories.High),
		Medium: len(ps.Categories.Medium),
		Low:    len(ps.Categories.Low),
		Total:  len(emails),
	}
	return ps
}

func (b *Builder) entry(e models.Email, user triage.UserContext) Entry {
	a := b.scorer.Score(e, user)
	metrics.RecordDigestEmail(string(a.Category))

	entry := Entry{
		MessageID:     e.MessageID,
		ThreadID:      e.ThreadID,
		From:          e.From,
		FromEmail:     e.FromEmail,
		Subject:       e.Subject,
		Snippet:       snippetOf(e, 200),
		HasAttachment: e.HasAttachment,
		Link:          b.messageLink(e),
		Assessment:    a,
	}
	if !e.ReceivedAt.IsZero() {
		t := e.ReceivedAt
		entry.ReceivedAt = &t
	}
	return entry
}

func (b *Builder) messageLink(e models.Email) string {
	id := e.ThreadID
	if id == "" {
		id = e.MessageID
	}
	if id == "" {
		return b.inboxLink
	}
	return strings.TrimRight(b.inboxLink, "/") + "/" + id
}

// snippetOf prefers the provider snippet and falls back to the body.
// The result has collapsed whitespace and at most n runes.
func snippetOf(e models.Email, n int) string {
	s := e.Snippet
	if strings.TrimSpace(s) == "" {
		s = e.BodyText
	}
	return truncate(oneLine(s), n)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
