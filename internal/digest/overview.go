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
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/griffinhampton/mailflow/internal/condition"
	"github.com/griffinhampton/mailflow/internal/llm"
	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
	"github.com/griffinhampton/mailflow/internal/triage"
)

const (
	topSenderCount  = 3
	highlightCount  = 10
	highlightChars  = 200
	overviewTokens  = 220
	overviewTemp    = 0.2
	windowTimestamp = "2006-01-02 15:04 MST"
)

const overviewSystemPrompt = "You summarize a batch of emails. Return a SHORT summary " +
	"(at most 6 bullet points). Focus on what is important and actionable. " +
	"Do not invent facts. Do not include personal data beyond what is provided."

type overviewInput struct {
	emails    []models.Email
	summary   *PrioritySummary
	condition condition.Condition
	truncated bool
	limit     int
}

// overview asks the summarizer for a short overview and falls back to the
// deterministic template when there is none or the call fails.
func (b *Builder) overview(ctx context.Context, in overviewInput) string {
	if b.summarizer != nil {
		text, err := b.summarizer.ChatComplete(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: "system", Content: overviewSystemPrompt},
				{Role: "user", Content: "Summarize these emails:\n\n" + b.prompt(in)},
			},
			MaxTokens:   overviewTokens,
			Temperature: overviewTemp,
		})
		if err == nil {
			if text = llm.StripFences(text); text != "" {
				return text
			}
		} else {
			slog.Warn("summarizer failed, using template overview", "error", err)
		}
		metrics.RecordSummarizerFallback()
	}
	return templateOverview(in)
}

func (b *Builder) prompt(in overviewInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Window: %s to %s\n",
		in.summary.WindowStart.UTC().Format(time.RFC3339),
		in.summary.WindowEnd.UTC().Format(time.RFC3339))
	fmt.Fprintf(&sb, "Condition: %s\n", in.condition.Describe())
	fmt.Fprintf(&sb, "Email count: %d\n", len(in.emails))

	for _, e := range in.emails[:min(len(in.emails), b.promptEmails)] {
		received := "unknown"
		if !e.ReceivedAt.IsZero() {
			received = e.ReceivedAt.UTC().Format(time.RFC3339)
		}
		attachment := "no"
		if e.HasAttachment {
			attachment = "yes"
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "- From: %s\n", orDefault(oneLine(e.From), "Unknown"))
		fmt.Fprintf(&sb, "  Subject: %s\n", orDefault(oneLine(e.Subject), "(no subject)"))
		fmt.Fprintf(&sb, "  ReceivedAt: %s\n", received)
		fmt.Fprintf(&sb, "  Attachment: %s\n", attachment)
		if s := truncate(oneLine(e.BodyText), b.promptSnippet); s != "" {
			fmt.Fprintf(&sb, "  Snippet: %s\n", s)
		}
	}
	return strings.TrimSpace(sb.String())
}

// templateOverview renders the overview without a summarizer.
func templateOverview(in overviewInput) string {
	n := len(in.emails)
	plural := "s"
	if n == 1 {
		plural = ""
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Email summary (%d email%s)", n, plural))
	lines = append(lines, fmt.Sprintf("Window: %s to %s",
		in.summary.WindowStart.UTC().Format(windowTimestamp),
		in.summary.WindowEnd.UTC().Format(windowTimestamp)))
	if !in.condition.IsNone() {
		lines = append(lines, "Condition: "+in.condition.Describe())
	}
	c := in.summary.Counts
	lines = append(lines, fmt.Sprintf("Priority: %d high, %d medium, %d low", c.High, c.Medium, c.Low))

	if senders := topSenders(in.emails, topSenderCount); len(senders) > 0 {
		lines = append(lines, "Top senders:")
		for _, s := range senders {
			lines = append(lines, fmt.Sprintf("- %s (%d)", s.name, s.count))
		}
	}

	if risky := riskiest(in.summary); risky != nil {
		lines = append(lines, fmt.Sprintf("Highest phishing risk: %q from %s (%d, %s)",
			orDefault(risky.Subject, "(no subject)"),
			orDefault(risky.From, "Unknown"),
			risky.Phishing.DangerScore,
			risky.Phishing.Level()))
	}

	lines = append(lines, "", "Highlights:")
	for _, e := range in.emails[:min(n, highlightCount)] {
		line := "- " + orDefault(e.Subject, "(no subject)")
		if e.HasAttachment {
			line += " (attachment)"
		}
		line += " | " + orDefault(e.From, "Unknown")
		if s := truncate(oneLine(e.BodyText), highlightChars); s != "" {
			line += " | " + s
		}
		lines = append(lines, line)
	}

	if in.truncated {
		lines = append(lines, "", fmt.Sprintf("Note: capped at %d emails.", in.limit))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type senderCount struct {
	name  string
	count int
	first int
}

// topSenders ranks senders by message count. Ties keep first-seen order.
func topSenders(emails []models.Email, n int) []senderCount {
	byName := map[string]*senderCount{}
	var all []*senderCount
	for i, e := range emails {
		name := strings.TrimSpace(e.From)
		if name == "" {
			name = "Unknown sender"
		}
		sc, ok := byName[name]
		if !ok {
			sc = &senderCount{name: name, first: i}
			byName[name] = sc
			all = append(all, sc)
		}
		sc.count++
	}

	slices.SortFunc(all, func(a, b *senderCount) int {
		if a.count != b.count {
			return cmp.Compare(b.count, a.count)
		}
		return cmp.Compare(a.first, b.first)
	})

	out := make([]senderCount, 0, n)
	for _, sc := range all[:min(len(all), n)] {
		out = append(out, *sc)
	}
	return out
}

// riskiest returns the entry with the highest danger score when it rates
// High or worse and at least one cue fired.
func riskiest(ps *PrioritySummary) *Entry {
	var best *Entry
	for _, bucket := range [][]Entry{ps.Categories.High, ps.Categories.Medium, ps.Categories.Low} {
		for i := range bucket {
			e := &bucket[i]
			if e.Phishing.CueCount == 0 {
				continue
			}
			if best == nil || e.Phishing.DangerScore > best.Phishing.DangerScore {
				best = e
			}
		}
	}
	if best == nil {
		return nil
	}
	if lvl := best.Phishing.Level(); lvl != triage.RiskSevere && lvl != triage.RiskHigh {
		return nil
	}
	return best
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
