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

// Package triage scores messages for a login-window digest: how urgent and
// important each one looks, which priority bucket it belongs in, and how
// likely it is to be phishing.
//
// Scoring is deterministic and driven entirely by Tables, so a change in
// policy is a change in data.
package triage

import (
	"regexp"
	"strings"

	"github.com/griffinhampton/mailflow/internal/models"
)

// Category is a digest priority bucket.
type Category string

const (
	CategoryHigh   Category = "high"
	CategoryMedium Category = "medium"
	CategoryLow    Category = "low"
)

// UserContext is what the scorer knows about the mailbox owner.
type UserContext struct {
	Email    string
	Username string
}

// Assessment is the full triage result for one message.
type Assessment struct {
	Urgency        int      `json:"urgency"`
	Impact         int      `json:"impact"`
	PriorityScore  int      `json:"priorityScore"`
	Category       Category `json:"category"`
	Junk           bool     `json:"-"`
	CanUnsubscribe bool     `json:"canUnsubscribe"`
	Phishing       Phishing `json:"phishing"`
}

// keywordSet matches any of its entries at the start of a word.
type keywordSet struct {
	re *regexp.Regexp
}

func newKeywordSet(words []string) keywordSet {
	var parts []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			parts = append(parts, regexp.QuoteMeta(w))
		}
	}
	if len(parts) == 0 {
		return keywordSet{}
	}
	return keywordSet{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)`)}
}

func (k keywordSet) match(s string) bool {
	return k.re != nil && k.re.MatchString(s)
}

type brandRule struct {
	name    string
	mention keywordSet
	domains []string
}

func newDomainSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return set
}

// Scorer applies a compiled set of Tables. It is safe for concurrent use.
type Scorer struct {
	urgencyHigh   keywordSet
	urgencyMedium keywordSet
	impact        keywordSet
	junk          keywordSet

	greetings   keywordSet
	credentials keywordSet
	payment     keywordSet
	shorteners  map[string]bool
	brands      []brandRule

	workHigh       keywordSet
	workMedium     keywordSet
	roles          keywordSet
	freeMail       map[string]bool
	majorTech      map[string]bool
	threatHigh     keywordSet
	threatMedium   keywordSet
	genericContext keywordSet
}

// NewScorer compiles the given tables.
func NewScorer(t Tables) *Scorer {
	s := &Scorer{
		urgencyHigh:    newKeywordSet(t.UrgencyHigh),
		urgencyMedium:  newKeywordSet(t.UrgencyMedium),
		impact:         newKeywordSet(t.ImpactKeywords),
		junk:           newKeywordSet(t.JunkPhrases),
		greetings:      newKeywordSet(t.GenericGreetings),
		credentials:    newKeywordSet(t.CredentialPrompts),
		payment:        newKeywordSet(t.PaymentScamTerms),
		shorteners:     newDomainSet(t.LinkShorteners),
		workHigh:       newKeywordSet(t.WorkHigh),
		workMedium:     newKeywordSet(t.WorkMedium),
		roles:          newKeywordSet(t.AuthorityRoles),
		freeMail:       newDomainSet(t.FreeMailDomains),
		majorTech:      newDomainSet(t.MajorTechDomains),
		threatHigh:     newKeywordSet(t.ThreatHigh),
		threatMedium:   newKeywordSet(t.ThreatMedium),
		genericContext: newKeywordSet(t.GenericContext),
	}
	for _, b := range t.Brands {
		name := strings.ToLower(strings.TrimSpace(b.Name))
		if name == "" {
			continue
		}
		s.brands = append(s.brands, brandRule{
			name:    name,
			mention: newKeywordSet([]string{name}),
			domains: b.Domains,
		})
	}
	return s
}

// Score triages one message.
func (s *Scorer) Score(e models.Email, user UserContext) Assessment {
	text := e.Subject + "\n" + e.BodyText

	urgency := s.urgency(text)
	impact := s.impactOf(e, text)
	junk := s.isJunk(e)

	a := Assessment{
		Urgency:       urgency,
		Impact:        impact,
		PriorityScore: urgency * impact,
		Category:      categorize(urgency, impact, junk),
		Junk:          junk,
		Phishing:      s.phishing(e, user),
	}
	a.CanUnsubscribe = e.FromEmail != "" &&
		(junk || strings.Contains(strings.ToLower(e.BodyText), "unsubscribe"))
	return a
}

func (s *Scorer) urgency(text string) int {
	switch {
	case s.urgencyHigh.match(text):
		return 3
	case s.urgencyMedium.match(text):
		return 2
	default:
		return 1
	}
}

func (s *Scorer) impactOf(e models.Email, text string) int {
	if e.HasLabel(models.LabelImportant) {
		return 3
	}

	base := 2
	if s.impact.match(text) {
		base = 3
	}

	if e.HasLabel(models.LabelPersonal) {
		impact := max(base, 2)
		if e.HasAttachment {
			impact++
		}
		return min(impact, 3)
	}

	impact := base
	if e.HasLabel(models.LabelPromotions) || e.HasLabel(models.LabelSocial) {
		impact = 1
	}
	if e.HasAttachment {
		impact++
	}
	return clamp(impact, 1, 3)
}

func (s *Scorer) isJunk(e models.Email) bool {
	if e.HasLabel(models.LabelSpam) || e.HasLabel(models.LabelPromotions) || e.HasLabel(models.LabelSocial) {
		return true
	}
	if s.junk.match(e.BodyText) {
		return true
	}
	return isNoReply(e.FromEmail)
}

func isNoReply(addr string) bool {
	addr = strings.ToLower(addr)
	return strings.Contains(addr, "no-reply") || strings.Contains(addr, "noreply")
}

// categorize buckets a message. Junk is always low. A 3x3 message is high
// outright; everything else goes by the product.
func categorize(urgency, impact int, junk bool) Category {
	if junk {
		return CategoryLow
	}
	if urgency == 3 && impact == 3 {
		return CategoryHigh
	}
	switch score := urgency * impact; {
	case score >= 7:
		return CategoryHigh
	case score >= 4:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// senderDomain returns the lowercased domain of an address, or "".
func senderDomain(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 || i == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.Trim(addr[i+1:], " >"))
}
