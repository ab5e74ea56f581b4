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

package triage

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/griffinhampton/mailflow/internal/models"
)

// Cue names, in the order they are reported.
const (
	CueMissingSender     = "missing_sender_address"
	CueNoReplySender     = "noreply_sender"
	CueGenericGreeting   = "generic_greeting"
	CueCredentialPrompt  = "credential_or_account_prompt"
	CuePaymentScam       = "payment_scam_terms"
	CueHasAttachment     = "has_attachment"
	CueProviderSpam      = "provider_spam_label"
	CueShoutySubject     = "shouty_subject"
	CueMultipleURLs      = "multiple_urls"
	CueNonHTTPSURL       = "non_https_url"
	CueIPAddressURL      = "ip_address_url"
	CueLinkShortener     = "link_shortener"
	CueAtSymbolInURL     = "at_symbol_in_url"
	CueBrandMismatchBase = "brand_sender_domain_mismatch_"
)

// Premise is the four-factor plausibility score. Each factor is 0-10.
type Premise struct {
	WorkRelevance       int `json:"workRelevance"`
	AuthorityAppearance int `json:"authorityAppearance"`
	UrgencyThreat       int `json:"urgencyThreat"`
	ContextFamiliarity  int `json:"contextFamiliarity"`
}

// Total sums the factors.
func (p Premise) Total() int {
	return p.WorkRelevance + p.AuthorityAppearance + p.UrgencyThreat + p.ContextFamiliarity
}

// Phishing is a message's phishing-risk assessment.
// DangerScore is always CueScore + PremiseScore, clamped to [0,100].
type Phishing struct {
	DangerScore  int      `json:"dangerScore"`
	CueCount     int      `json:"cueCount"`
	CueScore     int      `json:"cueScore"`
	PremiseScore int      `json:"premiseScore"`
	Premise      Premise  `json:"premise"`
	Cues         []string `json:"cues"`
}

// Level is the display label for DangerScore.
func (p Phishing) Level() RiskLevel { return LevelFor(p.DangerScore) }

// RiskLevel buckets a danger score for display.
type RiskLevel string

const (
	RiskSevere RiskLevel = "Severe"
	RiskHigh   RiskLevel = "High"
	RiskMedium RiskLevel = "Medium"
	RiskLow    RiskLevel = "Low"
)

// LevelFor maps a danger score to its label.
func LevelFor(score int) RiskLevel {
	switch {
	case score >= 76:
		return RiskSevere
	case score >= 51:
		return RiskHigh
	case score >= 26:
		return RiskMedium
	default:
		return RiskLow
	}
}

// CueScore maps a cue count to its score contribution. More cues score
// lower: dense cue hits read as bulk template noise.
func CueScore(count int) int {
	switch {
	case count <= 3:
		return 60
	case count <= 7:
		return 45
	case count <= 12:
		return 30
	case count <= 17:
		return 15
	default:
		return 6
	}
}

func (s *Scorer) phishing(e models.Email, user UserContext) Phishing {
	cues := s.cues(e)
	premise := s.premise(e, user)

	p := Phishing{
		CueCount:     len(cues),
		CueScore:     CueScore(len(cues)),
		PremiseScore: premise.Total(),
		Premise:      premise,
		Cues:         cues,
	}
	p.DangerScore = clamp(p.CueScore+p.PremiseScore, 0, 100)
	return p
}

// cueList keeps insertion order and drops repeats.
type cueList struct {
	seen  map[string]bool
	order []string
}

func (c *cueList) add(name string, hit bool) {
	if !hit || c.seen[name] {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	c.seen[name] = true
	c.order = append(c.order, name)
}

func (s *Scorer) cues(e models.Email) []string {
	text := e.Subject + "\n" + e.BodyText
	domain := senderDomain(e.FromEmail)
	links := extractLinks(text)

	var c cueList
	c.add(CueMissingSender, strings.TrimSpace(e.FromEmail) == "")
	c.add(CueNoReplySender, isNoReply(e.FromEmail))
	c.add(CueGenericGreeting, s.greetings.match(text))
	c.add(CueCredentialPrompt, s.credentials.match(text))
	c.add(CuePaymentScam, s.payment.match(text))
	c.add(CueHasAttachment, e.HasAttachment)
	c.add(CueProviderSpam, e.HasLabel(models.LabelSpam))
	c.add(CueShoutySubject, isShouty(e.Subject))
	c.add(CueMultipleURLs, len(links) >= 2)

	for _, l := range links {
		c.add(CueNonHTTPSURL, l.plainHTTP)
		c.add(CueIPAddressURL, net.ParseIP(l.host) != nil)
		c.add(CueLinkShortener, s.shorteners[strings.TrimPrefix(l.host, "www.")])
		c.add(CueAtSymbolInURL, l.hasAt)
	}

	for _, b := range s.brands {
		if b.mention.match(text) && !domainMatches(domain, b.domains) {
			c.add(CueBrandMismatchBase+b.name, true)
		}
	}

	if c.order == nil {
		return []string{}
	}
	return c.order
}

func domainMatches(domain string, allowed []string) bool {
	if domain == "" {
		return false
	}
	for _, d := range allowed {
		d = strings.ToLower(d)
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// isShouty flags subjects written to alarm: a fully uppercase word of four
// or more letters, three or more exclamation marks, or mostly capitals.
func isShouty(subject string) bool {
	if strings.Count(subject, "!") >= 3 {
		return true
	}

	letters, upper := 0, 0
	for _, word := range strings.Fields(subject) {
		wl, wu := 0, 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				wl++
				if unicode.IsUpper(r) {
					wu++
				}
			}
		}
		if wl >= 4 && wl == wu {
			return true
		}
		letters += wl
		upper += wu
	}
	return letters >= 8 && upper*10 > letters*6
}

var linkPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()\[\]]+`)

type link struct {
	host      string
	plainHTTP bool
	hasAt     bool
}

func extractLinks(text string) []link {
	var links []link
	for _, raw := range linkPattern.FindAllString(text, -1) {
		lower := strings.ToLower(raw)
		rest := lower
		if i := strings.Index(rest, "://"); i >= 0 {
			rest = rest[i+3:]
		}

		target := raw
		if !strings.Contains(lower, "://") {
			target = "http://" + raw
		}
		host := ""
		if u, err := url.Parse(target); err == nil {
			host = strings.ToLower(u.Hostname())
		}

		links = append(links, link{
			host:      host,
			plainHTTP: strings.HasPrefix(lower, "http://"),
			hasAt:     strings.Contains(rest, "@"),
		})
	}
	return links
}

// premise scores how plausible the message's framing is for this user.
func (s *Scorer) premise(e models.Email, user UserContext) Premise {
	text := e.Subject + "\n" + e.BodyText
	domain := senderDomain(e.FromEmail)

	var p Premise

	switch {
	case s.workHigh.match(text):
		p.WorkRelevance = 8
	case s.workMedium.match(text):
		p.WorkRelevance = 5
	default:
		p.WorkRelevance = 2
	}

	authority := 2
	if s.roles.match(e.From + "\n" + text) {
		authority = 6
	}
	if domain != "" && !s.freeMail[domain] {
		authority = max(authority, 5)
	}
	if s.majorTech[domain] {
		authority = max(authority, 7)
	}
	p.AuthorityAppearance = authority

	switch {
	case s.threatHigh.match(text):
		p.UrgencyThreat = 8
	case s.threatMedium.match(text):
		p.UrgencyThreat = 6
	default:
		p.UrgencyThreat = 2
	}

	body := strings.ToLower(e.BodyText)
	ownEmail := strings.ToLower(strings.TrimSpace(user.Email))
	username := strings.ToLower(strings.TrimSpace(user.Username))
	switch {
	case ownEmail != "" && strings.Contains(body, ownEmail):
		p.ContextFamiliarity = 10
	case len(username) >= 3 && strings.Contains(body, username):
		p.ContextFamiliarity = 7
	case s.genericContext.match(e.BodyText):
		p.ContextFamiliarity = 5
	default:
		p.ContextFamiliarity = 2
	}

	p.WorkRelevance = clamp(p.WorkRelevance, 0, 10)
	p.AuthorityAppearance = clamp(p.AuthorityAppearance, 0, 10)
	p.UrgencyThreat = clamp(p.UrgencyThreat, 0, 10)
	p.ContextFamiliarity = clamp(p.ContextFamiliarity, 0, 10)
	return p
}
