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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Brand pairs a brand name with the sender domains allowed to use it.
type Brand struct {
	Name    string   `yaml:"name"`
	Domains []string `yaml:"domains"`
}

// Tables holds every keyword list and domain list the scorer consults.
// Keyword entries match case-insensitively at the start of a word.
type Tables struct {
	UrgencyHigh   []string `yaml:"urgency_high"`
	UrgencyMedium []string `yaml:"urgency_medium"`

	ImpactKeywords []string `yaml:"impact_keywords"`
	JunkPhrases    []string `yaml:"junk_phrases"`

	GenericGreetings  []string `yaml:"generic_greetings"`
	CredentialPrompts []string `yaml:"credential_prompts"`
	PaymentScamTerms  []string `yaml:"payment_scam_terms"`
	LinkShorteners    []string `yaml:"link_shorteners"`
	Brands            []Brand  `yaml:"brands"`

	WorkHigh         []string `yaml:"work_high"`
	WorkMedium       []string `yaml:"work_medium"`
	AuthorityRoles   []string `yaml:"authority_roles"`
	FreeMailDomains  []string `yaml:"free_mail_domains"`
	MajorTechDomains []string `yaml:"major_tech_domains"`
	ThreatHigh       []string `yaml:"threat_high"`
	ThreatMedium     []string `yaml:"threat_medium"`
	GenericContext   []string `yaml:"generic_context"`
}

// DefaultTables returns the built-in heuristic tables.
func DefaultTables() Tables {
	return Tables{
		UrgencyHigh: []string{
			"urgent", "immediately", "immediate action", "action required",
			"asap", "overdue", "deadline", "final notice", "past due", "expires today",
		},
		UrgencyMedium: []string{
			"reminder", "soon", "follow-up", "follow up", "pending", "upcoming", "by end of day",
		},

		ImpactKeywords: []string{
			"invoice", "security", "legal", "meeting", "contract", "payment",
			"account", "password", "tax", "bank", "interview", "payroll", "offer letter",
		},
		JunkPhrases: []string{
			"unsubscribe", "newsletter", "promo code", "promotional", "special offer",
			"limited time offer", "view in browser", "manage preferences", "opt out", "opt-out",
		},

		GenericGreetings: []string{
			"dear customer", "dear user", "dear client", "dear member", "dear valued customer",
			"dear account holder", "dear sir/madam", "dear sir or madam", "hello customer",
		},
		CredentialPrompts: []string{
			"verify your account", "verify your identity", "confirm your account",
			"validate your account", "confirm your password", "update your password",
			"reset your password", "account suspended", "account has been suspended",
			"account locked", "account has been locked", "unusual sign-in", "unusual activity",
			"sign in to", "log in to", "login to", "verify now",
		},
		PaymentScamTerms: []string{
			"wire transfer", "gift card", "bitcoin", "crypto wallet", "payment failed",
			"update your payment", "bank details", "western union", "you have won",
			"claim your prize", "lottery", "refund pending",
		},
		LinkShorteners: []string{
			"bit.ly", "tinyurl.com", "t.co", "goo.gl", "ow.ly", "is.gd", "buff.ly",
			"rebrand.ly", "cutt.ly", "shorturl.at", "tiny.cc",
		},
		Brands: []Brand{
			{Name: "paypal", Domains: []string{"paypal.com", "paypal.me"}},
			{Name: "microsoft", Domains: []string{"microsoft.com", "office.com", "outlook.com", "live.com", "microsoftonline.com"}},
			{Name: "google", Domains: []string{"google.com", "googlemail.com", "youtube.com"}},
			{Name: "apple", Domains: []string{"apple.com", "icloud.com", "me.com"}},
		},

		WorkHigh: []string{
			"invoice", "meeting", "contract", "payroll", "proposal", "project",
			"client", "budget", "interview", "agenda",
		},
		WorkMedium: []string{
			"report", "update", "approval", "review", "document", "request", "schedule",
		},
		AuthorityRoles: []string{
			"ceo", "cfo", "cto", "director", "manager", "hr", "human resources",
			"it department", "it support", "helpdesk", "finance", "legal", "compliance",
			"administrator", "security team", "billing",
		},
		FreeMailDomains: []string{
			"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com", "outlook.com",
			"live.com", "aol.com", "icloud.com", "me.com", "proton.me", "protonmail.com",
			"gmx.com", "mail.com", "yandex.com", "zoho.com",
		},
		MajorTechDomains: []string{
			"google.com", "microsoft.com", "apple.com", "amazon.com", "github.com",
			"paypal.com", "linkedin.com", "dropbox.com", "slack.com", "zoom.us",
		},
		ThreatHigh: []string{
			"urgent", "suspended", "suspend", "verify", "unauthorized", "locked",
			"terminated", "legal action", "immediately",
		},
		ThreatMedium: []string{
			"asap", "deadline", "overdue", "expire", "final notice",
		},
		GenericContext: []string{
			"your account", "your order", "your subscription", "your payment",
			"your package", "your invoice", "your password",
		},
	}
}

// LoadTables reads tables from a YAML file. Lists present in the file
// replace the defaults; absent lists keep them.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read heuristics file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse heuristics YAML: %w", err)
	}
	return t, nil
}
