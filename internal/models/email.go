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

// Package models defines the data structures shared across the mailflow service.
package models

import "time"

// Gmail system label ids that the scorer and digest builder inspect.
const (
	LabelImportant  = "IMPORTANT"
	LabelSpam       = "SPAM"
	LabelPersonal   = "CATEGORY_PERSONAL"
	LabelPromotions = "CATEGORY_PROMOTIONS"
	LabelSocial     = "CATEGORY_SOCIAL"
)

// Email is a provider message reduced to the fields the workflow, triage
// and digest packages read. It is produced by the mail gateway.
type Email struct {
	MessageID     string    `json:"messageId"`
	ThreadID      string    `json:"threadId,omitempty"`
	From          string    `json:"fromRaw"`
	FromEmail     string    `json:"fromEmail"`
	Subject       string    `json:"subject"`
	BodyText      string    `json:"bodyText,omitempty"`
	Snippet       string    `json:"snippet"`
	HasAttachment bool      `json:"hasAttachment"`
	ReceivedAt    time.Time `json:"receivedAt"`
	Labels        []string  `json:"labels,omitempty"`
}

// HasLabel reports whether the message carries the given provider label.
func (e Email) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}
