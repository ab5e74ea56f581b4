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

package models

import (
	"encoding/json"
	"time"
)

// TriggerGmailNewEmail is the trigger type polled for new mail.
const TriggerGmailNewEmail = "gmailNewEmail"

// Workflow is a persisted automation unit. Trigger and Actions are kept as
// the raw JSON the builder UI saved; Actions holds either a node/edge graph
// or a legacy action array.
type Workflow struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"userId"`
	Name               string          `json:"name"`
	Trigger            json.RawMessage `json:"trigger,omitempty"`
	Actions            json.RawMessage `json:"actions,omitempty"`
	IsActive           bool            `json:"isActive"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastRun            *time.Time      `json:"lastRun,omitempty"`
	RunCount           int             `json:"runCount"`
	LastEmailTriggerAt *time.Time      `json:"lastEmailTriggerAt,omitempty"`
}

// TriggerType returns the workflow's trigger type, or "" when the trigger
// blob is absent or malformed.
func (w Workflow) TriggerType() string {
	if len(w.Trigger) == 0 {
		return ""
	}
	var t struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(w.Trigger, &t); err != nil {
		return ""
	}
	return t.Type
}

// User carries the account fields this service reads. Accounts are owned by
// the web application; login timestamps are read-only here.
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	PreviousLogin *time.Time `json:"previousLogin,omitempty"`
}
