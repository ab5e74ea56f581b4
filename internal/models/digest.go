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

// ProviderGoogle is the only mail provider digests are generated for.
const ProviderGoogle = "GOOGLE"

// DigestKey identifies a digest. At most one record exists per key.
type DigestKey struct {
	UserID      int64
	WindowStart time.Time
	WindowEnd   time.Time
	Source      string
}

// DigestRecord is a persisted login-window summary.
type DigestRecord struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Provider      string          `json:"provider"`
	Source        string          `json:"source"`
	WindowStart   time.Time       `json:"windowStart"`
	WindowEnd     time.Time       `json:"windowEnd"`
	Condition     json.RawMessage `json:"condition,omitempty"`
	EmailCount    int             `json:"emailCount"`
	SummaryText   string          `json:"summaryText"`
	LatestEmailAt *time.Time      `json:"latestEmailAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Key returns the record's idempotence key.
func (r DigestRecord) Key() DigestKey {
	return DigestKey{
		UserID:      r.UserID,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
		Source:      r.Source,
	}
}
