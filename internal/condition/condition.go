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

// Package condition evaluates the gating conditions attached to workflow
// actions and digest requests.
//
// A condition is checked in one of two contexts: against the wall clock when
// an action is about to run (MatchesNow), or against a message's content when
// a digest filters the mailbox (MatchesEmail). Conditions that make no sense
// in a context are permissive there.
package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type tags a Condition variant.
type Type string

const (
	TypeNone               Type = "none"
	TypeEmailContains      Type = "emailContains"
	TypeEmailHasAttachment Type = "emailHasAttachment"
	TypeTimeBetween        Type = "timeBetween"
)

// Default bounds for a timeBetween condition saved without usable times.
const (
	DefaultStart = "09:00"
	DefaultEnd   = "17:00"
)

// maxOffsetMinutes bounds a usable timezone offset (one day either way).
const maxOffsetMinutes = 24 * 60

// Condition is a tagged variant. Only the fields of the active Type are
// meaningful.
type Condition struct {
	Type Type

	// emailContains
	Value string

	// timeBetween. TimezoneOffsetMinutes follows the browser convention:
	// minutes to add to local time to get UTC (UTC-5 is 300).
	Start                 string
	End                   string
	TimezoneOffsetMinutes int
}

// None returns the always-true condition.
func None() Condition { return Condition{Type: TypeNone} }

// Contains returns an emailContains condition.
func Contains(value string) Condition {
	return Condition{Type: TypeEmailContains, Value: value}
}

// HasAttachment returns an emailHasAttachment condition.
func HasAttachment() Condition { return Condition{Type: TypeEmailHasAttachment} }

// Between returns a timeBetween condition.
func Between(start, end string, tzOffsetMinutes int) Condition {
	return Condition{
		Type:                  TypeTimeBetween,
		Start:                 start,
		End:                   end,
		TimezoneOffsetMinutes: tzOffsetMinutes,
	}
}

// IsNone reports whether the condition places no constraint at all.
func (c Condition) IsNone() bool {
	return c.Type == TypeNone || c.Type == ""
}

var hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock converts "HH:MM" (24h) to minutes since midnight.
func ParseClock(s string) (int, bool) {
	m := hhmm.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, true
}

// MatchesNow evaluates the condition against the wall clock.
// Content conditions and unknown tags never block in this context. A
// timeBetween with an unparsable bound never matches.
func (c Condition) MatchesNow(now time.Time) bool {
	if c.Type != TypeTimeBetween {
		return true
	}

	start, ok := ParseClock(c.Start)
	if !ok {
		return false
	}
	end, ok := ParseClock(c.End)
	if !ok {
		return false
	}
	if start == end {
		return false
	}

	local := now.Add(-time.Duration(c.TimezoneOffsetMinutes) * time.Minute).UTC()
	mins := local.Hour()*60 + local.Minute()

	if start < end {
		return mins >= start && mins < end
	}
	// Window crosses midnight.
	return mins >= start || mins < end
}

// Content is the part of a message a content condition can see.
type Content struct {
	Subject       string
	From          string
	BodyText      string
	HasAttachment bool
}

// MatchesEmail evaluates the condition against a message.
// Time windows and unknown tags are permissive in this context.
func (c Condition) MatchesEmail(content Content) bool {
	switch c.Type {
	case TypeEmailHasAttachment:
		return content.HasAttachment
	case TypeEmailContains:
		needle := normalizeSpace(c.Value)
		if needle == "" {
			return true
		}
		haystack := normalizeSpace(content.Subject + "\n" + content.From + "\n" + content.BodyText)
		return strings.Contains(haystack, needle)
	default:
		return true
	}
}

func normalizeSpace(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Describe renders the condition for people reading a summary.
func (c Condition) Describe() string {
	switch c.Type {
	case TypeEmailContains:
		return fmt.Sprintf("contains %q", strings.TrimSpace(c.Value))
	case TypeEmailHasAttachment:
		return "has attachment"
	case TypeTimeBetween:
		return fmt.Sprintf("between %s and %s", c.Start, c.End)
	default:
		return "none"
	}
}

// wireCondition is the persisted JSON shape.
type wireCondition struct {
	Type                  Type     `json:"type"`
	Value                 *string  `json:"value,omitempty"`
	Start                 *string  `json:"start,omitempty"`
	End                   *string  `json:"end,omitempty"`
	TimezoneOffsetMinutes *float64 `json:"timezoneOffsetMinutes,omitempty"`
}

// MarshalJSON writes only the fields of the active variant.
func (c Condition) MarshalJSON() ([]byte, error) {
	w := wireCondition{Type: c.Type}
	switch c.Type {
	case TypeEmailContains:
		w.Value = &c.Value
	case TypeTimeBetween:
		off := float64(c.TimezoneOffsetMinutes)
		w.Start, w.End, w.TimezoneOffsetMinutes = &c.Start, &c.End, &off
	case "":
		w.Type = TypeNone
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts every shape Normalize accepts and never fails.
func (c *Condition) UnmarshalJSON(data []byte) error {
	*c = Normalize(data)
	return nil
}

// Normalize converts a persisted condition into a Condition. It accepts a
// bare string (a contains filter), a tagged object, or nothing at all.
// Anything it cannot read becomes None.
func Normalize(raw json.RawMessage) Condition {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return None()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return None()
		}
		return Contains(s)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return None()
	}

	tag, _ := rawString(fields["type"])
	switch Type(tag) {
	case TypeEmailHasAttachment:
		return HasAttachment()
	case TypeEmailContains:
		value, ok := rawString(fields["value"])
		if !ok || strings.TrimSpace(value) == "" {
			return None()
		}
		return Contains(value)
	case TypeTimeBetween:
		// Unreadable fields fall back one at a time.
		start, end := DefaultStart, DefaultEnd
		if v, ok := rawString(fields["start"]); ok {
			if _, valid := ParseClock(v); valid {
				start = strings.TrimSpace(v)
			}
		}
		if v, ok := rawString(fields["end"]); ok {
			if _, valid := ParseClock(v); valid {
				end = strings.TrimSpace(v)
			}
		}
		offset, ok := rawOffset(fields["timezoneOffsetMinutes"])
		if !ok {
			offset = LocalOffsetMinutes(time.Now())
		}
		return Between(start, end, offset)
	default:
		return None()
	}
}

func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// rawOffset reads a JSON number or a numeric string.
func rawOffset(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		s, ok := rawString(raw)
		if !ok {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxOffsetMinutes {
		return 0, false
	}
	return int(f), true
}

// LocalOffsetMinutes returns the host's UTC offset at t in the browser
// convention used by TimezoneOffsetMinutes.
func LocalOffsetMinutes(t time.Time) int {
	_, secs := t.In(time.Local).Zone()
	return -secs / 60
}
