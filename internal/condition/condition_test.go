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

package condition

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
}

// TestMatchesNow_Windows covers plain, wrapping and empty windows at UTC.
func TestMatchesNow_Windows(t *testing.T) {
	tests := []struct {
		name  string
		cond  Condition
		now   time.Time
		match bool
	}{
		{"inside day window", Between("09:00", "17:00", 0), at(12, 0), true},
		{"start is inclusive", Between("09:00", "17:00", 0), at(9, 0), true},
		{"end is exclusive", Between("09:00", "17:00", 0), at(17, 0), false},
		{"evening outside", Between("09:00", "17:00", 0), at(20, 0), false},
		{"wrap late", Between("22:00", "06:00", 0), at(23, 0), true},
		{"wrap early", Between("22:00", "06:00", 0), at(2, 0), true},
		{"wrap midday", Between("22:00", "06:00", 0), at(12, 0), false},
		{"empty window", Between("10:00", "10:00", 0), at(10, 0), false},
		{"bad start", Between("9am", "17:00", 0), at(12, 0), false},
		{"bad end", Between("09:00", "24:00", 0), at(12, 0), false},
		{"none", None(), at(3, 0), true},
		{"content kind is permissive", Contains("x"), at(3, 0), true},
		{"unknown tag", Condition{Type: "weekday"}, at(3, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.MatchesNow(tt.now); got != tt.match {
				t.Errorf("MatchesNow(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.match)
			}
		})
	}
}

// TestMatchesNow_Offset verifies the browser offset convention.
func TestMatchesNow_Offset(t *testing.T) {
	// 14:00 UTC is 09:00 at UTC-5 (offset 300).
	c := Between("09:00", "10:00", 300)
	assert.True(t, c.MatchesNow(at(14, 0)))
	assert.False(t, c.MatchesNow(at(9, 0)))

	// 01:30 UTC is 10:30 at UTC+9 (offset -540).
	c = Between("10:00", "11:00", -540)
	assert.True(t, c.MatchesNow(at(1, 30)))
}

func TestMatchesEmail(t *testing.T) {
	content := Content{
		Subject:  "Quarterly   Invoice",
		From:     "Billing <billing@acme.test>",
		BodyText: "Please find the\ninvoice attached.",
	}

	tests := []struct {
		name  string
		cond  Condition
		match bool
	}{
		{"none", None(), true},
		{"subject match ignores case", Contains("quarterly invoice"), true},
		{"sender match", Contains("acme.test"), true},
		{"body match across newline", Contains("the invoice"), true},
		{"needle is trimmed", Contains("  invoice  "), true},
		{"blank needle", Contains("   "), true},
		{"miss", Contains("payroll"), false},
		{"attachment absent", HasAttachment(), false},
		{"time window is permissive", Between("01:00", "02:00", 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.cond.MatchesEmail(content))
		})
	}

	content.HasAttachment = true
	assert.True(t, HasAttachment().MatchesEmail(content))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Condition
	}{
		{"absent", ``, None()},
		{"null", `null`, None()},
		{"plain string", `"invoice"`, Contains("invoice")},
		{"blank string", `"  "`, None()},
		{"attachment", `{"type":"emailHasAttachment"}`, HasAttachment()},
		{"contains", `{"type":"emailContains","value":"hr"}`, Contains("hr")},
		{"contains blank", `{"type":"emailContains","value":""}`, None()},
		{"explicit none", `{"type":"none"}`, None()},
		{"unknown tag", `{"type":"weekday"}`, None()},
		{"number", `42`, None()},
		{"full window", `{"type":"timeBetween","start":"22:00","end":"06:00","timezoneOffsetMinutes":-60}`, Between("22:00", "06:00", -60)},
		{"bad bounds fall back", `{"type":"timeBetween","start":"late","end":"","timezoneOffsetMinutes":0}`, Between(DefaultStart, DefaultEnd, 0)},
		{"numeric start falls back", `{"type":"timeBetween","start":900,"end":"23:00","timezoneOffsetMinutes":0}`, Between(DefaultStart, "23:00", 0)},
		{"object end falls back", `{"type":"timeBetween","start":"22:00","end":{},"timezoneOffsetMinutes":0}`, Between("22:00", DefaultEnd, 0)},
		{"string offset", `{"type":"timeBetween","start":"22:00","end":"23:00","timezoneOffsetMinutes":"0"}`, Between("22:00", "23:00", 0)},
		{"padded string offset", `{"type":"timeBetween","start":"22:00","end":"23:00","timezoneOffsetMinutes":" -120 "}`, Between("22:00", "23:00", -120)},
		{"numeric contains value", `{"type":"emailContains","value":7}`, None()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(json.RawMessage(tt.raw)))
		})
	}
}

// TestNormalize_DefaultOffset verifies a missing offset falls back to the host.
func TestNormalize_DefaultOffset(t *testing.T) {
	c := Normalize(json.RawMessage(`{"type":"timeBetween","start":"08:00","end":"12:00"}`))
	assert.Equal(t, TypeTimeBetween, c.Type)
	assert.Equal(t, LocalOffsetMinutes(time.Now()), c.TimezoneOffsetMinutes)
}

// A window with unreadable fields keeps gating instead of matching all day.
func TestNormalize_MistypedWindowStaysClosed(t *testing.T) {
	threeAM := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		`{"type":"timeBetween","start":"22:00","end":"23:00","timezoneOffsetMinutes":"0"}`,
		`{"type":"timeBetween","start":900,"end":"10:00","timezoneOffsetMinutes":0}`,
		`{"type":"timeBetween","start":"22:00","end":"23:00","timezoneOffsetMinutes":"soon"}`,
		`{"type":"timeBetween","start":"22:00","end":"23:00","timezoneOffsetMinutes":null}`,
	} {
		c := Normalize(json.RawMessage(raw))
		assert.Equal(t, TypeTimeBetween, c.Type, raw)
		localThreeAM := threeAM.Add(time.Duration(c.TimezoneOffsetMinutes) * time.Minute)
		assert.False(t, c.MatchesNow(localThreeAM), raw)
	}
}

// TestNormalize_BadOffsetUsesHost verifies an unreadable offset falls back to the host.
func TestNormalize_BadOffsetUsesHost(t *testing.T) {
	for _, raw := range []string{
		`{"type":"timeBetween","start":"08:00","end":"12:00","timezoneOffsetMinutes":"soon"}`,
		`{"type":"timeBetween","start":"08:00","end":"12:00","timezoneOffsetMinutes":null}`,
		`{"type":"timeBetween","start":"08:00","end":"12:00","timezoneOffsetMinutes":1e9}`,
	} {
		c := Normalize(json.RawMessage(raw))
		assert.Equal(t, LocalOffsetMinutes(time.Now()), c.TimezoneOffsetMinutes, raw)
	}
}

func TestConditionJSON(t *testing.T) {
	data, err := json.Marshal(Between("09:00", "17:00", 0))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"timeBetween","start":"09:00","end":"17:00","timezoneOffsetMinutes":0}`, string(data))

	data, err = json.Marshal(Condition{})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"none"}`, string(data))

	var c Condition
	assert.NoError(t, json.Unmarshal([]byte(`"urgent"`), &c))
	assert.Equal(t, Contains("urgent"), c)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "none", None().Describe())
	assert.Equal(t, "has attachment", HasAttachment().Describe())
	assert.Equal(t, `contains "invoice"`, Contains(" invoice ").Describe())
	assert.Equal(t, "between 09:00 and 17:00", Between("09:00", "17:00", 0).Describe())
}

func clockGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		h := rapid.IntRange(0, 23).Draw(t, "hour")
		m := rapid.IntRange(0, 59).Draw(t, "minute")
		return time.Date(2000, 1, 1, h, m, 0, 0, time.UTC).Format("15:04")
	})
}

// An empty window never matches, whatever the clock or offset.
func TestProperty_EmptyWindowNeverMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := clockGen().Draw(t, "bound")
		offset := rapid.IntRange(-840, 840).Draw(t, "offset")
		now := time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "now"), 0)

		if Between(bound, bound, offset).MatchesNow(now) {
			t.Fatalf("window %s-%s matched at %v", bound, bound, now)
		}
	})
}

// A wrapping window and its complement partition the day.
func TestProperty_WindowComplement(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := clockGen().Draw(t, "a")
		b := clockGen().Draw(t, "b")
		if a == b {
			t.Skip("empty window")
		}
		now := time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "now"), 0)

		in := Between(a, b, 0).MatchesNow(now)
		out := Between(b, a, 0).MatchesNow(now)
		if in == out {
			t.Fatalf("%s-%s and %s-%s both returned %v at %v", a, b, b, a, in, now)
		}
	})
}
