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

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griffinhampton/mailflow/internal/condition"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCompileCmd_Stdin(t *testing.T) {
	out, err := execute(t, `{
		"nodes": [
			{"id": "start", "kind": "start"},
			{"id": "a", "kind": "gmailSummarizeEmails", "config": {"maxEmails": 9000}}
		],
		"edges": [{"id": "e", "source": "start", "target": "a"}]
	}`, "compile")
	require.NoError(t, err)

	var actions []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, "gmailSummarizeEmails", actions[0]["type"])
	assert.Equal(t, float64(500), actions[0]["maxEmails"])
}

func TestCompileCmd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"type":"gmailEnsureLabel","name":"X"}]`), 0o600))

	out, err := execute(t, "", "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "X"`)

	_, err = execute(t, "", "compile", filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	_, err = execute(t, "{", "compile")
	assert.Error(t, err)
}

func TestScoreCmd_Flags(t *testing.T) {
	out, err := execute(t, "", "score",
		"--from", "PayPal Security <security@totally-not-paypal.biz>",
		"--subject", "URGENT: Account Suspended — Verify Now",
		"--body", "We noticed a problem. Log in to paypal to restore access.",
		"--user-email", "me@home.test",
	)
	require.NoError(t, err)

	var got struct {
		Category  string `json:"category"`
		RiskLevel string `json:"riskLevel"`
		Junk      bool   `json:"junk"`
		Phishing  struct {
			Cues []string `json:"cues"`
		} `json:"phishing"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "high", got.Category)
	assert.Equal(t, "Severe", got.RiskLevel)
	assert.False(t, got.Junk)
	assert.Contains(t, got.Phishing.Cues, "brand_sender_domain_mismatch_paypal")
}

func TestScoreCmd_JSON(t *testing.T) {
	out, err := execute(t, `{"fromRaw": "Deals <deals@shop.example>", "subject": "50% off today only", "labels": ["CATEGORY_PROMOTIONS"]}`,
		"score", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"category": "low"`)
}

func TestRunCmd_RequiresFlags(t *testing.T) {
	_, err := execute(t, "", "run", "--user", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow")
}

func TestDigestCondition(t *testing.T) {
	c, err := digestCondition("", false)
	require.NoError(t, err)
	assert.Equal(t, condition.None(), c)

	c, err = digestCondition("", true)
	require.NoError(t, err)
	assert.Equal(t, condition.HasAttachment(), c)

	c, err = digestCondition("invoice", false)
	require.NoError(t, err)
	assert.Equal(t, condition.Contains("invoice"), c)

	c, err = digestCondition("   ", false)
	require.NoError(t, err)
	assert.True(t, c.IsNone())

	_, err = digestCondition("invoice", true)
	assert.Error(t, err)
}
