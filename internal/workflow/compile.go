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

// Package workflow compiles builder graphs into ordered action lists and
// runs them against a user's mailbox.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/griffinhampton/mailflow/internal/condition"
)

// StartNodeID is the id of the entry node every builder graph carries.
const StartNodeID = "start"

// NodeKind is the builder's node type.
type NodeKind string

const (
	NodeStart                NodeKind = "start"
	NodeGmailSend            NodeKind = "gmailSend"
	NodeGmailEnsureLabel     NodeKind = "gmailEnsureLabel"
	NodeGmailSummarizeEmails NodeKind = "gmailSummarizeEmails"
	NodeIf                   NodeKind = "if"
)

// MaxSummarizeEmails caps gmailSummarizeEmails.maxEmails.
const MaxSummarizeEmails = 500

// Node is one builder node. Config is decoded per kind at compile time.
type Node struct {
	ID        string          `json:"id"`
	Kind      NodeKind        `json:"kind"`
	Condition json.RawMessage `json:"condition,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Edge connects two nodes by id.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the persisted builder document.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ActionType tags an Action.
type ActionType string

const (
	ActionGmailSend            ActionType = "gmailSend"
	ActionGmailEnsureLabel     ActionType = "gmailEnsureLabel"
	ActionGmailSummarizeEmails ActionType = "gmailSummarizeEmails"
)

// SendParams configures a gmailSend action.
type SendParams struct {
	To       string
	Subject  string
	BodyText string
}

// LabelParams configures a gmailEnsureLabel action.
type LabelParams struct {
	Name string
}

// SummarizeParams configures a gmailSummarizeEmails action.
type SummarizeParams struct {
	MaxEmails int
}

// Action is a compiled step. Exactly one params pointer is set for the
// known types; legacy lists may carry types nothing can run.
type Action struct {
	Type      ActionType
	Send      *SendParams
	Label     *LabelParams
	Summarize *SummarizeParams
	Condition condition.Condition
}

// actionJSON is the flat shape shared by compiled output and legacy lists.
type actionJSON struct {
	Type      ActionType           `json:"type"`
	To        *string              `json:"to,omitempty"`
	Subject   *string              `json:"subject,omitempty"`
	BodyText  *string              `json:"bodyText,omitempty"`
	Name      *string              `json:"name,omitempty"`
	MaxEmails *int                 `json:"maxEmails,omitempty"`
	Condition *condition.Condition `json:"condition,omitempty"`
}

// MarshalJSON writes the flat action shape.
func (a Action) MarshalJSON() ([]byte, error) {
	cond := a.Condition
	out := actionJSON{Type: a.Type, Condition: &cond}
	if a.Send != nil {
		out.To, out.Subject, out.BodyText = &a.Send.To, &a.Send.Subject, &a.Send.BodyText
	}
	if a.Label != nil {
		out.Name = &a.Label.Name
	}
	if a.Summarize != nil {
		out.MaxEmails = &a.Summarize.MaxEmails
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat shape as stored in legacy action lists.
// Fields are taken as saved; no compile-time validation applies.
func (a *Action) UnmarshalJSON(data []byte) error {
	var in actionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*a = Action{Type: in.Type, Condition: condition.None()}
	if in.Condition != nil {
		a.Condition = *in.Condition
	}

	switch in.Type {
	case ActionGmailSend:
		a.Send = &SendParams{To: deref(in.To), Subject: deref(in.Subject), BodyText: deref(in.BodyText)}
	case ActionGmailEnsureLabel:
		a.Label = &LabelParams{Name: deref(in.Name)}
	case ActionGmailSummarizeEmails:
		n := MaxSummarizeEmails
		if in.MaxEmails != nil {
			n = clampMaxEmails(*in.MaxEmails)
		}
		a.Summarize = &SummarizeParams{MaxEmails: n}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compile walks the chain that starts at the start node and returns one
// action per valid step, in order.
//
// Only the first edge leaving a node is followed. Traversal stops at a node
// with no outgoing edge or at one already visited, so cycles end quietly.
func Compile(g Graph) []Action {
	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}

	next := make(map[string]string, len(g.Edges))
	for _, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		if _, seen := next[e.Source]; !seen {
			next[e.Source] = e.Target
		}
	}

	visited := map[string]bool{StartNodeID: true}
	var actions []Action

	current := StartNodeID
	for {
		target, ok := next[current]
		if !ok || visited[target] {
			break
		}
		visited[target] = true
		current = target

		node, ok := nodes[target]
		if !ok {
			continue
		}
		if action, ok := compileNode(node); ok {
			actions = append(actions, action)
		}
	}

	return actions
}

// compileNode decodes a node's config for its kind. Nodes with missing
// required fields, and kinds that carry no action, yield false.
func compileNode(n Node) (Action, bool) {
	cond := condition.Normalize(n.Condition)
	cfg := decodeConfig(n.Config)

	switch n.Kind {
	case NodeGmailEnsureLabel:
		name := strings.TrimSpace(cfg.str("name"))
		if name == "" {
			return Action{}, false
		}
		return Action{Type: ActionGmailEnsureLabel, Label: &LabelParams{Name: name}, Condition: cond}, true

	case NodeGmailSend:
		to, subject := strings.TrimSpace(cfg.str("to")), strings.TrimSpace(cfg.str("subject"))
		if to == "" || subject == "" {
			return Action{}, false
		}
		return Action{
			Type:      ActionGmailSend,
			Send:      &SendParams{To: to, Subject: subject, BodyText: cfg.str("bodyText")},
			Condition: cond,
		}, true

	case NodeGmailSummarizeEmails:
		n := MaxSummarizeEmails
		if v, ok := cfg.num("maxEmails"); ok {
			n = int(min(max(v, 1), MaxSummarizeEmails))
		}
		return Action{Type: ActionGmailSummarizeEmails, Summarize: &SummarizeParams{MaxEmails: n}, Condition: cond}, true

	default:
		return Action{}, false
	}
}

func clampMaxEmails(n int) int {
	return min(max(n, 1), MaxSummarizeEmails)
}

// nodeConfig is a node's config object with each field still raw, so a field
// of the wrong JSON type reads as absent instead of failing the whole graph.
type nodeConfig map[string]json.RawMessage

func decodeConfig(raw json.RawMessage) nodeConfig {
	var cfg nodeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nodeConfig{}
	}
	return cfg
}

func (c nodeConfig) str(key string) string {
	var s string
	if err := json.Unmarshal(c[key], &s); err != nil {
		return ""
	}
	return s
}

func (c nodeConfig) num(key string) (float64, bool) {
	raw := bytes.TrimSpace(c[key])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

// ParseActions reads a workflow's persisted actions blob. A JSON array is a
// legacy, already compiled list and is returned as saved. A JSON object is a
// builder graph and is compiled.
func ParseActions(blob []byte) ([]Action, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var legacy []Action
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy actions: %w", err)
		}
		return legacy, nil
	}

	var g Graph
	if err := json.Unmarshal(trimmed, &g); err != nil {
		return nil, fmt.Errorf("decode workflow graph: %w", err)
	}
	return Compile(g), nil
}
