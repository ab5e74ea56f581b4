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

// Package gmail is the mail gateway: it lists, fetches and sends messages and
// manages labels in a user's Gmail account through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/griffinhampton/mailflow/internal/metrics"
	"github.com/griffinhampton/mailflow/internal/models"
)

const (
	// me is the Gmail API alias for the authenticated mailbox.
	me = "me"

	// pageSize is the largest page requested from messages.list.
	pageSize = 50

	// MaxListLimit caps ListAllMessageIDs.
	MaxListLimit = 500
)

// Authenticator yields an HTTP client authenticated as a user.
type Authenticator interface {
	HTTPClient(ctx context.Context, userID int64) (*http.Client, error)
}

// ClientConfig holds the dependencies of a Client.
type ClientConfig struct {
	Auth Authenticator
	// Options are appended to every service, e.g. an endpoint override.
	Options []option.ClientOption
}

// Client talks to the Gmail API on behalf of users.
type Client struct {
	auth    Authenticator
	options []option.ClientOption
}

// NewClient creates a Gmail gateway.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		auth:    cfg.Auth,
		options: cfg.Options,
	}
}

func (c *Client) service(ctx context.Context, userID int64) (*gmailapi.Service, error) {
	hc, err := c.auth.HTTPClient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authenticate user %d: %w", userID, err)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(hc)}, c.options...)
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// ListMessageIDs returns at most one page of ids matching query.
func (c *Client) ListMessageIDs(ctx context.Context, userID int64, query string, maxResults int) (ids []string, err error) {
	defer func(start time.Time) { metrics.RecordGatewayCall("list", err, start) }(time.Now())

	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List(me).MaxResults(int64(min(max(maxResults, 1), pageSize))).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// ListAllMessageIDs pages through messages matching query and returns at
// most limit ids, clamped to [1, MaxListLimit].
func (c *Client) ListAllMessageIDs(ctx context.Context, userID int64, query string, limit int) (ids []string, err error) {
	defer func(start time.Time) { metrics.RecordGatewayCall("list_all", err, start) }(time.Now())

	limit = min(max(limit, 1), MaxListLimit)

	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	pageToken := ""
	for len(ids) < limit {
		call := svc.Users.Messages.List(me).MaxResults(int64(min(pageSize, limit-len(ids)))).Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range resp.Messages {
			if len(ids) == limit {
				break
			}
			ids = append(ids, m.Id)
		}

		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// GetMessage fetches a full message and normalizes it.
func (c *Client) GetMessage(ctx context.Context, userID int64, messageID string) (email *models.Email, err error) {
	defer func(start time.Time) { metrics.RecordGatewayCall("get", err, start) }(time.Now())

	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}
	return parseMessage(msg), nil
}

// OutgoingMessage is a plain-text message to send.
type OutgoingMessage struct {
	To       string
	Subject  string
	BodyText string
}

// SendReceipt identifies a sent message.
type SendReceipt struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// SendTextEmail sends a plain-text message from the user's mailbox.
func (c *Client) SendTextEmail(ctx context.Context, userID int64, out OutgoingMessage) (receipt *SendReceipt, err error) {
	defer func(start time.Time) { metrics.RecordGatewayCall("send", err, start) }(time.Now())

	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(out)))
	sent, err := svc.Users.Messages.Send(me, &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &SendReceipt{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// buildMIME renders a single-part text/plain message.
func buildMIME(out OutgoingMessage) string {
	var b strings.Builder
	b.WriteString("To: " + stripNewlines(out.To) + "\r\n")
	b.WriteString("Subject: " + stripNewlines(out.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(out.BodyText)
	return b.String()
}

// stripNewlines keeps header values on one line.
func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Label is a Gmail label.
type Label struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created bool   `json:"created"`
}

// EnsureLabel returns the label with the given name, creating it if the
// mailbox has none.
func (c *Client) EnsureLabel(ctx context.Context, userID int64, name string) (label *Label, err error) {
	defer func(start time.Time) { metrics.RecordGatewayCall("ensure_label", err, start) }(time.Now())

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("label name is required")
	}

	svc, err := c.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	for _, l := range existing.Labels {
		if strings.EqualFold(l.Name, name) {
			return &Label{ID: l.Id, Name: l.Name}, nil
		}
	}

	created, err := svc.Users.Labels.Create(me, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create label %q: %w", name, err)
	}
	return &Label{ID: created.Id, Name: created.Name, Created: true}, nil
}
