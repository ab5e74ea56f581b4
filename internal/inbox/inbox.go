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

// Package inbox implements the single-message mailbox actions offered on
// the dashboard: the new-mail badge, one-click unsubscribe and drafted
// replies.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/llm"
	"github.com/griffinhampton/mailflow/internal/models"
)

const (
	unsubscribeSubject = "Unsubscribe"
	unsubscribeBody    = "Please remove me from your mailing list."

	replyMaxTokens   = 250
	replyTemperature = 0.3
)

const replySystemPrompt = "You write concise, helpful, professional email replies. " +
	"Return ONLY the reply body text: no subject line, no invented facts, " +
	"and no signature unless the user asks for one."

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrMissingRecipient = errors.New("recipient address is required")
	ErrMissingMessageID = errors.New("message id is required")
	ErrNoSender         = errors.New("could not determine sender address")
	ErrDrafterDisabled  = errors.New("reply drafting is not configured")
	ErrEmptyReply       = errors.New("drafted reply is empty")
)

// Users reads account records.
type Users interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// Mailbox is the slice of the Gmail gateway these actions use.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, userID int64, query string, maxResults int) ([]string, error)
	GetMessage(ctx context.Context, userID int64, messageID string) (*models.Email, error)
	SendTextEmail(ctx context.Context, userID int64, out gmail.OutgoingMessage) (*gmail.SendReceipt, error)
}

// Drafter writes reply text.
type Drafter interface {
	ChatComplete(ctx context.Context, req llm.Request) (string, error)
}

// Config holds the service's dependencies. Drafter may be nil.
type Config struct {
	Users   Users
	Mailbox Mailbox
	Drafter Drafter
}

// Service performs mailbox actions for a user.
type Service struct {
	users   Users
	mailbox Mailbox
	drafter Drafter
}

// NewService creates an inbox service.
func NewService(cfg Config) *Service {
	return &Service{users: cfg.Users, mailbox: cfg.Mailbox, drafter: cfg.Drafter}
}

// HasNewEmail reports whether mail arrived since the user's last login.
// A user who never logged in, or whose mailbox cannot be reached, has none.
func (s *Service) HasNewEmail(ctx context.Context, userID int64) (bool, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, ErrUserNotFound
	}
	if user.LastLogin == nil {
		return false, nil
	}

	ids, err := s.mailbox.ListMessageIDs(ctx, userID, fmt.Sprintf("after:%d", user.LastLogin.Unix()), 1)
	if err != nil {
		slog.Warn("new mail check failed", "user_id", userID, "error", err)
		return false, nil
	}
	return len(ids) > 0, nil
}

// Unsubscribe asks a sender to stop mailing the user.
func (s *Service) Unsubscribe(ctx context.Context, userID int64, to string) (*gmail.SendReceipt, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrMissingRecipient
	}
	return s.mailbox.SendTextEmail(ctx, userID, gmail.OutgoingMessage{
		To:       to,
		Subject:  unsubscribeSubject,
		BodyText: unsubscribeBody,
	})
}

// ReplyRequest identifies the message to answer.
type ReplyRequest struct {
	MessageID   string `json:"messageId"`
	Instruction string `json:"instruction,omitempty"`
}

// Reply is a drafted and sent reply.
type Reply struct {
	To      string             `json:"to"`
	Subject string             `json:"subject"`
	Body    string             `json:"body"`
	Receipt *gmail.SendReceipt `json:"receipt"`
}

// RespondWithAI drafts a reply to a message and sends it to the sender.
func (s *Service) RespondWithAI(ctx context.Context, userID int64, req ReplyRequest) (*Reply, error) {
	if s.drafter == nil {
		return nil, ErrDrafterDisabled
	}
	messageID := strings.TrimSpace(req.MessageID)
	if messageID == "" {
		return nil, ErrMissingMessageID
	}

	msg, err := s.mailbox.GetMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	to := msg.FromEmail
	if to == "" {
		to = gmail.ParseAddress(msg.From)
	}
	if to == "" {
		return nil, ErrNoSender
	}

	subject := msg.Subject
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}
	content := msg.BodyText
	if strings.TrimSpace(content) == "" {
		content = msg.Snippet
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Draft a reply to this email. Keep it short.\n\nFrom: %s\nSubject: %s\n\nEmail content:\n%s\n", msg.From, subject, content)
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		fmt.Fprintf(&prompt, "\nExtra instruction: %s\n", instruction)
	}

	raw, err := s.drafter.ChatComplete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: replySystemPrompt},
			{Role: "user", Content: prompt.String()},
		},
		MaxTokens:   replyMaxTokens,
		Temperature: replyTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("draft reply: %w", err)
	}

	body := SanitizeReply(raw)
	if body == "" {
		return nil, ErrEmptyReply
	}

	replySubject := subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		replySubject = "Re: " + subject
	}

	receipt, err := s.mailbox.SendTextEmail(ctx, userID, gmail.OutgoingMessage{
		To:       to,
		Subject:  replySubject,
		BodyText: body,
	})
	if err != nil {
		return nil, err
	}
	return &Reply{To: to, Subject: replySubject, Body: body, Receipt: receipt}, nil
}

var (
	fencedBlock     = regexp.MustCompile("(?s)```.*?```")
	strayFence      = regexp.MustCompile("`{3,}")
	doubleQuoted    = regexp.MustCompile(`(?s)^\s*"(.*)"\s*$`)
	singleQuoted    = regexp.MustCompile(`(?s)^\s*'(.*)'\s*$`)
	trailingBlank   = regexp.MustCompile(`(?m)[ \t]+$`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// SanitizeReply turns model output into a plain reply body.
func SanitizeReply(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = fencedBlock.ReplaceAllString(s, "")
	s = strayFence.ReplaceAllString(s, "")
	s = doubleQuoted.ReplaceAllString(s, "$1")
	s = singleQuoted.ReplaceAllString(s, "$1")
	s = trailingBlank.ReplaceAllString(s, "")
	s = extraBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
