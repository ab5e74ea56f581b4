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

package gmail

import (
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/griffinhampton/mailflow/internal/models"
)

// parseMessage converts a Gmail API message into the normalized form.
func parseMessage(msg *gmailapi.Message) *models.Email {
	e := &models.Email{
		MessageID: msg.Id,
		ThreadID:  msg.ThreadId,
		Snippet:   msg.Snippet,
		Labels:    msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		e.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Payload == nil {
		e.BodyText = msg.Snippet
		return e
	}

	e.From = header(msg.Payload.Headers, "From")
	e.FromEmail = ParseAddress(e.From)
	e.Subject = header(msg.Payload.Headers, "Subject")
	e.HasAttachment = hasAttachment(msg.Payload)

	plain, htmlBody := collectBodies(msg.Payload)
	switch {
	case strings.TrimSpace(plain) != "":
		e.BodyText = plain
	case strings.TrimSpace(htmlBody) != "":
		e.BodyText = htmlToText(htmlBody)
	default:
		e.BodyText = msg.Snippet
	}

	return e
}

func header(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// hasAttachment walks the part tree for a named file or attachment body.
func hasAttachment(part *gmailapi.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" {
		return true
	}
	if part.Body != nil && part.Body.AttachmentId != "" {
		return true
	}
	for _, child := range part.Parts {
		if hasAttachment(child) {
			return true
		}
	}
	return false
}

// collectBodies returns the first text/plain and first text/html bodies.
func collectBodies(part *gmailapi.MessagePart) (plain, htmlBody string) {
	var walk func(p *gmailapi.MessagePart)
	walk = func(p *gmailapi.MessagePart) {
		if p == nil {
			return
		}
		if p.Body != nil && p.Body.Data != "" && p.Filename == "" {
			mime := strings.ToLower(p.MimeType)
			switch {
			case plain == "" && strings.HasPrefix(mime, "text/plain"):
				if s, err := decodeBase64URL(p.Body.Data); err == nil {
					plain = s
				}
			case htmlBody == "" && strings.HasPrefix(mime, "text/html"):
				if s, err := decodeBase64URL(p.Body.Data); err == nil {
					htmlBody = s
				}
			}
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	walk(part)
	return plain, htmlBody
}

// decodeBase64URL decodes Gmail body data, which may or may not be padded.
func decodeBase64URL(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// htmlToText extracts visible text from an HTML body.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "li", "tr":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

var (
	angleAddress = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)
	bareAddress  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// ParseAddress extracts the address from a From-style header value:
// the bracketed address if present, else the first bare address, else "".
func ParseAddress(raw string) string {
	if m := angleAddress.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return bareAddress.FindString(raw)
}
