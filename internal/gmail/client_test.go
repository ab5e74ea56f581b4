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
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type staticAuth struct {
	client *http.Client
}

func (a staticAuth) HTTPClient(context.Context, int64) (*http.Client, error) {
	return a.client, nil
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

// fakeGmail serves the handful of Gmail API routes the client uses.
type fakeGmail struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]map[string]any
	labels   []map[string]string
	sent     []string
	queries  []string
	pageSize []int
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.queries = append(f.queries, r.URL.Query().Get("q"))
		size, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		f.pageSize = append(f.pageSize, size)
		offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

		end := min(offset+size, len(f.ids))
		var page []map[string]string
		for _, id := range f.ids[offset:end] {
			page = append(page, map[string]string{"id": id, "threadId": "t-" + id})
		}
		resp := map[string]any{"messages": page}
		if end < len(f.ids) {
			resp["nextPageToken"] = strconv.Itoa(end)
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		msg, ok := f.messages[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(msg)
	})

	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Raw string `json:"raw"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		decoded, _ := base64.URLEncoding.DecodeString(body.Raw)

		f.mu.Lock()
		f.sent = append(f.sent, string(decoded))
		n := len(f.sent)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("sent-%d", n), "threadId": "thread-x"})
	})

	mux.HandleFunc("GET /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"labels": f.labels})
	})

	mux.HandleFunc("POST /gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		var label map[string]string
		json.NewDecoder(r.Body).Decode(&label)

		f.mu.Lock()
		label["id"] = fmt.Sprintf("Label_%d", len(f.labels)+1)
		f.labels = append(f.labels, label)
		f.mu.Unlock()

		json.NewEncoder(w).Encode(label)
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	return NewClient(ClientConfig{
		Auth:    staticAuth{client: srv.Client()},
		Options: []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
	})
}

func TestListMessageIDs(t *testing.T) {
	f := &fakeGmail{ids: []string{"a", "b", "c"}}
	c := newTestClient(t, f)

	ids, err := c.ListMessageIDs(context.Background(), 1, "after:100", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, []string{"after:100"}, f.queries)
}

func TestListAllMessageIDs_PagesUpToLimit(t *testing.T) {
	f := &fakeGmail{}
	for i := 0; i < 120; i++ {
		f.ids = append(f.ids, fmt.Sprintf("m%03d", i))
	}
	c := newTestClient(t, f)

	ids, err := c.ListAllMessageIDs(context.Background(), 1, "has:attachment", 110)
	require.NoError(t, err)
	assert.Len(t, ids, 110)
	assert.Equal(t, "m000", ids[0])
	assert.Equal(t, "m109", ids[109])
	assert.Equal(t, []int{50, 50, 10}, f.pageSize)
}

func TestListAllMessageIDs_StopsAtLastPage(t *testing.T) {
	f := &fakeGmail{ids: []string{"x", "y"}}
	c := newTestClient(t, f)

	ids, err := c.ListAllMessageIDs(context.Background(), 1, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids, "limit clamps to 1")

	ids, err = c.ListAllMessageIDs(context.Background(), 1, "", 500)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)
}

func TestGetMessage_Normalizes(t *testing.T) {
	f := &fakeGmail{messages: map[string]map[string]any{
		"m1": {
			"id":           "m1",
			"threadId":     "t1",
			"snippet":      "snip",
			"labelIds":     []string{"INBOX", "IMPORTANT"},
			"internalDate": "1767225600000",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]string{
					{"name": "From", "value": "Ada Lovelace <ada@engine.test>"},
					{"name": "subject", "value": "Notes"},
				},
				"parts": []map[string]any{
					{"mimeType": "text/html", "body": map[string]any{"data": b64("<p>html body</p>")}},
					{"mimeType": "text/plain", "body": map[string]any{"data": b64("plain body")}},
					{"mimeType": "application/pdf", "filename": "notes.pdf", "body": map[string]any{"attachmentId": "att1"}},
				},
			},
		},
	}}
	c := newTestClient(t, f)

	e, err := c.GetMessage(context.Background(), 1, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", e.MessageID)
	assert.Equal(t, "t1", e.ThreadID)
	assert.Equal(t, "Ada Lovelace <ada@engine.test>", e.From)
	assert.Equal(t, "ada@engine.test", e.FromEmail)
	assert.Equal(t, "Notes", e.Subject)
	assert.Equal(t, "plain body", e.BodyText)
	assert.True(t, e.HasAttachment)
	assert.Equal(t, int64(1767225600), e.ReceivedAt.Unix())
	assert.True(t, e.HasLabel("IMPORTANT"))
}

func TestGetMessage_NotFound(t *testing.T) {
	c := newTestClient(t, &fakeGmail{})
	_, err := c.GetMessage(context.Background(), 1, "missing")
	assert.Error(t, err)
}

func TestSendTextEmail(t *testing.T) {
	f := &fakeGmail{}
	c := newTestClient(t, f)

	receipt, err := c.SendTextEmail(context.Background(), 1, OutgoingMessage{
		To:       "bob@example.test",
		Subject:  "Hello\r\nBcc: evil@example.test",
		BodyText: "Line one",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", receipt.ID)

	require.Len(t, f.sent, 1)
	raw := f.sent[0]
	assert.Contains(t, raw, "To: bob@example.test\r\n")
	assert.Contains(t, raw, "Subject: Hello  Bcc: evil@example.test\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=\"UTF-8\"")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nLine one"))
}

func TestEnsureLabel(t *testing.T) {
	f := &fakeGmail{labels: []map[string]string{{"id": "Label_9", "name": "Receipts"}}}
	c := newTestClient(t, f)

	got, err := c.EnsureLabel(context.Background(), 1, "receipts")
	require.NoError(t, err)
	assert.Equal(t, &Label{ID: "Label_9", Name: "Receipts"}, got)

	got, err = c.EnsureLabel(context.Background(), 1, " VIP ")
	require.NoError(t, err)
	assert.True(t, got.Created)
	assert.Equal(t, "VIP", got.Name)
	assert.Equal(t, "labelShow", f.labels[1]["labelListVisibility"])
	assert.Equal(t, "show", f.labels[1]["messageListVisibility"])

	_, err = c.EnsureLabel(context.Background(), 1, "  ")
	assert.Error(t, err)
}
