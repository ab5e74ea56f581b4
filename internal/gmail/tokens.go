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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// ErrNoToken is returned when a user has not connected a Gmail account.
var ErrNoToken = errors.New("gmail account not connected")

// Scopes the connected account must have granted.
var Scopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailModifyScope,
	gmailapi.GmailSendScope,
	gmailapi.GmailLabelsScope,
}

// OAuthConfig holds the Google OAuth client used to refresh tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// storedToken is the Redis representation of a user's token.
type storedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Expiry       string `json:"expiry,omitempty"`
}

// TokenStore reads the OAuth tokens the web application stored for each
// user and hands out authenticated HTTP clients. Tokens the oauth2 library
// refreshes are written back so the next caller sees them.
type TokenStore struct {
	rdb    *redis.Client
	prefix string
	oauth  *oauth2.Config
}

// NewTokenStore creates a token store. prefix namespaces the Redis keys.
func NewTokenStore(rdb *redis.Client, prefix string, cfg OAuthConfig) *TokenStore {
	return &TokenStore{
		rdb:    rdb,
		prefix: prefix,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
	}
}

func (s *TokenStore) key(userID int64) string {
	return fmt.Sprintf("%soauth_token:%d:gmail", s.prefix, userID)
}

// Load returns the stored token for a user.
func (s *TokenStore) Load(ctx context.Context, userID int64) (*oauth2.Token, error) {
	raw, err := s.rdb.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
	}
	if st.Expiry != "" {
		if err := tok.Expiry.UnmarshalText([]byte(st.Expiry)); err != nil {
			return nil, fmt.Errorf("decode token expiry: %w", err)
		}
	}
	return tok, nil
}

// Save stores a user's token.
func (s *TokenStore) Save(ctx context.Context, userID int64, tok *oauth2.Token) error {
	st := storedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		b, err := tok.Expiry.MarshalText()
		if err != nil {
			return fmt.Errorf("encode token expiry: %w", err)
		}
		st.Expiry = string(b)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// HTTPClient returns a client that authenticates as the user.
func (s *TokenStore) HTTPClient(ctx context.Context, userID int64) (*http.Client, error) {
	tok, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		base:   s.oauth.TokenSource(ctx, tok),
		store:  s,
		userID: userID,
		last:   tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// persistingSource saves tokens whose access token changed.
type persistingSource struct {
	base   oauth2.TokenSource
	store  *TokenStore
	userID int64

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(context.Background(), p.userID, tok); err != nil {
			slog.Warn("failed to persist refreshed token", "user_id", p.userID, "error", err)
		}
	}
	return tok, nil
}
