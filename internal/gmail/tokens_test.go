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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestTokenStore_SaveLoad(t *testing.T) {
	rdb := newTestRedis(t)
	store := NewTokenStore(rdb, "mailflow:", OAuthConfig{ClientID: "id"})
	ctx := context.Background()

	expiry := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, 7, &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}))

	assert.Equal(t, int64(1), rdb.Exists(ctx, "mailflow:oauth_token:7:gmail").Val())

	tok, err := store.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
	assert.True(t, expiry.Equal(tok.Expiry))
}

func TestTokenStore_Missing(t *testing.T) {
	store := NewTokenStore(newTestRedis(t), "", OAuthConfig{})

	_, err := store.Load(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = store.HTTPClient(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenStore_HTTPClientAuthenticates(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	store := NewTokenStore(newTestRedis(t), "", OAuthConfig{ClientID: "id"})
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, 3, &oauth2.Token{
		AccessToken: "live-token",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	hc, err := store.HTTPClient(ctx, 3)
	require.NoError(t, err)

	resp, err := hc.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer live-token", gotAuth)
}
