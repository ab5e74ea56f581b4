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

// Package app connects the service's dependencies from configuration. The
// server and the CLI share it so both run against the same wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/griffinhampton/mailflow/internal/api"
	"github.com/griffinhampton/mailflow/internal/config"
	"github.com/griffinhampton/mailflow/internal/dedup"
	"github.com/griffinhampton/mailflow/internal/digest"
	"github.com/griffinhampton/mailflow/internal/gmail"
	"github.com/griffinhampton/mailflow/internal/inbox"
	"github.com/griffinhampton/mailflow/internal/llm"
	"github.com/griffinhampton/mailflow/internal/queue"
	"github.com/griffinhampton/mailflow/internal/store"
	"github.com/griffinhampton/mailflow/internal/triage"
	"github.com/griffinhampton/mailflow/internal/trigger"
	"github.com/griffinhampton/mailflow/internal/workflow"
)

// App holds the connected services.
type App struct {
	Config *config.Config

	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Store  *store.Store
	Events *queue.Publisher
	Gmail  *gmail.Client
	Scorer *triage.Scorer
	LLM    *llm.Client

	Digests *digest.Builder
	Runner  *workflow.Runner
	Poller  *trigger.Poller
	Inbox   *inbox.Service
}

// New connects to PostgreSQL and Redis and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	// --- Connect to PostgreSQL ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	a.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	a.Store, err = store.New(ctx, pool)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialise store: %w", err)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opt)

	a.Events = queue.NewPublisher(a.Redis, cfg.EventsQueue)
	if err := a.Events.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	slog.Info("connected to Redis")

	// --- Gmail gateway ---
	tokens := gmail.NewTokenStore(a.Redis, cfg.KeyPrefix, gmail.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	a.Gmail = gmail.NewClient(gmail.ClientConfig{Auth: tokens})

	// --- Triage tables ---
	tables := triage.DefaultTables()
	if cfg.HeuristicsPath != "" {
		tables, err = triage.LoadTables(cfg.HeuristicsPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		slog.Info("loaded heuristic tables", "path", cfg.HeuristicsPath)
	}
	a.Scorer = triage.NewScorer(tables)

	// --- Summarizer ---
	// Interfaces stay nil when the summarizer is off so callers fall back.
	var summarizer digest.Summarizer
	var drafter inbox.Drafter
	if cfg.Summarizer.Enabled() {
		a.LLM, err = llm.NewClient(llm.Config{
			APIURL:  cfg.Summarizer.APIURL,
			APIKey:  cfg.Summarizer.APIKey,
			Model:   cfg.Summarizer.Model,
			Timeout: cfg.Summarizer.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		summarizer, drafter = a.LLM, a.LLM
	}
	slog.Info("summarizer configured", "enabled", a.LLM != nil)

	a.Digests = digest.NewBuilder(digest.Config{
		Store:               a.Store,
		Mailbox:             a.Gmail,
		Scorer:              a.Scorer,
		Summarizer:          summarizer,
		Events:              a.Events,
		InboxLink:           cfg.InboxLink,
		FetchConcurrency:    cfg.FetchConcurrency,
		SummaryMaxEmails:    cfg.Summarizer.MaxEmails,
		SummarySnippetChars: cfg.Summarizer.MaxSnippetChars,
	})

	a.Runner = workflow.NewRunner(workflow.RunnerConfig{
		Store:   a.Store,
		Mailer:  a.Gmail,
		Digests: a.Digests,
		Events:  a.Events,
	})

	a.Poller = trigger.NewPoller(trigger.PollerConfig{
		Store:    a.Store,
		Mailbox:  a.Gmail,
		Runner:   a.Runner,
		Claims:   dedup.NewFilter(a.Redis, cfg.KeyPrefix, cfg.ClaimTTL),
		Interval: cfg.PollInterval,
	})

	a.Inbox = inbox.NewService(inbox.Config{
		Users:   a.Store,
		Mailbox: a.Gmail,
		Drafter: drafter,
	})

	return a, nil
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() *api.Handler {
	return api.NewHandler(api.Config{
		Runner:        a.Runner,
		Poller:        a.Poller,
		Digests:       a.Digests,
		Inbox:         a.Inbox,
		TriggerSecret: a.Config.TriggerSecret,
		Health: map[string]api.HealthCheck{
			"redis":    a.Events.Ping,
			"postgres": a.Store.Ping,
		},
	})
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("failed to close Redis client", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
