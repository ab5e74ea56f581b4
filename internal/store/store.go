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

// Package store is the Postgres persistence layer: users' login timestamps,
// workflows with their run bookkeeping, and login-window digests.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/griffinhampton/mailflow/internal/models"
)

// Store provides the queries the workflow, digest and trigger packages need.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given pool and makes sure its tables
// exist.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

// ensureSchema creates the tables when missing. users and workflows are
// owned by the web application; creating them here lets a fresh database
// work for local runs.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id             BIGSERIAL PRIMARY KEY,
			email          TEXT NOT NULL UNIQUE,
			username       TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login     TIMESTAMPTZ,
			previous_login TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS workflows (
			id                    BIGSERIAL PRIMARY KEY,
			user_id               BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name                  TEXT NOT NULL DEFAULT '',
			trigger               JSONB,
			actions               JSONB,
			is_active             BOOLEAN NOT NULL DEFAULT TRUE,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_run              TIMESTAMPTZ,
			run_count             INTEGER NOT NULL DEFAULT 0,
			last_email_trigger_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_workflows_user ON workflows(user_id);
		CREATE INDEX IF NOT EXISTS idx_workflows_active ON workflows(is_active);

		CREATE TABLE IF NOT EXISTS email_summaries (
			id              BIGSERIAL PRIMARY KEY,
			user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider        TEXT NOT NULL DEFAULT 'GOOGLE',
			source          TEXT NOT NULL,
			window_start    TIMESTAMPTZ NOT NULL,
			window_end      TIMESTAMPTZ NOT NULL,
			condition       JSONB,
			email_count     INTEGER NOT NULL DEFAULT 0,
			summary_text    TEXT NOT NULL DEFAULT '',
			latest_email_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, window_start, window_end, source)
		);
	`)
	return err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// GetUser returns a user, or nil if there is none.
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, username, created_at, last_login, previous_login
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.Username, &u.CreatedAt, &u.LastLogin, &u.PreviousLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}

const workflowColumns = `
	id, user_id, name, trigger, actions, is_active, created_at,
	last_run, run_count, last_email_trigger_at`

// GetWorkflow returns the workflow if it belongs to userID, or nil.
func (s *Store) GetWorkflow(ctx context.Context, workflowID, userID int64) (*models.Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows
		WHERE id = $1 AND user_id = $2
	`, workflowID, userID)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %d: %w", workflowID, err)
	}
	return w, nil
}

// ListActiveWorkflows returns every active workflow, oldest first.
func (s *Store) ListActiveWorkflows(ctx context.Context) ([]models.Workflow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows
		WHERE is_active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// RecordRun bumps a workflow's run count and last-run time. A non-nil
// triggerAt becomes the new-mail cursor.
func (s *Store) RecordRun(ctx context.Context, workflowID int64, ranAt time.Time, triggerAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows
		SET run_count             = run_count + 1,
		    last_run              = $2,
		    last_email_trigger_at = COALESCE($3, last_email_trigger_at)
		WHERE id = $1
	`, workflowID, ranAt, triggerAt)
	if err != nil {
		return fmt.Errorf("record run for workflow %d: %w", workflowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record run: workflow %d no longer exists", workflowID)
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var w models.Workflow
	if err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.Trigger, &w.Actions, &w.IsActive, &w.CreatedAt,
		&w.LastRun, &w.RunCount, &w.LastEmailTriggerAt,
	); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetDigest returns the digest stored under key, or nil.
func (s *Store) GetDigest(ctx context.Context, key models.DigestKey) (*models.DigestRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, source, window_start, window_end, condition,
		       email_count, summary_text, latest_email_at, created_at
		FROM email_summaries
		WHERE user_id = $1 AND window_start = $2 AND window_end = $3 AND source = $4
	`, key.UserID, key.WindowStart, key.WindowEnd, key.Source)

	var r models.DigestRecord
	err := row.Scan(
		&r.ID, &r.UserID, &r.Provider, &r.Source, &r.WindowStart, &r.WindowEnd, &r.Condition,
		&r.EmailCount, &r.SummaryText, &r.LatestEmailAt, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}
	return &r, nil
}

// InsertDigest stores a digest unless one already exists for its key, and
// returns whichever record holds the key afterwards. Two concurrent inserts
// for the same key therefore return the same record.
func (s *Store) InsertDigest(ctx context.Context, rec models.DigestRecord) (*models.DigestRecord, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_summaries
			(user_id, provider, source, window_start, window_end, condition,
			 email_count, summary_text, latest_email_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, window_start, window_end, source) DO NOTHING
	`, rec.UserID, rec.Provider, rec.Source, rec.WindowStart, rec.WindowEnd, rec.Condition,
		rec.EmailCount, rec.SummaryText, rec.LatestEmailAt)
	if err != nil {
		return nil, fmt.Errorf("insert digest: %w", err)
	}

	stored, err := s.GetDigest(ctx, rec.Key())
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("insert digest: record for user %d vanished after insert", rec.UserID)
	}
	return stored, nil
}
