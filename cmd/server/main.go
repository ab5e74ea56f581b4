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

// mailflow server
//
// Entry point for the workflow and digest service. It:
//  1. Loads configuration from .env, config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Serves the HTTP API (workflows, digests, mailbox actions, health, metrics)
//  4. Polls mail-triggered workflows in the background
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/griffinhampton/mailflow/internal/api"
	"github.com/griffinhampton/mailflow/internal/app"
	"github.com/griffinhampton/mailflow/internal/config"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailflow server")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"poll_enabled", cfg.PollEnabled,
		"poll_interval", cfg.PollInterval,
		"summarizer", cfg.Summarizer.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- HTTP API ---
	stopped, err := api.Serve(ctx, cfg.Port, a.Handler().Router())
	if err != nil {
		slog.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	// --- Trigger poller ---
	if cfg.PollEnabled {
		go a.Poller.Run(ctx)
	} else {
		slog.Info("trigger poller disabled; relying on /api/triggers/email")
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case <-stopped:
		slog.Error("http server exited unexpectedly")
	}

	cancel()
	<-stopped

	slog.Info("mailflow server stopped")
}
