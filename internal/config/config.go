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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Summarizer modes. An empty mode uses the summarizer when a key is set.
const (
	SummaryModeAI            = "ai"
	SummaryModeDeterministic = "deterministic"
)

// GoogleConfig holds the OAuth client used to refresh mailbox tokens.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SummarizerConfig configures the chat completion endpoint.
type SummarizerConfig struct {
	Mode            string
	APIURL          string
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxEmails       int
	MaxSnippetChars int
}

// Enabled reports whether digests and replies should call the model.
func (s SummarizerConfig) Enabled() bool {
	if strings.EqualFold(s.Mode, SummaryModeDeterministic) {
		return false
	}
	return strings.TrimSpace(s.APIKey) != ""
}

// Config holds all configuration for the service.
type Config struct {
	DatabaseURL string

	// Redis
	RedisURL    string
	KeyPrefix   string
	EventsQueue string

	// Trigger polling
	PollInterval  time.Duration
	PollEnabled   bool
	TriggerSecret string
	ClaimTTL      time.Duration

	Google     GoogleConfig
	Summarizer SummarizerConfig

	// Digest
	InboxLink        string
	FetchConcurrency int
	HeuristicsPath   string

	// Server
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL       string `yaml:"url"`
		KeyPrefix string `yaml:"key_prefix"`
		Queues    struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Google struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURL  string `yaml:"redirect_url"`
	} `yaml:"google"`
	Summarizer struct {
		Mode   string `yaml:"mode"`
		APIURL string `yaml:"api_url"`
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"summarizer"`
	Digest struct {
		InboxLink      string `yaml:"inbox_link"`
		HeuristicsPath string `yaml:"heuristics_path"`
	} `yaml:"digest"`
	Trigger struct {
		Secret string `yaml:"secret"`
	} `yaml:"trigger"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// not an error; everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:   firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:      firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		KeyPrefix:     firstNonEmpty(raw.Redis.KeyPrefix, envOrDefault("REDIS_KEY_PREFIX", "mailflow:")),
		EventsQueue:   firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "mailflow:events")),
		PollInterval:  envOrDefaultDuration("POLL_INTERVAL", 60*time.Second),
		PollEnabled:   envOrDefaultBool("POLL_ENABLED", true),
		TriggerSecret: firstNonEmpty(raw.Trigger.Secret, os.Getenv("WORKFLOW_TRIGGER_SECRET")),
		ClaimTTL:      envOrDefaultDuration("CLAIM_TTL", 5*time.Minute),
		Google: GoogleConfig{
			ClientID:     firstNonEmpty(raw.Google.ClientID, os.Getenv("GOOGLE_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.Google.ClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET")),
			RedirectURL:  firstNonEmpty(raw.Google.RedirectURL, os.Getenv("GOOGLE_REDIRECT_URI")),
		},
		Summarizer: SummarizerConfig{
			Mode:            strings.ToLower(firstNonEmpty(raw.Summarizer.Mode, os.Getenv("EMAIL_SUMMARY_MODE"))),
			APIURL:          firstNonEmpty(raw.Summarizer.APIURL, os.Getenv("AI_BASE_URL")),
			APIKey:          firstNonEmpty(raw.Summarizer.APIKey, os.Getenv("CLIENT_AI_API_KEY")),
			Model:           firstNonEmpty(raw.Summarizer.Model, os.Getenv("AI_MODEL")),
			Timeout:         envOrDefaultDuration("AI_TIMEOUT", 30*time.Second),
			MaxEmails:       envOrDefaultInt("AI_MAX_EMAILS", 25),
			MaxSnippetChars: envOrDefaultInt("AI_MAX_SNIPPET_CHARS", 400),
		},
		InboxLink:        firstNonEmpty(raw.Digest.InboxLink, os.Getenv("INBOX_LINK")),
		FetchConcurrency: envOrDefaultInt("DIGEST_FETCH_CONCURRENCY", 1),
		HeuristicsPath:   firstNonEmpty(raw.Digest.HeuristicsPath, os.Getenv("HEURISTICS_PATH")),
		Port:             envOrDefaultInt("PORT", 8080),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database configured: set database.url or DATABASE_URL")
	}
	switch cfg.Summarizer.Mode {
	case "", SummaryModeAI, SummaryModeDeterministic:
	default:
		return nil, fmt.Errorf("unknown summarizer mode %q", cfg.Summarizer.Mode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
