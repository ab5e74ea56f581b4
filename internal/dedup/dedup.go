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

// Package dedup provides short-lived claims backed by Redis SET NX with a
// TTL. The trigger poller claims each workflow before running it so two
// poller replicas never run the same workflow in the same tick.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a claim survives a crashed holder.
	DefaultTTL = 5 * time.Minute

	// keyPrefix namespaces claim keys in Redis.
	keyPrefix = "claim:"
)

// Filter hands out claims on string keys.
type Filter struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewFilter creates a claim filter. prefix is prepended to every key.
func NewFilter(rdb *redis.Client, prefix string, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		rdb:    rdb,
		prefix: prefix + keyPrefix,
		ttl:    ttl,
	}
}

// Claim returns true if the caller now holds key. It returns false when
// another holder has it.
func (f *Filter) Claim(ctx context.Context, key string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, f.prefix+key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim SETNX: %w", err)
	}
	return set, nil
}

// Release drops a claim early.
func (f *Filter) Release(ctx context.Context, key string) error {
	if err := f.rdb.Del(ctx, f.prefix+key).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
