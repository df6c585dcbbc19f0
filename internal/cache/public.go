// Copyright 2023 The OpenSlate Authors
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

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/telemetry"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "openslate",
	"component": "cache",
})

const (
	defaultMaxEntries           = 10000
	defaultMaxMemoryMB          = 100
	defaultTTL                  = time.Hour
	defaultCleanupIntervalMs    = 60000
	defaultCompressionThreshold = 1024
	defaultEvictionWeightFactor = 60000
)

// Key namespaces. Schedule results are the only tier shared through redis.
const (
	scheduleKeyPrefix   = "schedule:"
	constraintKeyPrefix = "constraint:"
	partialKeyPrefix    = "partial:"
)

// Service is a generic interface for the evaluation result cache. Faults in
// any tier degrade to a miss or a no-op; they are logged, never returned.
type Service interface {
	// Get loads the value stored under key into out and reports whether it
	// was found.
	Get(ctx context.Context, key string, out interface{}) bool

	// Set stores value under key. A ttl of zero or less applies the
	// configured default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)

	// Delete removes the entry stored under key from every tier.
	Delete(ctx context.Context, key string)

	// Invalidate removes all entries whose keys match the path.Match style
	// pattern and returns the number of entries removed across tiers.
	Invalidate(ctx context.Context, pattern string) int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// HealthCheck indicates if every enabled tier is reachable.
	HealthCheck(ctx context.Context) error

	// Close stops the sweeper and releases any redis connections.
	Close() error
}

// Stats is a point in time snapshot of cache activity.
type Stats struct {
	Entries      int
	MemoryBytes  int64
	Hits         int64
	Misses       int64
	Evictions    int64
	Expirations  int64
	Sets         int64
	RedisEnabled bool
}

// Locking is implemented by caches able to coordinate cold computations
// across replicas.
type Locking interface {
	Locker() *Locker
}

// LockerFor returns the cross replica locker behind s, or nil when s cannot
// coordinate across replicas.
func LockerFor(s Service) *Locker {
	if l, ok := s.(Locking); ok {
		return l.Locker()
	}
	return nil
}

// New creates a Service based on the configuration. The memory tier is
// always present; a shared redis tier is added when cache.redis.enabled is
// set.
func New(cfg config.View) Service {
	var s Service = newMultiTier(cfg)
	if cfg.GetBool(telemetry.ConfigNameEnableMetrics) {
		s = &instrumentedService{
			s: s,
		}
	}
	return s
}

// ScheduleKey returns the cache key for a full schedule evaluation result.
func ScheduleKey(fingerprint string) string {
	return scheduleKeyPrefix + fingerprint
}

// ConstraintKey returns the cache key for a single constraint result.
// Parameters are folded into the key so a re-parameterized constraint does
// not collide with its previous results.
func ConstraintKey(constraintID, fingerprint string, params map[string]interface{}) string {
	key := constraintKeyPrefix + constraintID + ":" + fingerprint
	if len(params) > 0 {
		key += ":" + ParamsHash(params)
	}
	return key
}

// PartialKey returns the cache key for an intermediate computation shared
// between constraints.
func PartialKey(name string) string {
	return partialKeyPrefix + name
}

// ParamsHash returns a short stable digest of a parameter map. The JSON
// encoder sorts map keys, so iteration order does not matter.
func ParamsHash(params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return "unhashable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// multiTier chains the memory tier with the optional shared redis tier.
type multiTier struct {
	cfg       config.View
	memory    *memoryStore
	redis     *redisTier // nil when the redis tier is disabled
	locker    *Locker    // nil when the redis tier is disabled
	threshold int
}

func newMultiTier(cfg config.View) *multiTier {
	mt := &multiTier{
		cfg:       cfg,
		memory:    newMemoryStore(cfg),
		threshold: intFromConfig(cfg, "cache.compressionThresholdBytes", defaultCompressionThreshold),
	}
	if cfg.GetBool("cache.redis.enabled") {
		mt.redis = newRedisTier(cfg)
		mt.locker = newLocker(mt.redis.redisPool)
	}
	return mt
}

func (mt *multiTier) Get(ctx context.Context, key string, out interface{}) bool {
	blob, ok := mt.memory.lookup(key)
	if !ok && mt.sharedTier(key) {
		remote, ttl, err := mt.redis.get(ctx, key)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				logger.WithError(err).WithField("key", key).Warning("redis tier read failed, treating as miss")
			}
			return false
		}
		mt.memory.store(ctx, key, remote, ttl)
		blob, ok = remote, true
	}
	if !ok {
		return false
	}

	if err := decode(blob, out); err != nil {
		logger.WithError(err).WithField("key", key).Warning("dropping cache entry that cannot be decoded")
		mt.memory.remove(key)
		return false
	}
	return true
}

func (mt *multiTier) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	blob, err := encode(value, mt.threshold)
	if err != nil {
		logger.WithError(err).WithField("key", key).Warning("cache write skipped")
		return
	}
	if ttl <= 0 {
		ttl = mt.memory.defaultTTL
	}

	mt.memory.store(ctx, key, blob, ttl)
	if mt.sharedTier(key) {
		mt.redis.enqueue(key, blob, ttl)
	}
}

func (mt *multiTier) Delete(ctx context.Context, key string) {
	mt.memory.remove(key)
	if mt.sharedTier(key) {
		if err := mt.redis.del(ctx, key); err != nil {
			logger.WithError(err).WithField("key", key).Warning("redis tier delete failed")
		}
	}
}

func (mt *multiTier) Invalidate(ctx context.Context, pattern string) int {
	removed := mt.memory.invalidate(pattern)
	if mt.redis != nil {
		n, err := mt.redis.invalidate(ctx, pattern)
		if err != nil {
			logger.WithError(err).WithField("pattern", pattern).Warning("redis tier invalidation failed")
		}
		removed += n
	}
	return removed
}

func (mt *multiTier) Stats() Stats {
	s := mt.memory.snapshot()
	s.RedisEnabled = mt.redis != nil
	return s
}

func (mt *multiTier) HealthCheck(ctx context.Context) error {
	if mt.redis == nil {
		return nil
	}
	return mt.redis.healthCheck(ctx)
}

func (mt *multiTier) Close() error {
	mt.memory.close()
	if mt.redis != nil {
		return mt.redis.close()
	}
	return nil
}

// Locker returns the cross replica locker, nil when the redis tier is
// disabled.
func (mt *multiTier) Locker() *Locker {
	return mt.locker
}

// sharedTier reports whether the key belongs to the namespace replicated
// through redis.
func (mt *multiTier) sharedTier(key string) bool {
	return mt.redis != nil && strings.HasPrefix(key, scheduleKeyPrefix)
}

func intFromConfig(cfg config.View, key string, def int) int {
	if cfg.IsSet(key) {
		return cfg.GetInt(key)
	}
	return def
}

func durationFromConfig(cfg config.View, key string, def time.Duration) time.Duration {
	if cfg.IsSet(key) {
		return cfg.GetDuration(key)
	}
	return def
}
