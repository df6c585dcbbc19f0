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
	"testing"
	"time"

	"github.com/Bose/minisentinel"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/telemetry"
)

func createRedis(t *testing.T) *miniredis.Miniredis {
	mredis, err := miniredis.Run()
	if err != nil {
		t.Fatalf("cannot create redis %s", err)
	}
	t.Cleanup(mredis.Close)
	return mredis
}

func redisConfig(host, port string) config.Mutable {
	cfg := viper.New()
	cfg.Set("cache.redis.enabled", true)
	cfg.Set("cache.redis.hostname", host)
	cfg.Set("cache.redis.port", port)
	cfg.Set("cache.redis.pool.maxIdle", 5)
	cfg.Set("cache.redis.pool.maxActive", 5)
	cfg.Set("cache.redis.pool.idleTimeout", time.Second)
	cfg.Set("cache.redis.pool.healthCheckTimeout", 100*time.Millisecond)
	return cfg
}

func newRedisService(t *testing.T, cfg config.View) *multiTier {
	mt := newMultiTier(cfg)
	t.Cleanup(func() { require.NoError(t, mt.Close()) })
	return mt
}

func TestRedisSetup(t *testing.T) {
	mredis := createRedis(t)
	cfg := redisConfig(mredis.Host(), mredis.Port())
	cfg.Set(telemetry.ConfigNameEnableMetrics, true)

	service := New(cfg)
	require.NotNil(t, service)
	defer service.Close()

	is, ok := service.(*instrumentedService)
	require.True(t, ok)
	_, ok = is.s.(*multiTier)
	require.True(t, ok)

	require.NotNil(t, LockerFor(service))
	require.NoError(t, service.HealthCheck(context.Background()))
}

func TestRedisWriteBehind(t *testing.T) {
	mredis := createRedis(t)
	s := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 3}, time.Hour)

	require.Eventually(t, func() bool {
		_, err := mredis.Get(ScheduleKey("fp1"))
		return err == nil
	}, time.Second, 5*time.Millisecond)
	require.Greater(t, mredis.TTL(ScheduleKey("fp1")), time.Duration(0))

	// Constraint results stay local to the replica.
	s.Set(ctx, ConstraintKey("rest-days", "fp1", nil), fakeResult{Score: 1}, time.Hour)
	time.Sleep(50 * time.Millisecond)
	_, err := mredis.Get(ConstraintKey("rest-days", "fp1", nil))
	require.Error(t, err)
}

func TestRedisReadThroughBackfill(t *testing.T) {
	mredis := createRedis(t)
	a := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))
	ctx := context.Background()

	want := fakeResult{Score: 7.5, Valid: true}
	a.Set(ctx, ScheduleKey("fp1"), want, time.Hour)
	require.Eventually(t, func() bool {
		_, err := mredis.Get(ScheduleKey("fp1"))
		return err == nil
	}, time.Second, 5*time.Millisecond)

	// A fresh replica sharing the redis tier sees the result and backfills
	// its own memory tier.
	b := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))

	var got fakeResult
	require.True(t, b.Get(ctx, ScheduleKey("fp1"), &got))
	require.Equal(t, want, got)

	blob, ok := b.memory.lookup(ScheduleKey("fp1"))
	require.True(t, ok)
	require.NotEmpty(t, blob)
}

func TestRedisInvalidate(t *testing.T) {
	mredis := createRedis(t)
	s := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 1}, time.Hour)
	s.Set(ctx, ScheduleKey("fp2"), fakeResult{Score: 2}, time.Hour)
	require.Eventually(t, func() bool {
		_, err1 := mredis.Get(ScheduleKey("fp1"))
		_, err2 := mredis.Get(ScheduleKey("fp2"))
		return err1 == nil && err2 == nil
	}, time.Second, 5*time.Millisecond)

	// Two memory entries plus two redis keys go away.
	require.Equal(t, 4, s.Invalidate(ctx, "schedule:*"))

	var got fakeResult
	require.False(t, s.Get(ctx, ScheduleKey("fp1"), &got))
	_, err := mredis.Get(ScheduleKey("fp1"))
	require.Error(t, err)
}

func TestRedisSentinel(t *testing.T) {
	mredis := miniredis.NewMiniRedis()
	err := mredis.StartAddr("localhost:0")
	if err != nil {
		t.Fatalf("failed to start miniredis, %v", err)
	}
	t.Cleanup(mredis.Close)

	msentinel := minisentinel.NewSentinel(mredis)
	err = msentinel.StartAddr("localhost:0")
	if err != nil {
		t.Fatalf("failed to start minisentinel, %v", err)
	}
	t.Cleanup(msentinel.Close)

	cfg := viper.New()
	cfg.Set("cache.redis.enabled", true)
	cfg.Set("cache.redis.sentinelHostname", msentinel.Host())
	cfg.Set("cache.redis.sentinelPort", msentinel.Port())
	cfg.Set("cache.redis.sentinelMaster", msentinel.MasterInfo().Name)
	cfg.Set("cache.redis.pool.maxIdle", 5)
	cfg.Set("cache.redis.pool.maxActive", 5)
	cfg.Set("cache.redis.pool.idleTimeout", time.Second)
	cfg.Set("cache.redis.pool.healthCheckTimeout", 100*time.Millisecond)

	s := newRedisService(t, cfg)
	ctx := context.Background()
	require.NoError(t, s.HealthCheck(ctx))

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 4}, time.Hour)
	require.Eventually(t, func() bool {
		_, err := mredis.Get(ScheduleKey("fp1"))
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRedisConnectCanceled(t *testing.T) {
	mredis := createRedis(t)
	s := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn, err := s.redis.connect(ctx)
	require.Error(t, err)
	require.Nil(t, conn)
}

func TestLocker(t *testing.T) {
	mredis := createRedis(t)
	s := newRedisService(t, redisConfig(mredis.Host(), mredis.Port()))
	ctx := context.Background()

	locker := LockerFor(s)
	require.NotNil(t, locker)

	unlock, err := locker.Lock(ctx, "fp1")
	require.NoError(t, err)

	// The lock is held, a second taker gives up after its retries.
	_, err = locker.Lock(ctx, "fp1")
	require.Error(t, err)

	unlock()

	unlock2, err := locker.Lock(ctx, "fp1")
	require.NoError(t, err)
	unlock2()

	// Memory-only caches have no cross replica locker.
	memOnly := newMemoryService(t, nil)
	require.Nil(t, LockerFor(memOnly))
}
