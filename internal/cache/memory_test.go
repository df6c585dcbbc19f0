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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	Score      float64  `json:"score"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

func newMemoryService(t *testing.T, settings map[string]interface{}) *multiTier {
	cfg := viper.New()
	for k, v := range settings {
		cfg.Set(k, v)
	}
	mt := newMultiTier(cfg)
	t.Cleanup(func() { require.NoError(t, mt.Close()) })
	return mt
}

// setClock swaps the store's clock under its lock so the sweeper never
// observes a half written function value.
func setClock(s *multiTier, now func() time.Time) {
	s.memory.mu.Lock()
	s.memory.now = now
	s.memory.mu.Unlock()
}

// steppingClock hands out strictly increasing instants one second apart.
func steppingClock(start time.Time) func() time.Time {
	tick := 0
	return func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}
}

func TestRoundTrip(t *testing.T) {
	s := newMemoryService(t, nil)
	ctx := context.Background()

	want := fakeResult{Score: 42.5, Valid: false, Violations: []string{"rest-days"}}
	s.Set(ctx, ScheduleKey("fp1"), want, 0)

	var got fakeResult
	require.True(t, s.Get(ctx, ScheduleKey("fp1"), &got))
	require.Equal(t, want, got)

	require.False(t, s.Get(ctx, ScheduleKey("other"), &got))

	stats := s.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Sets)
	require.False(t, stats.RedisEnabled)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	s := newMemoryService(t, nil)
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 1}, time.Minute)
	setClock(s, func() time.Time { return time.Now().Add(2 * time.Minute) })

	var got fakeResult
	require.False(t, s.Get(ctx, ScheduleKey("fp1"), &got))

	stats := s.Stats()
	require.Equal(t, 0, stats.Entries)
	require.Equal(t, int64(1), stats.Expirations)
}

func TestDefaultTTLApplied(t *testing.T) {
	s := newMemoryService(t, map[string]interface{}{"cache.cacheTTL": time.Hour})
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 1}, 0)

	s.memory.mu.Lock()
	e := s.memory.entries[ScheduleKey("fp1")]
	s.memory.mu.Unlock()

	require.NotNil(t, e)
	require.False(t, e.ExpiresAt.IsZero())
	require.InDelta(t, time.Hour.Seconds(), time.Until(e.ExpiresAt).Seconds(), 5)
}

func TestEvictionPrefersColdEntries(t *testing.T) {
	s := newMemoryService(t, map[string]interface{}{"cache.cacheSize": 10})
	ctx := context.Background()
	setClock(s, steppingClock(time.Unix(1700000000, 0)))

	for i := 0; i < 10; i++ {
		s.Set(ctx, fmt.Sprintf("schedule:fp%d", i), fakeResult{Score: float64(i)}, 0)
	}

	// Touch one of the older entries so its hit count protects it.
	var got fakeResult
	require.True(t, s.Get(ctx, "schedule:fp1", &got))

	// The store is full, so the next write evicts the lowest scored entry.
	s.Set(ctx, "schedule:fp10", fakeResult{Score: 10}, 0)

	require.False(t, s.Get(ctx, "schedule:fp0", &got))
	require.True(t, s.Get(ctx, "schedule:fp1", &got))
	require.True(t, s.Get(ctx, "schedule:fp10", &got))
	require.Equal(t, int64(1), s.Stats().Evictions)
}

func TestMemoryBudgetEviction(t *testing.T) {
	s := newMemoryService(t, map[string]interface{}{
		"cache.maxMemoryMB":               1,
		"cache.compressionThresholdBytes": 10 << 20, // keep payloads uncompressed
	})
	ctx := context.Background()

	big := strings.Repeat("x", 700<<10)
	s.Set(ctx, "partial:a", big, 0)
	s.Set(ctx, "partial:b", big, 0)

	var got string
	require.False(t, s.Get(ctx, "partial:a", &got))
	require.True(t, s.Get(ctx, "partial:b", &got))
	require.Equal(t, big, got)
	require.LessOrEqual(t, s.Stats().MemoryBytes, int64(1<<20))
}

func TestOversizedPayloadNotStored(t *testing.T) {
	s := newMemoryService(t, map[string]interface{}{
		"cache.maxMemoryMB":               1,
		"cache.compressionThresholdBytes": 10 << 20,
	})
	ctx := context.Background()

	s.Set(ctx, "partial:huge", strings.Repeat("x", 2<<20), 0)

	var got string
	require.False(t, s.Get(ctx, "partial:huge", &got))
	require.Equal(t, 0, s.Stats().Entries)
}

func TestInvalidatePattern(t *testing.T) {
	s := newMemoryService(t, nil)
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 1}, 0)
	s.Set(ctx, ScheduleKey("fp2"), fakeResult{Score: 2}, 0)
	s.Set(ctx, ConstraintKey("rest-days", "fp1", nil), fakeResult{Score: 3}, 0)

	require.Equal(t, 2, s.Invalidate(ctx, "schedule:*"))

	var got fakeResult
	require.False(t, s.Get(ctx, ScheduleKey("fp1"), &got))
	require.True(t, s.Get(ctx, ConstraintKey("rest-days", "fp1", nil), &got))

	// Malformed patterns remove nothing.
	require.Equal(t, 0, s.Invalidate(ctx, "["))
}

func TestCompressionOverThreshold(t *testing.T) {
	s := newMemoryService(t, nil)
	ctx := context.Background()

	payload := fakeResult{
		Score:      9,
		Violations: []string{strings.Repeat("overlapping venue assignment ", 100)},
	}
	s.Set(ctx, ScheduleKey("big"), payload, 0)
	s.Set(ctx, ScheduleKey("small"), fakeResult{Score: 1}, 0)

	s.memory.mu.Lock()
	big := s.memory.entries[ScheduleKey("big")]
	small := s.memory.entries[ScheduleKey("small")]
	s.memory.mu.Unlock()

	require.NotNil(t, big)
	require.True(t, big.Compressed)
	require.Less(t, big.Size, 2900) // the raw payload is ~2.9KB
	require.NotNil(t, small)
	require.False(t, small.Compressed)

	var got fakeResult
	require.True(t, s.Get(ctx, ScheduleKey("big"), &got))
	require.Equal(t, payload, got)
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newMemoryService(t, map[string]interface{}{"cache.cleanupIntervalMs": 10})
	ctx := context.Background()

	s.Set(ctx, ScheduleKey("fp1"), fakeResult{Score: 1}, time.Minute)
	setClock(s, func() time.Time { return time.Now().Add(2 * time.Minute) })

	require.Eventually(t, func() bool {
		stats := s.Stats()
		return stats.Entries == 0 && stats.Expirations == 1
	}, time.Second, 5*time.Millisecond)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "schedule:abc", ScheduleKey("abc"))
	require.Equal(t, "partial:travel-matrix", PartialKey("travel-matrix"))
	require.Equal(t, "constraint:rest-days:abc", ConstraintKey("rest-days", "abc", nil))

	params := map[string]interface{}{"minDays": 1, "weight": 2.5}
	withParams := ConstraintKey("rest-days", "abc", params)
	require.True(t, strings.HasPrefix(withParams, "constraint:rest-days:abc:"))
	require.Len(t, ParamsHash(params), 16)
}

func TestParamsHashStable(t *testing.T) {
	a := map[string]interface{}{"minDays": 1, "maxLegKilometers": 500, "costPerKilometer": 0.01}
	b := map[string]interface{}{"costPerKilometer": 0.01, "minDays": 1, "maxLegKilometers": 500}
	require.Equal(t, ParamsHash(a), ParamsHash(b))
	require.NotEqual(t, ParamsHash(a), ParamsHash(map[string]interface{}{"minDays": 2}))
}

func TestCodec(t *testing.T) {
	small, err := encode(fakeResult{Score: 1}, 1024)
	require.NoError(t, err)
	require.False(t, isCompressed(small))

	big, err := encode(strings.Repeat("venue ", 1000), 1024)
	require.NoError(t, err)
	require.True(t, isCompressed(big))

	var out string
	require.NoError(t, decode(big, &out))
	require.Equal(t, strings.Repeat("venue ", 1000), out)

	require.Error(t, decode([]byte{0x1f, 0x8b, 0x00}, &out))
}
