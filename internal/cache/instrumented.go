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
	"time"

	"go.opencensus.io/trace"
	"openslate.dev/openslate/internal/telemetry"
)

var (
	mCacheHits          = telemetry.Counter("cache/hits", "lookups served from cache")
	mCacheMisses        = telemetry.Counter("cache/misses", "lookups that found nothing")
	mCacheSets          = telemetry.Counter("cache/sets", "entries written")
	mCacheDeletes       = telemetry.Counter("cache/deletes", "entries removed by key")
	mCacheInvalidations = telemetry.Counter("cache/invalidations", "entries removed by pattern invalidation")
	mCacheEntries       = telemetry.Gauge("cache/entries", "entries resident in the memory tier")
	mCacheMemoryBytes   = telemetry.Gauge("cache/memorybytes", "payload bytes resident in the memory tier")
)

// instrumentedService is a wrapper for a cache service that provides instrumentation (metrics and tracing).
type instrumentedService struct {
	s Service
}

func (is *instrumentedService) Get(ctx context.Context, key string, out interface{}) bool {
	ctx, span := trace.StartSpan(ctx, "cache/instrumented.Get")
	defer span.End()
	found := is.s.Get(ctx, key, out)
	if found {
		telemetry.RecordUnitMeasurement(ctx, mCacheHits)
	} else {
		telemetry.RecordUnitMeasurement(ctx, mCacheMisses)
	}
	return found
}

func (is *instrumentedService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	ctx, span := trace.StartSpan(ctx, "cache/instrumented.Set")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mCacheSets)
	is.s.Set(ctx, key, value, ttl)
}

func (is *instrumentedService) Delete(ctx context.Context, key string) {
	ctx, span := trace.StartSpan(ctx, "cache/instrumented.Delete")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mCacheDeletes)
	is.s.Delete(ctx, key)
}

func (is *instrumentedService) Invalidate(ctx context.Context, pattern string) int {
	ctx, span := trace.StartSpan(ctx, "cache/instrumented.Invalidate")
	defer span.End()
	removed := is.s.Invalidate(ctx, pattern)
	telemetry.RecordNUnitMeasurement(ctx, mCacheInvalidations, int64(removed))
	return removed
}

func (is *instrumentedService) Stats() Stats {
	return is.s.Stats()
}

// HealthCheck indicates if every enabled tier is reachable and refreshes
// the occupancy gauges.
func (is *instrumentedService) HealthCheck(ctx context.Context) error {
	stats := is.s.Stats()
	telemetry.SetGauge(ctx, mCacheEntries, int64(stats.Entries))
	telemetry.SetGauge(ctx, mCacheMemoryBytes, stats.MemoryBytes)
	return is.s.HealthCheck(ctx)
}

func (is *instrumentedService) Close() error {
	return is.s.Close()
}

// Locker exposes the wrapped service's cross replica locker.
func (is *instrumentedService) Locker() *Locker {
	return LockerFor(is.s)
}
