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
	"path"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/telemetry"
)

// Entry is a single record in the memory tier.
type Entry struct {
	Key        string
	Data       []byte
	CreatedAt  time.Time
	ExpiresAt  time.Time // zero means the entry never expires
	Compressed bool
	Size       int
	Hits       int64
	LastAccess time.Time
}

// memoryStore is the always present first tier. Entries expire lazily on
// lookup and eagerly on a periodic sweep. When the store would exceed its
// entry or byte budget the lowest scored tenth of the entries is evicted,
// where score = lastAccess(unix ms) + hits * weightFactor. The score favors
// entries that are both recent and frequently read.
type memoryStore struct {
	mu          sync.Mutex
	entries     map[string]*Entry
	memoryBytes int64

	maxEntries   int
	maxBytes     int64
	defaultTTL   time.Duration
	weightFactor int64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	sets        int64

	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newMemoryStore(cfg config.View) *memoryStore {
	m := &memoryStore{
		entries:      make(map[string]*Entry),
		maxEntries:   intFromConfig(cfg, "cache.cacheSize", defaultMaxEntries),
		maxBytes:     int64(intFromConfig(cfg, "cache.maxMemoryMB", defaultMaxMemoryMB)) << 20,
		defaultTTL:   durationFromConfig(cfg, "cache.cacheTTL", defaultTTL),
		weightFactor: int64(intFromConfig(cfg, "cache.evictionWeightFactor", defaultEvictionWeightFactor)),
		now:          time.Now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if m.maxEntries < 1 {
		m.maxEntries = defaultMaxEntries
	}
	if m.maxBytes < 1 {
		m.maxBytes = int64(defaultMaxMemoryMB) << 20
	}

	sweepInterval := time.Duration(intFromConfig(cfg, "cache.cleanupIntervalMs", defaultCleanupIntervalMs)) * time.Millisecond
	if sweepInterval <= 0 {
		sweepInterval = defaultCleanupIntervalMs * time.Millisecond
	}
	go m.sweeper(sweepInterval)
	return m
}

// lookup returns the stored blob and bumps the entry's access stats. An
// expired entry is removed and reported as a miss.
func (m *memoryStore) lookup(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	if m.expiredLocked(e) {
		m.removeLocked(e)
		m.expirations++
		m.misses++
		return nil, false
	}

	e.Hits++
	e.LastAccess = m.now()
	m.hits++
	return e.Data, true
}

// store inserts a blob, evicting older entries first when the store would
// exceed its budget. A ttl of zero or less applies the configured default;
// a zero default keeps the entry until evicted.
func (m *memoryStore) store(ctx context.Context, key string, blob []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	size := len(blob)

	m.mu.Lock()
	defer m.mu.Unlock()

	if int64(size) > m.maxBytes {
		logger.WithFields(logrus.Fields{
			"key":  key,
			"size": size,
		}).Warning("cache payload exceeds the memory budget and was not stored")
		return
	}

	if prev, ok := m.entries[key]; ok {
		m.removeLocked(prev)
	}
	m.makeRoomLocked(size)

	now := m.now()
	e := &Entry{
		Key:        key,
		Data:       blob,
		CreatedAt:  now,
		Compressed: isCompressed(blob),
		Size:       size,
		LastAccess: now,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}

	m.entries[key] = e
	m.memoryBytes += int64(size)
	m.sets++
	telemetry.RecordNUnitMeasurement(ctx, telemetry.CacheEntryBytes, int64(size))
}

func (m *memoryStore) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.removeLocked(e)
	}
}

// invalidate removes every entry whose key matches the path.Match style
// pattern and returns the number removed.
func (m *memoryStore) invalidate(pattern string) int {
	if _, err := path.Match(pattern, ""); err != nil {
		logger.WithFields(logrus.Fields{
			"pattern": pattern,
		}).WithError(err).Warning("bad cache invalidation pattern")
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			m.removeLocked(e)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Entries:     len(m.entries),
		MemoryBytes: m.memoryBytes,
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		Expirations: m.expirations,
		Sets:        m.sets,
	}
}

func (m *memoryStore) close() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

func (m *memoryStore) expiredLocked(e *Entry) bool {
	return !e.ExpiresAt.IsZero() && m.now().After(e.ExpiresAt)
}

func (m *memoryStore) removeLocked(e *Entry) {
	delete(m.entries, e.Key)
	m.memoryBytes -= int64(e.Size)
}

func (m *memoryStore) makeRoomLocked(incoming int) {
	for len(m.entries) > 0 && (len(m.entries)+1 > m.maxEntries || m.memoryBytes+int64(incoming) > m.maxBytes) {
		m.evictLocked()
	}
}

// evictLocked removes the lowest scored tenth of the resident entries, at
// least one.
func (m *memoryStore) evictLocked() {
	type scored struct {
		entry *Entry
		score int64
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, scored{
			entry: e,
			score: e.LastAccess.UnixMilli() + e.Hits*m.weightFactor,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score < candidates[j].score
	})

	n := len(candidates) / 10
	if n < 1 {
		n = 1
	}
	for _, c := range candidates[:n] {
		m.removeLocked(c.entry)
		m.evictions++
	}
}

func (m *memoryStore) sweeper(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep removes expired entries and re-runs eviction while the store is
// over budget.
func (m *memoryStore) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if m.expiredLocked(e) {
			m.removeLocked(e)
			m.expirations++
		}
	}
	for len(m.entries) > 0 && (len(m.entries) > m.maxEntries || m.memoryBytes > m.maxBytes) {
		m.evictLocked()
	}
}
