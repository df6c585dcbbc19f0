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

	"github.com/go-redsync/redsync/v4"
	redsyncredigo "github.com/go-redsync/redsync/v4/redis/redigo"
	"github.com/gomodule/redigo/redis"
)

const (
	lockKeyPrefix  = "lock:"
	lockExpiry     = 30 * time.Second
	lockTries      = 3
	lockRetryDelay = 50 * time.Millisecond
)

// Locker serializes cold computations of one fingerprint across replicas
// sharing the redis tier. The lock is advisory: a caller that fails to take
// it proceeds with the computation locally.
type Locker struct {
	rs *redsync.Redsync
}

func newLocker(pool *redis.Pool) *Locker {
	return &Locker{rs: redsync.New(redsyncredigo.NewPool(pool))}
}

// Lock acquires the named lock and returns the function that releases it.
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	m := l.rs.NewMutex(lockKeyPrefix+name,
		redsync.WithExpiry(lockExpiry),
		redsync.WithTries(lockTries),
		redsync.WithRetryDelay(lockRetryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, err
	}
	return func() {
		if _, err := m.UnlockContext(context.Background()); err != nil {
			redisLogger.WithError(err).WithField("lock", m.Name()).Debug("failed to release replica lock")
		}
	}, nil
}
