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

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func record(b *batchSizer, n int) {
	for i := 0; i < n; i++ {
		b.recordCompletion()
	}
}

func TestBatchSizerGrowsOnImprovedThroughput(t *testing.T) {
	b := newBatchSizer(5, 1, 20)

	// The first window only establishes the baseline.
	record(b, 10)
	b.adapt(time.Second)
	require.Equal(t, 5, b.Target())

	record(b, 20)
	b.adapt(time.Second)
	require.Equal(t, 6, b.Target())
}

func TestBatchSizerShrinksOnWorseThroughput(t *testing.T) {
	b := newBatchSizer(5, 1, 20)

	record(b, 10)
	b.adapt(time.Second)
	record(b, 2)
	b.adapt(time.Second)
	require.Equal(t, 4, b.Target())
}

func TestBatchSizerIdleWindowChangesNothing(t *testing.T) {
	b := newBatchSizer(5, 1, 20)

	record(b, 10)
	b.adapt(time.Second)
	throughput := b.throughput()

	b.adapt(time.Second)
	require.Equal(t, 5, b.Target())
	require.Equal(t, throughput, b.throughput())
}

func TestBatchSizerStaysWithinBounds(t *testing.T) {
	b := newBatchSizer(5, 2, 20)

	// Strictly increasing throughput pushes the target to its cap.
	for i := 1; i <= 40; i++ {
		record(b, i*10)
		b.adapt(time.Second)
	}
	require.Equal(t, 20, b.Target())

	// Strictly decreasing throughput drags it down to the floor.
	for i := 40; i > 0; i-- {
		record(b, i)
		b.adapt(time.Second)
	}
	require.Equal(t, 2, b.Target())
}

func TestBatchSizerClampsInitialTarget(t *testing.T) {
	require.Equal(t, 10, newBatchSizer(50, 1, 10).Target())
	require.Equal(t, 3, newBatchSizer(1, 3, 10).Target())
	require.Equal(t, 1, newBatchSizer(0, 0, 0).Target())
}
