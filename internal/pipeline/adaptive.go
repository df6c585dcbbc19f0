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
	"math"
	"sync"
	"time"
)

const (
	batchGrowFactor   = 1.25
	batchShrinkFactor = 0.8
)

// batchSizer adjusts the preferred batch size from observed throughput.
// Callers consult Target when splitting new work; batches already queued
// keep their size.
type batchSizer struct {
	mu     sync.Mutex
	target float64
	min    float64
	max    float64

	windowCompleted int64
	avgThroughput   float64
}

func newBatchSizer(initial, min, max int) *batchSizer {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &batchSizer{target: float64(initial), min: float64(min), max: float64(max)}
}

func (b *batchSizer) recordCompletion() {
	b.mu.Lock()
	b.windowCompleted++
	b.mu.Unlock()
}

// Target returns the preferred number of constraints per batch.
func (b *batchSizer) Target() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(math.Round(b.target))
}

func (b *batchSizer) throughput() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.avgThroughput
}

// adapt closes the current measurement window and nudges the target batch
// size, growing it when the window beat the historical throughput and
// shrinking it when the window fell short. Windows with no completed
// tasks leave both the target and the average untouched.
func (b *batchSizer) adapt(window time.Duration) {
	if window <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	completed := b.windowCompleted
	b.windowCompleted = 0
	if completed == 0 {
		return
	}
	throughput := float64(completed) / window.Seconds()

	if b.avgThroughput == 0 {
		b.avgThroughput = throughput
		return
	}
	switch {
	case throughput > b.avgThroughput:
		b.target = math.Min(b.target*batchGrowFactor, b.max)
	case throughput < b.avgThroughput:
		b.target = math.Max(b.target*batchShrinkFactor, b.min)
	}
	b.avgThroughput = 0.7*b.avgThroughput + 0.3*throughput
}
