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
	"time"

	"github.com/pkg/errors"
)

// worker runs one task at a time off its own channel. The stats fields at
// the bottom are owned by the pool and guarded by the pool mutex; the
// worker goroutine never touches them.
type worker struct {
	id      int
	tasks   chan *task
	pings   chan chan struct{}
	stop    chan struct{}
	results chan<- taskOutcome

	current   *task
	completed int64
	failed    int64
	avgMs     float64
}

func newWorker(id int, results chan<- taskOutcome) *worker {
	return &worker{
		id:      id,
		tasks:   make(chan *task, 1),
		pings:   make(chan chan struct{}),
		stop:    make(chan struct{}),
		results: results,
	}
}

func (w *worker) run() {
	for {
		select {
		case <-w.stop:
			return
		case pong := <-w.pings:
			close(pong)
		case t := <-w.tasks:
			outcome := w.execute(t)
			select {
			case w.results <- outcome:
			case <-w.stop:
				return
			}
		}
	}
}

// execute runs every constraint in the task's batch. A panic escaping a
// constraint function is recovered and reported so the pool can replace
// the worker. A canceled or expired task context aborts the batch between
// constraints.
func (w *worker) execute(t *task) (out taskOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = taskOutcome{
				task:     t,
				workerID: w.id,
				err:      errors.Errorf("recovered from panic in constraint evaluation: %v", r),
				panicked: true,
				elapsed:  time.Since(start),
			}
		}
	}()

	outcomes := make([]ConstraintOutcome, 0, len(t.batch.Constraints))
	for _, c := range t.batch.Constraints {
		if err := t.ctx.Err(); err != nil {
			return taskOutcome{task: t, workerID: w.id, err: err, elapsed: time.Since(start)}
		}
		result, err := t.batch.Evaluate(t.ctx, t.batch.Schedule, c)
		outcomes = append(outcomes, ConstraintOutcome{Constraint: c, Result: result, Err: err})
	}
	// A batch that ran past its deadline must not read as a success.
	if err := t.ctx.Err(); err != nil {
		return taskOutcome{task: t, workerID: w.id, err: err, elapsed: time.Since(start)}
	}

	elapsed := time.Since(start)
	return taskOutcome{
		task:     t,
		workerID: w.id,
		result: &BatchResult{
			BatchID:  t.batch.ID,
			TaskID:   t.id,
			WorkerID: w.id,
			Outcomes: outcomes,
			Elapsed:  elapsed,
		},
		elapsed: elapsed,
	}
}

// observeLocked folds a processing time into the worker's rolling average.
func (w *worker) observeLocked(elapsed time.Duration) {
	ms := float64(elapsed.Milliseconds())
	if w.completed <= 1 {
		w.avgMs = ms
		return
	}
	w.avgMs = 0.8*w.avgMs + 0.2*ms
}
