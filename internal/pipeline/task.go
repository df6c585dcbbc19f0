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
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"openslate.dev/openslate/pkg/constraint"
	"openslate.dev/openslate/pkg/schedule"
)

// Evaluator evaluates a single constraint against a schedule. The pool
// never interprets results, it only carries them; the caller decides what
// a failed constraint means.
type Evaluator func(ctx context.Context, s *schedule.Schedule, c *constraint.Constraint) (*constraint.Result, error)

// Batch is the pool's unit of work: a slice of constraints evaluated
// against one schedule by a single worker.
type Batch struct {
	ID          string
	Schedule    *schedule.Schedule
	Constraints []*constraint.Constraint
	Evaluate    Evaluator
}

// ConstraintOutcome is the outcome of one constraint within a batch. A
// constraint that returned an error instead of a result sets Err and
// leaves Result nil.
type ConstraintOutcome struct {
	Constraint *constraint.Constraint
	Result     *constraint.Result
	Err        error
}

// BatchResult carries the outcomes of every constraint in a batch, in the
// order the batch listed them.
type BatchResult struct {
	BatchID  string
	TaskID   string
	WorkerID int
	Outcomes []ConstraintOutcome
	Elapsed  time.Duration
}

// task is one batch in flight. Everything below the ctx fields is guarded
// by the pool mutex. A task resolves exactly once: to a result, a timeout,
// a failure, or a shutdown. Whichever happens first wins and later
// outcomes for the same task are discarded.
type task struct {
	id     string
	batch  *Batch
	ctx    context.Context
	cancel context.CancelFunc

	timer      *time.Timer
	retry      backoff.BackOff
	retries    int
	lastWorker int

	resolved bool
	result   *BatchResult
	err      error
	done     chan struct{}
}

// taskOutcome is what workers push onto the pool's result channel. Exactly
// one of result and err is set; panicked additionally marks errors that
// escaped a constraint function as a panic.
type taskOutcome struct {
	task     *task
	workerID int
	result   *BatchResult
	err      error
	panicked bool
	elapsed  time.Duration
}
