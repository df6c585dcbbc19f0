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
	"fmt"
	"time"
)

// TimeoutError reports a task that missed its deadline, whether it was
// still queued or already running on a worker.
type TimeoutError struct {
	TaskID  string
	BatchID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s in batch %s timed out after %s", e.TaskID, e.BatchID, e.Timeout)
}

// WorkerFailureError reports a task that failed on every attempt it was
// given. Err holds the error from the last attempt.
type WorkerFailureError struct {
	TaskID   string
	BatchID  string
	WorkerID int
	Attempts int
	Err      error
}

func (e *WorkerFailureError) Error() string {
	return fmt.Sprintf("task %s in batch %s failed on worker %d after %d attempts: %v", e.TaskID, e.BatchID, e.WorkerID, e.Attempts, e.Err)
}

func (e *WorkerFailureError) Unwrap() error { return e.Err }

// ShutdownError reports work submitted to, or still pending in, a pool
// that has been shut down.
type ShutdownError struct{}

func (e *ShutdownError) Error() string { return "evaluation pipeline is shut down" }
