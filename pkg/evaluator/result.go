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

package evaluator

import (
	"time"

	"openslate.dev/openslate/pkg/constraint"
)

// Evaluation modes recorded on Metadata.Mode.
const (
	ModeCached         = "cached"
	ModeFullSequential = "full-sequential"
	ModeFullParallel   = "full-parallel"
	ModeIncremental    = "incremental"
)

// Result is the outcome of evaluating a schedule against every
// registered constraint. Score is the unnormalized sum of weighted
// constraint scores, so higher is worse. Callers must treat a returned
// Result as read-only: results are shared with the cache and with
// concurrent callers evaluating the same schedule.
type Result struct {
	Score          float64                 `json:"score"`
	HardViolations int                     `json:"hardViolations"`
	Valid          bool                    `json:"valid"`
	Violations     []*constraint.Violation `json:"violations,omitempty"`
	Breakdown      map[string]*Entry       `json:"breakdown"`
	Metadata       Metadata                `json:"metadata"`
}

// Entry is the per-constraint line of a Result breakdown. Weight records
// the weight in effect when the constraint was evaluated;
// WeightedScore = Score x Weight.
type Entry struct {
	ConstraintID  string                  `json:"constraintId"`
	Score         float64                 `json:"score"`
	Weight        float64                 `json:"weight"`
	WeightedScore float64                 `json:"weightedScore"`
	Violations    []*constraint.Violation `json:"violations,omitempty"`
	Elapsed       time.Duration           `json:"elapsed"`
	FromCache     bool                    `json:"fromCache"`
	Failed        bool                    `json:"failed,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// Metadata describes how a Result was produced. Degraded lists the ids
// of constraints whose evaluation failed and were recorded with a zero
// score instead of aborting the call.
type Metadata struct {
	EvaluationID string        `json:"evaluationId"`
	Fingerprint  string        `json:"fingerprint"`
	Mode         string        `json:"mode"`
	FromCache    bool          `json:"fromCache"`
	Elapsed      time.Duration `json:"elapsed"`
	EvaluatedAt  time.Time     `json:"evaluatedAt"`
	Degraded     []string      `json:"degraded,omitempty"`
}

// Observer receives every completed evaluation, including cache hits.
// Concurrent calls deduplicated onto one computation observe a single
// event. Implementations must be safe for concurrent use and must not
// block.
type Observer interface {
	EvaluationDone(*Result)
}
