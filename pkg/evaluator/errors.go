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
	"fmt"

	"openslate.dev/openslate/internal/pipeline"
)

// ConfigurationError reports invalid registration input or invalid engine
// configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ConstraintEvaluationError wraps a failure inside a single constraint's
// evaluation function. It is recorded on the result breakdown and never
// fails the evaluation call.
type ConstraintEvaluationError struct {
	ConstraintID string
	Err          error
}

func (e *ConstraintEvaluationError) Error() string {
	return fmt.Sprintf("constraint %s failed: %v", e.ConstraintID, e.Err)
}

func (e *ConstraintEvaluationError) Unwrap() error { return e.Err }

// Pipeline errors surface unchanged from parallel evaluation. The aliases
// keep the whole error taxonomy matchable from this package with
// errors.As.
type (
	PipelineTimeoutError = pipeline.TimeoutError
	WorkerFailureError   = pipeline.WorkerFailureError
	ShutdownError        = pipeline.ShutdownError
)
