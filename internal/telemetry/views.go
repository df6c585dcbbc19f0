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

package telemetry

import (
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

// Evaluation measures
var (
	EvaluationLatency        = stats.Int64("openslate.dev/evaluator/evaluation_latency", "Time elapsed of each schedule evaluation", stats.UnitMilliseconds)
	ConstraintLatency        = stats.Int64("openslate.dev/evaluator/constraint_latency", "Time elapsed of each constraint evaluation", stats.UnitMilliseconds)
	ConstraintsPerEvaluation = stats.Int64("openslate.dev/evaluator/constraints_per_evaluation", "Constraints evaluated per request", stats.UnitDimensionless)
	ReusedPerEvaluation      = stats.Int64("openslate.dev/evaluator/reused_per_evaluation", "Prior constraint results reused per incremental evaluation", stats.UnitDimensionless)
	ViolationsPerEvaluation  = stats.Int64("openslate.dev/evaluator/violations_per_evaluation", "Violations found per evaluation", stats.UnitDimensionless)
)

// Cache measures
var (
	CacheEntryBytes = stats.Int64("openslate.dev/cache/entry_bytes", "Serialized size of stored cache entries", stats.UnitBytes)
)

// Pipeline measures
var (
	PipelineBatchSize   = stats.Int64("openslate.dev/pipeline/batch_size", "Tasks per dispatched batch", stats.UnitDimensionless)
	PipelineTaskLatency = stats.Int64("openslate.dev/pipeline/task_latency", "Time elapsed of each pipeline task", stats.UnitMilliseconds)
)

// Evaluation views
var (
	EvaluationLatencyView = measureToDefaultView(
		EvaluationLatency,
		"openslate.dev/evaluator/evaluation_latency",
		"Time elapsed of each schedule evaluation",
		DefaultMillisecondsDistribution,
	)

	ConstraintLatencyView = measureToDefaultView(
		ConstraintLatency,
		"openslate.dev/evaluator/constraint_latency",
		"Time elapsed of each constraint evaluation",
		DefaultMillisecondsDistribution,
	)

	ConstraintsPerEvaluationView = measureToDefaultView(
		ConstraintsPerEvaluation,
		"openslate.dev/evaluator/constraints_per_evaluation",
		"Constraints evaluated per request",
		DefaultCountDistribution,
	)

	ReusedPerEvaluationView = measureToDefaultView(
		ReusedPerEvaluation,
		"openslate.dev/evaluator/reused_per_evaluation",
		"Prior constraint results reused per incremental evaluation",
		DefaultCountDistribution,
	)

	ViolationsPerEvaluationView = measureToDefaultView(
		ViolationsPerEvaluation,
		"openslate.dev/evaluator/violations_per_evaluation",
		"Violations found per evaluation",
		DefaultCountDistribution,
	)
)

// Cache views
var (
	CacheEntryBytesView = measureToDefaultView(
		CacheEntryBytes,
		"openslate.dev/cache/entry_bytes",
		"Serialized size of stored cache entries",
		DefaultBytesDistribution,
	)
)

// Pipeline views
var (
	PipelineBatchSizeView = measureToDefaultView(
		PipelineBatchSize,
		"openslate.dev/pipeline/batch_size",
		"Tasks per dispatched batch",
		DefaultCountDistribution,
	)

	PipelineTaskLatencyView = measureToDefaultView(
		PipelineTaskLatency,
		"openslate.dev/pipeline/task_latency",
		"Time elapsed of each pipeline task",
		DefaultMillisecondsDistribution,
	)
)

// DefaultViews are registered by Setup. Counters and gauges created
// through the helpers in metrics.go register their own views.
var DefaultViews = []*view.View{
	EvaluationLatencyView,
	ConstraintLatencyView,
	ConstraintsPerEvaluationView,
	ReusedPerEvaluationView,
	ViolationsPerEvaluationView,
	CacheEntryBytesView,
	PipelineBatchSizeView,
	PipelineTaskLatencyView,
}

func measureToDefaultView(m stats.Measure, name, description string, aggregation *view.Aggregation) *view.View {
	return &view.View{
		Name:        name,
		Description: description,
		Measure:     m,
		Aggregation: aggregation,
	}
}
