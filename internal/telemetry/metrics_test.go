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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opencensus.io/stats"
)

func TestRecordUnitMeasurement(t *testing.T) {
	ctx := context.Background()
	c := Counter("telemetry/fake_metric", "fake")
	RecordUnitMeasurement(ctx, c)
	RecordNUnitMeasurement(ctx, c, 3)
}

func TestDoubleMetric(t *testing.T) {
	assert := assert.New(t)
	c := Counter("telemetry/fake_metric", "fake")
	c2 := Counter("telemetry/fake_metric", "fake")
	assert.Equal(c, c2)
}

func TestDoubleRegisterView(t *testing.T) {
	assert := assert.New(t)
	mFakeCounter := stats.Int64("telemetry/fake_metric", "Fake", "1")
	v := counterView(mFakeCounter)
	v2 := counterView(mFakeCounter)
	assert.Equal(v, v2)
}

func TestSetGauge(t *testing.T) {
	g := Gauge("telemetry/fake_gauge", "fake")
	SetGauge(context.Background(), g, 42)
	SetGauge(context.Background(), g, 7)
}

func TestDefaultViewsAreComplete(t *testing.T) {
	assert := assert.New(t)
	seen := map[string]bool{}
	for _, v := range DefaultViews {
		assert.NotNil(v.Measure, "view %s has no measure", v.Name)
		assert.NotNil(v.Aggregation, "view %s has no aggregation", v.Name)
		assert.False(seen[v.Name], "view %s is registered twice", v.Name)
		seen[v.Name] = true
	}
}
