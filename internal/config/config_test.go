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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadSingleFile(t *testing.T) {
	cfg, err := Read("testdata/defaults.yaml")
	require.NoError(t, err)

	require.Equal(t, 5, cfg.GetInt("evaluator.parallelThreshold"))
	require.Equal(t, 0.3, cfg.GetFloat64("evaluator.incrementalChangeThreshold"))
	require.Equal(t, 1000, cfg.GetInt("cache.cacheSize"))
	require.Equal(t, 5*time.Minute, cfg.GetDuration("cache.cacheTTL"))
	require.True(t, cfg.IsSet("pipeline.maxWorkers"))
	require.False(t, cfg.IsSet("pipeline.timeoutMs"))
}

func TestReadMergesOverrides(t *testing.T) {
	cfg, err := Read("testdata/defaults.yaml", "testdata/override.yaml")
	require.NoError(t, err)

	// Overridden value from the second file.
	require.Equal(t, 50, cfg.GetInt("cache.cacheSize"))
	// Untouched value from the first file.
	require.Equal(t, 4, cfg.GetInt("pipeline.maxWorkers"))
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read("testdata/does_not_exist.yaml")
	require.Error(t, err)
}
