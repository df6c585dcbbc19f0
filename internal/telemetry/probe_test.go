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
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func failingBackendProbe(context.Context) error {
	return errors.New("cache backend unreachable")
}

func healthyBackendProbe(context.Context) error {
	return nil
}

func TestAlwaysReadyHealthCheck(t *testing.T) {
	assertHealthCheck(t, NewAlwaysReadyHealthCheck(), "")
}

func TestHealthCheck(t *testing.T) {
	var testCases = []struct {
		name        string
		probes      []func(context.Context) error
		errorString string
	}{
		{"no probes", []func(context.Context) error{}, ""},
		{"healthy backend", []func(context.Context) error{healthyBackendProbe}, ""},
		{"failing backend", []func(context.Context) error{failingBackendProbe}, "cache backend unreachable"},
		{"first failure wins", []func(context.Context) error{healthyBackendProbe, failingBackendProbe}, "cache backend unreachable"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assertHealthCheck(t, NewHealthCheck(tc.probes), tc.errorString)
		})
	}
}

func assertHealthCheck(t *testing.T, hc http.Handler, errorString string) {
	require := require.New(t)
	sp, ok := hc.(*statefulProbe)
	require.True(ok)
	require.Equal(healthStateFirstProbe, atomic.LoadInt32(sp.healthState))

	hcFunc := func(w http.ResponseWriter, r *http.Request) {
		hc.ServeHTTP(w, r)
	}

	// A bare request is a liveness check, which always passes and does
	// not move the probe out of its initial state.
	require.HTTPSuccess(hcFunc, http.MethodGet, "/", url.Values{}, "ok")
	require.Equal(healthStateFirstProbe, atomic.LoadInt32(sp.healthState))

	if errorString == "" {
		require.HTTPSuccess(hcFunc, http.MethodGet, "/", url.Values{"readiness": []string{"true"}}, "ok")
		require.Equal(healthStateHealthy, atomic.LoadInt32(sp.healthState))
	} else {
		require.HTTPError(hcFunc, http.MethodGet, "/", url.Values{"readiness": []string{"true"}}, errorString)
		require.Equal(healthStateUnhealthy, atomic.LoadInt32(sp.healthState))
	}
}
