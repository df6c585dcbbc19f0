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
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"openslate.dev/openslate/internal/config"
)

func TestConfigz(t *testing.T) {
	assert := assert.New(t)
	cfg := viper.New()
	cfg.Set("cache.cacheSize", 1000)
	cfg.Set("pipeline.maxWorkers", 4)
	cz := &configz{cfg: cfg}
	czFunc := func(w http.ResponseWriter, r *http.Request) {
		cz.ServeHTTP(w, r)
	}
	assert.HTTPSuccess(czFunc, http.MethodGet, "/", url.Values{}, "")
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, "OpenSlate Evaluator Configuration")
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, "cache")
}

func TestConfigzRejectsNonViper(t *testing.T) {
	assert := assert.New(t)
	cz := &configz{cfg: fakeView{}}
	czFunc := func(w http.ResponseWriter, r *http.Request) {
		cz.ServeHTTP(w, r)
	}
	assert.HTTPError(czFunc, http.MethodGet, "/", url.Values{})
}

type fakeView struct{}

var _ config.View = fakeView{}

func (fakeView) IsSet(string) bool                { return false }
func (fakeView) GetString(string) string          { return "" }
func (fakeView) GetInt(string) int                { return 0 }
func (fakeView) GetInt64(string) int64            { return 0 }
func (fakeView) GetFloat64(string) float64        { return 0 }
func (fakeView) GetStringSlice(string) []string   { return nil }
func (fakeView) GetBool(string) bool              { return false }
func (fakeView) GetDuration(string) time.Duration { return 0 }
