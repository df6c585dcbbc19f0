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

// Package util holds small process lifecycle helpers shared across the
// evaluator components.
package util

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "openslate",
		"component": "util",
	})
)

// MultiClose collects close functions so teardown of exporters, cache
// backends, and worker pools happens in one call.
type MultiClose struct {
	closers []func()
	m       sync.Mutex
}

// NewMultiClose creates a new multi-closer.
func NewMultiClose() *MultiClose {
	return &MultiClose{
		closers: []func(){},
	}
}

// AddCloseFunc adds a close function.
func (mc *MultiClose) AddCloseFunc(closer func()) {
	mc.m.Lock()
	defer mc.m.Unlock()
	mc.closers = append(mc.closers, closer)
}

// AddCloseWithErrorFunc adds a close function whose error is logged
// rather than propagated. Shutdown keeps going past a failing closer.
func (mc *MultiClose) AddCloseWithErrorFunc(closer func() error) {
	mc.m.Lock()
	defer mc.m.Unlock()
	mc.closers = append(mc.closers, func() {
		if err := closer(); err != nil {
			logger.WithError(err).Warning("close function failed")
		}
	})
}

// Close runs every registered closer once and empties the list, so a
// second Close is a no-op.
func (mc *MultiClose) Close() {
	mc.m.Lock()
	defer mc.m.Unlock()
	for _, closer := range mc.closers {
		closer()
	}
	mc.closers = []func(){}
}
