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

package util

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestMultiCloseEmpty(t *testing.T) {
	mc := NewMultiClose()
	mc.Close()
}

func TestMultiCloseRunsInOrder(t *testing.T) {
	var order []string
	mc := NewMultiClose()
	mc.AddCloseFunc(func() { order = append(order, "a") })
	mc.AddCloseWithErrorFunc(func() error {
		order = append(order, "b")
		return errors.New("logged, not propagated")
	})
	mc.AddCloseFunc(func() { order = append(order, "c") })
	mc.Close()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestMultiCloseIdempotent(t *testing.T) {
	calls := 0
	mc := NewMultiClose()
	mc.AddCloseFunc(func() { calls++ })
	mc.Close()
	mc.Close()
	assert.Equal(t, 1, calls)
}
