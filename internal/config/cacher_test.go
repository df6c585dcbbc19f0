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

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestCacherRebuildsOnObservedChange(t *testing.T) {
	cfg := viper.New()
	cfg.Set("workers", 2)
	cfg.Set("unrelated", "x")

	builds := 0
	var closed []interface{}
	c := NewCacher(cfg, func(cfg View) (interface{}, func(), error) {
		builds++
		v := cfg.GetInt("workers")
		return v, func() { closed = append(closed, v) }, nil
	})

	v, err := c.Get()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 1, builds)

	// Changing a key the builder never read must not trigger a rebuild.
	cfg.Set("unrelated", "y")
	v, err = c.Get()
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 1, builds)
	require.Empty(t, closed)

	cfg.Set("workers", 8)
	v, err = c.Get()
	require.NoError(t, err)
	require.Equal(t, 8, v)
	require.Equal(t, 2, builds)
	require.Equal(t, []interface{}{2}, closed, "old value is closed before replacement")
}

func TestCacherRetriesAfterError(t *testing.T) {
	cfg := viper.New()
	fail := true
	c := NewCacher(cfg, func(cfg View) (interface{}, func(), error) {
		if fail {
			return nil, nil, errors.New("backend unavailable")
		}
		return "ok", nil, nil
	})

	_, err := c.Get()
	require.Error(t, err)

	fail = false
	v, err := c.Get()
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestCacherForceReset(t *testing.T) {
	cfg := viper.New()
	builds := 0
	closes := 0
	c := NewCacher(cfg, func(cfg View) (interface{}, func(), error) {
		builds++
		return builds, func() { closes++ }, nil
	})

	v, err := c.Get()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	c.ForceReset()
	require.Equal(t, 1, closes)

	v, err = c.Get()
	require.NoError(t, err)
	require.Equal(t, 2, v, "reset discards the cached value even when config is unchanged")

	// Resetting an empty cacher is a no-op.
	c.ForceReset()
	c.ForceReset()
	require.Equal(t, 2, closes)
}

func TestCacherNilCloser(t *testing.T) {
	cfg := viper.New()
	cfg.Set("k", 1)
	c := NewCacher(cfg, func(cfg View) (interface{}, func(), error) {
		return cfg.GetInt("k"), nil, nil
	})

	_, err := c.Get()
	require.NoError(t, err)

	cfg.Set("k", 2)
	v, err := c.Get()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}
