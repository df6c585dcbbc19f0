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

// Package config contains convenience functions for reading and managing
// viper configs.
package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "openslate",
		"component": "config",
	})

	cfgVarCount = stats.Int64("config/vars_total", "Number of config vars read during initialization", "1")
	// CfgVarCountView is the Open Census view for the cfgVarCount measure.
	CfgVarCountView = &view.View{
		Name:        "config/vars_total",
		Measure:     cfgVarCount,
		Description: "The number of config vars read during initialization",
		Aggregation: view.Count(),
	}
)

// Read loads the evaluator configuration into a viper.Viper instance.
//
// With no arguments it searches the working directory and ./config for
// evaluator_config.yaml, then merges evaluator_config_override.yaml on
// top when one exists. Explicit file paths, when given, are read and
// merged in order instead, later files overriding earlier ones.
//
// The returned view keeps watching the resolved config file and folds
// in changes, which is how externally adjusted constraint weights and
// cache knobs reach a running evaluator.
func Read(paths ...string) (View, error) {
	cfg := viper.New()
	cfg.SetConfigType("yaml")

	if len(paths) == 0 {
		cfg.AddConfigPath(".")
		cfg.AddConfigPath("config")
		cfg.SetConfigName("evaluator_config")
		if err := cfg.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "fatal error reading config file")
		}

		cfg.SetConfigName("evaluator_config_override")
		if err := cfg.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "fatal error merging override config file")
			}
		}
	} else {
		for i, p := range paths {
			cfg.SetConfigFile(p)
			var err error
			if i == 0 {
				err = cfg.ReadInConfig()
			} else {
				err = cfg.MergeInConfig()
			}
			if err != nil {
				return nil, errors.Wrapf(err, "fatal error reading config file %s", p)
			}
		}
	}

	stats.Record(context.Background(), cfgVarCount.M(int64(len(cfg.AllKeys()))))

	// Watch for updates so weight and cache tuning changes land without
	// a restart. Dependents rebuild through Cacher when observed keys
	// change.
	cfg.WatchConfig()
	cfg.OnConfigChange(func(event fsnotify.Event) {
		logger.WithFields(logrus.Fields{
			"filename":  event.Name,
			"operation": event.Op,
		}).Info("Evaluator configuration changed.")
	})
	return cfg, nil
}
