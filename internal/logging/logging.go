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

// Package logging configures the Logrus logging library.
package logging

import (
	stackdriver "github.com/TV4/logrus-stackdriver-formatter"
	"github.com/sirupsen/logrus"

	"openslate.dev/openslate/internal/config"
)

// ConfigureLogging sets up the process-wide logrus instance from the
// logging section of the evaluator config:
//   - log line format (text [default], json, or stackdriver)
//   - min log level to include (debug, info [default], warn, error, fatal, panic)
//   - include source file and line number for every event (false [default], true)
func ConfigureLogging(cfg config.View) {
	logrus.SetFormatter(newFormatter(cfg.GetString("logging.format")))

	if cfg.GetBool("logging.source") {
		logrus.SetReportCaller(true)
	}

	level := toLevel(cfg.GetString("logging.level"))
	logrus.SetLevel(level)
	if isDebugLevel(level) {
		logrus.Warn("Debug or trace logging level configured. Not recommended for production!")
	}
}

func newFormatter(name string) logrus.Formatter {
	switch name {
	case "stackdriver":
		return stackdriver.NewFormatter()
	case "json":
		return &logrus.JSONFormatter{}
	default:
		return &logrus.TextFormatter{}
	}
}

func toLevel(name string) logrus.Level {
	switch name {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func isDebugLevel(level logrus.Level) bool {
	return level >= logrus.DebugLevel
}
