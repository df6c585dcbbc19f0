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
	"contrib.go.opencensus.io/exporter/ocagent"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	"openslate.dev/openslate/internal/config"
)

func bindOpenCensusAgent(servicePrefix string, cfg config.View) func() error {
	if !cfg.GetBool("telemetry.opencensusAgent.enable") {
		logger.Info("OpenCensus Agent: Disabled")
		return func() error { return nil }
	}

	agentEndpoint := cfg.GetString("telemetry.opencensusAgent.agentEndpoint")
	oce, err := ocagent.NewExporter(
		ocagent.WithAddress(agentEndpoint),
		ocagent.WithInsecure(),
		ocagent.WithServiceName(servicePrefix))
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":         err,
			"agentEndpoint": agentEndpoint,
		}).Fatal("Failed to create a new ocagent exporter")
	}

	trace.RegisterExporter(oce)
	view.RegisterExporter(oce)

	logger.WithFields(logrus.Fields{
		"agentEndpoint": agentEndpoint,
	}).Info("OpenCensus Agent: ENABLED")

	return func() error {
		view.UnregisterExporter(oce)
		trace.UnregisterExporter(oce)
		// Before the program stops, please remember to stop the exporter.
		return oce.Stop()
	}
}
