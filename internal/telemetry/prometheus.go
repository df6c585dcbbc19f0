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

	ocPrometheus "contrib.go.opencensus.io/exporter/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats/view"

	"openslate.dev/openslate/internal/config"
)

func bindPrometheus(mux *http.ServeMux, cfg config.View) {
	if !cfg.GetBool("telemetry.prometheus.enable") {
		logger.Info("Prometheus Metrics: Disabled")
		return
	}

	endpoint := cfg.GetString("telemetry.prometheus.endpoint")
	if endpoint == "" {
		endpoint = "/metrics"
	}

	registry := prometheus.NewRegistry()
	// Register standard process and Go runtime instrumentation.
	if err := registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		logger.WithError(err).Warning("Failed to register prometheus process collector.")
	}
	if err := registry.Register(prometheus.NewGoCollector()); err != nil {
		logger.WithError(err).Warning("Failed to register prometheus go collector.")
	}

	promExporter, err := ocPrometheus.NewExporter(
		ocPrometheus.Options{
			Namespace: "",
			Registry:  registry,
		})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenCensus exporter to Prometheus")
	}

	view.RegisterExporter(promExporter)
	mux.Handle(endpoint, promExporter)

	logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
	}).Info("Prometheus Metrics: ENABLED")
}
