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

// evalbench drives the evaluation engine with generated schedules. Each
// iteration edits one game and re-evaluates, periodically replaying an
// unchanged slate, so cached, incremental, sequential, and parallel
// paths all get exercise. Counters are reported on shutdown and through
// the telemetry endpoints while running.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"openslate.dev/openslate/internal/cache"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/logging"
	"openslate.dev/openslate/internal/signal"
	"openslate.dev/openslate/internal/telemetry"
	internalTesting "openslate.dev/openslate/internal/testing"
	"openslate.dev/openslate/pkg/evaluator"
)

var logger = log.WithFields(log.Fields{
	"app":       "openslate",
	"component": "evalbench",
})

// benchEngine pairs an engine with the cache backend it was built on, so
// the health endpoint can probe the backend directly.
type benchEngine struct {
	store  cache.Service
	engine *evaluator.Engine
}

func currentEngine(engines *config.Cacher) (*benchEngine, error) {
	v, err := engines.Get()
	if err != nil {
		return nil, err
	}
	return v.(*benchEngine), nil
}

func main() {
	teams := flag.Int("teams", 16, "teams in the generated round-robin slate")
	iterations := flag.Int("iterations", 100, "evaluations to run, 0 runs until interrupted")
	synthetic := flag.Int("constraints", 12, "synthetic soft constraints registered on top of the builtin rules")
	configFile := flag.String("config", "", "config file path, defaults to the standard search path")
	flag.Parse()

	var (
		cfg config.View
		err error
	)
	if *configFile != "" {
		cfg, err = config.Read(*configFile)
	} else {
		cfg, err = config.Read()
	}
	if err != nil {
		logger.WithError(err).Fatal("cannot read configuration")
	}
	logging.ConfigureLogging(cfg)

	mux := http.NewServeMux()
	closeTelemetry := telemetry.Setup("evalbench", mux, cfg)
	defer closeTelemetry()

	// The engine, its cache backend, and its worker pool are built through
	// a Cacher over the watched config, so edits to the config file replace
	// them between iterations instead of requiring a restart.
	engines := config.NewCacher(cfg, func(cfg config.View) (interface{}, func(), error) {
		store := cache.New(cfg)
		engine, err := evaluator.New(cfg, evaluator.WithCache(store))
		if err != nil {
			return nil, nil, err
		}
		all := append(internalTesting.DefaultConstraints(), internalTesting.SyntheticConstraints(*synthetic)...)
		for _, c := range all {
			if err := engine.Register(c); err != nil {
				if cerr := engine.Close(); cerr != nil {
					logger.WithError(cerr).Warning("engine shutdown reported an error")
				}
				return nil, nil, errors.Wrapf(err, "cannot register constraint %s", c.ID)
			}
		}
		return &benchEngine{store: store, engine: engine}, func() {
			if err := engine.Close(); err != nil {
				logger.WithError(err).Warning("engine shutdown reported an error")
			}
		}, nil
	})
	defer engines.ForceReset()

	be, err := currentEngine(engines)
	if err != nil {
		logger.WithError(err).Fatal("cannot build the evaluation engine")
	}

	mux.Handle("/healthz", telemetry.NewHealthCheck([]func(context.Context) error{
		func(ctx context.Context) error {
			be, err := currentEngine(engines)
			if err != nil {
				return err
			}
			return be.store.HealthCheck(ctx)
		},
	}))
	httpPort := 51500
	if cfg.IsSet("evalbench.httpPort") {
		httpPort = cfg.GetInt("evalbench.httpPort")
	}
	srv := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warning("http server stopped")
		}
	}()
	defer srv.Close()

	current := internalTesting.GenerateSchedule(internalTesting.ScheduleParams{Teams: *teams})
	logger.WithFields(log.Fields{
		"teams":       *teams,
		"games":       len(current.Games),
		"constraints": len(be.engine.Constraints()),
		"iterations":  *iterations,
		"httpPort":    httpPort,
	}).Info("starting evaluation loop")

	// Exit when we see a signal. Cancelling the context also interrupts
	// an in-flight evaluation.
	wait, _ := signal.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		wait()
		cancel()
	}()

	start := time.Now()
	var totalLatency time.Duration
	completed := 0

loop:
	for i := 0; *iterations == 0 || i < *iterations; i++ {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal, stopping the evaluation loop")
			break loop
		default:
		}

		be, err = currentEngine(engines)
		if err != nil {
			logger.WithError(err).Error("cannot rebuild the evaluation engine after a config change")
			break loop
		}

		// Every fifth pass replays the unchanged slate so the schedule
		// cache gets traffic too.
		if i == 0 || i%5 != 0 {
			current = internalTesting.MutateSchedule(current, i)
		}
		r, err := be.engine.Evaluate(ctx, current)
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).WithField("iteration", i).Error("evaluation failed")
			}
			var down *evaluator.ShutdownError
			if errors.As(err, &down) {
				engines.ForceReset()
			}
			continue
		}
		completed++
		totalLatency += r.Metadata.Elapsed
		logger.WithFields(log.Fields{
			"iteration": i,
			"mode":      r.Metadata.Mode,
			"score":     r.Score,
			"valid":     r.Valid,
			"elapsed":   r.Metadata.Elapsed,
		}).Debug("evaluated schedule")
	}

	stats := be.engine.Stats()
	fields := log.Fields{
		"completed":   completed,
		"evaluations": stats.Evaluations,
		"cacheHits":   stats.CacheHits,
		"incremental": stats.Incremental,
		"sequential":  stats.FullSequential,
		"parallel":    stats.FullParallel,
		"earlyStops":  stats.EarlyTerminations,
		"elapsed":     time.Since(start).Round(time.Millisecond),
	}
	if completed > 0 {
		fields["avgLatency"] = (totalLatency / time.Duration(completed)).Round(time.Microsecond)
	}
	if stats.Cache != nil {
		fields["cacheEntries"] = stats.Cache.Entries
		fields["cacheMemoryBytes"] = stats.Cache.MemoryBytes
		fields["cacheEvictions"] = stats.Cache.Evictions
	}
	if stats.Pipeline != nil {
		fields["targetBatchSize"] = stats.Pipeline.TargetBatchSize
		fields["pipelineCompleted"] = stats.Pipeline.Completed
		fields["pipelineFailed"] = stats.Pipeline.Failed
	}
	logger.WithFields(fields).Info("evaluation loop finished")
}
