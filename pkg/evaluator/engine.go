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

// Package evaluator scores candidate game schedules against registered
// constraints. Results are cached by schedule fingerprint, small edits
// re-evaluate only the constraints whose scope the edit touches, and
// large constraint sets fan out over a worker pipeline.
package evaluator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"openslate.dev/openslate/internal/cache"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/pipeline"
	"openslate.dev/openslate/internal/telemetry"
	"openslate.dev/openslate/internal/util"
	"openslate.dev/openslate/pkg/constraint"
	"openslate.dev/openslate/pkg/schedule"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "openslate",
	"component": "evaluator",
})

const (
	defaultParallelThreshold  = 5
	defaultEarlyTermBudget    = 1000.0
	defaultIncrementalMaxFrac = 0.3
)

// Engine evaluates schedules. Safe for concurrent use; constraints are
// registered up front and weights adjusted through UpdateWeight.
type Engine struct {
	cfg      config.View
	cache    cache.Service
	pool     *pipeline.Pool
	observer Observer
	now      func() time.Time

	cachingEnabled     bool
	parallelEnabled    bool
	parallelThreshold  int
	earlyTermination   bool
	earlyBudget        float64
	incrementalEnabled bool
	incrementalMaxFrac float64
	singleFlightOn     bool

	mu            sync.RWMutex
	registrations map[string]*registration
	baseline      *baseline

	flight   singleflight.Group
	shutdown *util.MultiClose

	evaluations  int64
	cacheHits    int64
	incrementals int64
	sequentials  int64
	parallels    int64
	earlyStops   int64
}

// baseline is the last fully evaluated schedule, kept for incremental
// re-evaluation of the next edit.
type baseline struct {
	fingerprint string
	canonical   *schedule.Canonical
	result      *Result
}

// Option adjusts an Engine under construction.
type Option func(*Engine)

// WithCache injects a result cache. The engine takes ownership and closes
// it on Close.
func WithCache(s cache.Service) Option {
	return func(e *Engine) { e.cache = s }
}

// WithPipeline injects a worker pool for parallel evaluation. The engine
// takes ownership and shuts it down on Close.
func WithPipeline(p *pipeline.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithObserver registers a callback invoked after every evaluation.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine from configuration. Unless injected through
// options, the result cache and the worker pipeline are constructed from
// the same configuration when their feature flags are on.
func New(cfg config.View, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:                cfg,
		now:                time.Now,
		registrations:      map[string]*registration{},
		shutdown:           util.NewMultiClose(),
		cachingEnabled:     boolFromConfig(cfg, "evaluator.enableCaching", true),
		parallelEnabled:    boolFromConfig(cfg, "evaluator.enableParallelProcessing", true),
		parallelThreshold:  intFromConfig(cfg, "evaluator.parallelThreshold", defaultParallelThreshold),
		earlyTermination:   boolFromConfig(cfg, "evaluator.enableEarlyTermination", true),
		earlyBudget:        floatFromConfig(cfg, "evaluator.earlyTerminationThreshold", defaultEarlyTermBudget),
		incrementalEnabled: boolFromConfig(cfg, "evaluator.enableIncrementalEvaluation", true),
		incrementalMaxFrac: floatFromConfig(cfg, "evaluator.incrementalChangeThreshold", defaultIncrementalMaxFrac),
		singleFlightOn:     boolFromConfig(cfg, "evaluator.singleFlight", true),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.earlyBudget < 0 {
		return nil, &ConfigurationError{Reason: "evaluator.earlyTerminationThreshold must not be negative"}
	}
	if e.incrementalMaxFrac < 0 || e.incrementalMaxFrac > 1 {
		return nil, &ConfigurationError{Reason: "evaluator.incrementalChangeThreshold must be between 0 and 1"}
	}

	if e.cachingEnabled && e.cache == nil {
		e.cache = cache.New(cfg)
	}
	if e.parallelEnabled && e.pool == nil {
		e.pool = pipeline.New(cfg)
	}
	if e.pool != nil {
		e.shutdown.AddCloseFunc(e.pool.Shutdown)
	}
	if e.cache != nil {
		e.shutdown.AddCloseWithErrorFunc(e.cache.Close)
	}
	return e, nil
}

// Evaluate scores a schedule against every registered constraint. The
// call degrades rather than fails when individual constraints error;
// only pipeline-level faults (timeout, exhausted retries, shutdown) and
// context cancellation surface as errors.
func (e *Engine) Evaluate(ctx context.Context, s *schedule.Schedule) (*Result, error) {
	if s == nil {
		return nil, errors.New("schedule must not be nil")
	}
	atomic.AddInt64(&e.evaluations, 1)
	start := time.Now()
	canonical := schedule.Canonicalize(s)
	fp := fingerprintCanonical(canonical)

	if r, ok := e.cachedResult(ctx, fp); ok {
		atomic.AddInt64(&e.cacheHits, 1)
		e.observe(r)
		return r, nil
	}

	if e.singleFlightOn {
		v, err, _ := e.flight.Do(fp, func() (interface{}, error) {
			return e.evaluateMiss(ctx, s, fp, canonical, start)
		})
		if err != nil {
			return nil, err
		}
		return v.(*Result), nil
	}
	return e.evaluateMiss(ctx, s, fp, canonical, start)
}

// evaluateMiss computes a result for a fingerprint the cache does not
// hold: incrementally off the baseline when the edit is small enough,
// otherwise a full pass, parallel when the constraint set is large.
func (e *Engine) evaluateMiss(ctx context.Context, s *schedule.Schedule, fp string, canonical *schedule.Canonical, start time.Time) (*Result, error) {
	if unlock := e.lockFingerprint(ctx, fp); unlock != nil {
		defer unlock()
		// Another replica may have stored the result while this one
		// waited on the lock.
		if r, ok := e.cachedResult(ctx, fp); ok {
			atomic.AddInt64(&e.cacheHits, 1)
			e.observe(r)
			return r, nil
		}
	}

	if r, ok := e.tryIncremental(ctx, s, fp, canonical, start); ok {
		atomic.AddInt64(&e.incrementals, 1)
		e.storeResult(ctx, fp, r)
		e.setBaseline(fp, canonical, r)
		e.observe(r)
		return r, nil
	}

	regs := e.ordered()
	var (
		r         *Result
		completed bool
		err       error
	)
	if e.pool != nil && e.parallelEnabled && len(regs) > e.parallelThreshold {
		r, err = e.evaluateParallel(ctx, s, fp, regs, start)
		completed = true
		if err == nil {
			atomic.AddInt64(&e.parallels, 1)
		}
	} else {
		r, completed, err = e.evaluateSequential(ctx, s, fp, regs, start)
		if err == nil {
			atomic.AddInt64(&e.sequentials, 1)
		}
	}
	if err != nil {
		return nil, err
	}

	e.storeResult(ctx, fp, r)
	if completed {
		e.setBaseline(fp, canonical, r)
	}
	e.observe(r)
	return r, nil
}

// evaluateSequential runs constraints one by one in evaluation order.
// When early termination is enabled, the pass stops as soon as a hard
// constraint has been violated and the accumulated penalty exceeds the
// budget; the skipped constraints have no breakdown entries. The second
// return reports whether every constraint was evaluated.
func (e *Engine) evaluateSequential(ctx context.Context, s *schedule.Schedule, fp string, regs []*registration, start time.Time) (*Result, bool, error) {
	breakdown := make(map[string]*Entry, len(regs))
	var running float64
	hardViolated := false
	completed := true

	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		entry := e.safeEvaluate(ctx, s, fp, reg)
		breakdown[reg.c.ID] = entry
		running += entry.WeightedScore
		if reg.c.Category == constraint.CategoryHard && len(entry.Violations) > 0 {
			hardViolated = true
		}
		if e.earlyTermination && hardViolated && running > e.earlyBudget {
			atomic.AddInt64(&e.earlyStops, 1)
			logger.WithFields(logrus.Fields{
				"fingerprint": fp,
				"score":       running,
			}).Debug("stopping evaluation early, penalty budget exceeded after a hard violation")
			completed = false
			break
		}
	}
	return e.assemble(ctx, fp, ModeFullSequential, start, breakdown), completed, nil
}

// evaluateParallel fans the constraint set out over the pipeline in
// batches of the pipeline's current target size. Entries land in a shared
// map from worker goroutines; aggregation happens after every batch has
// resolved. Early termination does not apply on this path.
func (e *Engine) evaluateParallel(ctx context.Context, s *schedule.Schedule, fp string, regs []*registration, start time.Time) (*Result, error) {
	var (
		entriesMu sync.Mutex
		entries   = make(map[string]*Entry, len(regs))
	)
	evaluate := func(ctx context.Context, sched *schedule.Schedule, c *constraint.Constraint) (*constraint.Result, error) {
		e.mu.RLock()
		reg := e.registrations[c.ID]
		e.mu.RUnlock()
		if reg == nil {
			return nil, errors.Errorf("constraint %s is not registered", c.ID)
		}
		entry := e.evaluateConstraint(ctx, sched, fp, reg)
		entriesMu.Lock()
		entries[c.ID] = entry
		entriesMu.Unlock()
		if entry.Failed {
			return nil, errors.New(entry.Error)
		}
		return &constraint.Result{Score: entry.Score, Violations: entry.Violations}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, constraints := range splitBatches(regs, e.pool.TargetBatchSize()) {
		batch := &pipeline.Batch{
			Schedule:    s,
			Constraints: constraints,
			Evaluate:    evaluate,
		}
		g.Go(func() error {
			_, err := e.pool.ProcessBatch(gctx, batch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e.assemble(ctx, fp, ModeFullParallel, start, entries), nil
}

// safeEvaluate is the sequential-path wrapper: a panic inside the
// constraint function becomes a failed breakdown entry instead of
// crashing the evaluation. On the parallel path panics propagate to the
// worker, which is replaced and the batch retried.
func (e *Engine) safeEvaluate(ctx context.Context, s *schedule.Schedule, fp string, reg *registration) (entry *Entry) {
	e.mu.RLock()
	weight := reg.c.Weight
	e.mu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("constraintId", reg.c.ID).Errorf("recovered from panic in constraint evaluation: %v", r)
			evalErr := &ConstraintEvaluationError{
				ConstraintID: reg.c.ID,
				Err:          errors.Errorf("panic: %v", r),
			}
			entry = &Entry{
				ConstraintID: reg.c.ID,
				Weight:       weight,
				Failed:       true,
				Error:        evalErr.Error(),
			}
		}
	}()
	return e.evaluateConstraint(ctx, s, fp, reg)
}

// evaluateConstraint produces one breakdown entry. The constraint-level
// cache is keyed by constraint, fingerprint, and parameter hash; the
// weight is read at call time so UpdateWeight applies to cached scores
// too.
func (e *Engine) evaluateConstraint(ctx context.Context, s *schedule.Schedule, fp string, reg *registration) *Entry {
	started := time.Now()
	e.mu.RLock()
	weight := reg.c.Weight
	e.mu.RUnlock()

	entry := &Entry{ConstraintID: reg.c.ID, Weight: weight}

	var key string
	if e.cachingEnabled && e.cache != nil {
		key = cache.ConstraintKey(reg.c.ID, fp, reg.c.Params)
		atomic.AddInt64(&reg.lookups, 1)
		var prior constraint.Result
		if e.cache.Get(ctx, key, &prior) {
			atomic.AddInt64(&reg.hits, 1)
			entry.Score = prior.Score
			entry.Violations = prior.Violations
			entry.WeightedScore = prior.Score * weight
			entry.FromCache = true
			entry.Elapsed = time.Since(started)
			return entry
		}
	}

	res, err := reg.c.Evaluate(ctx, s, reg.c.Params)
	entry.Elapsed = time.Since(started)
	telemetry.RecordNUnitMeasurement(ctx, telemetry.ConstraintLatency, entry.Elapsed.Milliseconds())
	if err != nil {
		evalErr := &ConstraintEvaluationError{ConstraintID: reg.c.ID, Err: err}
		logger.WithError(err).WithField("constraintId", reg.c.ID).Warning("constraint evaluation failed")
		entry.Failed = true
		entry.Error = evalErr.Error()
		return entry
	}
	if res == nil {
		res = &constraint.Result{}
	}
	for _, v := range res.Violations {
		if v.ConstraintID == "" {
			v.ConstraintID = reg.c.ID
		}
		if v.ConstraintType == "" {
			v.ConstraintType = reg.c.Type
		}
	}
	entry.Score = res.Score
	entry.Violations = res.Violations
	entry.WeightedScore = res.Score * weight
	if key != "" {
		e.cache.Set(ctx, key, res, 0)
	}
	return entry
}

// assemble folds breakdown entries into a Result. Entries are visited in
// id order so violation listing and score accumulation are deterministic.
func (e *Engine) assemble(ctx context.Context, fp, mode string, start time.Time, breakdown map[string]*Entry) *Result {
	ids := make([]string, 0, len(breakdown))
	for id := range breakdown {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r := &Result{Breakdown: breakdown}
	var degraded []string
	var reused int64
	for _, id := range ids {
		entry := breakdown[id]
		r.Score += entry.WeightedScore
		r.Violations = append(r.Violations, entry.Violations...)
		if entry.Failed {
			degraded = append(degraded, id)
		}
		if entry.FromCache {
			reused++
		}
		if e.isHard(id) {
			r.HardViolations += len(entry.Violations)
		}
	}
	r.Valid = r.HardViolations == 0
	r.Metadata = Metadata{
		EvaluationID: xid.New().String(),
		Fingerprint:  fp,
		Mode:         mode,
		Elapsed:      time.Since(start),
		EvaluatedAt:  e.now(),
		Degraded:     degraded,
	}

	telemetry.RecordNUnitMeasurement(ctx, telemetry.EvaluationLatency, r.Metadata.Elapsed.Milliseconds())
	telemetry.RecordNUnitMeasurement(ctx, telemetry.ConstraintsPerEvaluation, int64(len(breakdown)))
	telemetry.RecordNUnitMeasurement(ctx, telemetry.ReusedPerEvaluation, reused)
	telemetry.RecordNUnitMeasurement(ctx, telemetry.ViolationsPerEvaluation, int64(len(r.Violations)))
	return r
}

func (e *Engine) cachedResult(ctx context.Context, fp string) (*Result, bool) {
	if !e.cachingEnabled || e.cache == nil {
		return nil, false
	}
	var r Result
	if !e.cache.Get(ctx, cache.ScheduleKey(fp), &r) {
		return nil, false
	}
	r.Metadata.FromCache = true
	r.Metadata.Mode = ModeCached
	return &r, true
}

func (e *Engine) storeResult(ctx context.Context, fp string, r *Result) {
	if e.cachingEnabled && e.cache != nil {
		e.cache.Set(ctx, cache.ScheduleKey(fp), r, 0)
	}
}

func (e *Engine) setBaseline(fp string, canonical *schedule.Canonical, r *Result) {
	e.mu.Lock()
	e.baseline = &baseline{fingerprint: fp, canonical: canonical, result: r}
	e.mu.Unlock()
}

// lockFingerprint takes the cross-replica lock for a fingerprint when the
// cache provides one. A nil return means evaluate locally without it.
func (e *Engine) lockFingerprint(ctx context.Context, fp string) func() {
	if !e.cachingEnabled || e.cache == nil {
		return nil
	}
	locker := cache.LockerFor(e.cache)
	if locker == nil {
		return nil
	}
	unlock, err := locker.Lock(ctx, fp)
	if err != nil {
		logger.WithError(err).Debug("replica lock unavailable, evaluating locally")
		return nil
	}
	return unlock
}

func (e *Engine) isHard(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reg := e.registrations[id]
	return reg != nil && reg.c.Category == constraint.CategoryHard
}

func (e *Engine) observe(r *Result) {
	if e.observer != nil {
		e.observer.EvaluationDone(r)
	}
}

// Stats reports evaluation counters together with snapshots of the cache
// and pipeline when they are enabled.
type Stats struct {
	Evaluations       int64
	CacheHits         int64
	Incremental       int64
	FullSequential    int64
	FullParallel      int64
	EarlyTerminations int64
	Constraints       int

	Cache    *cache.Stats
	Pipeline *pipeline.Stats
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	constraints := len(e.registrations)
	e.mu.RUnlock()

	s := Stats{
		Evaluations:       atomic.LoadInt64(&e.evaluations),
		CacheHits:         atomic.LoadInt64(&e.cacheHits),
		Incremental:       atomic.LoadInt64(&e.incrementals),
		FullSequential:    atomic.LoadInt64(&e.sequentials),
		FullParallel:      atomic.LoadInt64(&e.parallels),
		EarlyTerminations: atomic.LoadInt64(&e.earlyStops),
		Constraints:       constraints,
	}
	if e.cache != nil {
		cs := e.cache.Stats()
		s.Cache = &cs
	}
	if e.pool != nil {
		ps := e.pool.Stats()
		s.Pipeline = &ps
	}
	return s
}

// Close shuts down the pipeline and the cache. Idempotent.
func (e *Engine) Close() error {
	e.shutdown.Close()
	return nil
}

// splitBatches cuts the ordered registrations into constraint slices of
// at most size.
func splitBatches(regs []*registration, size int) [][]*constraint.Constraint {
	if size < 1 {
		size = 1
	}
	var out [][]*constraint.Constraint
	for start := 0; start < len(regs); start += size {
		end := start + size
		if end > len(regs) {
			end = len(regs)
		}
		batch := make([]*constraint.Constraint, 0, end-start)
		for _, reg := range regs[start:end] {
			batch = append(batch, reg.c)
		}
		out = append(out, batch)
	}
	return out
}

func intFromConfig(cfg config.View, key string, def int) int {
	if cfg.IsSet(key) {
		return cfg.GetInt(key)
	}
	return def
}

func boolFromConfig(cfg config.View, key string, def bool) bool {
	if cfg.IsSet(key) {
		return cfg.GetBool(key)
	}
	return def
}

func floatFromConfig(cfg config.View, key string, def float64) float64 {
	if cfg.IsSet(key) {
		return cfg.GetFloat64(key)
	}
	return def
}
