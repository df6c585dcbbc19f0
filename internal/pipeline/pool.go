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

// Package pipeline runs constraint batches on a pool of workers with
// per task deadlines, retries on failure, and a batch size that adapts
// to observed throughput.
package pipeline

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"openslate.dev/openslate/internal/config"
	"openslate.dev/openslate/internal/telemetry"
)

var logger = logrus.WithFields(logrus.Fields{
	"app":       "openslate",
	"component": "pipeline",
})

const (
	defaultBatchSize           = 5
	defaultMinBatchSize        = 1
	defaultMaxBatchSize        = 20
	defaultTimeoutMs           = 30000
	defaultMaxRetries          = 2
	defaultAdaptiveInterval    = 10 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	workerPingTimeout          = time.Second
)

// Pool runs constraint batches on a fixed set of workers. A batch waits in
// a FIFO queue when every worker is busy, otherwise it goes to the least
// loaded idle worker. Failed tasks are retried on another worker after a
// backoff; tasks that miss their deadline resolve to a TimeoutError and
// any result arriving later is discarded.
type Pool struct {
	cfg config.View

	mu       sync.Mutex
	workers  map[int]*worker
	queue    []*task
	active   map[string]*task
	shutdown bool

	completed int64
	failed    int64

	results chan taskOutcome
	stop    chan struct{}
	loops   sync.WaitGroup

	sizer         *batchSizer
	retryTemplate *backoff.ExponentialBackOff
	timeout       time.Duration
	maxRetries    int
	loadBalance   bool
}

// New creates a Pool from configuration and starts its workers. The
// worker count falls back to half the machine's cores, with a floor of
// two.
func New(cfg config.View) *Pool {
	workers := cfg.GetInt("pipeline.maxWorkers")
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
		if workers < 2 {
			workers = 2
		}
	}

	spec := cfg.GetString("pipeline.retryBackoff")
	if spec == "" {
		spec = defaultRetryBackoff
	}
	retryTemplate, err := parseRetryBackoff(spec)
	if err != nil {
		logger.WithError(err).Warningf("cannot parse pipeline.retryBackoff %q, using the default", spec)
		retryTemplate, _ = parseRetryBackoff(defaultRetryBackoff)
	}

	p := &Pool{
		cfg:     cfg,
		workers: make(map[int]*worker, workers),
		active:  make(map[string]*task),
		results: make(chan taskOutcome),
		stop:    make(chan struct{}),
		sizer: newBatchSizer(
			intFromConfig(cfg, "pipeline.batchSize", defaultBatchSize),
			intFromConfig(cfg, "pipeline.minBatchSize", defaultMinBatchSize),
			intFromConfig(cfg, "pipeline.maxBatchSize", defaultMaxBatchSize),
		),
		retryTemplate: retryTemplate,
		timeout:       time.Duration(intFromConfig(cfg, "pipeline.timeoutMs", defaultTimeoutMs)) * time.Millisecond,
		maxRetries:    intFromConfig(cfg, "pipeline.maxRetries", defaultMaxRetries),
		loadBalance:   boolFromConfig(cfg, "pipeline.loadBalancing", true),
	}

	for i := 0; i < workers; i++ {
		w := newWorker(i, p.results)
		p.workers[i] = w
		go w.run()
	}

	p.loops.Add(3)
	go p.collect()
	go p.adaptiveLoop(durationFromConfig(cfg, "pipeline.adaptiveInterval", defaultAdaptiveInterval))
	go p.healthLoop(durationFromConfig(cfg, "pipeline.healthCheckInterval", defaultHealthCheckInterval))

	logger.WithFields(logrus.Fields{
		"workers": workers,
		"timeout": p.timeout,
	}).Info("evaluation pipeline started")
	return p
}

// ProcessBatch submits one batch and blocks until it completes, fails,
// times out, or the given context is canceled.
func (p *Pool) ProcessBatch(ctx context.Context, batch *Batch) (*BatchResult, error) {
	if batch == nil || batch.Evaluate == nil {
		return nil, errors.New("batch must carry an evaluate function")
	}
	if batch.ID == "" {
		batch.ID = xid.New().String()
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	t := &task{
		id:     xid.New().String(),
		batch:  batch,
		ctx:    tctx,
		cancel: cancel,
		retry:  p.newTaskBackoff(),
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		cancel()
		return nil, &ShutdownError{}
	}
	p.active[t.id] = t
	t.timer = time.AfterFunc(p.timeout, func() { p.timeoutTask(t) })
	p.enqueueOrDispatchLocked(t)
	p.mu.Unlock()

	telemetry.RecordNUnitMeasurement(ctx, telemetry.PipelineBatchSize, int64(len(batch.Constraints)))

	select {
	case <-t.done:
	case <-ctx.Done():
		p.abandonTask(t, ctx.Err())
		<-t.done
	}
	return t.result, t.err
}

// TargetBatchSize returns the preferred number of constraints per batch
// for callers splitting work across ProcessBatch calls.
func (p *Pool) TargetBatchSize() int {
	return p.sizer.Target()
}

// Shutdown stops the pool. Queued and running tasks resolve to a
// ShutdownError, workers are stopped, and later ProcessBatch calls fail
// fast. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	for _, t := range p.active {
		p.resolveLocked(t, nil, &ShutdownError{})
	}
	p.queue = nil
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	close(p.stop)
	for _, w := range workers {
		close(w.stop)
	}
	p.loops.Wait()
	logger.Info("evaluation pipeline stopped")
}

// WorkerStats is a snapshot of one worker.
type WorkerStats struct {
	ID        int
	Completed int64
	Failed    int64
	AvgMs     float64
	Busy      bool
}

// Stats is a point in time snapshot of pipeline activity.
type Stats struct {
	Workers         []WorkerStats
	QueueLength     int
	ActiveTasks     int
	TargetBatchSize int
	Throughput      float64
	Completed       int64
	Failed          int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Workers:     make([]WorkerStats, 0, len(p.workers)),
		QueueLength: len(p.queue),
		ActiveTasks: len(p.active),
		Completed:   p.completed,
		Failed:      p.failed,
	}
	for _, w := range p.workers {
		s.Workers = append(s.Workers, WorkerStats{
			ID:        w.id,
			Completed: w.completed,
			Failed:    w.failed,
			AvgMs:     w.avgMs,
			Busy:      w.current != nil,
		})
	}
	p.mu.Unlock()

	sort.Slice(s.Workers, func(i, j int) bool { return s.Workers[i].ID < s.Workers[j].ID })
	s.TargetBatchSize = p.sizer.Target()
	s.Throughput = p.sizer.throughput()
	return s
}

func (p *Pool) collect() {
	defer p.loops.Done()
	for {
		select {
		case out := <-p.results:
			p.handleOutcome(out)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) handleOutcome(out taskOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.workers[out.workerID]
	if w != nil && w.current == out.task {
		w.current = nil
	}
	if out.panicked && w != nil && !p.shutdown {
		logger.WithFields(logrus.Fields{
			"workerId": w.id,
			"taskId":   out.task.id,
		}).WithError(out.err).Error("worker panicked, replacing it")
		p.replaceWorkerLocked(w)
		// The replacement carries the failure count below.
		w = p.workers[out.workerID]
	}

	t := out.task
	switch {
	case t.resolved:
		logger.WithField("taskId", t.id).Debug("discarding late result for resolved task")
	case out.err == nil:
		if w != nil {
			w.completed++
			w.observeLocked(out.elapsed)
		}
		p.sizer.recordCompletion()
		telemetry.RecordNUnitMeasurement(context.Background(), telemetry.PipelineTaskLatency, out.elapsed.Milliseconds())
		p.resolveLocked(t, out.result, nil)
	case errors.Is(out.err, context.DeadlineExceeded):
		p.resolveLocked(t, nil, &TimeoutError{TaskID: t.id, BatchID: t.batch.ID, Timeout: p.timeout})
	case errors.Is(out.err, context.Canceled):
		p.resolveLocked(t, nil, out.err)
	default:
		if w != nil {
			w.failed++
		}
		if t.retries < p.maxRetries {
			t.retries++
			p.scheduleRetryLocked(t)
		} else {
			p.resolveLocked(t, nil, &WorkerFailureError{
				TaskID:   t.id,
				BatchID:  t.batch.ID,
				WorkerID: out.workerID,
				Attempts: t.retries + 1,
				Err:      out.err,
			})
		}
	}

	p.dispatchQueuedLocked()
}

// resolveLocked settles a task exactly once and releases its waiter.
func (p *Pool) resolveLocked(t *task, result *BatchResult, err error) {
	if t.resolved {
		return
	}
	t.resolved = true
	t.result = result
	t.err = err
	t.cancel()
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(p.active, t.id)
	if err == nil {
		p.completed++
	} else {
		p.failed++
	}
	close(t.done)
}

func (p *Pool) timeoutTask(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.resolved {
		return
	}
	p.removeFromQueueLocked(t)
	logger.WithFields(logrus.Fields{
		"taskId":  t.id,
		"batchId": t.batch.ID,
	}).Warning("task missed its deadline")
	p.resolveLocked(t, nil, &TimeoutError{TaskID: t.id, BatchID: t.batch.ID, Timeout: p.timeout})
}

// abandonTask resolves a task whose caller gave up on it.
func (p *Pool) abandonTask(t *task, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.resolved {
		return
	}
	p.removeFromQueueLocked(t)
	p.resolveLocked(t, nil, err)
}

func (p *Pool) enqueueOrDispatchLocked(t *task) {
	if w := p.pickWorkerLocked(t); w != nil {
		p.assignLocked(w, t)
		return
	}
	p.queue = append(p.queue, t)
}

// pickWorkerLocked returns an idle worker: the least loaded one when load
// balancing is on, otherwise the lowest numbered. A retried task avoids
// the worker that just failed it whenever another worker exists.
func (p *Pool) pickWorkerLocked(t *task) *worker {
	var best *worker
	for _, w := range p.workers {
		if w.current != nil {
			continue
		}
		if t.retries > 0 && w.id == t.lastWorker && len(p.workers) > 1 {
			continue
		}
		switch {
		case best == nil:
			best = w
		case p.loadBalance && w.avgMs < best.avgMs:
			best = w
		case !p.loadBalance && w.id < best.id:
			best = w
		}
	}
	return best
}

func (p *Pool) assignLocked(w *worker, t *task) {
	w.current = t
	t.lastWorker = w.id
	w.tasks <- t
}

func (p *Pool) dispatchQueuedLocked() {
	for len(p.queue) > 0 {
		t := p.queue[0]
		if t.resolved {
			p.queue = p.queue[1:]
			continue
		}
		w := p.pickWorkerLocked(t)
		if w == nil {
			return
		}
		p.queue = p.queue[1:]
		p.assignLocked(w, t)
	}
}

func (p *Pool) removeFromQueueLocked(t *task) {
	for i, qt := range p.queue {
		if qt == t {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

func (p *Pool) scheduleRetryLocked(t *task) {
	delay := t.retry.NextBackOff()
	if delay < 0 {
		delay = 0
	}
	logger.WithFields(logrus.Fields{
		"taskId":  t.id,
		"attempt": t.retries,
		"delay":   delay,
	}).Debug("retrying task on another worker")
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if t.resolved || p.shutdown {
			return
		}
		p.enqueueOrDispatchLocked(t)
	})
}

// replaceWorkerLocked retires a worker and starts a fresh one under the
// same id. A task the old worker was still holding is failed over.
func (p *Pool) replaceWorkerLocked(old *worker) {
	close(old.stop)

	replacement := newWorker(old.id, p.results)
	p.workers[old.id] = replacement
	go replacement.run()

	if t := old.current; t != nil && !t.resolved {
		old.current = nil
		if t.retries < p.maxRetries {
			t.retries++
			p.scheduleRetryLocked(t)
		} else {
			p.resolveLocked(t, nil, &WorkerFailureError{
				TaskID:   t.id,
				BatchID:  t.batch.ID,
				WorkerID: old.id,
				Attempts: t.retries + 1,
				Err:      errors.New("worker was replaced while running the task"),
			})
		}
	}
}

func (p *Pool) adaptiveLoop(interval time.Duration) {
	defer p.loops.Done()
	if interval <= 0 {
		interval = defaultAdaptiveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sizer.adapt(interval)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) healthLoop(interval time.Duration) {
	defer p.loops.Done()
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.checkWorkers()
		case <-p.stop:
			return
		}
	}
}

// checkWorkers replaces workers that no longer make progress. An idle
// worker must answer a ping; a busy worker is stuck once the task it holds
// has already resolved, which means it ran past the task deadline.
func (p *Pool) checkWorkers() {
	type probe struct {
		w     *worker
		busy  bool
		stuck bool
	}

	p.mu.Lock()
	probes := make([]probe, 0, len(p.workers))
	for _, w := range p.workers {
		pr := probe{w: w, busy: w.current != nil}
		if pr.busy && w.current.resolved {
			pr.stuck = true
		}
		probes = append(probes, pr)
	}
	p.mu.Unlock()

	for _, pr := range probes {
		healthy := true
		if pr.stuck {
			healthy = false
		} else if !pr.busy {
			healthy = p.pingWorker(pr.w)
		}
		if healthy {
			continue
		}
		logger.WithField("workerId", pr.w.id).Warning("worker failed its health check, replacing it")
		p.mu.Lock()
		if p.workers[pr.w.id] == pr.w && !p.shutdown {
			p.replaceWorkerLocked(pr.w)
			p.dispatchQueuedLocked()
		}
		p.mu.Unlock()
	}
}

// pingWorker reports whether the worker's goroutine answers within the
// ping timeout.
func (p *Pool) pingWorker(w *worker) bool {
	pong := make(chan struct{})
	select {
	case w.pings <- pong:
	case <-w.stop:
		return true
	case <-p.stop:
		return true
	case <-time.After(workerPingTimeout):
		return false
	}
	select {
	case <-pong:
		return true
	case <-p.stop:
		return true
	case <-time.After(workerPingTimeout):
		return false
	}
}

// newTaskBackoff hands each task its own copy of the retry backoff so
// retry delays do not interleave across tasks.
func (p *Pool) newTaskBackoff() backoff.BackOff {
	b := *p.retryTemplate
	b.Reset()
	return &b
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

func durationFromConfig(cfg config.View, key string, def time.Duration) time.Duration {
	if cfg.IsSet(key) {
		return cfg.GetDuration(key)
	}
	return def
}
