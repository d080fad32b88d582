// Package worker implements the Worker Runtime: it claims tasks from
// the Queue Service, dispatches them to registered handlers under a
// bounded concurrency semaphore, and reports liveness via periodic
// heartbeats. Concurrency control and shutdown draining are grounded
// on asynq's processor (sema chan struct{}, a done/quit channel pair,
// and panic-recovering perform()); claim/ack/retry wiring generalizes
// the teacher's cmd/worker/main.go dequeue-process-ack loop.
package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Config controls one Worker Runtime instance, matching spec.md §6's
// WorkerConfig.
type Config struct {
	WorkerID            string
	Queues              []string
	MaxConcurrentTasks  int
	PollingInterval     time.Duration
	TaskTimeout         time.Duration
	AutoRetry           bool
	HeartbeatInterval   time.Duration
	ShutdownGracePeriod time.Duration
}

// Worker claims and executes tasks for a configured set of queues.
type Worker struct {
	cfg      Config
	queue    *queue.Service
	store    store.Store
	handlers *Registry
	metrics  *Metrics
	log      zerolog.Logger

	sema chan struct{}
	wg   sync.WaitGroup

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	draining chan struct{}
	once     sync.Once
}

// New constructs a Worker over the given Queue Service, handler
// registry, and (optionally nil) metrics collectors. With nil metrics
// the worker uses its own unregistered collectors.
func New(cfg Config, q *queue.Service, s store.Store, handlers *Registry, metrics *Metrics) *Worker {
	if metrics == nil {
		metrics = newMetrics(promauto.With(nil))
	}
	return &Worker{
		cfg:      cfg,
		queue:    q,
		store:    s,
		handlers: handlers,
		metrics:  metrics,
		log:      logger.Component("worker").With().Str("worker_id", cfg.WorkerID).Logger(),
		sema:     make(chan struct{}, cfg.MaxConcurrentTasks),
		inFlight: make(map[string]struct{}),
		draining: make(chan struct{}),
	}
}

// Run claims and processes tasks until ctx is cancelled, then drains
// in-flight work for up to ShutdownGracePeriod before returning.
func (w *Worker) Run(ctx context.Context) {
	go w.heartbeatLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case w.sema <- struct{}{}:
		}

		t, err := w.queue.Claim(ctx, w.cfg.WorkerID, w.cfg.Queues, w.cfg.PollingInterval, w.cfg.TaskTimeout)
		if err != nil {
			<-w.sema
			if ctx.Err() != nil {
				w.shutdown()
				return
			}
			w.log.Warn().Err(err).Msg("claim failed")
			continue
		}
		if t == nil {
			<-w.sema
			continue
		}

		w.wg.Add(1)
		go w.process(ctx, t)
	}
}

// shutdown waits up to ShutdownGracePeriod for in-flight executions
// to finish, then returns regardless, and publishes a final draining
// heartbeat before removing this worker's record.
func (w *Worker) shutdown() {
	w.once.Do(func() { close(w.draining) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGracePeriod):
		w.log.Warn().Msg("shutdown grace period elapsed with tasks still in flight")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.publishHeartbeat(ctx, true)
	if err := w.store.Del(ctx, tasks.WorkerKey(w.cfg.WorkerID)); err != nil {
		w.log.Warn().Err(err).Msg("failed to remove worker heartbeat key on shutdown")
	}
}

// process runs one claimed task's handler under a timeout, extends its
// visibility deadline periodically while running, and acks the result.
func (w *Worker) process(ctx context.Context, t *tasks.Task) {
	defer w.wg.Done()
	defer func() { <-w.sema }()

	w.trackInFlight(t.ID, true)
	defer w.trackInFlight(t.ID, false)

	start := time.Now()
	w.metrics.QueueLatency.WithLabelValues(t.Name).Observe(start.Sub(t.CreatedAt).Seconds())

	if err := w.queue.MarkRunning(ctx, t.ID); err != nil {
		w.log.Warn().Err(err).Str("task_id", t.ID).Msg("failed to mark task running")
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	extendDone := make(chan struct{})
	go w.extendVisibility(taskCtx, t, extendDone)

	result, runErr := w.invoke(taskCtx, t)
	close(extendDone)

	w.metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())

	select {
	case <-w.draining:
		if runErr == nil {
			runErr = goqueueerrors.New(goqueueerrors.KindCancelled, "worker shutting down")
		}
	default:
	}

	if runErr != nil {
		w.log.Error().Err(runErr).Str("task_id", t.ID).Str("name", t.Name).Msg("task failed")
		allowRetry := w.cfg.AutoRetry && !goqueueerrors.Is(runErr, goqueueerrors.KindUnknownHandler)
		if err := w.queue.AckFailure(ctx, t.ID, runErr, allowRetry); err != nil {
			w.log.Error().Err(err).Str("task_id", t.ID).Msg("ack_failure failed")
		}
		w.metrics.Processed.WithLabelValues("failed", t.Name).Inc()
		return
	}

	if err := w.queue.AckSuccess(ctx, t.ID, result); err != nil {
		w.log.Error().Err(err).Str("task_id", t.ID).Msg("ack_success failed")
	}
	w.metrics.Processed.WithLabelValues("success", t.Name).Inc()
}

// invoke looks up and calls the task's handler, recovering panics into
// a HandlerFailure error the same way asynq's perform() does.
func (w *Worker) invoke(ctx context.Context, t *tasks.Task) (result []byte, err error) {
	h, ok := w.handlers.Lookup(t.Name)
	if !ok {
		return nil, goqueueerrors.Wrap(goqueueerrors.KindUnknownHandler, ErrUnknownHandler(t.Name), "dispatch")
	}

	defer func() {
		if r := recover(); r != nil {
			err = goqueueerrors.New(goqueueerrors.KindHandlerFailure, "handler panicked")
		}
	}()
	return h(ctx, t)
}

// extendVisibility periodically extends a claimed task's visibility
// deadline at task_timeout/3 cadence while it is still running, so a
// slow but healthy handler isn't reclaimed by RecoverExpired.
func (w *Worker) extendVisibility(ctx context.Context, t *tasks.Task, done <-chan struct{}) {
	interval := w.cfg.TaskTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.TaskTimeout)
			if err := w.queue.ExtendVisibility(ctx, t.Queue, t.ID, deadline); err != nil {
				w.log.Warn().Err(err).Str("task_id", t.ID).Msg("failed to extend visibility deadline")
				return
			}
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.publishHeartbeat(ctx, false)
		}
	}
}

// trackInFlight adds or removes id from the set of currently-executing
// task ids published on the next heartbeat.
func (w *Worker) trackInFlight(id string, running bool) {
	w.inFlightMu.Lock()
	defer w.inFlightMu.Unlock()
	if running {
		w.inFlight[id] = struct{}{}
	} else {
		delete(w.inFlight, id)
	}
}

func (w *Worker) inFlightIDs() []string {
	w.inFlightMu.Lock()
	defer w.inFlightMu.Unlock()
	ids := make([]string, 0, len(w.inFlight))
	for id := range w.inFlight {
		ids = append(ids, id)
	}
	return ids
}

func (w *Worker) publishHeartbeat(ctx context.Context, draining bool) {
	drainingStr := "false"
	if draining {
		drainingStr = "true"
	}
	fields := map[string]string{
		"worker_id":     w.cfg.WorkerID,
		"draining":      drainingStr,
		"last_seen":     time.Now().UTC().Format(time.RFC3339Nano),
		"in_flight_ids": strings.Join(w.inFlightIDs(), ","),
		"queues":        strings.Join(w.cfg.Queues, ","),
	}
	if err := w.store.HSet(ctx, tasks.WorkerKey(w.cfg.WorkerID), fields); err != nil {
		w.log.Warn().Err(err).Msg("failed to publish heartbeat")
		return
	}
	ttl := 3 * w.cfg.HeartbeatInterval
	if err := w.store.Expire(ctx, tasks.WorkerKey(w.cfg.WorkerID), ttl); err != nil {
		w.log.Warn().Err(err).Msg("failed to refresh heartbeat ttl")
	}
}
