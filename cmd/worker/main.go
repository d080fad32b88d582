// Package main implements the GoQueue worker process: it loads
// WorkerConfig from the environment, registers task handlers, and runs
// a Worker Runtime that claims, executes, and acknowledges tasks until
// signaled to shut down.
//
// Usage:
//
//	go run cmd/worker/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/config"
	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
	"github.com/guido-cesarano/goqueue/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := logger.Component("worker")

	qcfg, err := config.LoadQueueConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load queue config")
	}
	wcfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker config")
	}

	s, err := store.NewFromURL(qcfg.StoreURL, qcfg.MaxConnections)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer s.Close()

	svc := queue.NewService(s, queue.Config{
		DefaultQueue: qcfg.DefaultQueue,
		ResultTTL:    time.Duration(qcfg.ResultTTLSeconds) * time.Second,
		FailedTTL:    time.Duration(qcfg.FailedTTLSeconds) * time.Second,
	})

	handlers := worker.NewRegistry()
	registerDemoHandlers(handlers, worker.NewRateLimiter(s))

	metrics := worker.NewMetrics()
	go collectQueueMetrics(context.Background(), svc, metrics, wcfg.Queues)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info().Msg("Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	w := worker.New(worker.Config{
		WorkerID:            wcfg.WorkerID,
		Queues:              wcfg.Queues,
		MaxConcurrentTasks:  wcfg.MaxConcurrentTasks,
		PollingInterval:     time.Duration(wcfg.PollingIntervalMS) * time.Millisecond,
		TaskTimeout:         time.Duration(wcfg.TaskTimeoutSeconds) * time.Second,
		AutoRetry:           wcfg.AutoRetry,
		HeartbeatInterval:   time.Duration(wcfg.HeartbeatIntervalS) * time.Second,
		ShutdownGracePeriod: time.Duration(wcfg.ShutdownGracePeriod) * time.Second,
	}, svc, s, handlers, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down worker...")
		cancel()
	}()

	log.Info().Strs("queues", wcfg.Queues).Msg("Worker started. Waiting for tasks...")
	w.Run(ctx)
}

// collectQueueMetrics periodically refreshes the queue depth gauge for
// every priority lane of every configured queue, the same cadence the
// teacher's collectQueueMetrics used against its three fixed lists.
func collectQueueMetrics(ctx context.Context, svc *queue.Service, metrics *worker.Metrics, queues []string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range queues {
				stats, err := svc.QueueStats(ctx, q)
				if err != nil {
					continue
				}
				for p, depth := range stats.PendingPerPriority {
					metrics.QueueDepth.WithLabelValues(q, p.String()).Set(float64(depth))
				}
			}
		}
	}
}

// registerDemoHandlers wires a handful of sample task handlers,
// mirroring the teacher's email/image_resize/slow/generic switch in
// cmd/worker/main.go, now as independently registrable functions.
func registerDemoHandlers(r *worker.Registry, limiter *worker.RateLimiter) {
	r.Register("email", func(ctx context.Context, t *tasks.Task) ([]byte, error) {
		allowed, err := limiter.Allow(ctx, "email", 10, 20)
		if err == nil && !allowed {
			time.Sleep(200 * time.Millisecond)
		}
		time.Sleep(200 * time.Millisecond)
		return []byte(`{"status":"sent"}`), nil
	})

	r.Register("image_resize", func(ctx context.Context, t *tasks.Task) ([]byte, error) {
		time.Sleep(500 * time.Millisecond)
		return []byte(`{"status":"resized"}`), nil
	})

	r.Register("slow", func(ctx context.Context, t *tasks.Task) ([]byte, error) {
		select {
		case <-time.After(5 * time.Second):
			return []byte(`{"status":"done"}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}
