// Package queue implements the Queue Service: it persists task records,
// enqueues them to priority lanes, atomically claims tasks for workers,
// records results and failures, reports statistics, and runs periodic
// cleanup. It generalizes the teacher's queue.Client (which hardcoded
// three global priority queues and one processing list) into the
// multi-queue, visibility-deadline design of spec.md §4.2.
package queue

import (
	"context"
	"math"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/rs/zerolog"
)

const registeredQueuesKey = "queues:registered"

// Config controls TTLs and defaults the Service applies across queues.
type Config struct {
	DefaultQueue string
	ResultTTL    time.Duration
	FailedTTL    time.Duration
}

// DefaultConfig mirrors spec.md §6's QueueConfig defaults.
func DefaultConfig() Config {
	return Config{
		DefaultQueue: "default",
		ResultTTL:    24 * time.Hour,
		FailedTTL:    7 * 24 * time.Hour,
	}
}

// Service is the Queue Service: the sole mutator of Task Record state.
// It is shared by reference across Client, Scheduler, and Worker, per
// spec.md §9's "cross-component sharing" note.
type Service struct {
	store store.Store
	cfg   Config
	log   zerolog.Logger
}

// NewService constructs a Queue Service over the given store adapter.
func NewService(s store.Store, cfg Config) *Service {
	return &Service{store: s, cfg: cfg, log: logger.Component("queue")}
}

// DefaultQueue returns the queue name Submit/SubmitBatch use when the
// caller doesn't pick one explicitly.
func (s *Service) DefaultQueue() string { return s.cfg.DefaultQueue }

// registerQueue records a queue name in the shared registry so
// RecoverExpired/PromoteRetries/Cleanup sweeps and QueueStats can
// discover it without being told about it out of band.
func (s *Service) registerQueue(ctx context.Context, queue string) error {
	return s.store.ZAdd(ctx, registeredQueuesKey, 0, queue)
}

// RegisteredQueues lists every queue name the service has ever seen a
// submission for.
func (s *Service) RegisteredQueues(ctx context.Context) ([]string, error) {
	return s.store.ZRangeByScoreLE(ctx, registeredQueuesKey, math.Inf(1))
}
