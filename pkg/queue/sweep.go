package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/retry"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// RecoverExpired sweeps a queue's in-flight set for tasks whose
// visibility_deadline has passed, treating each as an implicit failure
// so a crashed worker's claim is bounded in impact, per spec.md §4.2.
// It pops and processes members one at a time (rather than reading the
// whole expired range up front) so a crash mid-sweep only loses the one
// member in flight, not the whole batch.
func (s *Service) RecoverExpired(ctx context.Context, queue string) (int, error) {
	now := time.Now().UTC()
	n := 0
	for {
		id, _, ok, err := s.store.ZPopMinLE(ctx, tasks.InflightKey(queue), float64(now.Unix()))
		if err != nil {
			return n, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "recover expired")
		}
		if !ok {
			return n, nil
		}
		if err := s.recoverOne(ctx, queue, id, now); err != nil {
			s.log.Warn().Err(err).Str("queue", queue).Str("task_id", id).Msg("failed to recover expired task")
			continue
		}
		n++
	}
}

// recoverOne re-derives the retry-or-fail decision inline (rather than
// calling AckFailure, which would try to ZREM an already-popped
// member) but shares the same attempts/max_retries logic.
func (s *Service) recoverOne(ctx context.Context, queue, id string, now time.Time) error {
	t, ok, err := s.getTaskFields(ctx, id)
	if err != nil {
		return err
	}
	if !ok || t.Status.Terminal() {
		return nil
	}

	nextAttempt := t.Attempts + 1
	if t.Attempts < t.RetryConfig.MaxRetries {
		eligibleAt := retry.NextAttemptAt(now, nextAttempt, t.RetryConfig, true)
		if err := s.store.HSet(ctx, tasks.TaskKey(id), map[string]string{
			"attempts": strconv.Itoa(nextAttempt),
			"status":   string(tasks.StatusRetrying),
			"error":    "visibility deadline exceeded",
		}); err != nil {
			return err
		}
		return s.store.ZAdd(ctx, tasks.RetryKey(queue), float64(eligibleAt.Unix()), id)
	}

	if err := s.store.HSet(ctx, tasks.TaskKey(id), map[string]string{
		"attempts":    strconv.Itoa(nextAttempt),
		"status":      string(tasks.StatusFailed),
		"error":       "visibility deadline exceeded",
		"finished_at": now.Format(rfc3339NanoFormat),
	}); err != nil {
		return err
	}
	s.bumpStat(ctx, queue, "failed")
	return s.store.Expire(ctx, tasks.TaskKey(id), s.cfg.FailedTTL)
}

// PromoteRetries sweeps a queue's retry set for entries whose
// eligible_at has passed and pushes them back onto their priority
// lane with status reset to Pending, per spec.md §4.2.
func (s *Service) PromoteRetries(ctx context.Context, queue string) (int, error) {
	now := time.Now().UTC()
	n := 0
	for {
		id, _, ok, err := s.store.ZPopMinLE(ctx, tasks.RetryKey(queue), float64(now.Unix()))
		if err != nil {
			return n, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "promote retries")
		}
		if !ok {
			return n, nil
		}
		if err := s.promoteOne(ctx, queue, id); err != nil {
			s.log.Warn().Err(err).Str("queue", queue).Str("task_id", id).Msg("failed to promote retry")
			continue
		}
		n++
	}
}

func (s *Service) promoteOne(ctx context.Context, queue, id string) error {
	t, ok, err := s.getTaskFields(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.store.HSet(ctx, tasks.TaskKey(id), map[string]string{
		"status": string(tasks.StatusPending),
	}); err != nil {
		return err
	}
	return s.store.ListPushLeft(ctx, tasks.LaneKey(queue, t.Priority), id)
}

// Cleanup runs the periodic maintenance pass: recovery and retry
// promotion across every registered queue. Terminal record removal is
// left to the store's native per-key TTL (set by AckSuccess/AckFailure
// and recoverOne), per spec.md §4.2's "pruned by the store's native
// TTL where possible" — Cleanup does not need to scan for expired
// terminal records itself.
func (s *Service) Cleanup(ctx context.Context) error {
	queues, err := s.RegisteredQueues(ctx)
	if err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "list registered queues")
	}
	for _, q := range queues {
		if n, err := s.RecoverExpired(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("queue", q).Msg("recover_expired sweep failed")
		} else if n > 0 {
			s.log.Info().Str("queue", q).Int("count", n).Msg("recovered expired in-flight tasks")
		}
		if n, err := s.PromoteRetries(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("queue", q).Msg("promote_retries sweep failed")
		} else if n > 0 {
			s.log.Info().Str("queue", q).Int("count", n).Msg("promoted retrying tasks")
		}
	}
	return nil
}
