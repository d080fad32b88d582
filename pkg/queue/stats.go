package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// Stats summarizes a queue's current load, matching spec.md §4.2's
// queue_stats shape.
type Stats struct {
	PendingPerPriority map[tasks.Priority]int64
	Inflight           int64
	RetryScheduled     int64
	SucceededRecent    int64
	FailedRecent       int64
}

// QueueStats reports the current depth of every lane plus in-flight,
// retry, and recent outcome counters for one queue.
func (s *Service) QueueStats(ctx context.Context, queue string) (Stats, error) {
	stats := Stats{PendingPerPriority: map[tasks.Priority]int64{}}

	for _, p := range tasks.AllPrioritiesDescending() {
		n, err := s.store.LLen(ctx, tasks.LaneKey(queue, p))
		if err != nil {
			return stats, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "lane length")
		}
		stats.PendingPerPriority[p] = n
	}

	inflight, err := s.store.ZCard(ctx, tasks.InflightKey(queue))
	if err != nil {
		return stats, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "inflight cardinality")
	}
	stats.Inflight = inflight

	retryCount, err := s.store.ZCard(ctx, tasks.RetryKey(queue))
	if err != nil {
		return stats, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "retry cardinality")
	}
	stats.RetryScheduled = retryCount

	stats.SucceededRecent = s.readStat(ctx, queue, "succeeded")
	stats.FailedRecent = s.readStat(ctx, queue, "failed")

	return stats, nil
}

// InspectQueue returns up to limit pending tasks from one priority
// lane without removing them, generalizing the teacher's
// Client.InspectQueue (which peeked raw JSON list/zset members) into a
// decoded Task Record view over the new hash-backed storage.
func (s *Service) InspectQueue(ctx context.Context, queue string, priority tasks.Priority, limit int64) ([]tasks.Task, error) {
	ids, err := s.store.LRange(ctx, tasks.LaneKey(queue, priority), 0, limit-1)
	if err != nil {
		return nil, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "inspect lane")
	}
	out := make([]tasks.Task, 0, len(ids))
	for _, id := range ids {
		t, ok, err := s.getTaskFields(ctx, id)
		if err != nil || !ok {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// bumpStat increments today's counter bucket for a queue/outcome pair,
// matching the "stats:{q}:{bucket}" key layout from spec.md §6.
func (s *Service) bumpStat(ctx context.Context, queue, outcome string) {
	key := statKey(queue, outcome, time.Now().UTC())
	current, _, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("queue", queue).Msg("failed to read stat bucket")
		return
	}
	n := parseCounter(current) + 1
	if err := s.store.SetWithTTL(ctx, key, formatCounter(n), 48*time.Hour); err != nil {
		s.log.Warn().Err(err).Str("queue", queue).Msg("failed to write stat bucket")
	}
}

func (s *Service) readStat(ctx context.Context, queue, outcome string) int64 {
	val, _, err := s.store.Get(ctx, statKey(queue, outcome, time.Now().UTC()))
	if err != nil {
		return 0
	}
	return parseCounter(val)
}

func statKey(queue, outcome string, now time.Time) string {
	return "stats:" + queue + ":" + outcome + ":" + now.Format("2006-01-02")
}

func parseCounter(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatCounter(n int64) string {
	return strconv.FormatInt(n, 10)
}
