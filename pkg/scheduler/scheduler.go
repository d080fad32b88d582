package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	schedulesKey = "schedules"
	lockKey      = "lock:scheduler"
	lockTTL      = 10 * time.Second
)

// cronParser reuses robfig/cron/v3's standard parser to compute
// Daily/Weekly next-fire times from a synthesized cron expression,
// keeping the teacher's scheduling dependency exercised even though
// the dispatch loop itself is a plain ticker over a due-score sorted
// set rather than cron.Cron's own scheduler (which has no primitive to
// pop "due" entries out of persisted storage).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler fires due Schedule Entries into the Queue Service.
type Scheduler struct {
	store store.Store
	queue *queue.Service
	id    string
	log   zerolog.Logger
}

// New constructs a Scheduler. id identifies this process for the
// advisory lock's value (diagnostic only; the lock itself is keyed
// solely on presence, per spec.md §4.3).
func New(s store.Store, q *queue.Service, id string) *Scheduler {
	return &Scheduler{store: s, queue: q, id: id, log: logger.Component("scheduler")}
}

// CreateSchedule computes the entry's first next_fire_at and persists
// it under schedule:{job}, registering it in the "schedules" sorted
// set scored by next_fire_at.
func (sch *Scheduler) CreateSchedule(ctx context.Context, e Entry) (Entry, error) {
	now := time.Now().UTC()
	next, err := computeFirstFire(e, now)
	if err != nil {
		return e, err
	}
	e.NextFireAt = next

	fields, err := e.ToFields()
	if err != nil {
		return e, goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "encode schedule entry")
	}
	if err := sch.store.HSet(ctx, e.key(), fields); err != nil {
		return e, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "persist schedule entry")
	}
	if err := sch.store.ZAdd(ctx, schedulesKey, float64(e.NextFireAt.Unix()), e.JobID); err != nil {
		return e, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "register schedule entry")
	}
	return e, nil
}

// DeleteSchedule removes a schedule entry and its registration.
func (sch *Scheduler) DeleteSchedule(ctx context.Context, jobID string) error {
	if err := sch.store.ZRem(ctx, schedulesKey, jobID); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "deregister schedule entry")
	}
	if err := sch.store.Del(ctx, "schedule:"+jobID); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "delete schedule entry")
	}
	return nil
}

// GetSchedule loads one schedule entry by job id.
func (sch *Scheduler) GetSchedule(ctx context.Context, jobID string) (Entry, error) {
	fields, err := sch.store.HGetAll(ctx, "schedule:"+jobID)
	if err != nil {
		return Entry{}, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "load schedule entry")
	}
	if len(fields) == 0 {
		return Entry{}, goqueueerrors.New(goqueueerrors.KindNotFound, "schedule not found: "+jobID)
	}
	return EntryFromFields(fields)
}

// Run ticks the scheduler at the given interval until ctx is
// cancelled, logging (but not propagating) per-tick errors so a
// transient store hiccup doesn't kill the loop.
func (sch *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := sch.Tick(ctx); err != nil {
				sch.log.Error().Err(err).Msg("scheduler tick failed")
			} else if n > 0 {
				sch.log.Info().Int("fired", n).Msg("scheduler tick fired entries")
			}
		}
	}
}

// Tick acquires the advisory lock, fires every due entry exactly once,
// and advances each entry's next_fire_at. Missed ticks are coalesced:
// even if multiple periods elapsed while the scheduler was down, an
// Interval entry only fires once per Tick call, per spec.md §4.3.
func (sch *Scheduler) Tick(ctx context.Context) (int, error) {
	held, err := sch.store.SetNXWithTTL(ctx, lockKey, sch.id, lockTTL)
	if err != nil {
		return 0, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "acquire scheduler lock")
	}
	if !held {
		return 0, nil
	}
	defer func() {
		// best-effort release; letting the TTL expire is also safe
		if delErr := sch.store.Del(ctx, lockKey); delErr != nil {
			sch.log.Warn().Err(delErr).Msg("failed to release scheduler lock")
		}
	}()

	now := time.Now().UTC()
	dueIDs, err := sch.store.ZRangeByScoreLE(ctx, schedulesKey, float64(now.Unix()))
	if err != nil {
		return 0, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "list due schedules")
	}

	fired := 0
	for _, jobID := range dueIDs {
		if err := sch.fireOne(ctx, jobID, now); err != nil {
			sch.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to fire schedule entry")
			continue
		}
		fired++
	}
	return fired, nil
}

func (sch *Scheduler) fireOne(ctx context.Context, jobID string, now time.Time) error {
	entry, err := sch.GetSchedule(ctx, jobID)
	if err != nil {
		return err
	}
	if !entry.Enabled {
		return sch.store.ZRem(ctx, schedulesKey, jobID)
	}

	task := entry.TaskTemplate.Materialize(entry.Queue)
	if err := sch.queue.Submit(ctx, task); err != nil {
		return err
	}
	entry.LastFiredAt = &now

	next, disable := computeNextFire(entry, now)
	if disable {
		entry.Enabled = false
		if err := sch.store.ZRem(ctx, schedulesKey, jobID); err != nil {
			return err
		}
	} else {
		entry.NextFireAt = next
		if err := sch.store.ZAdd(ctx, schedulesKey, float64(next.Unix()), jobID); err != nil {
			return err
		}
	}

	fields, err := entry.ToFields()
	if err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "encode updated schedule entry")
	}
	return sch.store.HSet(ctx, entry.key(), fields)
}

// computeFirstFire determines an entry's initial next_fire_at at
// creation time.
func computeFirstFire(e Entry, now time.Time) (time.Time, error) {
	switch e.Kind {
	case KindOneShot:
		return e.At, nil
	case KindInterval:
		return now.Add(time.Duration(e.PeriodSec) * time.Second), nil
	case KindDaily, KindWeekly:
		return nextWallClock(e, now)
	default:
		return time.Time{}, goqueueerrors.New(goqueueerrors.KindConfiguration, "unknown schedule kind: "+string(e.Kind))
	}
}

// computeNextFire advances an entry after it fired at `now`.
// disable=true means the entry (OneShot) should be turned off.
func computeNextFire(e Entry, now time.Time) (next time.Time, disable bool) {
	switch e.Kind {
	case KindOneShot:
		return time.Time{}, true
	case KindInterval:
		return now.Add(time.Duration(e.PeriodSec) * time.Second), false
	case KindDaily, KindWeekly:
		next, err := nextWallClock(e, now)
		if err != nil {
			return now.Add(24 * time.Hour), false
		}
		return next, false
	default:
		return now.Add(24 * time.Hour), false
	}
}

// nextWallClock synthesizes a standard 5-field cron expression for the
// entry's Daily/Weekly spec and asks robfig/cron/v3 for the next
// occurrence after now.
func nextWallClock(e Entry, now time.Time) (time.Time, error) {
	var expr string
	if e.Kind == KindWeekly {
		expr = fmt.Sprintf("%d %d * * %d", e.Minute, e.Hour, int(e.Weekday))
	} else {
		expr = fmt.Sprintf("%d %d * * *", e.Minute, e.Hour)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, goqueueerrors.Wrap(goqueueerrors.KindConfiguration, err, "parse synthesized cron expression")
	}
	return schedule.Next(now), nil
}
