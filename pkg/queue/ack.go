package queue

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/retry"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// ackSuccessScript removes id from the queue's in-flight set, marks the
// record Succeeded, stores the result, and sets the record's own TTL
// to result_ttl so the native store TTL reaps it (spec.md §4.2). It is
// idempotent: re-acking an already-terminal task is a no-op.
//
// KEYS[1] = task:{id}
// KEYS[2] = inflight:{queue}
// KEYS[3] = result:{id}
// ARGV[1] = finished_at (RFC3339Nano)
// ARGV[2] = base64 result
// ARGV[3] = result_ttl seconds
// ARGV[4] = task id
const ackSuccessScript = `
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'succeeded' or status == 'failed' or status == 'cancelled' then
	return 'noop'
end
redis.call('ZREM', KEYS[2], ARGV[4])
redis.call('HSET', KEYS[1], 'status', 'succeeded', 'finished_at', ARGV[1], 'result', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('SET', KEYS[3], ARGV[2], 'EX', ARGV[3])
return 'succeeded'
`

// ackFailureScript removes id from the in-flight set then either
// schedules a retry (status=Retrying, pushed onto retry:{queue} scored
// by the caller-computed eligible_at) or marks the task terminally
// Failed, matching spec.md §4.2's ack_failure.
//
// KEYS[1] = task:{id}
// KEYS[2] = inflight:{queue}
// KEYS[3] = retry:{queue}
// ARGV[1] = now (RFC3339Nano)
// ARGV[2] = error message
// ARGV[3] = retry score (unix seconds, eligible_at)
// ARGV[4] = failed_ttl seconds
// ARGV[5] = task id
// ARGV[6] = effective max_retries (caller may pass attempts to force
//           an immediate terminal failure when auto_retry is disabled)
const ackFailureScript = `
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'succeeded' or status == 'failed' or status == 'cancelled' then
	return 'noop'
end
redis.call('ZREM', KEYS[2], ARGV[5])
local max_retries = tonumber(ARGV[6])
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts'))
if attempts < max_retries then
	attempts = attempts + 1
	redis.call('HSET', KEYS[1], 'attempts', attempts, 'status', 'retrying', 'error', ARGV[2])
	redis.call('ZADD', KEYS[3], ARGV[3], ARGV[5])
	return 'retrying'
else
	attempts = attempts + 1
	redis.call('HSET', KEYS[1], 'attempts', attempts, 'status', 'failed', 'error', ARGV[2], 'finished_at', ARGV[1])
	redis.call('EXPIRE', KEYS[1], ARGV[4])
	return 'failed'
end
`

// AckSuccess records a task's successful completion and stores its
// result. Idempotent: acking a task that is already terminal is a
// no-op, matching spec.md §4.2.
func (s *Service) AckSuccess(ctx context.Context, id string, result []byte) error {
	t, ok, err := s.getTaskFields(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return goqueueerrors.New(goqueueerrors.KindNotFound, "task not found: "+id)
	}

	now := time.Now().UTC()
	encoded := base64.StdEncoding.EncodeToString(result)
	reply, err := s.store.EvalScript(ctx, ackSuccessScript,
		[]string{tasks.TaskKey(id), tasks.InflightKey(t.Queue), tasks.ResultKey(id)},
		now.Format(rfc3339NanoFormat), encoded, int(s.cfg.ResultTTL.Seconds()), id,
	)
	if err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "ack success")
	}
	if outcome, _ := reply.(string); outcome == "succeeded" {
		s.bumpStat(ctx, t.Queue, "succeeded")
	}
	return nil
}

// AckFailure records a task's failed attempt. If attempts remain and
// allowRetry is true, the task is scheduled for retry via pkg/retry's
// backoff policy; otherwise (attempts exhausted, or allowRetry is
// false because the caller's auto_retry setting disables it) it is
// marked terminally Failed.
func (s *Service) AckFailure(ctx context.Context, id string, failErr error, allowRetry bool) error {
	t, ok, err := s.getTaskFields(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return goqueueerrors.New(goqueueerrors.KindNotFound, "task not found: "+id)
	}

	now := time.Now().UTC()
	nextAttempt := t.Attempts + 1
	eligibleAt := retry.NextAttemptAt(now, nextAttempt, t.RetryConfig, true)

	msg := ""
	if failErr != nil {
		msg = failErr.Error()
	}

	maxRetries := t.RetryConfig.MaxRetries
	if !allowRetry {
		maxRetries = t.Attempts
	}

	result, err := s.store.EvalScript(ctx, ackFailureScript,
		[]string{tasks.TaskKey(id), tasks.InflightKey(t.Queue), tasks.RetryKey(t.Queue)},
		now.Format(rfc3339NanoFormat), msg, eligibleAt.Unix(), int(s.cfg.FailedTTL.Seconds()), id, maxRetries,
	)
	if err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "ack failure")
	}
	if outcome, _ := result.(string); outcome == "failed" {
		s.bumpStat(ctx, t.Queue, "failed")
	}
	return nil
}

func (s *Service) getTaskFields(ctx context.Context, id string) (tasks.Task, bool, error) {
	fields, err := s.store.HGetAll(ctx, tasks.TaskKey(id))
	if err != nil {
		return tasks.Task{}, false, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "load task")
	}
	if len(fields) == 0 {
		return tasks.Task{}, false, nil
	}
	t, err := tasks.FromFields(fields)
	if err != nil {
		return tasks.Task{}, false, goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "decode task")
	}
	return t, true, nil
}
