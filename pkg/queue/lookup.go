package queue

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// maxPollInterval bounds WaitForResult's exponential poll backoff, per
// spec.md §4.2.
const maxPollInterval = time.Second

// GetStatus returns a task's current status and full record.
func (s *Service) GetStatus(ctx context.Context, id string) (tasks.Task, error) {
	t, ok, err := s.getTaskFields(ctx, id)
	if err != nil {
		return tasks.Task{}, err
	}
	if !ok {
		return tasks.Task{}, goqueueerrors.New(goqueueerrors.KindNotFound, "task not found: "+id)
	}
	return t, nil
}

// GetResult returns a task's stored success result, if any.
func (s *Service) GetResult(ctx context.Context, id string) ([]byte, error) {
	raw, ok, err := s.store.Get(ctx, tasks.ResultKey(id))
	if err != nil {
		return nil, goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "get result")
	}
	if !ok {
		return nil, goqueueerrors.New(goqueueerrors.KindNotFound, "result not found: "+id)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, goqueueerrors.Wrap(goqueueerrors.KindSerialization, err, "decode result")
	}
	return decoded, nil
}

// WaitForResult polls GetStatus until the task reaches a terminal
// state or timeout elapses, using exponential poll backoff capped at
// 1s as spec.md §4.2 requires.
func (s *Service) WaitForResult(ctx context.Context, id string, timeout time.Duration) (tasks.Task, error) {
	deadline := time.Now().Add(timeout)
	interval := 10 * time.Millisecond

	for {
		t, err := s.GetStatus(ctx, id)
		if err != nil {
			return tasks.Task{}, err
		}
		if t.Status.Terminal() {
			return t, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return tasks.Task{}, goqueueerrors.New(goqueueerrors.KindTimeout, "wait_for_result timed out: "+id)
		}

		select {
		case <-ctx.Done():
			return tasks.Task{}, ctx.Err()
		case <-time.After(interval):
		}
		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}
