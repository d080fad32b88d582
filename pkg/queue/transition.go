package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// MarkRunning flips a claimed task to Running, called by the worker
// runtime right before it invokes the task's handler.
func (s *Service) MarkRunning(ctx context.Context, id string) error {
	if err := s.store.HSet(ctx, tasks.TaskKey(id), map[string]string{
		"status": string(tasks.StatusRunning),
	}); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "mark running")
	}
	return nil
}

// ExtendVisibility pushes a task's visibility deadline forward while a
// worker is still actively processing it, re-scoring its entry in
// inflight:{queue} so RecoverExpired doesn't treat a long-running
// handler as abandoned.
func (s *Service) ExtendVisibility(ctx context.Context, queue, id string, newDeadline time.Time) error {
	if err := s.store.ZAdd(ctx, tasks.InflightKey(queue), float64(newDeadline.Unix()), id); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "extend visibility")
	}
	if err := s.store.HSet(ctx, tasks.TaskKey(id), map[string]string{
		"visibility_deadline":      newDeadline.UTC().Format(rfc3339NanoFormat),
		"visibility_deadline_unix": strconv.FormatInt(newDeadline.Unix(), 10),
	}); err != nil {
		return goqueueerrors.Wrap(goqueueerrors.KindStoreUnavailable, err, "update visibility deadline field")
	}
	return nil
}
