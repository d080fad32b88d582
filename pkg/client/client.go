// Package client provides the Client Facade: a thin submission and
// inspection surface over the Queue Service with no state of its own
// beyond a shared handle, matching spec.md §4.6. It generalizes the
// teacher's queue.Client (which mixed submission, claiming, retrying,
// and scheduling into one type) by delegating entirely to
// pkg/queue.Service; scheduling is not part of this facade.
package client

import (
	"context"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// Client is the public entry point applications use to submit tasks
// and inspect their progress.
type Client struct {
	svc *queue.Service
}

// New constructs a Client over a shared Queue Service handle.
func New(svc *queue.Service) *Client {
	return &Client{svc: svc}
}

// Submit enqueues a task onto the service's default queue.
func (c *Client) Submit(ctx context.Context, name string, payload []byte, priority tasks.Priority, retry tasks.RetryConfig) (tasks.Task, error) {
	return c.SubmitToQueue(ctx, c.svc.DefaultQueue(), name, payload, priority, retry)
}

// SubmitToQueue enqueues a task onto an explicit queue.
func (c *Client) SubmitToQueue(ctx context.Context, queueName, name string, payload []byte, priority tasks.Priority, retry tasks.RetryConfig) (tasks.Task, error) {
	t := tasks.New(name, queueName, payload, priority, retry)
	if err := c.svc.Submit(ctx, t); err != nil {
		return tasks.Task{}, err
	}
	return t, nil
}

// SubmitBatch enqueues every task in batch atomically onto the
// service's default queue, each retaining its own name/payload/
// priority/retry policy.
func (c *Client) SubmitBatch(ctx context.Context, specs []TaskSpec) ([]tasks.Task, error) {
	return c.SubmitBatchWithPriorities(ctx, c.svc.DefaultQueue(), specs)
}

// TaskSpec describes one task to submit as part of a batch.
type TaskSpec struct {
	Name     string
	Payload  []byte
	Priority tasks.Priority
	Retry    tasks.RetryConfig
}

// SubmitBatchWithPriorities enqueues every spec onto queueName
// atomically: either all tasks are persisted and queued, or (on any
// error) none are, per spec.md §9(b)'s resolved open question.
func (c *Client) SubmitBatchWithPriorities(ctx context.Context, queueName string, specs []TaskSpec) ([]tasks.Task, error) {
	batch := make([]tasks.Task, len(specs))
	for i, spec := range specs {
		batch[i] = tasks.New(spec.Name, queueName, spec.Payload, spec.Priority, spec.Retry)
	}
	if err := c.svc.SubmitBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// GetTaskStatus returns the current Task Record for id.
func (c *Client) GetTaskStatus(ctx context.Context, id string) (tasks.Task, error) {
	return c.svc.GetStatus(ctx, id)
}

// WaitForResult polls a task's status until it reaches a terminal
// state or timeout elapses.
func (c *Client) WaitForResult(ctx context.Context, id string, timeout time.Duration) (tasks.Task, error) {
	return c.svc.WaitForResult(ctx, id, timeout)
}

// GetQueueStats reports the current load of a queue.
func (c *Client) GetQueueStats(ctx context.Context, queueName string) (queue.Stats, error) {
	return c.svc.QueueStats(ctx, queueName)
}

// InspectQueue peeks up to limit pending tasks from one priority lane
// without claiming them, for dashboards and debugging tooling.
func (c *Client) InspectQueue(ctx context.Context, queueName string, priority tasks.Priority, limit int64) ([]tasks.Task, error) {
	return c.svc.InspectQueue(ctx, queueName, priority, limit)
}
