// Package tasks defines the core data structures for task representation
// in the goqueue system. Tasks are units of work that can be enqueued,
// claimed by workers, executed, and retried on failure.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Priority determines the processing order of a task within a queue.
// Higher priority tasks are claimed before lower priority ones.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is one a task will never leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RetryConfig controls how many times a task is retried and how the
// backoff between attempts is computed.
type RetryConfig struct {
	MaxRetries      int  `json:"max_retries"`
	BaseDelaySec    int  `json:"base_delay_seconds"`
	Exponential     bool `json:"exponential"`
	MaxDelaySeconds int  `json:"max_delay_seconds"`
}

// DefaultRetryConfig matches spec.md's RetryConfig defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelaySec:    10,
		Exponential:     true,
		MaxDelaySeconds: 300,
	}
}

// Task is the canonical serialized representation of one unit of work.
//
// Field names match spec.md §6 so the JSON wire format is stable across
// client, worker, and scheduler.
type Task struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Payload            []byte      `json:"payload"`
	Queue              string      `json:"queue"`
	Priority           Priority    `json:"priority"`
	Status             Status      `json:"status"`
	Attempts           int         `json:"attempts"`
	RetryConfig        RetryConfig `json:"retry_config"`
	CreatedAt          time.Time   `json:"created_at"`
	ClaimedAt          *time.Time  `json:"claimed_at,omitempty"`
	FinishedAt         *time.Time  `json:"finished_at,omitempty"`
	ClaimedBy          string      `json:"claimed_by,omitempty"`
	Result             []byte      `json:"result,omitempty"`
	Error              string      `json:"error,omitempty"`
	VisibilityDeadline *time.Time  `json:"visibility_deadline,omitempty"`
}

// New constructs a Pending Task ready for submission. The caller supplies
// the queue, name, payload and retry policy; id and created_at are
// generated here.
func New(name, queue string, payload []byte, priority Priority, retry RetryConfig) Task {
	return Task{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     payload,
		Queue:       queue,
		Priority:    priority,
		Status:      StatusPending,
		Attempts:    0,
		RetryConfig: retry,
		CreatedAt:   time.Now().UTC(),
	}
}

// Clone returns a copy safe to mutate independently of the receiver.
func (t Task) Clone() Task {
	c := t
	if t.ClaimedAt != nil {
		v := *t.ClaimedAt
		c.ClaimedAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		c.FinishedAt = &v
	}
	if t.VisibilityDeadline != nil {
		v := *t.VisibilityDeadline
		c.VisibilityDeadline = &v
	}
	if t.Payload != nil {
		c.Payload = append([]byte(nil), t.Payload...)
	}
	if t.Result != nil {
		c.Result = append([]byte(nil), t.Result...)
	}
	return c
}

// LaneKey returns the store key for this queue/priority's waiting lane.
func LaneKey(queue string, priority Priority) string {
	return "queue:" + queue + ":p" + priorityDigit(priority)
}

func priorityDigit(p Priority) string {
	switch p {
	case PriorityLow:
		return "0"
	case PriorityNormal:
		return "1"
	case PriorityHigh:
		return "2"
	case PriorityCritical:
		return "3"
	default:
		return "1"
	}
}

// AllPrioritiesDescending lists priorities from Critical to Low, the
// order lanes are scanned in during a claim.
func AllPrioritiesDescending() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
}

// InflightKey returns the store key for a queue's in-flight sorted set.
func InflightKey(queue string) string { return "inflight:" + queue }

// RetryKey returns the store key for a queue's retry sorted set.
func RetryKey(queue string) string { return "retry:" + queue }

// TaskKey returns the store key for a task's hash record.
func TaskKey(id string) string { return "task:" + id }

// ResultKey returns the store key for a task's stored result.
func ResultKey(id string) string { return "result:" + id }

// WorkerKey returns the store key for a worker's heartbeat hash.
func WorkerKey(id string) string { return "worker:" + id }
