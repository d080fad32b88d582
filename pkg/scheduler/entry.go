// Package scheduler maintains recurring and one-shot schedule entries
// and fires due entries into the Queue Service. It generalizes the
// teacher's queue.Client.Schedule/StartCronScheduler (an in-process,
// unpersisted robfig/cron/v3 job) into the persisted "schedules" sorted
// set + schedule:{job} hash design of spec.md §4.3, while still reusing
// robfig/cron/v3 to compute Daily/Weekly next-fire times.
package scheduler

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
	"github.com/pkg/errors"
)

// Kind discriminates how a schedule entry recurs.
type Kind string

const (
	KindOneShot  Kind = "one_shot"
	KindInterval Kind = "interval"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
)

// Entry is a persistent description of when and what to enqueue
// automatically, matching spec.md §3's Schedule Entry.
type Entry struct {
	JobID        string       `json:"job_id"`
	Name         string       `json:"name"`
	Queue        string       `json:"queue"`
	TaskTemplate TaskTemplate `json:"task_template"`
	Kind         Kind         `json:"kind"`
	At           time.Time    `json:"at,omitempty"`             // OneShot
	PeriodSec    int          `json:"period_seconds,omitempty"` // Interval
	Hour         int          `json:"hour,omitempty"`           // Daily/Weekly
	Minute       int          `json:"minute,omitempty"`         // Daily/Weekly
	Weekday      time.Weekday `json:"weekday,omitempty"`        // Weekly
	NextFireAt   time.Time    `json:"next_fire_at"`
	Enabled      bool         `json:"enabled"`
	LastFiredAt  *time.Time   `json:"last_fired_at,omitempty"`
}

// TaskTemplate is a serialized Task Record minus id and timestamps, per
// spec.md §3.
type TaskTemplate struct {
	Name        string            `json:"name"`
	Payload     []byte            `json:"payload"`
	Priority    tasks.Priority    `json:"priority"`
	RetryConfig tasks.RetryConfig `json:"retry_config"`
}

// Materialize builds a fresh Pending Task Record from the template: a
// new id and current timestamps, as spec.md §4.3 step 2 requires.
func (tpl TaskTemplate) Materialize(queue string) tasks.Task {
	return tasks.New(tpl.Name, queue, tpl.Payload, tpl.Priority, tpl.RetryConfig)
}

// NewEntry constructs an enabled Entry with a fresh job id; callers set
// Kind-specific fields, and CreateSchedule computes next_fire_at when
// persisting it.
func NewEntry(name, queue string, tpl TaskTemplate, kind Kind) Entry {
	return Entry{
		JobID:        uuid.NewString(),
		Name:         name,
		Queue:        queue,
		TaskTemplate: tpl,
		Kind:         kind,
		Enabled:      true,
	}
}

// key returns the store key for this entry's hash.
func (e Entry) key() string { return "schedule:" + e.JobID }

// ToFields flattens an Entry into hash fields for schedule:{job}.
func (e Entry) ToFields() (map[string]string, error) {
	tplJSON, err := json.Marshal(e.TaskTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "marshal task_template")
	}
	enabled := "0"
	if e.Enabled {
		enabled = "1"
	}
	f := map[string]string{
		"job_id":        e.JobID,
		"name":          e.Name,
		"queue":         e.Queue,
		"task_template": string(tplJSON),
		"kind":          string(e.Kind),
		"next_fire_at":  e.NextFireAt.UTC().Format(time.RFC3339Nano),
		"enabled":       enabled,
		"period_sec":    strconv.Itoa(e.PeriodSec),
		"hour":          strconv.Itoa(e.Hour),
		"minute":        strconv.Itoa(e.Minute),
		"weekday":       strconv.Itoa(int(e.Weekday)),
	}
	if !e.At.IsZero() {
		f["at"] = e.At.UTC().Format(time.RFC3339Nano)
	}
	if e.LastFiredAt != nil {
		f["last_fired_at"] = e.LastFiredAt.UTC().Format(time.RFC3339Nano)
	}
	return f, nil
}

// EntryFromFields reconstructs an Entry from a schedule:{job} hash.
func EntryFromFields(f map[string]string) (Entry, error) {
	var e Entry
	if len(f) == 0 {
		return e, errors.New("empty schedule entry")
	}
	e.JobID = f["job_id"]
	e.Name = f["name"]
	e.Queue = f["queue"]
	e.Kind = Kind(f["kind"])
	e.Enabled = f["enabled"] == "1"
	e.PeriodSec, _ = strconv.Atoi(f["period_sec"])
	e.Hour, _ = strconv.Atoi(f["hour"])
	e.Minute, _ = strconv.Atoi(f["minute"])
	weekday, _ := strconv.Atoi(f["weekday"])
	e.Weekday = time.Weekday(weekday)

	if v := f["task_template"]; v != "" {
		if err := json.Unmarshal([]byte(v), &e.TaskTemplate); err != nil {
			return e, errors.Wrap(err, "decode task_template")
		}
	}
	if v := f["next_fire_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return e, errors.Wrap(err, "decode next_fire_at")
		}
		e.NextFireAt = t
	}
	if v := f["at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return e, errors.Wrap(err, "decode at")
		}
		e.At = t
	}
	if v := f["last_fired_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return e, errors.Wrap(err, "decode last_fired_at")
		}
		e.LastFiredAt = &t
	}
	return e, nil
}
