package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/scheduler"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *queue.Service) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := store.NewFromURL(mr.Addr(), 0)
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	svc := queue.NewService(s, queue.DefaultConfig())
	return scheduler.New(s, svc, "test-instance"), svc
}

func baseTemplate() scheduler.TaskTemplate {
	return scheduler.TaskTemplate{
		Name:        "digest",
		Payload:     []byte(`{"report":"daily"}`),
		Priority:    tasks.PriorityNormal,
		RetryConfig: tasks.DefaultRetryConfig(),
	}
}

func TestCreateAndGetSchedule(t *testing.T) {
	ctx := context.Background()
	sch, _ := newTestScheduler(t)

	entry := scheduler.NewEntry("nightly-digest", "default", baseTemplate(), scheduler.KindInterval)
	entry.PeriodSec = 3600

	created, err := sch.CreateSchedule(ctx, entry)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if created.NextFireAt.IsZero() {
		t.Fatal("expected next_fire_at to be set")
	}

	loaded, err := sch.GetSchedule(ctx, created.JobID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if loaded.Name != "nightly-digest" || loaded.Queue != "default" {
		t.Fatalf("unexpected loaded entry: %+v", loaded)
	}
	if loaded.TaskTemplate.Name != "digest" {
		t.Fatalf("expected task template to round-trip, got %+v", loaded.TaskTemplate)
	}
}

func TestDeleteSchedule(t *testing.T) {
	ctx := context.Background()
	sch, _ := newTestScheduler(t)

	entry := scheduler.NewEntry("one-off", "default", baseTemplate(), scheduler.KindOneShot)
	entry.At = time.Now().Add(time.Hour)

	created, err := sch.CreateSchedule(ctx, entry)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if err := sch.DeleteSchedule(ctx, created.JobID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}

	_, err = sch.GetSchedule(ctx, created.JobID)
	if !goqueueerrors.Is(err, goqueueerrors.KindNotFound) {
		t.Fatalf("expected KindNotFound after delete, got %v", err)
	}
}

func TestTickFiresOneShotOnce(t *testing.T) {
	ctx := context.Background()
	sch, svc := newTestScheduler(t)

	entry := scheduler.NewEntry("welcome-email", "default", baseTemplate(), scheduler.KindOneShot)
	entry.At = time.Now().Add(-time.Second) // already due

	created, err := sch.CreateSchedule(ctx, entry)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	n, err := sch.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 fired entry, got %d", n)
	}

	stats, err := svc.QueueStats(ctx, "default")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.PendingPerPriority[tasks.PriorityNormal] != 1 {
		t.Fatalf("expected 1 task submitted, got %d", stats.PendingPerPriority[tasks.PriorityNormal])
	}

	// OneShot disables itself; a second tick must not refire it.
	n2, err := sch.Tick(ctx)
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected one-shot entry not to refire, got %d fired", n2)
	}

	loaded, err := sch.GetSchedule(ctx, created.JobID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if loaded.Enabled {
		t.Fatal("expected one-shot entry to be disabled after firing")
	}
}

func TestTickCoalescesMissedIntervalTicks(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := store.NewFromURL(mr.Addr(), 0)
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	defer s.Close()

	svc := queue.NewService(s, queue.DefaultConfig())
	sch := scheduler.New(s, svc, "test-instance")

	entry := scheduler.NewEntry("heartbeat-task", "default", baseTemplate(), scheduler.KindInterval)
	entry.PeriodSec = 1

	created, err := sch.CreateSchedule(ctx, entry)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	// Force next_fire_at far in the past, simulating several missed periods.
	loaded, err := sch.GetSchedule(ctx, created.JobID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	loaded.NextFireAt = time.Now().Add(-time.Hour)
	fields, err := loaded.ToFields()
	if err != nil {
		t.Fatalf("ToFields: %v", err)
	}
	if err := s.HSet(ctx, "schedule:"+created.JobID, fields); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := s.ZAdd(ctx, "schedules", float64(loaded.NextFireAt.Unix()), created.JobID); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	n, err := sch.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one fire despite the long-overdue schedule, got %d", n)
	}

	stats, err := svc.QueueStats(ctx, "default")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.PendingPerPriority[tasks.PriorityNormal] != 1 {
		t.Fatalf("expected exactly one submission for the missed interval, got %d", stats.PendingPerPriority[tasks.PriorityNormal])
	}
}

func TestTickRespectsAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := store.NewFromURL(mr.Addr(), 0)
	if err != nil {
		t.Fatalf("failed to connect store: %v", err)
	}
	defer s.Close()

	svc := queue.NewService(s, queue.DefaultConfig())
	schA := scheduler.New(s, svc, "instance-a")
	schB := scheduler.New(s, svc, "instance-b")

	entry := scheduler.NewEntry("contended-job", "default", baseTemplate(), scheduler.KindOneShot)
	entry.At = time.Now().Add(-time.Second)
	if _, err := schA.CreateSchedule(ctx, entry); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	held, err := s.SetNXWithTTL(ctx, "lock:scheduler", "someone-else", 5*time.Second)
	if err != nil {
		t.Fatalf("SetNXWithTTL: %v", err)
	}
	if !held {
		t.Fatal("expected to acquire the lock as a setup step")
	}

	n, err := schB.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected contended tick to fire nothing while lock is held, got %d", n)
	}
}
