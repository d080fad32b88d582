package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

func newTestService(t *testing.T) *queue.Service {
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

	return queue.NewService(s, queue.DefaultConfig())
}

func TestSubmitAndClaim(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("send_email", "default", []byte(`{"to":"a@example.com"}`), tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	claimed, err := svc.Claim(ctx, "worker-1", []string{"default"}, 0, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed task, got nil")
	}
	if claimed.ID != tk.ID {
		t.Fatalf("expected task %s, got %s", tk.ID, claimed.ID)
	}
	if claimed.Status != tasks.StatusClaimed {
		t.Fatalf("expected status claimed, got %s", claimed.Status)
	}
	if claimed.ClaimedBy != "worker-1" {
		t.Fatalf("expected claimed_by worker-1, got %q", claimed.ClaimedBy)
	}
}

func TestClaimPriorityOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	low := tasks.New("low_task", "default", nil, tasks.PriorityLow, tasks.DefaultRetryConfig())
	high := tasks.New("high_task", "default", nil, tasks.PriorityHigh, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, low); err != nil {
		t.Fatalf("Submit low: %v", err)
	}
	if err := svc.Submit(ctx, high); err != nil {
		t.Fatalf("Submit high: %v", err)
	}

	first, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if first == nil || first.ID != high.ID {
		t.Fatalf("expected high priority task claimed first, got %+v", first)
	}
}

func TestClaimTimeoutReturnsNil(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	claimed, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil on empty queue, got %+v", claimed)
	}
}

func TestAckSuccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := svc.AckSuccess(ctx, tk.ID, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("AckSuccess: %v", err)
	}

	status, err := svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", status.Status)
	}

	result, err := svc.GetResult(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}

	stats, err := svc.QueueStats(ctx, "default")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.Inflight != 0 {
		t.Fatalf("expected 0 inflight after ack, got %d", stats.Inflight)
	}
	if stats.SucceededRecent != 1 {
		t.Fatalf("expected 1 succeeded, got %d", stats.SucceededRecent)
	}
}

func TestAckSuccessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := svc.AckSuccess(ctx, tk.ID, []byte("first")); err != nil {
		t.Fatalf("AckSuccess: %v", err)
	}
	if err := svc.AckSuccess(ctx, tk.ID, []byte("second")); err != nil {
		t.Fatalf("second AckSuccess: %v", err)
	}

	result, err := svc.GetResult(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if string(result) != "first" {
		t.Fatalf("expected first result to stick, got %s", result)
	}
}

func TestAckFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cfg := tasks.DefaultRetryConfig()
	cfg.MaxRetries = 1
	cfg.BaseDelaySec = 0
	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, cfg)
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := svc.AckFailure(ctx, tk.ID, errors.New("boom"), true); err != nil {
		t.Fatalf("AckFailure: %v", err)
	}

	status, err := svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusRetrying {
		t.Fatalf("expected retrying after first failure, got %s", status.Status)
	}

	n, err := svc.PromoteRetries(ctx, "default")
	if err != nil {
		t.Fatalf("PromoteRetries: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 promoted retry, got %d", n)
	}

	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if err := svc.AckFailure(ctx, tk.ID, errors.New("boom again"), true); err != nil {
		t.Fatalf("second AckFailure: %v", err)
	}

	status, err = svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusFailed {
		t.Fatalf("expected failed once max_retries exhausted, got %s", status.Status)
	}
	if status.Attempts != cfg.MaxRetries+1 {
		t.Fatalf("expected attempts=%d (max_retries+1) after final failure, got %d", cfg.MaxRetries+1, status.Attempts)
	}
}

func TestAckFailureWithoutAutoRetryFailsImmediately(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := svc.AckFailure(ctx, tk.ID, errors.New("boom"), false); err != nil {
		t.Fatalf("AckFailure: %v", err)
	}

	status, err := svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusFailed {
		t.Fatalf("expected immediate failure with auto_retry disabled, got %s", status.Status)
	}
}

func TestGetStatusUnknownTask(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.GetStatus(ctx, "does-not-exist")
	if !goqueueerrors.Is(err, goqueueerrors.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestRecoverExpired(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, -time.Second); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := svc.RecoverExpired(ctx, "default")
	if err != nil {
		t.Fatalf("RecoverExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered task, got %d", n)
	}

	status, err := svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusRetrying {
		t.Fatalf("expected retrying after recovery, got %s", status.Status)
	}
}

func TestRecoverExpiredExhaustedRetriesMarksFailedWithAttempts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cfg := tasks.DefaultRetryConfig()
	cfg.MaxRetries = 0
	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, cfg)
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, -time.Second); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	n, err := svc.RecoverExpired(ctx, "default")
	if err != nil {
		t.Fatalf("RecoverExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered task, got %d", n)
	}

	status, err := svc.GetStatus(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != tasks.StatusFailed {
		t.Fatalf("expected failed once max_retries exhausted, got %s", status.Status)
	}
	if status.Attempts != cfg.MaxRetries+1 {
		t.Fatalf("expected attempts=%d (max_retries+1) after recovery exhausts retries, got %d", cfg.MaxRetries+1, status.Attempts)
	}
}

func TestWaitForResultSucceeds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		if _, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute); err != nil {
			return
		}
		svc.AckSuccess(ctx, tk.ID, []byte(`"done"`))
	}()

	result, err := svc.WaitForResult(ctx, tk.ID, time.Second)
	if err != nil {
		t.Fatalf("WaitForResult: %v", err)
	}
	if result.Status != tasks.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", result.Status)
	}
}

func TestWaitForResultTimesOut(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := svc.WaitForResult(ctx, tk.ID, 30*time.Millisecond)
	if !goqueueerrors.Is(err, goqueueerrors.KindTimeout) {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}

func TestSubmitBatchPreservesOrder(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	batch := []tasks.Task{
		tasks.New("a", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig()),
		tasks.New("b", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig()),
		tasks.New("c", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig()),
	}
	if err := svc.SubmitBatch(ctx, batch); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	for _, want := range batch {
		got, err := svc.Claim(ctx, "w", []string{"default"}, 0, time.Minute)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if got == nil || got.ID != want.ID {
			t.Fatalf("expected submission order preserved, wanted %s got %+v", want.ID, got)
		}
	}
}

func TestInspectQueueDoesNotRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tk := tasks.New("job", "default", []byte(`{"x":1}`), tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if err := svc.Submit(ctx, tk); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	list, err := svc.InspectQueue(ctx, "default", tasks.PriorityNormal, 10)
	if err != nil {
		t.Fatalf("InspectQueue: %v", err)
	}
	if len(list) != 1 || list[0].ID != tk.ID {
		t.Fatalf("expected to see pending task, got %+v", list)
	}

	stats, err := svc.QueueStats(ctx, "default")
	if err != nil {
		t.Fatalf("QueueStats: %v", err)
	}
	if stats.PendingPerPriority[tasks.PriorityNormal] != 1 {
		t.Fatalf("expected InspectQueue to leave the lane untouched, got %d pending", stats.PendingPerPriority[tasks.PriorityNormal])
	}
}
