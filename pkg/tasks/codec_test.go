package tasks_test

import (
	"testing"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

func TestFieldsRoundTrip(t *testing.T) {
	claimedAt := time.Now().UTC().Truncate(time.Millisecond)
	finishedAt := claimedAt.Add(time.Minute)
	deadline := claimedAt.Add(5 * time.Minute)

	original := tasks.Task{
		ID:                 "task-1",
		Name:               "send_email",
		Payload:            []byte(`{"to":"a@example.com"}`),
		Queue:              "default",
		Priority:           tasks.PriorityHigh,
		Status:             tasks.StatusRunning,
		Attempts:           2,
		RetryConfig:        tasks.RetryConfig{MaxRetries: 3, BaseDelaySec: 10, Exponential: true, MaxDelaySeconds: 300},
		CreatedAt:          claimedAt.Add(-time.Hour),
		ClaimedAt:          &claimedAt,
		FinishedAt:         &finishedAt,
		ClaimedBy:          "worker-1",
		Result:             []byte(`{"ok":true}`),
		Error:              "",
		VisibilityDeadline: &deadline,
	}

	fields, err := original.ToFields()
	if err != nil {
		t.Fatalf("ToFields: %v", err)
	}

	decoded, err := tasks.FromFields(fields)
	if err != nil {
		t.Fatalf("FromFields: %v", err)
	}

	if decoded.ID != original.ID || decoded.Name != original.Name || decoded.Queue != original.Queue {
		t.Fatalf("identity fields did not round-trip: %+v", decoded)
	}
	if decoded.Priority != original.Priority || decoded.Status != original.Status || decoded.Attempts != original.Attempts {
		t.Fatalf("status fields did not round-trip: %+v", decoded)
	}
	if string(decoded.Payload) != string(original.Payload) || string(decoded.Result) != string(original.Result) {
		t.Fatalf("payload/result did not round-trip: %+v", decoded)
	}
	if decoded.RetryConfig != original.RetryConfig {
		t.Fatalf("retry_config did not round-trip: %+v", decoded.RetryConfig)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("created_at did not round-trip: got %s want %s", decoded.CreatedAt, original.CreatedAt)
	}
	if decoded.ClaimedAt == nil || !decoded.ClaimedAt.Equal(*original.ClaimedAt) {
		t.Fatalf("claimed_at did not round-trip: %+v", decoded.ClaimedAt)
	}
	if decoded.VisibilityDeadline == nil || !decoded.VisibilityDeadline.Equal(*original.VisibilityDeadline) {
		t.Fatalf("visibility_deadline did not round-trip: %+v", decoded.VisibilityDeadline)
	}
}

func TestFromFieldsEmptyIsError(t *testing.T) {
	_, err := tasks.FromFields(map[string]string{})
	if err == nil {
		t.Fatal("expected an error decoding an empty field map")
	}
}

func TestLaneKeyByPriority(t *testing.T) {
	cases := []struct {
		p    tasks.Priority
		want string
	}{
		{tasks.PriorityLow, "queue:default:p0"},
		{tasks.PriorityNormal, "queue:default:p1"},
		{tasks.PriorityHigh, "queue:default:p2"},
		{tasks.PriorityCritical, "queue:default:p3"},
	}
	for _, c := range cases {
		got := tasks.LaneKey("default", c.p)
		if got != c.want {
			t.Errorf("LaneKey(%s): expected %s, got %s", c.p, c.want, got)
		}
	}
}

func TestNewTaskIsPending(t *testing.T) {
	tk := tasks.New("job", "default", nil, tasks.PriorityNormal, tasks.DefaultRetryConfig())
	if tk.Status != tasks.StatusPending {
		t.Errorf("expected a new task to start pending, got %s", tk.Status)
	}
	if tk.ID == "" {
		t.Error("expected New to generate a non-empty id")
	}
	if tk.Attempts != 0 {
		t.Errorf("expected 0 attempts, got %d", tk.Attempts)
	}
}
