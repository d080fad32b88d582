package config_test

import (
	"testing"

	"github.com/guido-cesarano/goqueue/pkg/config"
)

func TestLoadQueueConfigDefaults(t *testing.T) {
	cfg, err := config.LoadQueueConfig()
	if err != nil {
		t.Fatalf("LoadQueueConfig: %v", err)
	}
	if cfg.StoreURL != "redis://localhost:6379/0" {
		t.Errorf("unexpected default StoreURL: %s", cfg.StoreURL)
	}
	if cfg.DefaultQueue != "default" {
		t.Errorf("unexpected default DefaultQueue: %s", cfg.DefaultQueue)
	}
	if cfg.MaxConnections != 10 {
		t.Errorf("unexpected default MaxConnections: %d", cfg.MaxConnections)
	}
}

func TestLoadQueueConfigOverride(t *testing.T) {
	t.Setenv("STORE_URL", "redis://example:6380/1")
	t.Setenv("DEFAULT_QUEUE", "priority")

	cfg, err := config.LoadQueueConfig()
	if err != nil {
		t.Fatalf("LoadQueueConfig: %v", err)
	}
	if cfg.StoreURL != "redis://example:6380/1" {
		t.Errorf("expected STORE_URL override, got %s", cfg.StoreURL)
	}
	if cfg.DefaultQueue != "priority" {
		t.Errorf("expected DEFAULT_QUEUE override, got %s", cfg.DefaultQueue)
	}
}

func TestLoadWorkerConfigRequiresWorkerID(t *testing.T) {
	t.Setenv("WORKER_ID", "")
	_, err := config.LoadWorkerConfig()
	if err == nil {
		t.Fatal("expected an error when WORKER_ID is unset")
	}
}

func TestLoadWorkerConfigParsesQueueList(t *testing.T) {
	t.Setenv("WORKER_ID", "worker-1")
	t.Setenv("WORKER_QUEUES", "default,priority,low")

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		t.Fatalf("LoadWorkerConfig: %v", err)
	}
	want := []string{"default", "priority", "low"}
	if len(cfg.Queues) != len(want) {
		t.Fatalf("expected %d queues, got %v", len(want), cfg.Queues)
	}
	for i, q := range want {
		if cfg.Queues[i] != q {
			t.Errorf("expected queue %d to be %s, got %s", i, q, cfg.Queues[i])
		}
	}
}

func TestLoadRetryConfigDefaults(t *testing.T) {
	cfg, err := config.LoadRetryConfig()
	if err != nil {
		t.Fatalf("LoadRetryConfig: %v", err)
	}
	if cfg.MaxRetries != 3 || cfg.BaseDelaySec != 10 || !cfg.Exponential || cfg.MaxDelaySeconds != 300 {
		t.Errorf("unexpected retry config defaults: %+v", cfg)
	}
}
