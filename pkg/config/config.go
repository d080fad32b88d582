// Package config loads the queue/worker/retry configuration structs
// named in spec.md §6 from environment variables via
// github.com/caarlos0/env/v11, the struct-tag-driven loader used
// elsewhere in the example pack for exactly this purpose. STORE_URL
// overrides QueueConfig.StoreURL as spec.md §6 requires.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/guido-cesarano/goqueue/pkg/goqueueerrors"
)

// QueueConfig configures the Queue Service and its store connection.
type QueueConfig struct {
	StoreURL         string `env:"STORE_URL" envDefault:"redis://localhost:6379/0"`
	DefaultQueue     string `env:"DEFAULT_QUEUE" envDefault:"default"`
	MaxConnections   int    `env:"MAX_CONNECTIONS" envDefault:"10"`
	ResultTTLSeconds int    `env:"RESULT_TTL" envDefault:"86400"`
	FailedTTLSeconds int    `env:"FAILED_TTL" envDefault:"604800"`
	CleanupInterval  int    `env:"CLEANUP_INTERVAL" envDefault:"3600"`
}

// WorkerConfig configures one Worker Runtime instance.
type WorkerConfig struct {
	WorkerID            string   `env:"WORKER_ID"`
	Queues              []string `env:"WORKER_QUEUES" envSeparator:"," envDefault:"default"`
	MaxConcurrentTasks  int      `env:"MAX_CONCURRENT_TASKS" envDefault:"4"`
	PollingIntervalMS   int      `env:"POLLING_INTERVAL_MS" envDefault:"1000"`
	TaskTimeoutSeconds  int      `env:"TASK_TIMEOUT" envDefault:"300"`
	AutoRetry           bool     `env:"AUTO_RETRY" envDefault:"true"`
	HeartbeatIntervalS  int      `env:"HEARTBEAT_INTERVAL" envDefault:"30"`
	ShutdownGracePeriod int      `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"30"`
}

// RetryConfigEnv configures the default retry policy applied to tasks
// that don't specify their own.
type RetryConfigEnv struct {
	MaxRetries      int  `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	BaseDelaySec    int  `env:"RETRY_BASE_DELAY" envDefault:"10"`
	Exponential     bool `env:"RETRY_EXPONENTIAL" envDefault:"true"`
	MaxDelaySeconds int  `env:"RETRY_MAX_DELAY" envDefault:"300"`
}

// LoadQueueConfig parses QueueConfig from the environment.
func LoadQueueConfig() (QueueConfig, error) {
	var cfg QueueConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, goqueueerrors.Wrap(goqueueerrors.KindConfiguration, err, "parse queue config")
	}
	return cfg, nil
}

// LoadWorkerConfig parses WorkerConfig from the environment.
func LoadWorkerConfig() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, goqueueerrors.Wrap(goqueueerrors.KindConfiguration, err, "parse worker config")
	}
	if cfg.WorkerID == "" {
		return cfg, goqueueerrors.New(goqueueerrors.KindConfiguration, "WORKER_ID must be set")
	}
	return cfg, nil
}

// LoadRetryConfig parses RetryConfigEnv from the environment.
func LoadRetryConfig() (RetryConfigEnv, error) {
	var cfg RetryConfigEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, goqueueerrors.Wrap(goqueueerrors.KindConfiguration, err, "parse retry config")
	}
	return cfg, nil
}
