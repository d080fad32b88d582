// Package main implements the GoQueue scheduler process: it runs the
// Scheduler's tick loop, firing due schedule entries into the Queue
// Service. Multiple instances may run concurrently; the advisory lock
// in pkg/scheduler ensures only one instance fires each due entry per
// tick.
//
// Usage:
//
//	go run cmd/scheduler/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/config"
	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/scheduler"
	"github.com/guido-cesarano/goqueue/pkg/store"
)

func main() {
	log := logger.Component("scheduler")

	qcfg, err := config.LoadQueueConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load queue config")
	}

	s, err := store.NewFromURL(qcfg.StoreURL, qcfg.MaxConnections)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer s.Close()

	svc := queue.NewService(s, queue.Config{
		DefaultQueue: qcfg.DefaultQueue,
		ResultTTL:    time.Duration(qcfg.ResultTTLSeconds) * time.Second,
		FailedTTL:    time.Duration(qcfg.FailedTTLSeconds) * time.Second,
	})

	instanceID := os.Getenv("SCHEDULER_ID")
	if instanceID == "" {
		instanceID = "scheduler-" + os.Getenv("HOSTNAME")
	}
	sch := scheduler.New(s, svc, instanceID)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutting down scheduler...")
		cancel()
	}()

	log.Info().Str("instance_id", instanceID).Msg("Scheduler started")
	sch.Run(ctx, 500*time.Millisecond)
}
