// Package main provides a benchmark tool for GoQueue to measure task
// submission and processing throughput against a live store.
//
// Usage:
//
//	go run benchmark/main.go -tasks 100000
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/client"
	"github.com/guido-cesarano/goqueue/pkg/config"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

func main() {
	numTasks := flag.Int("tasks", 100000, "Number of tasks to enqueue")
	numWorkers := flag.Int("workers", 10, "Number of concurrent enqueuers")
	queueName := flag.String("queue", "default", "Queue to submit into")
	flag.Parse()

	qcfg, err := config.LoadQueueConfig()
	if err != nil {
		fmt.Printf("failed to load queue config: %v\n", err)
		return
	}
	s, err := store.NewFromURL(qcfg.StoreURL, qcfg.MaxConnections)
	if err != nil {
		fmt.Printf("failed to connect to store: %v\n", err)
		return
	}
	defer s.Close()

	svc := queue.NewService(s, queue.DefaultConfig())
	c := client.New(svc)
	ctx := context.Background()

	fmt.Printf("GoQueue Benchmark\n")
	fmt.Printf("=================\n")
	fmt.Printf("Tasks to enqueue: %d\n", *numTasks)
	fmt.Printf("Concurrent workers: %d\n\n", *numWorkers)

	fmt.Printf("Starting enqueue phase...\n")
	startEnqueue := time.Now()

	var wg sync.WaitGroup
	var enqueued atomic.Int64
	tasksPerWorker := *numTasks / *numWorkers

	for i := 0; i < *numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < tasksPerWorker; j++ {
				payload := []byte(fmt.Sprintf(`{"worker":%d,"task":%d}`, workerID, j))
				if _, err := c.SubmitToQueue(ctx, *queueName, "benchmark", payload, tasks.PriorityNormal, tasks.DefaultRetryConfig()); err != nil {
					fmt.Printf("Error enqueuing: %v\n", err)
					return
				}
				enqueued.Add(1)
			}
		}(i)
	}

	wg.Wait()
	enqueueTime := time.Since(startEnqueue)

	fmt.Printf("Enqueued %d tasks in %s\n", enqueued.Load(), enqueueTime)
	fmt.Printf("  Throughput: %.2f tasks/sec\n\n", float64(enqueued.Load())/enqueueTime.Seconds())

	fmt.Printf("Waiting for all tasks to be processed...\n")
	startProcess := time.Now()

	for {
		stats, err := c.GetQueueStats(ctx, *queueName)
		if err != nil {
			fmt.Printf("Error reading stats: %v\n", err)
			break
		}
		var remaining int64
		for _, n := range stats.PendingPerPriority {
			remaining += n
		}
		remaining += stats.Inflight + stats.RetryScheduled

		if remaining == 0 {
			break
		}

		time.Sleep(2 * time.Second)
		fmt.Printf("  Remaining: %d tasks\n", remaining)
	}

	processTime := time.Since(startProcess)

	fmt.Printf("\nAll tasks processed in %s\n", processTime)
	fmt.Printf("  Throughput: %.2f tasks/sec\n", float64(*numTasks)/processTime.Seconds())

	totalTime := enqueueTime + processTime
	fmt.Printf("\nTotal time: %s\n", totalTime)
	fmt.Printf("Overall throughput: %.2f tasks/sec\n", float64(*numTasks)/totalTime.Seconds())
}
