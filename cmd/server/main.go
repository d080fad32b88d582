// Package main implements the GoQueue HTTP API server: a thin REST
// front end over the Client Facade for submitting tasks, checking
// results, registering schedules, and inspecting queue state.
//
// API Endpoints:
//
//	POST /enqueue  - submit a task to a queue
//	GET  /result   - fetch a task's stored result by id
//	GET  /status   - fetch a task's current status by id
//	POST /schedule - register a recurring or one-shot schedule entry
//	GET  /stats    - queue depth/inflight/retry/outcome counters
//	GET  /tasks    - peek pending tasks in one priority lane
//
// Usage:
//
//	go run cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/guido-cesarano/goqueue/pkg/client"
	"github.com/guido-cesarano/goqueue/pkg/config"
	"github.com/guido-cesarano/goqueue/pkg/logger"
	"github.com/guido-cesarano/goqueue/pkg/queue"
	"github.com/guido-cesarano/goqueue/pkg/scheduler"
	"github.com/guido-cesarano/goqueue/pkg/store"
	"github.com/guido-cesarano/goqueue/pkg/tasks"
)

// authMiddleware wraps an http.HandlerFunc and enforces API Key authentication.
func authMiddleware(next http.HandlerFunc, requiredKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requiredKey == "" {
			next(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != requiredKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// enableCORS wraps an http.HandlerFunc and adds CORS headers, handling
// preflight OPTIONS requests before they reach auth.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// setupRouter configures the HTTP handlers over a shared Client Facade
// and Scheduler, returning the mux.
func setupRouter(c *client.Client, sch *scheduler.Scheduler, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/enqueue", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Queue    string          `json:"queue"`
			Name     string          `json:"name"`
			Payload  json.RawMessage `json:"payload"`
			Priority int             `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Queue == "" {
			req.Queue = "default"
		}

		t, err := c.SubmitToQueue(r.Context(), req.Queue, req.Name, req.Payload, tasks.Priority(req.Priority), tasks.DefaultRetryConfig())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Task enqueued: %s\n", t.ID)
	}, apiKey)))

	mux.HandleFunc("/result", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "Missing task ID", http.StatusBadRequest)
			return
		}
		t, err := c.GetTaskStatus(r.Context(), taskID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(t)
	}, apiKey)))

	mux.HandleFunc("/status", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("id")
		if taskID == "" {
			http.Error(w, "Missing task ID", http.StatusBadRequest)
			return
		}
		t, err := c.GetTaskStatus(r.Context(), taskID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": t.ID, "status": string(t.Status)})
	}, apiKey)))

	mux.HandleFunc("/schedule", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Name      string          `json:"name"`
			Queue     string          `json:"queue"`
			TaskName  string          `json:"task_name"`
			Payload   json.RawMessage `json:"payload"`
			Priority  int             `json:"priority"`
			Kind      string          `json:"kind"`
			PeriodSec int             `json:"period_seconds"`
			Hour      int             `json:"hour"`
			Minute    int             `json:"minute"`
			Weekday   int             `json:"weekday"`
			At        time.Time       `json:"at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		tpl := scheduler.TaskTemplate{
			Name:        req.TaskName,
			Payload:     req.Payload,
			Priority:    tasks.Priority(req.Priority),
			RetryConfig: tasks.DefaultRetryConfig(),
		}
		entry := scheduler.NewEntry(req.Name, req.Queue, tpl, scheduler.Kind(req.Kind))
		entry.PeriodSec = req.PeriodSec
		entry.Hour = req.Hour
		entry.Minute = req.Minute
		entry.Weekday = time.Weekday(req.Weekday)
		entry.At = req.At

		created, err := sch.CreateSchedule(r.Context(), entry)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid schedule: %v", err), http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, "Job scheduled with ID: %s\n", created.JobID)
	}, apiKey)))

	mux.HandleFunc("/stats", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		queueName := r.URL.Query().Get("queue")
		if queueName == "" {
			queueName = "default"
		}
		stats, err := c.GetQueueStats(r.Context(), queueName)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}, apiKey)))

	mux.HandleFunc("/tasks", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		queueName := r.URL.Query().Get("queue")
		if queueName == "" {
			http.Error(w, "Missing queue parameter", http.StatusBadRequest)
			return
		}
		list, err := c.InspectQueue(r.Context(), queueName, tasks.PriorityNormal, 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}, apiKey)))

	return mux
}

func main() {
	log := logger.Component("server")

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
	c := client.New(svc)
	sch := scheduler.New(s, svc, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sch.Run(ctx, 500*time.Millisecond)

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		log.Warn().Msg("API_KEY not set. Authentication disabled.")
	} else {
		log.Info().Msg("API authentication enabled.")
	}

	mux := setupRouter(c, sch, apiKey)

	log.Info().Msg("Server listening on :8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
