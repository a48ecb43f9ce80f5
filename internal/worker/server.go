package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"vehicle-auction/internal/tasks"
)

// DefaultConcurrency is the number of deliveries processed at once
const DefaultConcurrency = 10

// Server runs the asynq worker that executes queued deliveries
type Server struct {
	server    *asynq.Server
	deliverer Deliverer
	log       *logrus.Entry
}

// NewServer creates a worker Server
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, deliverer Deliverer, logger *logrus.Logger) *Server {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			taskID := ""
			if rw := task.ResultWriter(); rw != nil {
				taskID = rw.TaskID()
			}
			retryCount, _ := asynq.GetRetryCount(ctx)
			logEntry.WithFields(logrus.Fields{
				"task_id":   taskID,
				"task_type": task.Type(),
				"retries":   retryCount,
			}).Errorf("Task failed: %v", err)
		}),
	})

	return &Server{server: server, deliverer: deliverer, log: logEntry}
}

// Mux returns the task routing used by Start
func (s *Server) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeNotificationDelivery, NewDeliveryHandler(s.deliverer, s.log))
	return mux
}

// Start runs the worker until Shutdown. Call it in its own goroutine.
func (s *Server) Start() {
	s.log.Info("Worker server starting...")
	if err := s.server.Run(s.Mux()); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			s.log.WithError(err).Error("Could not run worker server")
			return
		}
	}
	s.log.Info("Worker server stopped.")
}

// Shutdown waits for active deliveries and stops the worker
func (s *Server) Shutdown() {
	s.log.Info("Shutting down worker server...")
	s.server.Shutdown()
}
