// workers/server.go
package workers

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/tasks"
)

// Server runs the asynq worker that drains background tasks (currently
// push-notification delivery) off the shared redis instance.
type Server struct {
	server *asynq.Server
}

func NewServer(redisOpt asynq.RedisClientOpt) *Server {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Log.Warnw("task failed",
					"task_type", task.Type(), "retries", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)
	return &Server{server: server}
}

// Start runs the worker loop. Call from its own goroutine.
func (s *Server) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeNotificationPush, HandleNotificationPush)

	logger.Log.Info("worker server starting")
	if err := s.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Log.Fatalf("could not run worker server: %v", err)
		}
		logger.Log.Info("worker server stopped")
	}
}

func (s *Server) Shutdown() {
	logger.Log.Info("shutting down worker server")
	s.server.Shutdown()
}
