// services/notification_service.go
package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
	"github.com/wfunc/partyserver/tasks"
)

// TaskEnqueuer is the slice of asynq.Client the dispatcher needs.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotificationService is the dispatcher: it persists the in-app row, pushes
// a direct realtime event to any live connections, and queues a push task
// for the worker. Every step past the opt-out check is best-effort; a
// failure here never aborts the state mutation that triggered it.
type NotificationService struct {
	store   persistence.Store
	queue   TaskEnqueuer
	emitter Emitter
}

func NewNotificationService(store persistence.Store, queue TaskEnqueuer, emitter Emitter) *NotificationService {
	return &NotificationService{store: store, queue: queue, emitter: emitter}
}

// Notify implements Notifier.
func (s *NotificationService) Notify(userID int64, ntype, title, message string, data map[string]interface{}) {
	enabled, err := s.store.NotificationTypeEnabled(userID, ntype)
	if err != nil {
		logger.Log.Warnw("notification preference lookup failed", "user_id", userID, "type", ntype, "error", err)
		return
	}
	if !enabled {
		return
	}

	n := &models.Notification{
		ID:      uuid.New().String(),
		UserID:  userID,
		Type:    ntype,
		Title:   title,
		Message: message,
		Data:    data,
	}
	if err := s.store.CreateNotification(n); err != nil {
		logger.Log.Warnw("failed to persist notification", "user_id", userID, "type", ntype, "error", err)
		return
	}

	s.emitter.EmitToUser(userID, EventNotification, n)

	if s.queue == nil {
		return
	}
	task, err := tasks.NewNotificationPushTask(tasks.NotificationPushPayload{
		NotificationID: n.ID,
		UserID:         userID,
		Type:           ntype,
		Title:          title,
		Message:        message,
		Data:           data,
	})
	if err != nil {
		logger.Log.Warnw("failed to build push task", "notification_id", n.ID, "error", err)
		return
	}
	if _, err := s.queue.Enqueue(task, asynq.Queue("low"), asynq.MaxRetry(3)); err != nil {
		logger.Log.Warnw("failed to enqueue push task", "notification_id", n.ID, "error", err)
	}
}

// ListForUser returns the user's most recent notifications.
func (s *NotificationService) ListForUser(userID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.store.NotificationsForUser(userID, limit)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return rows, nil
}

// CleanupOld deletes read notifications older than the retention window.
// Wired to a daily gocron job by the server.
func (s *NotificationService) CleanupOld(retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted, err := s.store.DeleteReadNotificationsBefore(cutoff)
	if err != nil {
		logger.Log.Warnw("notification cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Log.Infow("notification cleanup", "deleted", deleted, "cutoff", cutoff)
	}
}
