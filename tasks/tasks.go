// Package tasks defines the asynq task types exchanged between the API
// process and the notification worker.
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TypeNotificationPush fans a stored notification out to the user's
	// registered devices. Delivery is best-effort.
	TypeNotificationPush = "notification:push"
)

type NotificationPushPayload struct {
	NotificationID string                 `json:"notification_id"`
	UserID         int64                  `json:"user_id"`
	Type           string                 `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

func NewNotificationPushTask(p NotificationPushPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationPush, payload), nil
}
