package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/tasks"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestNotify_PersistsEmitsAndEnqueues(t *testing.T) {
	store := newMemStore()
	emitter := newRecordingEmitter()
	queue := &fakeEnqueuer{}
	svc := NewNotificationService(store, queue, emitter)

	svc.Notify(7, NotifyGameInvite, "Game invite", "trivia", map[string]interface{}{
		"session_id": "s1",
	})

	rows, err := store.NotificationsForUser(7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, NotifyGameInvite, rows[0].Type)

	assert.Len(t, emitter.eventsNamed(EventNotification), 1)

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, tasks.TypeNotificationPush, queue.tasks[0].Type())
	var payload tasks.NotificationPushPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, int64(7), payload.UserID)
	assert.Equal(t, rows[0].ID, payload.NotificationID)
}

func TestNotify_RespectsOptOut(t *testing.T) {
	store := newMemStore()
	emitter := newRecordingEmitter()
	queue := &fakeEnqueuer{}
	svc := NewNotificationService(store, queue, emitter)

	store.prefs[pairKey(NotifyJoinRequest, 7)] = false

	svc.Notify(7, NotifyJoinRequest, "Join request", "", nil)

	rows, err := store.NotificationsForUser(7, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "opted-out types are dropped entirely")
	assert.Empty(t, queue.tasks)
	assert.Empty(t, emitter.events)
}

func TestListForUser_ClampsLimit(t *testing.T) {
	store := newMemStore()
	svc := NewNotificationService(store, nil, newRecordingEmitter())

	for i := 0; i < 60; i++ {
		svc.Notify(7, NotifyGameInvite, "Game invite", "", nil)
	}

	rows, err := svc.ListForUser(7, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 50)

	rows, err = svc.ListForUser(7, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestCleanupOld(t *testing.T) {
	store := newMemStore()
	svc := NewNotificationService(store, nil, newRecordingEmitter())

	old := models.Notification{ID: "old", UserID: 7, Type: NotifyGameInvite, Read: true}
	require.NoError(t, store.CreateNotification(&old))
	store.notifications[0].CreatedAt = time.Now().AddDate(0, 0, -40)

	unread := models.Notification{ID: "unread", UserID: 7, Type: NotifyGameInvite}
	require.NoError(t, store.CreateNotification(&unread))
	store.notifications[1].CreatedAt = time.Now().AddDate(0, 0, -40)

	svc.CleanupOld(30)

	rows, err := store.NotificationsForUser(7, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "unread rows survive retention")
	assert.Equal(t, "unread", rows[0].ID)
}
