package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
)

type roomFixture struct {
	store    *memStore
	emitter  *recordingEmitter
	notifier *recordingNotifier
	svc      *RoomService
}

func newRoomFixture() *roomFixture {
	store := newMemStore()
	emitter := newRecordingEmitter()
	notifier := &recordingNotifier{}
	return &roomFixture{
		store:    store,
		emitter:  emitter,
		notifier: notifier,
		svc:      NewRoomService(store, emitter, notifier, NewEntityLocks()),
	}
}

func TestCreateRoom(t *testing.T) {
	f := newRoomFixture()

	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	require.NotEmpty(t, room.ID)

	host, err := f.store.GetRoomParticipant(room.ID, 1)
	require.NoError(t, err)
	assert.True(t, host.IsActive, "host must be an active participant from creation")
}

func TestCreateRoom_Validation(t *testing.T) {
	f := newRoomFixture()

	_, err := f.svc.CreateRoom("", models.RoomVisibilityPublic, 1)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = f.svc.CreateRoom("game night", "friends-only", 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateRoom_DuplicateNamePerHost(t *testing.T) {
	f := newRoomFixture()

	_, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	_, err = f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// A different host may reuse the name.
	_, err = f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 2)
	assert.NoError(t, err)
}

func TestJoinRoom_Idempotent(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	first, err := f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)

	second, err := f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.JoinedAt, second.JoinedAt, "repeat join must not touch the row")

	joined := f.emitter.eventsNamed(EventUserJoined)
	assert.Len(t, joined, 1, "only the first join broadcasts")
	assert.Equal(t, int64(2), joined[0].Except, "joiner must not receive their own join event")
}

func TestLeaveRoom_ThenRejoinReusesRow(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)

	left, err := f.svc.LeaveRoom(2, room.ID, "left")
	require.NoError(t, err)
	assert.True(t, left)

	p, err := f.store.GetRoomParticipant(room.ID, 2)
	require.NoError(t, err)
	assert.False(t, p.IsActive)
	assert.NotNil(t, p.LeftAt)

	_, err = f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)

	p, err = f.store.GetRoomParticipant(room.ID, 2)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Nil(t, p.LeftAt)
	assert.Len(t, f.store.roomParticipants, 2, "one row per (room,user), rejoin must not insert")
}

func TestLeaveRoom_NotInRoomIsNoop(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	left, err := f.svc.LeaveRoom(99, room.ID, "left")
	require.NoError(t, err)
	assert.False(t, left)
	assert.Empty(t, f.emitter.eventsNamed(EventUserLeft))
}

func TestUpdateRoom_HostOnly(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	locked := true
	_, err = f.svc.UpdateRoom(room.ID, models.RoomPatch{Locked: &locked}, 2)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	updated, err := f.svc.UpdateRoom(room.ID, models.RoomPatch{Locked: &locked}, 1)
	require.NoError(t, err)
	assert.True(t, updated.Locked)

	events := f.emitter.eventsNamed(EventRoomUpdated)
	require.Len(t, events, 1)
	applied := events[0].Payload.(map[string]interface{})
	assert.Equal(t, true, applied["is_locked"])
}

func TestUpdateRoom_RenameConflict(t *testing.T) {
	f := newRoomFixture()
	_, err := f.svc.CreateRoom("first", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	room, err := f.svc.CreateRoom("second", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	name := "first"
	_, err = f.svc.UpdateRoom(room.ID, models.RoomPatch{Name: &name}, 1)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// Renaming to its own current name is not a conflict.
	name = "second"
	_, err = f.svc.UpdateRoom(room.ID, models.RoomPatch{Name: &name}, 1)
	assert.NoError(t, err)
}

func lockRoom(t *testing.T, f *roomFixture, roomID string, hostID int64) {
	t.Helper()
	locked := true
	_, err := f.svc.UpdateRoom(roomID, models.RoomPatch{Locked: &locked}, hostID)
	require.NoError(t, err)
}

func TestJoinRoom_LockedRequiresAcceptedRequest(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	lockRoom(t, f, room.ID, 1)

	_, err = f.svc.JoinRoom(2, room.ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	req, err := f.svc.CreateJoinRequest(2, room.ID)
	require.NoError(t, err)

	hostCalls := f.notifier.callsOfType(NotifyJoinRequest)
	require.Len(t, hostCalls, 1)
	assert.Equal(t, int64(1), hostCalls[0].UserID)

	_, err = f.svc.ResolveJoinRequest(req.ID, 1, true)
	require.NoError(t, err)

	accepted := f.notifier.callsOfType(NotifyJoinRequestAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, int64(2), accepted[0].UserID)

	// The accepted request admits the user and is consumed by the join.
	_, err = f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)
	_, err = f.store.GetJoinRequestByStatus(room.ID, 2, models.JoinRequestAccepted)
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	// The repeat join stays idempotent even with the ticket gone.
	_, err = f.svc.JoinRoom(2, room.ID)
	assert.NoError(t, err)
}

func TestJoinRoom_HostBypassesLock(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	lockRoom(t, f, room.ID, 1)

	_, err = f.svc.LeaveRoom(1, room.ID, "left")
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(1, room.ID)
	assert.NoError(t, err)
}

func TestCreateJoinRequest_Conflicts(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	lockRoom(t, f, room.ID, 1)

	_, err = f.svc.CreateJoinRequest(1, room.ID)
	assert.ErrorIs(t, err, errs.ErrConflict, "active participants have nothing to request")

	_, err = f.svc.CreateJoinRequest(2, room.ID)
	require.NoError(t, err)
	_, err = f.svc.CreateJoinRequest(2, room.ID)
	assert.ErrorIs(t, err, errs.ErrConflict, "one pending request at a time")
}

func TestResolveJoinRequest_Authorization(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	lockRoom(t, f, room.ID, 1)

	req, err := f.svc.CreateJoinRequest(2, room.ID)
	require.NoError(t, err)

	_, err = f.svc.ResolveJoinRequest(req.ID, 3, true)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	resolved, err := f.svc.ResolveJoinRequest(req.ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, models.JoinRequestRejected, resolved.Status)

	_, err = f.svc.ResolveJoinRequest(req.ID, 1, true)
	assert.ErrorIs(t, err, errs.ErrConflict, "terminal requests stay resolved")
}

func TestCanUserJoinRoom(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)

	ok, err := f.svc.CanUserJoinRoom(2, room.ID)
	require.NoError(t, err)
	assert.True(t, ok, "unlocked rooms admit anyone")

	lockRoom(t, f, room.ID, 1)

	ok, err = f.svc.CanUserJoinRoom(2, room.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanUserJoinRoom(1, room.ID)
	require.NoError(t, err)
	assert.True(t, ok, "the host always passes")

	req, err := f.svc.CreateJoinRequest(2, room.ID)
	require.NoError(t, err)
	_, err = f.svc.ResolveJoinRequest(req.ID, 1, true)
	require.NoError(t, err)

	ok, err = f.svc.CanUserJoinRoom(2, room.ID)
	require.NoError(t, err)
	assert.True(t, ok, "an accepted request admits")
}

func TestRoomDetails(t *testing.T) {
	f := newRoomFixture()
	room, err := f.svc.CreateRoom("game night", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(2, room.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(3, room.ID)
	require.NoError(t, err)
	_, err = f.svc.LeaveRoom(3, room.ID, "left")
	require.NoError(t, err)

	details, err := f.svc.RoomDetails(room.ID)
	require.NoError(t, err)
	assert.Len(t, details.Participants, 2, "inactive members are excluded")

	_, err = f.svc.RoomDetails("no-such-room")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestActiveRoomIDs(t *testing.T) {
	f := newRoomFixture()
	roomA, err := f.svc.CreateRoom("alpha", models.RoomVisibilityPublic, 1)
	require.NoError(t, err)
	roomB, err := f.svc.CreateRoom("beta", models.RoomVisibilityPublic, 2)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(1, roomB.ID)
	require.NoError(t, err)

	ids, err := f.svc.ActiveRoomIDs(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{roomA.ID, roomB.ID}, ids)

	_, err = f.svc.LeaveRoom(1, roomB.ID, "disconnected")
	require.NoError(t, err)
	ids, err = f.svc.ActiveRoomIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []string{roomA.ID}, ids)
}
