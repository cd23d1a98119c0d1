// services/room_service.go
package services

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/partyserver/errs"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
)

// RoomService is the room membership manager: creation, locking, join and
// leave, and the locked-room admission workflow. Membership truth lives in
// RoomParticipant rows; the gateway's registry only mirrors transport
// presence.
type RoomService struct {
	store    persistence.Store
	emitter  Emitter
	notifier Notifier
	locks    *EntityLocks
}

func NewRoomService(store persistence.Store, emitter Emitter, notifier Notifier, locks *EntityLocks) *RoomService {
	return &RoomService{store: store, emitter: emitter, notifier: notifier, locks: locks}
}

func validVisibility(v string) bool {
	return v == models.RoomVisibilityPublic || v == models.RoomVisibilityPrivate
}

// CreateRoom inserts the room together with the host's active participant
// row; a room never exists without its host inside.
func (s *RoomService) CreateRoom(name, visibility string, hostID int64) (*models.Room, error) {
	if name == "" || hostID == 0 {
		return nil, errs.Validationf("name and host are required")
	}
	if !validVisibility(visibility) {
		return nil, errs.Validationf("visibility must be public or private")
	}

	taken, err := s.store.RoomNameTaken(hostID, name, "")
	if err != nil {
		return nil, errs.Internal(err)
	}
	if taken {
		return nil, errs.Conflictf("you already have a room named %q", name)
	}

	room := &models.Room{
		ID:         uuid.New().String(),
		Name:       name,
		HostID:     hostID,
		Visibility: visibility,
	}
	if err := s.store.CreateRoomWithHost(room); err != nil {
		if errors.Is(err, persistence.ErrDuplicateEntry) {
			return nil, errs.Conflictf("you already have a room named %q", name)
		}
		return nil, errs.Internal(err)
	}

	logger.Log.Infow("room created", "room_id", room.ID, "host_id", hostID)
	return room, nil
}

// RoomDetails returns the aggregate view: room attributes, active
// participants in join order, and in-progress sessions with their players.
func (s *RoomService) RoomDetails(roomID string) (*models.RoomDetails, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("room %s", roomID)
		}
		return nil, errs.Internal(err)
	}

	participants, err := s.store.ActiveParticipants(roomID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	sessions, err := s.store.ActiveSessionsByRoom(roomID)
	if err != nil {
		return nil, errs.Internal(err)
	}

	details := &models.RoomDetails{
		ID:           room.ID,
		Name:         room.Name,
		HostID:       room.HostID,
		Visibility:   room.Visibility,
		Locked:       room.Locked,
		CreatedAt:    room.CreatedAt,
		Participants: make([]models.ParticipantInfo, 0, len(participants)),
		Sessions:     make([]models.SessionDetail, 0, len(sessions)),
	}
	for _, p := range participants {
		details.Participants = append(details.Participants, models.ParticipantInfo{
			UserID:   p.UserID,
			JoinedAt: p.JoinedAt,
		})
	}
	for i := range sessions {
		players, err := s.store.OpenGameParticipants(sessions[i].ID)
		if err != nil {
			return nil, errs.Internal(err)
		}
		details.Sessions = append(details.Sessions, buildSessionDetail(&sessions[i], players))
	}
	return details, nil
}

// UpdateRoom applies a host-only partial update (name, visibility, lock)
// and broadcasts the applied patch to the room. Broadcast failure never
// surfaces; the mutation is already committed.
func (s *RoomService) UpdateRoom(roomID string, patch models.RoomPatch, actorID int64) (*models.Room, error) {
	unlock := s.locks.Lock(roomKey(roomID))
	defer unlock()

	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("room %s", roomID)
		}
		return nil, errs.Internal(err)
	}
	if room.HostID != actorID {
		return nil, errs.Authorizationf("only the host may update the room")
	}

	fields := map[string]interface{}{}
	applied := map[string]interface{}{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, errs.Validationf("name cannot be empty")
		}
		taken, err := s.store.RoomNameTaken(room.HostID, *patch.Name, room.ID)
		if err != nil {
			return nil, errs.Internal(err)
		}
		if taken {
			return nil, errs.Conflictf("you already have a room named %q", *patch.Name)
		}
		fields["name"] = *patch.Name
		applied["name"] = *patch.Name
		room.Name = *patch.Name
	}
	if patch.Visibility != nil {
		if !validVisibility(*patch.Visibility) {
			return nil, errs.Validationf("visibility must be public or private")
		}
		fields["visibility"] = *patch.Visibility
		applied["visibility"] = *patch.Visibility
		room.Visibility = *patch.Visibility
	}
	if patch.Locked != nil {
		fields["locked"] = *patch.Locked
		applied["is_locked"] = *patch.Locked
		room.Locked = *patch.Locked
	}
	if len(fields) == 0 {
		return room, nil
	}

	if err := s.store.UpdateRoomFields(roomID, fields); err != nil {
		return nil, errs.Internal(err)
	}

	applied["room_id"] = roomID
	s.emitter.EmitToRoom(roomID, EventRoomUpdated, applied)
	return room, nil
}

// JoinRoom runs the per-user admission state machine. The active-row check
// comes before the locked gate so repeated calls stay idempotent after the
// accepted request has been consumed by the first entry.
func (s *RoomService) JoinRoom(userID int64, roomID string) (*models.JoinReceipt, error) {
	unlock := s.locks.Lock(roomKey(roomID))
	defer unlock()

	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("room %s", roomID)
		}
		return nil, errs.Internal(err)
	}

	participant, err := s.store.GetRoomParticipant(roomID, userID)
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, errs.Internal(err)
	}
	if participant != nil && participant.IsActive {
		return &models.JoinReceipt{RoomID: roomID, UserID: userID, JoinedAt: participant.JoinedAt}, nil
	}

	if room.Locked && userID != room.HostID {
		accepted, err := s.store.GetJoinRequestByStatus(roomID, userID, models.JoinRequestAccepted)
		if err != nil {
			if errors.Is(err, persistence.ErrRecordNotFound) {
				return nil, errs.Authorizationf("room is locked; request to join or wait for an invite")
			}
			return nil, errs.Internal(err)
		}
		// The admission ticket is single-use.
		if err := s.store.DeleteJoinRequest(accepted.ID); err != nil {
			return nil, errs.Internal(err)
		}
	}

	now := time.Now()
	if participant != nil {
		participant.IsActive = true
		participant.LeftAt = nil
		participant.JoinedAt = now
		if err := s.store.SaveRoomParticipant(participant); err != nil {
			return nil, errs.Internal(err)
		}
	} else {
		participant = &models.RoomParticipant{
			RoomID:   roomID,
			UserID:   userID,
			IsActive: true,
			JoinedAt: now,
		}
		if err := s.store.CreateRoomParticipant(participant); err != nil {
			return nil, errs.Internal(err)
		}
	}

	s.emitter.EmitToRoomExcept(roomID, userID, EventUserJoined, map[string]interface{}{
		"room_id":   roomID,
		"user_id":   userID,
		"joined_at": now,
	})
	return &models.JoinReceipt{RoomID: roomID, UserID: userID, JoinedAt: now}, nil
}

// LeaveRoom marks the caller's active row inactive. Returns false when no
// active row existed; that is a no-op signal, not an error. reason is
// carried in the user-left event ("left" or "disconnected").
func (s *RoomService) LeaveRoom(userID int64, roomID, reason string) (bool, error) {
	unlock := s.locks.Lock(roomKey(roomID))
	defer unlock()

	participant, err := s.store.GetRoomParticipant(roomID, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, nil
		}
		return false, errs.Internal(err)
	}
	if !participant.IsActive {
		return false, nil
	}

	now := time.Now()
	participant.IsActive = false
	participant.LeftAt = &now
	if err := s.store.SaveRoomParticipant(participant); err != nil {
		return false, errs.Internal(err)
	}

	remaining, err := s.store.CountActiveParticipants(roomID)
	if err != nil {
		logger.Log.Warnw("failed to count remaining participants", "room_id", roomID, "error", err)
	} else if remaining == 0 {
		// Deliberately conservative: the room row stays.
		logger.Log.Infow("room emptied", "room_id", roomID)
	}

	s.emitter.EmitToRoomExcept(roomID, userID, EventUserLeft, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
		"reason":  reason,
	})
	return true, nil
}

// ActiveRoomIDs lists the rooms the user's membership rows say they are in.
// The gateway settles these on disconnect.
func (s *RoomService) ActiveRoomIDs(userID int64) ([]string, error) {
	ids, err := s.store.ActiveRoomIDs(userID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	return ids, nil
}

// CreateJoinRequest files a pending admission request for a locked room.
func (s *RoomService) CreateJoinRequest(userID int64, roomID string) (*models.RoomJoinRequest, error) {
	unlock := s.locks.Lock(roomKey(roomID))
	defer unlock()

	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("room %s", roomID)
		}
		return nil, errs.Internal(err)
	}

	participant, err := s.store.GetRoomParticipant(roomID, userID)
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, errs.Internal(err)
	}
	if participant != nil && participant.IsActive {
		return nil, errs.Conflictf("already in the room")
	}

	if _, err := s.store.GetJoinRequestByStatus(roomID, userID, models.JoinRequestPending); err == nil {
		return nil, errs.Conflictf("a request is already pending")
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, errs.Internal(err)
	}

	req := &models.RoomJoinRequest{
		ID:     uuid.New().String(),
		RoomID: roomID,
		UserID: userID,
		Status: models.JoinRequestPending,
	}
	if err := s.store.CreateJoinRequest(req); err != nil {
		return nil, errs.Internal(err)
	}

	s.notifier.Notify(room.HostID, NotifyJoinRequest, "Join request",
		"Someone asked to join your room", map[string]interface{}{
			"room_id":    roomID,
			"user_id":    userID,
			"request_id": req.ID,
		})
	return req, nil
}

// ResolveJoinRequest lets the host accept or reject a pending request. An
// accepted request stays behind as the admission ticket; the join itself
// happens on the requester's next JoinRoom call, which consumes it.
func (s *RoomService) ResolveJoinRequest(requestID string, actorID int64, accept bool) (*models.RoomJoinRequest, error) {
	req, err := s.store.GetJoinRequest(requestID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("join request %s", requestID)
		}
		return nil, errs.Internal(err)
	}

	unlock := s.locks.Lock(roomKey(req.RoomID))
	defer unlock()

	room, err := s.store.GetRoom(req.RoomID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if room.HostID != actorID {
		return nil, errs.Authorizationf("only the host may resolve join requests")
	}
	if req.Status != models.JoinRequestPending {
		return nil, errs.Conflictf("request already processed")
	}

	status := models.JoinRequestRejected
	ntype := NotifyJoinRequestRejected
	title := "Join request declined"
	if accept {
		status = models.JoinRequestAccepted
		ntype = NotifyJoinRequestAccepted
		title = "Join request accepted"
	}
	if err := s.store.UpdateJoinRequestStatus(requestID, status); err != nil {
		return nil, errs.Internal(err)
	}
	req.Status = status

	s.notifier.Notify(req.UserID, ntype, title, room.Name, map[string]interface{}{
		"room_id":    room.ID,
		"request_id": requestID,
	})
	return req, nil
}

// CanUserJoinRoom is the synchronous admission predicate used by the
// gateway before subscribing a connection to a room channel.
func (s *RoomService) CanUserJoinRoom(userID int64, roomID string) (bool, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, errs.NotFoundf("room %s", roomID)
		}
		return false, errs.Internal(err)
	}
	if room.HostID == userID || !room.Locked {
		return true, nil
	}
	participant, err := s.store.GetRoomParticipant(roomID, userID)
	if err == nil && participant.IsActive {
		return true, nil
	}
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return false, errs.Internal(err)
	}
	if _, err := s.store.GetJoinRequestByStatus(roomID, userID, models.JoinRequestAccepted); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, nil
		}
		return false, errs.Internal(err)
	}
	return true, nil
}
