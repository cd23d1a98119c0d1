// services/game_service.go
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

// GameService is the game session manager: session lifecycle, player
// membership, additive scoring and invitations. Sessions are nested inside
// rooms; every operation verifies room presence through RoomParticipant
// rows before touching session state.
type GameService struct {
	store    persistence.Store
	emitter  Emitter
	notifier Notifier
	locks    *EntityLocks
}

func NewGameService(store persistence.Store, emitter Emitter, notifier Notifier, locks *EntityLocks) *GameService {
	return &GameService{store: store, emitter: emitter, notifier: notifier, locks: locks}
}

func buildSessionDetail(sess *models.GameSession, players []models.GameParticipant) models.SessionDetail {
	detail := models.SessionDetail{
		ID:        sess.ID,
		GameID:    sess.GameID,
		RoomID:    sess.RoomID,
		Status:    sess.Status,
		CreatedBy: sess.CreatedBy,
		StartedAt: sess.StartedAt,
		EndedAt:   sess.EndedAt,
		Players:   make([]models.PlayerScore, 0, len(players)),
	}
	for _, p := range players {
		detail.Players = append(detail.Players, models.PlayerScore{
			UserID:   p.UserID,
			Score:    p.Score,
			JoinedAt: p.JoinedAt,
		})
	}
	return detail
}

func (s *GameService) sessionDetail(sess *models.GameSession) (*models.SessionDetail, error) {
	players, err := s.store.OpenGameParticipants(sess.ID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	detail := buildSessionDetail(sess, players)
	return &detail, nil
}

func (s *GameService) activeRoomParticipant(roomID string, userID int64) (bool, error) {
	participant, err := s.store.GetRoomParticipant(roomID, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, nil
		}
		return false, errs.Internal(err)
	}
	return participant.IsActive, nil
}

// CreateSession starts a new run of a catalog game inside a room. The
// creator must be inside the room, and only one active session per
// (room, game) pair may exist.
func (s *GameService) CreateSession(gameID, roomID string, createdBy int64) (*models.SessionDetail, error) {
	game, err := s.store.GetGame(gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("game %s", gameID)
		}
		return nil, errs.Internal(err)
	}
	if _, err := s.store.GetRoom(roomID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("room %s", roomID)
		}
		return nil, errs.Internal(err)
	}
	inRoom, err := s.activeRoomParticipant(roomID, createdBy)
	if err != nil {
		return nil, err
	}
	if !inRoom {
		return nil, errs.Authorizationf("must be in the room to start a game")
	}

	unlock := s.locks.Lock(roomGameKey(roomID, gameID))
	defer unlock()

	if _, err := s.store.ActiveSessionByRoomAndGame(roomID, gameID); err == nil {
		return nil, errs.Conflictf("a session of %s is already running in this room", game.Name)
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, errs.Internal(err)
	}

	now := time.Now()
	sess := &models.GameSession{
		ID:        uuid.New().String(),
		GameID:    gameID,
		RoomID:    roomID,
		Status:    models.SessionActive,
		CreatedBy: createdBy,
		StartedAt: now,
	}
	creator := &models.GameParticipant{
		SessionID: sess.ID,
		UserID:    createdBy,
		JoinedAt:  now,
	}
	if err := s.store.CreateSessionWithCreator(sess, creator); err != nil {
		return nil, errs.Internal(err)
	}

	detail := buildSessionDetail(sess, []models.GameParticipant{*creator})
	s.emitter.EmitToRoom(roomID, EventSessionCreated, detail)
	logger.Log.Infow("game session created",
		"session_id", sess.ID, "room_id", roomID, "game_id", gameID, "created_by", createdBy)
	return &detail, nil
}

// JoinSession adds a room member to an active session, bounded by the
// game's max player count. Joining twice is idempotent; rejoining after a
// leave reopens the old row with its accumulated score.
func (s *GameService) JoinSession(sessionID string, userID int64) (*models.SessionDetail, error) {
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := s.store.GetGameSession(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("session %s", sessionID)
		}
		return nil, errs.Internal(err)
	}
	if sess.Status != models.SessionActive {
		return nil, errs.Conflictf("session is not active")
	}
	inRoom, err := s.activeRoomParticipant(sess.RoomID, userID)
	if err != nil {
		return nil, err
	}
	if !inRoom {
		return nil, errs.Authorizationf("must be in the room to join the game")
	}

	participant, err := s.store.GetGameParticipant(sessionID, userID)
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return nil, errs.Internal(err)
	}
	if participant != nil && participant.LeftAt == nil {
		return s.sessionDetail(sess)
	}

	game, err := s.store.GetGame(sess.GameID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	open, err := s.store.CountOpenGameParticipants(sessionID)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if open >= int64(game.MaxPlayers) {
		return nil, errs.Capacityf("game is full")
	}

	now := time.Now()
	if participant != nil {
		participant.LeftAt = nil
		participant.JoinedAt = now
		if err := s.store.SaveGameParticipant(participant); err != nil {
			return nil, errs.Internal(err)
		}
	} else {
		participant = &models.GameParticipant{
			SessionID: sessionID,
			UserID:    userID,
			JoinedAt:  now,
		}
		if err := s.store.CreateGameParticipant(participant); err != nil {
			return nil, errs.Internal(err)
		}
	}

	s.emitter.EmitToRoom(sess.RoomID, EventPlayerJoined, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
		"score":      participant.Score,
		"joined_at":  now,
	})
	return s.sessionDetail(sess)
}

// LeaveSession closes the caller's open participant row. Returns false when
// none was open. When the last player leaves an active session it
// auto-transitions to completed; a session is never left active and empty.
func (s *GameService) LeaveSession(sessionID string, userID int64) (bool, error) {
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := s.store.GetGameSession(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, errs.NotFoundf("session %s", sessionID)
		}
		return false, errs.Internal(err)
	}

	participant, err := s.store.GetGameParticipant(sessionID, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return false, nil
		}
		return false, errs.Internal(err)
	}
	if participant.LeftAt != nil {
		return false, nil
	}

	now := time.Now()
	participant.LeftAt = &now
	if err := s.store.SaveGameParticipant(participant); err != nil {
		return false, errs.Internal(err)
	}

	s.emitter.EmitToRoom(sess.RoomID, EventPlayerLeft, map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	})

	if sess.Status == models.SessionActive {
		open, err := s.store.CountOpenGameParticipants(sessionID)
		if err != nil {
			logger.Log.Warnw("failed to count open participants", "session_id", sessionID, "error", err)
			return true, nil
		}
		if open == 0 {
			if err := s.store.CompleteSession(sessionID, now); err != nil {
				logger.Log.Warnw("failed to auto-complete empty session", "session_id", sessionID, "error", err)
				return true, nil
			}
			s.emitter.EmitToRoom(sess.RoomID, EventGameEnded, map[string]interface{}{
				"session_id": sessionID,
				"ended_by":   userID,
				"reason":     "empty",
			})
			logger.Log.Infow("session completed after last player left", "session_id", sessionID)
		}
	}
	return true, nil
}

// EndSession force-ends an active session. Only the creator or the room
// host may end it; every still-open participant row is closed with it.
func (s *GameService) EndSession(sessionID string, actorID int64) error {
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := s.store.GetGameSession(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.NotFoundf("session %s", sessionID)
		}
		return errs.Internal(err)
	}
	room, err := s.store.GetRoom(sess.RoomID)
	if err != nil {
		return errs.Internal(err)
	}
	if actorID != sess.CreatedBy && actorID != room.HostID {
		return errs.Authorizationf("only the session creator or room host may end the game")
	}
	if sess.Status != models.SessionActive {
		return errs.Conflictf("session already ended")
	}

	if err := s.store.CompleteSession(sessionID, time.Now()); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.Conflictf("session already ended")
		}
		return errs.Internal(err)
	}

	s.emitter.EmitToRoom(sess.RoomID, EventGameEnded, map[string]interface{}{
		"session_id": sessionID,
		"ended_by":   actorID,
		"reason":     "ended",
	})
	return nil
}

// AddScore applies a signed delta to the caller's score. The contract is
// additive, never an absolute overwrite, so concurrent score events commute
// regardless of arrival order.
func (s *GameService) AddScore(sessionID string, userID int64, delta int) (*models.ScoreUpdate, error) {
	unlock := s.locks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := s.store.GetGameSession(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("session %s", sessionID)
		}
		return nil, errs.Internal(err)
	}
	if sess.Status != models.SessionActive {
		return nil, errs.NotFoundf("no active session %s", sessionID)
	}

	score, err := s.store.AddScore(sessionID, userID, delta)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return nil, errs.NotFoundf("no open participant for user %d", userID)
		}
		return nil, errs.Internal(err)
	}

	update := &models.ScoreUpdate{
		SessionID: sessionID,
		UserID:    userID,
		Delta:     delta,
		Score:     score,
	}
	s.emitter.EmitToRoom(sess.RoomID, EventScoreUpdated, update)
	return update, nil
}

// Invite notifies a room member about a running game. Purely a notify
// action: no state changes, and the invitee still has to call JoinSession.
func (s *GameService) Invite(sessionID string, inviterID, inviteeID int64) error {
	sess, err := s.store.GetGameSession(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.NotFoundf("session %s", sessionID)
		}
		return errs.Internal(err)
	}
	if sess.Status != models.SessionActive {
		return errs.Conflictf("session is not active")
	}

	inviter, err := s.store.GetGameParticipant(sessionID, inviterID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return errs.Authorizationf("must be in the game to invite")
		}
		return errs.Internal(err)
	}
	if inviter.LeftAt != nil {
		return errs.Authorizationf("must be in the game to invite")
	}

	inRoom, err := s.activeRoomParticipant(sess.RoomID, inviteeID)
	if err != nil {
		return err
	}
	if !inRoom {
		return errs.Authorizationf("invitee is not in the room")
	}
	invitee, err := s.store.GetGameParticipant(sessionID, inviteeID)
	if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return errs.Internal(err)
	}
	if invitee != nil && invitee.LeftAt == nil {
		return errs.Conflictf("already in the game")
	}

	game, err := s.store.GetGame(sess.GameID)
	if err != nil {
		return errs.Internal(err)
	}

	payload := map[string]interface{}{
		"session_id": sessionID,
		"room_id":    sess.RoomID,
		"game_id":    sess.GameID,
		"inviter_id": inviterID,
	}
	s.notifier.Notify(inviteeID, NotifyGameInvite, "Game invite", game.Name, payload)
	s.emitter.EmitToUser(inviteeID, EventGameInvite, payload)
	return nil
}
