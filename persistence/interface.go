// persistence/interface.go
package persistence

import (
	"errors"
	"time"

	"github.com/wfunc/partyserver/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Store is the durable source of truth for rooms, sessions and their
// participant sets. Multi-row effects (room+host, session+creator,
// end-session fan-close) happen inside one transaction so a partial failure
// can never leave a room or session without its owner row.
type Store interface {
	// Rooms
	CreateRoomWithHost(room *models.Room) error
	GetRoom(roomID string) (*models.Room, error)
	RoomNameTaken(hostID int64, name string, excludeRoomID string) (bool, error)
	UpdateRoomFields(roomID string, fields map[string]interface{}) error

	// Room participants. One row per (room, user); activation flips in place.
	GetRoomParticipant(roomID string, userID int64) (*models.RoomParticipant, error)
	CreateRoomParticipant(p *models.RoomParticipant) error
	SaveRoomParticipant(p *models.RoomParticipant) error
	ActiveParticipants(roomID string) ([]models.RoomParticipant, error)
	CountActiveParticipants(roomID string) (int64, error)
	ActiveRoomIDs(userID int64) ([]string, error)

	// Join requests
	GetJoinRequest(id string) (*models.RoomJoinRequest, error)
	GetJoinRequestByStatus(roomID string, userID int64, status string) (*models.RoomJoinRequest, error)
	CreateJoinRequest(r *models.RoomJoinRequest) error
	UpdateJoinRequestStatus(id, status string) error
	DeleteJoinRequest(id string) error

	// Game catalog
	GetGame(id string) (*models.Game, error)

	// Game sessions
	GetGameSession(id string) (*models.GameSession, error)
	ActiveSessionByRoomAndGame(roomID, gameID string) (*models.GameSession, error)
	ActiveSessionsByRoom(roomID string) ([]models.GameSession, error)
	CreateSessionWithCreator(sess *models.GameSession, creator *models.GameParticipant) error
	CompleteSession(sessionID string, endedAt time.Time) error

	// Game participants
	GetGameParticipant(sessionID string, userID int64) (*models.GameParticipant, error)
	CreateGameParticipant(p *models.GameParticipant) error
	SaveGameParticipant(p *models.GameParticipant) error
	OpenGameParticipants(sessionID string) ([]models.GameParticipant, error)
	CountOpenGameParticipants(sessionID string) (int64, error)
	AddScore(sessionID string, userID int64, delta int) (int, error)

	// Notifications
	CreateNotification(n *models.Notification) error
	NotificationsForUser(userID int64, limit int) ([]models.Notification, error)
	NotificationTypeEnabled(userID int64, ntype string) (bool, error)
	DeleteReadNotificationsBefore(cutoff time.Time) (int64, error)

	// Media
	CreateMediaUpload(m *models.MediaUpload) error

	Close() error
}
