// models/gorm_models.go
package models

import (
	"time"
)

const (
	RoomVisibilityPublic  = "public"
	RoomVisibilityPrivate = "private"
)

const (
	JoinRequestPending  = "pending"
	JoinRequestAccepted = "accepted"
	JoinRequestRejected = "rejected"
)

const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

const (
	MediaKindScreenshot = "screenshot"
	MediaKindRecording  = "recording"
)

// Room 房间模型. The host always holds an active participant row; the
// (host_id, name) pair is unique. Rooms are never hard-deleted.
type Room struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null;uniqueIndex:idx_rooms_host_name"`
	HostID     int64  `gorm:"not null;uniqueIndex:idx_rooms_host_name;index"`
	Visibility string `gorm:"not null;default:'public'"`
	Locked     bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoomParticipant holds exactly one row per (room, user) pair for the life
// of the room; leave flips is_active instead of deleting, rejoin flips it
// back instead of inserting.
type RoomParticipant struct {
	ID       uint   `gorm:"primaryKey"`
	RoomID   string `gorm:"not null;uniqueIndex:idx_participants_room_user"`
	UserID   int64  `gorm:"not null;uniqueIndex:idx_participants_room_user;index"`
	IsActive bool   `gorm:"not null;default:true"`
	JoinedAt time.Time
	LeftAt   *time.Time
}

// RoomJoinRequest is the admission ticket for locked rooms. An accepted
// request is deleted the moment it is redeemed by an actual join; rejected
// ones stay behind as audit rows.
type RoomJoinRequest struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string `gorm:"not null;index:idx_requests_room_user"`
	UserID    int64  `gorm:"not null;index:idx_requests_room_user"`
	Status    string `gorm:"not null;default:'pending'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Game 游戏目录. Read-only catalog entry referenced by sessions.
type Game struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	MinPlayers int    `gorm:"not null;default:1"`
	MaxPlayers int    `gorm:"not null"`
	Enabled    bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
}

// GameSession runs inside a room. At most one active session per
// (room, game) pair; completed/cancelled are terminal.
type GameSession struct {
	ID        string `gorm:"primaryKey"`
	GameID    string `gorm:"not null;index:idx_sessions_room_game"`
	RoomID    string `gorm:"not null;index:idx_sessions_room_game"`
	Status    string `gorm:"not null;default:'active'"`
	CreatedBy int64  `gorm:"not null"`
	StartedAt time.Time
	EndedAt   *time.Time
}

// GameParticipant keeps one row per (session, user); leaving sets left_at
// and rejoining reopens the row with its accumulated score.
type GameParticipant struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"not null;uniqueIndex:idx_game_participants_session_user"`
	UserID    int64  `gorm:"not null;uniqueIndex:idx_game_participants_session_user;index"`
	Score     int    `gorm:"not null;default:0"`
	JoinedAt  time.Time
	LeftAt    *time.Time
}

// Notification 通知记录. Delivery beyond this row is best-effort.
type Notification struct {
	ID        string `gorm:"primaryKey"`
	UserID    int64  `gorm:"not null;index"`
	Type      string `gorm:"not null"`
	Title     string `gorm:"not null"`
	Message   string
	Data      map[string]interface{} `gorm:"type:jsonb;serializer:json"`
	Read      bool                   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

// NotificationPreference records a per-type opt-out. Absence means enabled.
type NotificationPreference struct {
	ID      uint   `gorm:"primaryKey"`
	UserID  int64  `gorm:"not null;uniqueIndex:idx_prefs_user_type"`
	Type    string `gorm:"not null;uniqueIndex:idx_prefs_user_type"`
	Enabled bool   `gorm:"not null;default:true"`
}

// MediaUpload 媒体上传记录 (screenshots/recordings pushed to object storage).
type MediaUpload struct {
	ID          string `gorm:"primaryKey"`
	UserID      int64  `gorm:"not null;index"`
	RoomID      string `gorm:"index"`
	Kind        string `gorm:"not null"`
	ObjectKey   string `gorm:"not null"`
	URL         string `gorm:"not null"`
	ContentType string
	Size        int64
	CreatedAt   time.Time
}
