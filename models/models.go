// models/models.go
package models

import (
	"time"
)

// RoomPatch carries the host-editable fields; nil means "leave unchanged".
type RoomPatch struct {
	Name       *string `json:"name"`
	Visibility *string `json:"visibility"`
	Locked     *bool   `json:"is_locked"`
}

// ParticipantInfo 活跃成员视图
type ParticipantInfo struct {
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// PlayerScore 会话内玩家视图
type PlayerScore struct {
	UserID   int64     `json:"user_id"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joined_at"`
}

// SessionDetail is the transport-neutral aggregate for one game session.
type SessionDetail struct {
	ID        string        `json:"id"`
	GameID    string        `json:"game_id"`
	RoomID    string        `json:"room_id"`
	Status    string        `json:"status"`
	CreatedBy int64         `json:"created_by"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Players   []PlayerScore `json:"players"`
}

// RoomDetails is the aggregate returned by room lookups and pushed to
// freshly subscribed connections as the room-data snapshot.
type RoomDetails struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	HostID       int64             `json:"host_id"`
	Visibility   string            `json:"visibility"`
	Locked       bool              `json:"is_locked"`
	CreatedAt    time.Time         `json:"created_at"`
	Participants []ParticipantInfo `json:"participants"`
	Sessions     []SessionDetail   `json:"sessions"`
}

// JoinReceipt is returned by a room join; JoinedAt is the effective join
// time, which for an idempotent re-join is the original one.
type JoinReceipt struct {
	RoomID   string    `json:"room_id"`
	UserID   int64     `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// ScoreUpdate is broadcast after an additive score change.
type ScoreUpdate struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Delta     int    `json:"delta"`
	Score     int    `json:"score"`
}

// ServerStats are the counters exposed over the admin RPC endpoint.
type ServerStats struct {
	Rooms              int64 `json:"rooms"`
	ActiveParticipants int64 `json:"active_participants"`
	ActiveSessions     int64 `json:"active_sessions"`
	Notifications      int64 `json:"notifications"`
}
