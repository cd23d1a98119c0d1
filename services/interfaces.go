// services/interfaces.go
package services

// Realtime event names fanned out by the managers after committed
// mutations. Direct events go to one user's connections, room events to
// every connection subscribed to the room channel.
const (
	EventRoomData       = "room-data"
	EventRoomUpdated    = "room-updated"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventSessionCreated = "game-session-created"
	EventPlayerJoined   = "game-player-joined"
	EventPlayerLeft     = "game-player-left"
	EventGameEnded      = "game-ended"
	EventScoreUpdated   = "game-score-updated"
	EventGameInvite     = "game-invite"
	EventNotification   = "notification"
)

// Notification types. Users can opt out per type.
const (
	NotifyJoinRequest         = "join-request"
	NotifyJoinRequestAccepted = "join-request-accepted"
	NotifyJoinRequestRejected = "join-request-rejected"
	NotifyGameInvite          = "game-invite"
)

// Emitter is the managers' view of the broadcast gateway. Delivery is
// best-effort and must never block or fail the mutation that triggered it;
// implementations log and swallow transport errors. Defined here, not in
// the gateway package, to keep the dependency pointing one way.
type Emitter interface {
	// EmitToRoom delivers to every connection subscribed to the room.
	EmitToRoom(roomID, event string, payload interface{})
	// EmitToRoomExcept skips the acting user's own connections.
	EmitToRoomExcept(roomID string, exceptUserID int64, event string, payload interface{})
	// EmitToUser delivers to all of one user's connections and reports
	// whether any were live. A presence hint, not a delivery guarantee.
	EmitToUser(userID int64, event string, payload interface{}) bool
}

// Notifier is the fire-and-forget notification hook injected into both
// managers so neither reaches into the other's module.
type Notifier interface {
	Notify(userID int64, ntype, title, message string, data map[string]interface{})
}
