// gateway/protocol.go
package gateway

import (
	"encoding/json"
)

// Inbound actions a connection may send over the realtime channel. They
// delegate to the same managers as the HTTP routes so the two entry points
// stay consistent.
const (
	ActionSubscribeRoom = "subscribe-room"
	ActionLeaveRoom     = "leave-room"
	ActionCreateGame    = "create-game"
	ActionJoinGame      = "join-game"
	ActionLeaveGame     = "leave-game"
	ActionEndGame       = "end-game"
	ActionUpdateScore   = "update-score"
	ActionInvite        = "invite"
)

// Envelope is the outbound frame.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Inbound is the client frame; Data is decoded per action.
type Inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

// errorEvent names the failure after the action that caused it, e.g.
// "join-game-error". Errors never cross the socket as closes.
func errorEvent(action string) string {
	return action + "-error"
}
