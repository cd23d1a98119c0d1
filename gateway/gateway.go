// gateway/gateway.go
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/monitor"
	"github.com/wfunc/partyserver/services"
)

// RoomAPI is the slice of the room membership manager the gateway drives.
// Defined on the consumer side to keep the dependency pointing one way.
type RoomAPI interface {
	RoomDetails(roomID string) (*models.RoomDetails, error)
	JoinRoom(userID int64, roomID string) (*models.JoinReceipt, error)
	LeaveRoom(userID int64, roomID, reason string) (bool, error)
	CanUserJoinRoom(userID int64, roomID string) (bool, error)
	ActiveRoomIDs(userID int64) ([]string, error)
}

// GameAPI is the slice of the game session manager reachable over the
// realtime channel.
type GameAPI interface {
	CreateSession(gameID, roomID string, createdBy int64) (*models.SessionDetail, error)
	JoinSession(sessionID string, userID int64) (*models.SessionDetail, error)
	LeaveSession(sessionID string, userID int64) (bool, error)
	EndSession(sessionID string, actorID int64) error
	AddScore(sessionID string, userID int64, delta int) (*models.ScoreUpdate, error)
	Invite(sessionID string, inviterID, inviteeID int64) error
}

// Gateway owns the only mutable in-memory state in the system: the
// connection registry. It bridges the stateless managers to live,
// possibly multi-device users and fans committed events out to exactly the
// subscribed connections. It implements services.Emitter.
type Gateway struct {
	registry *Registry
	rooms    RoomAPI
	games    GameAPI
	metrics  *monitor.Monitor
	upgrader websocket.Upgrader
}

func New(metrics *monitor.Monitor) *Gateway {
	return &Gateway{
		registry: NewRegistry(),
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Bind attaches the managers. The gateway is constructed first because the
// managers need it as their event emitter.
func (g *Gateway) Bind(rooms RoomAPI, games GameAPI) {
	g.rooms = rooms
	g.games = games
}

// OnlineUsers reports transport presence for the metrics sampler.
func (g *Gateway) OnlineUsers() int {
	return g.registry.OnlineUsers()
}

// HandleWS upgrades an authenticated request into a registered connection.
// Identity was established by the caller; the gateway performs no
// credential verification of its own.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infow("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(uuid.New().String(), userID, conn, g)
	first := g.registry.Add(client)
	if first {
		g.metrics.IncOnlineUsers()
	}
	logger.Log.Infow("connection established",
		"conn_id", client.ID, "user_id", userID, "remote", conn.RemoteAddr())

	go client.writePump()
	go client.readPump()
}

// --- services.Emitter ---

func (g *Gateway) EmitToRoom(roomID, event string, payload interface{}) {
	g.emitToRoom(roomID, -1, event, payload)
}

func (g *Gateway) EmitToRoomExcept(roomID string, exceptUserID int64, event string, payload interface{}) {
	g.emitToRoom(roomID, exceptUserID, event, payload)
}

// emitToRoom is called while the manager still holds the entity lock, so
// frames enter each subscriber's FIFO buffer in commit order.
func (g *Gateway) emitToRoom(roomID string, exceptUserID int64, event string, payload interface{}) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Warnw("failed to encode room event", "event", event, "error", err)
		return
	}

	clients := g.registry.RoomClients(roomID)
	delivered := 0
	for _, c := range clients {
		if c.UserID == exceptUserID {
			continue
		}
		if c.trySend(frame) {
			delivered++
		} else {
			g.metrics.IncBroadcastErrors()
			logger.Log.Warnw("dropped room event for slow connection",
				"event", event, "room_id", roomID, "conn_id", c.ID)
		}
	}
	g.metrics.IncEventsBroadcast()
	g.metrics.ObserveFanout(delivered)
}

// EmitToUser reaches every live connection of one user and reports whether
// any existed. A cheap presence check, not a delivery guarantee.
func (g *Gateway) EmitToUser(userID int64, event string, payload interface{}) bool {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Warnw("failed to encode user event", "event", event, "error", err)
		return false
	}

	clients := g.registry.UserClients(userID)
	for _, c := range clients {
		if !c.trySend(frame) {
			g.metrics.IncBroadcastErrors()
			logger.Log.Warnw("dropped user event for slow connection",
				"event", event, "user_id", userID, "conn_id", c.ID)
		}
	}
	g.metrics.IncEventsBroadcast()
	return len(clients) > 0
}

// sendTo answers the acting connection directly (snapshots, errors).
func (g *Gateway) sendTo(c *Client, event string, payload interface{}) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		logger.Log.Warnw("failed to encode direct event", "event", event, "error", err)
		return
	}
	if !c.trySend(frame) {
		g.metrics.IncBroadcastErrors()
	}
}

func (g *Gateway) sendError(c *Client, action string, err error) {
	g.sendTo(c, errorEvent(action), map[string]string{"message": err.Error()})
}

// --- inbound dispatch ---

type roomRef struct {
	RoomID string `json:"room_id"`
}

type sessionRef struct {
	SessionID string `json:"session_id"`
}

type createGameReq struct {
	GameID string `json:"game_id"`
	RoomID string `json:"room_id"`
}

type scoreReq struct {
	SessionID string `json:"session_id"`
	Delta     int    `json:"delta"`
}

type inviteReq struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
}

func (g *Gateway) handleMessage(c *Client, raw []byte) {
	g.metrics.IncMessagesReceived()

	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Log.Infow("malformed frame", "conn_id", c.ID, "error", err)
		return
	}

	switch msg.Action {
	case ActionSubscribeRoom:
		var req roomRef
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			g.handleSubscribeRoom(c, req.RoomID)
		}
	case ActionLeaveRoom:
		var req roomRef
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			g.handleLeaveRoom(c, req.RoomID)
		}
	case ActionCreateGame:
		var req createGameReq
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if _, err := g.games.CreateSession(req.GameID, req.RoomID, c.UserID); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	case ActionJoinGame:
		var req sessionRef
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if _, err := g.games.JoinSession(req.SessionID, c.UserID); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	case ActionLeaveGame:
		var req sessionRef
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if _, err := g.games.LeaveSession(req.SessionID, c.UserID); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	case ActionEndGame:
		var req sessionRef
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if err := g.games.EndSession(req.SessionID, c.UserID); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	case ActionUpdateScore:
		var req scoreReq
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if _, err := g.games.AddScore(req.SessionID, c.UserID, req.Delta); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	case ActionInvite:
		var req inviteReq
		if err := json.Unmarshal(msg.Data, &req); err == nil {
			if err := g.games.Invite(req.SessionID, c.UserID, req.UserID); err != nil {
				g.sendError(c, msg.Action, err)
			}
		}
	default:
		logger.Log.Infow("unknown action", "action", msg.Action, "conn_id", c.ID)
	}
}

// handleSubscribeRoom mirrors the HTTP join so both entry points settle to
// the same persisted membership, then delivers the private room-data
// snapshot to the subscribing connection.
func (g *Gateway) handleSubscribeRoom(c *Client, roomID string) {
	ok, err := g.rooms.CanUserJoinRoom(c.UserID, roomID)
	if err != nil {
		g.sendError(c, ActionSubscribeRoom, err)
		return
	}
	if !ok {
		g.sendTo(c, errorEvent(ActionSubscribeRoom),
			map[string]string{"message": "room is locked; request to join or wait for an invite"})
		return
	}
	if _, err := g.rooms.JoinRoom(c.UserID, roomID); err != nil {
		g.sendError(c, ActionSubscribeRoom, err)
		return
	}

	g.registry.Subscribe(c, roomID)

	details, err := g.rooms.RoomDetails(roomID)
	if err != nil {
		g.sendError(c, ActionSubscribeRoom, err)
		return
	}
	g.sendTo(c, services.EventRoomData, details)
}

func (g *Gateway) handleLeaveRoom(c *Client, roomID string) {
	g.registry.Unsubscribe(c, roomID)
	if _, err := g.rooms.LeaveRoom(c.UserID, roomID, "left"); err != nil {
		g.sendError(c, ActionLeaveRoom, err)
	}
}

// handleDisconnect settles an abrupt connection loss to the same persisted
// state as an explicit leave. Membership is only settled once the user's
// last connection is gone; another device still subscribed keeps them in.
func (g *Gateway) handleDisconnect(c *Client) {
	_, offline := g.registry.Remove(c)
	c.closeSend()

	logger.Log.Infow("connection closed", "conn_id", c.ID, "user_id", c.UserID)
	if !offline {
		return
	}
	g.metrics.DecOnlineUsers()

	roomIDs, err := g.rooms.ActiveRoomIDs(c.UserID)
	if err != nil {
		logger.Log.Warnw("failed to list rooms for disconnect settlement",
			"user_id", c.UserID, "error", err)
		return
	}
	for _, roomID := range roomIDs {
		if _, err := g.rooms.LeaveRoom(c.UserID, roomID, "disconnected"); err != nil {
			logger.Log.Warnw("disconnect settlement failed",
				"user_id", c.UserID, "room_id", roomID, "error", err)
		}
	}
}
