// gateway/client.go
package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/partyserver/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound buffer per connection. Fan-out never blocks on a slow
	// consumer; overflow is dropped and logged.
	sendBuffer = 64
)

// Client is one live websocket connection bound to an authenticated user.
type Client struct {
	ID     string
	UserID int64

	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway

	// closeMu guards closed. A room broadcast may hold a registry snapshot
	// taken before a concurrent disconnect removed this client; the flag
	// keeps such a stale sender off the closed channel.
	closeMu sync.Mutex
	closed  bool

	// rooms is this connection's subscription set, guarded by the
	// registry lock.
	rooms map[string]bool
}

func newClient(id string, userID int64, conn *websocket.Conn, gw *Gateway) *Client {
	return &Client{
		ID:      id,
		UserID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		gateway: gw,
		rooms:   make(map[string]bool),
	}
}

// trySend queues a frame without blocking. Returns false on overflow or
// once the connection has been torn down.
func (c *Client) trySend(frame []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend shuts the outbound channel exactly once; trySend refuses
// frames from then on. Only the disconnect path calls this.
func (c *Client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump relays inbound frames to the gateway until the connection
// drops, then triggers disconnect settlement.
func (c *Client) readPump() {
	defer func() {
		c.gateway.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Infow("connection closed unexpectedly",
					"conn_id", c.ID, "user_id", c.UserID, "error", err)
			}
			return
		}
		c.gateway.handleMessage(c, raw)
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. Closing the send channel ends it.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
