// gateway/registry.go
package gateway

import (
	"sync"
)

// Registry is the live-connection directory: user -> connections,
// connection -> user, and per-connection room subscriptions. It reflects
// transport presence only; membership truth stays in the participant rows.
// All maps are guarded by one lock since connects, disconnects and sends
// arrive from many handler goroutines at once.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client
	users map[int64]map[string]*Client
	rooms map[string]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Client),
		users: make(map[int64]map[string]*Client),
		rooms: make(map[string]map[string]*Client),
	}
}

// Add registers a connection and reports whether the user was offline
// before it (their first live connection).
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
	userConns, ok := r.users[c.UserID]
	if !ok {
		userConns = make(map[string]*Client)
		r.users[c.UserID] = userConns
	}
	first := len(userConns) == 0
	userConns[c.ID] = c
	return first
}

// Remove prunes a connection from every index and returns the rooms it was
// subscribed to plus whether the user is now offline.
func (r *Registry) Remove(c *Client) (subscribed []string, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c.ID)
	if userConns, ok := r.users[c.UserID]; ok {
		delete(userConns, c.ID)
		if len(userConns) == 0 {
			delete(r.users, c.UserID)
			offline = true
		}
	}
	for roomID := range c.rooms {
		subscribed = append(subscribed, roomID)
		if roomConns, ok := r.rooms[roomID]; ok {
			delete(roomConns, c.ID)
			if len(roomConns) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	c.rooms = make(map[string]bool)
	return subscribed, offline
}

func (r *Registry) Subscribe(c *Client, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomConns, ok := r.rooms[roomID]
	if !ok {
		roomConns = make(map[string]*Client)
		r.rooms[roomID] = roomConns
	}
	roomConns[c.ID] = c
	c.rooms[roomID] = true
}

func (r *Registry) Unsubscribe(c *Client, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(c.rooms, roomID)
	if roomConns, ok := r.rooms[roomID]; ok {
		delete(roomConns, c.ID)
		if len(roomConns) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// RoomClients returns a snapshot of the connections subscribed to a room.
func (r *Registry) RoomClients(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.rooms[roomID]))
	for _, c := range r.rooms[roomID] {
		clients = append(clients, c)
	}
	return clients
}

// UserClients returns a snapshot of one user's live connections.
func (r *Registry) UserClients(userID int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.users[userID]))
	for _, c := range r.users[userID] {
		clients = append(clients, c)
	}
	return clients
}

// OnlineUsers counts users with at least one live connection.
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
