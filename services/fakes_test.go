package services

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/models"
	"github.com/wfunc/partyserver/persistence"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// memStore is an in-memory persistence.Store for manager tests. It mimics
// the real store's contract: lookups return copies, unique indexes reject
// duplicates, CompleteSession only transitions active sessions.
type memStore struct {
	mu sync.Mutex

	rooms            map[string]*models.Room
	roomParticipants map[string]*models.RoomParticipant
	joinRequests     map[string]*models.RoomJoinRequest
	games            map[string]*models.Game
	sessions         map[string]*models.GameSession
	gameParticipants map[string]*models.GameParticipant
	notifications    []models.Notification
	prefs            map[string]bool
	media            []models.MediaUpload

	nextID uint
}

func newMemStore() *memStore {
	return &memStore{
		rooms:            make(map[string]*models.Room),
		roomParticipants: make(map[string]*models.RoomParticipant),
		joinRequests:     make(map[string]*models.RoomJoinRequest),
		games:            make(map[string]*models.Game),
		sessions:         make(map[string]*models.GameSession),
		gameParticipants: make(map[string]*models.GameParticipant),
		prefs:            make(map[string]bool),
	}
}

func pairKey(a string, b int64) string { return fmt.Sprintf("%s/%d", a, b) }

func (m *memStore) CreateRoomWithHost(room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.HostID == room.HostID && r.Name == room.Name {
			return persistence.ErrDuplicateEntry
		}
	}
	room.CreatedAt = time.Now()
	cp := *room
	m.rooms[room.ID] = &cp
	host := &models.RoomParticipant{
		ID:       m.allocID(),
		RoomID:   room.ID,
		UserID:   room.HostID,
		IsActive: true,
		JoinedAt: room.CreatedAt,
	}
	m.roomParticipants[pairKey(room.ID, room.HostID)] = host
	return nil
}

func (m *memStore) GetRoom(roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) RoomNameTaken(hostID int64, name string, excludeRoomID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.HostID == hostID && r.Name == name && r.ID != excludeRoomID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateRoomFields(roomID string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	if v, ok := fields["name"]; ok {
		r.Name = v.(string)
	}
	if v, ok := fields["visibility"]; ok {
		r.Visibility = v.(string)
	}
	if v, ok := fields["locked"]; ok {
		r.Locked = v.(bool)
	}
	return nil
}

func (m *memStore) GetRoomParticipant(roomID string, userID int64) (*models.RoomParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roomParticipants[pairKey(roomID, userID)]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreateRoomParticipant(p *models.RoomParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(p.RoomID, p.UserID)
	if _, exists := m.roomParticipants[key]; exists {
		return persistence.ErrDuplicateEntry
	}
	p.ID = m.allocID()
	cp := *p
	m.roomParticipants[key] = &cp
	return nil
}

func (m *memStore) SaveRoomParticipant(p *models.RoomParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.roomParticipants[pairKey(p.RoomID, p.UserID)] = &cp
	return nil
}

func (m *memStore) ActiveParticipants(roomID string) ([]models.RoomParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoomParticipant
	for _, p := range m.roomParticipants {
		if p.RoomID == roomID && p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memStore) CountActiveParticipants(roomID string) (int64, error) {
	list, _ := m.ActiveParticipants(roomID)
	return int64(len(list)), nil
}

func (m *memStore) ActiveRoomIDs(userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.roomParticipants {
		if p.UserID == userID && p.IsActive {
			out = append(out, p.RoomID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) GetJoinRequest(id string) (*models.RoomJoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.joinRequests[id]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetJoinRequestByStatus(roomID string, userID int64, status string) (*models.RoomJoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.joinRequests {
		if r.RoomID == roomID && r.UserID == userID && r.Status == status {
			cp := *r
			return &cp, nil
		}
	}
	return nil, persistence.ErrRecordNotFound
}

func (m *memStore) CreateJoinRequest(r *models.RoomJoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now()
	cp := *r
	m.joinRequests[r.ID] = &cp
	return nil
}

func (m *memStore) UpdateJoinRequestStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.joinRequests[id]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	r.Status = status
	return nil
}

func (m *memStore) DeleteJoinRequest(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joinRequests, id)
	return nil
}

func (m *memStore) GetGame(id string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) GetGameSession(id string) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ActiveSessionByRoomAndGame(roomID, gameID string) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RoomID == roomID && s.GameID == gameID && s.Status == models.SessionActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, persistence.ErrRecordNotFound
}

func (m *memStore) ActiveSessionsByRoom(roomID string) ([]models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GameSession
	for _, s := range m.sessions {
		if s.RoomID == roomID && s.Status == models.SessionActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) CreateSessionWithCreator(sess *models.GameSession, creator *models.GameParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc := *sess
	m.sessions[sess.ID] = &sc
	creator.ID = m.allocID()
	cc := *creator
	m.gameParticipants[pairKey(sess.ID, creator.UserID)] = &cc
	return nil
}

func (m *memStore) CompleteSession(sessionID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != models.SessionActive {
		return persistence.ErrRecordNotFound
	}
	s.Status = models.SessionCompleted
	s.EndedAt = &endedAt
	for _, p := range m.gameParticipants {
		if p.SessionID == sessionID && p.LeftAt == nil {
			left := endedAt
			p.LeftAt = &left
		}
	}
	return nil
}

func (m *memStore) GetGameParticipant(sessionID string, userID int64) (*models.GameParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.gameParticipants[pairKey(sessionID, userID)]
	if !ok {
		return nil, persistence.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreateGameParticipant(p *models.GameParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(p.SessionID, p.UserID)
	if _, exists := m.gameParticipants[key]; exists {
		return persistence.ErrDuplicateEntry
	}
	p.ID = m.allocID()
	cp := *p
	m.gameParticipants[key] = &cp
	return nil
}

func (m *memStore) SaveGameParticipant(p *models.GameParticipant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.gameParticipants[pairKey(p.SessionID, p.UserID)] = &cp
	return nil
}

func (m *memStore) OpenGameParticipants(sessionID string) ([]models.GameParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GameParticipant
	for _, p := range m.gameParticipants {
		if p.SessionID == sessionID && p.LeftAt == nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *memStore) CountOpenGameParticipants(sessionID string) (int64, error) {
	list, _ := m.OpenGameParticipants(sessionID)
	return int64(len(list)), nil
}

func (m *memStore) AddScore(sessionID string, userID int64, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.gameParticipants[pairKey(sessionID, userID)]
	if !ok || p.LeftAt != nil {
		return 0, persistence.ErrRecordNotFound
	}
	p.Score += delta
	return p.Score, nil
}

func (m *memStore) CreateNotification(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memStore) NotificationsForUser(userID int64, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserID == userID {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *memStore) NotificationTypeEnabled(userID int64, ntype string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled, ok := m.prefs[pairKey(ntype, userID)]; ok {
		return enabled, nil
	}
	return true, nil
}

func (m *memStore) DeleteReadNotificationsBefore(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.Notification
	var deleted int64
	for _, n := range m.notifications {
		if n.Read && n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

func (m *memStore) CreateMediaUpload(u *models.MediaUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = append(m.media, *u)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) allocID() uint {
	m.nextID++
	return m.nextID
}

// recordingEmitter captures every emitted event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
	online map[int64]bool
}

type emittedEvent struct {
	RoomID  string
	UserID  int64
	Except  int64
	Event   string
	Payload interface{}
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{online: make(map[int64]bool)}
}

func (e *recordingEmitter) EmitToRoom(roomID, event string, payload interface{}) {
	e.record(emittedEvent{RoomID: roomID, Except: -1, Event: event, Payload: payload})
}

func (e *recordingEmitter) EmitToRoomExcept(roomID string, exceptUserID int64, event string, payload interface{}) {
	e.record(emittedEvent{RoomID: roomID, Except: exceptUserID, Event: event, Payload: payload})
}

func (e *recordingEmitter) EmitToUser(userID int64, event string, payload interface{}) bool {
	e.record(emittedEvent{UserID: userID, Event: event, Payload: payload})
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online[userID]
}

func (e *recordingEmitter) record(ev emittedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) eventsNamed(name string) []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emittedEvent
	for _, ev := range e.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

// recordingNotifier captures dispatcher calls without touching the queue.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	UserID int64
	Type   string
	Title  string
	Data   map[string]interface{}
}

func (n *recordingNotifier) Notify(userID int64, ntype, title, message string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{UserID: userID, Type: ntype, Title: title, Data: data})
}

func (n *recordingNotifier) callsOfType(ntype string) []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifyCall
	for _, c := range n.calls {
		if c.Type == ntype {
			out = append(out, c)
		}
	}
	return out
}
