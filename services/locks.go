// services/locks.go
package services

import (
	"sync"
)

// EntityLocks serializes operations that race on the same persisted entity
// (one room, one session) while letting distinct entities proceed fully in
// parallel. Both managers share one table so a room-scoped game operation
// and a membership change on the same room cannot interleave.
//
// Mutexes are held only for the duration of one manager call; the table
// grows with the set of entities touched since startup, which is bounded by
// the working set of a single process.
type EntityLocks struct {
	mus sync.Map // key -> *sync.Mutex
}

func NewEntityLocks() *EntityLocks {
	return &EntityLocks{}
}

// Lock acquires the mutex for key and returns its unlock function.
func (l *EntityLocks) Lock(key string) func() {
	v, _ := l.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func roomKey(roomID string) string       { return "room/" + roomID }
func sessionKey(sessionID string) string { return "session/" + sessionID }
func roomGameKey(roomID, gameID string) string {
	return "room/" + roomID + "/game/" + gameID
}
