package realtime

import (
	"errors"
	"sync"
)

var ErrSessionClosed = errors.New("session is closed")

type room struct {
	mu          sync.Mutex
	closed      bool
	subscribers map[string]*Session
}

// Registry maps room ids to the sessions subscribed to them. Rooms are
// created on first join and dropped when the last subscriber leaves.
//
// Lock order is registry.mu, then room.mu, then the session's own mutex.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room

	emit *keyedMutex
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		emit:  newKeyedMutex(),
	}
}

// Join subscribes s to roomID. It reports whether s was newly added; joining
// twice is a no-op. A closed session cannot join.
func (r *Registry) Join(roomID string, s *Session) (bool, error) {
	for {
		rm := r.openRoom(roomID)

		rm.mu.Lock()
		if rm.closed {
			// emptied between openRoom and here; retry with a fresh room
			rm.mu.Unlock()
			continue
		}

		if _, ok := rm.subscribers[s.ID()]; ok {
			rm.mu.Unlock()
			return false, nil
		}

		if !s.addRoom(roomID) {
			empty := len(rm.subscribers) == 0
			if empty {
				rm.closed = true
			}
			rm.mu.Unlock()
			if empty {
				r.dropRoom(roomID, rm)
			}
			return false, ErrSessionClosed
		}

		rm.subscribers[s.ID()] = s
		rm.mu.Unlock()
		return true, nil
	}
}

// Leave unsubscribes s from roomID and reports whether it was subscribed.
func (r *Registry) Leave(roomID string, s *Session) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		s.removeRoom(roomID)
		return false
	}

	rm.mu.Lock()
	_, subscribed := rm.subscribers[s.ID()]
	delete(rm.subscribers, s.ID())
	s.removeRoom(roomID)
	empty := len(rm.subscribers) == 0
	if empty {
		rm.closed = true
	}
	rm.mu.Unlock()

	if empty {
		r.dropRoom(roomID, rm)
	}

	return subscribed
}

// LeaveAll closes s and removes it from every room it had joined, returning
// the affected room ids.
func (r *Registry) LeaveAll(s *Session) []string {
	rooms, _ := s.close()

	affected := make([]string, 0, len(rooms))
	for _, roomID := range rooms {
		if r.Leave(roomID, s) {
			affected = append(affected, roomID)
		}
	}

	return affected
}

// Subscribers returns a snapshot of the sessions subscribed to roomID.
func (r *Registry) Subscribers(roomID string) []*Session {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	subscribers := make([]*Session, 0, len(rm.subscribers))
	for _, s := range rm.subscribers {
		subscribers = append(subscribers, s)
	}
	return subscribers
}

// Rooms returns the ids of rooms that currently have subscribers.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// LockRoom serializes emissions (message fan-out, presence) for one room.
// The returned func releases the lock.
func (r *Registry) LockRoom(roomID string) func() {
	return r.emit.lock(roomID)
}

func (r *Registry) openRoom(roomID string) *room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[roomID]; ok {
		rm.mu.Lock()
		closed := rm.closed
		rm.mu.Unlock()
		if !closed {
			return rm
		}
	}

	rm := &room{subscribers: make(map[string]*Session)}
	r.rooms[roomID] = rm
	return rm
}

func (r *Registry) dropRoom(roomID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[roomID] == rm {
		delete(r.rooms, roomID)
	}
}
