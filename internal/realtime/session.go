package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zveno/chat-service/internal/model"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the per-connection state: identity, joined rooms and lifecycle.
// The joined-room set is only changed by the Registry so that it always
// mirrors the rooms' subscriber sets.
type Session struct {
	id     string
	sender Sender

	mu       sync.Mutex
	state    State
	identity model.Identity
	rooms    map[string]struct{}

	authTimer *time.Timer
}

func NewSession(sender Sender) *Session {
	return &Session{
		id:     uuid.NewString(),
		sender: sender,
		state:  StateUnauthenticated,
		rooms:  make(map[string]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the verified identity once the session is authenticated.
func (s *Session) Identity() (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.state == StateAuthenticated
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.UserID
}

// Rooms returns a snapshot of the joined room ids.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) Send(payload []byte) bool {
	return s.sender.Send(payload)
}

// Authenticate moves an unauthenticated session to authenticated. An already
// authenticated session keeps its identity without re-verifying. On failure
// the session is left unauthenticated; closing it is the caller's job.
func (s *Session) Authenticate(verifier TokenVerifier, credential string) (model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAuthenticated:
		return s.identity, nil
	case StateClosed:
		return model.Identity{}, fmt.Errorf("%w: session is closed", model.ErrUnauthorized)
	}

	if credential == "" {
		return model.Identity{}, fmt.Errorf("%w: credential is missing", model.ErrUnauthorized)
	}

	claims, err := verifier.ValidateAccessToken(credential)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}

	s.identity = model.Identity{UserID: claims.Subject, Email: claims.Email}
	s.state = StateAuthenticated
	s.stopAuthTimer()

	return s.identity, nil
}

func (s *Session) addRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.rooms[roomID] = struct{}{}
	return true
}

func (s *Session) removeRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// close marks the session closed and returns the rooms it was in. Only the
// first call reports them.
func (s *Session) close() ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, false
	}
	s.state = StateClosed
	s.stopAuthTimer()

	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms, true
}

// expire closes the session only if it never authenticated.
func (s *Session) expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnauthenticated {
		return false
	}
	s.state = StateClosed
	s.rooms = make(map[string]struct{})
	s.stopAuthTimer()
	return true
}

// setAuthTimer attaches the timer that expires an unauthenticated session.
// It is stopped as soon as the session authenticates or closes.
func (s *Session) setAuthTimer(t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnauthenticated {
		t.Stop()
		return
	}
	s.authTimer = t
}

// stopAuthTimer must be called with s.mu held.
func (s *Session) stopAuthTimer() {
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
}
