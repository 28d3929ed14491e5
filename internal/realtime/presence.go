package realtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
)

// PresencePublisher recomputes and broadcasts the list of distinct users in a
// room.
type PresencePublisher struct {
	registry *Registry
	store    Store
	mirror   PresenceMirror
}

func NewPresencePublisher(registry *Registry, store Store, mirror PresenceMirror) *PresencePublisher {
	return &PresencePublisher{
		registry: registry,
		store:    store,
		mirror:   mirror,
	}
}

// Publish sends presence:update to every subscriber of roomID and returns the
// usernames it sent. The room's emit lock is held for the whole computation
// so updates reach subscribers in the order the membership changed.
func (p *PresencePublisher) Publish(ctx context.Context, roomID string) ([]string, error) {
	unlock := p.registry.LockRoom(roomID)
	defer unlock()

	subscribers, usernames, err := p.snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}

	users := make([]PresenceUser, 0, len(usernames))
	for _, name := range usernames {
		users = append(users, PresenceUser{Username: name})
	}

	payload, err := encodeEvent(EventPresenceUpdate, "", roomID, users)
	if err != nil {
		return nil, err
	}

	for _, s := range subscribers {
		s.Send(payload)
	}

	p.mirrorPresence(ctx, roomID, usernames)

	return usernames, nil
}

// Refresh rewrites the mirrored presence of every room with subscribers, so
// the mirror does not expire while a room's membership stays unchanged.
// Nothing is sent to clients.
func (p *PresencePublisher) Refresh(ctx context.Context) {
	if p.mirror == nil {
		return
	}

	for _, roomID := range p.registry.Rooms() {
		p.refreshRoom(ctx, roomID)
	}
}

// Run calls Refresh every interval until ctx is done.
func (p *PresencePublisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

func (p *PresencePublisher) refreshRoom(ctx context.Context, roomID string) {
	unlock := p.registry.LockRoom(roomID)
	defer unlock()

	_, usernames, err := p.snapshot(ctx, roomID)
	if err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("failed to refresh presence for %s: %v", roomID, err))
		return
	}

	p.mirrorPresence(ctx, roomID, usernames)
}

// snapshot returns the live subscribers of roomID and their distinct
// usernames, sorted. Callers hold the room's emit lock.
func (p *PresencePublisher) snapshot(ctx context.Context, roomID string) ([]*Session, []string, error) {
	subscribers := live(p.registry.Subscribers(roomID))

	seen := make(map[string]struct{}, len(subscribers))
	userIDs := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		userID := s.UserID()
		if userID == "" {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		userIDs = append(userIDs, userID)
	}

	usernames := make([]string, 0, len(userIDs))
	if len(userIDs) > 0 {
		names, err := p.store.ListUsernames(ctx, userIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve usernames: %w", err)
		}
		for _, userID := range userIDs {
			name, ok := names[userID]
			if !ok || name == "" {
				name = userID
			}
			usernames = append(usernames, name)
		}
	}
	sort.Strings(usernames)

	return subscribers, usernames, nil
}

func (p *PresencePublisher) mirrorPresence(ctx context.Context, roomID string, usernames []string) {
	if p.mirror == nil {
		return
	}

	if err := p.mirror.SetPresence(ctx, roomID, usernames); err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("failed to mirror presence for %s: %v", roomID, err))
	}
}

func live(sessions []*Session) []*Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.State() != StateClosed {
			out = append(out, s)
		}
	}
	return out
}
