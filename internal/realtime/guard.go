package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zveno/chat-service/internal/model"
)

// AccessGuard resolves a channel's server and the caller's membership in it.
// Nothing is cached: every call goes to the store so role changes apply
// to the very next action.
type AccessGuard struct {
	store Store
}

func NewAccessGuard(store Store) *AccessGuard {
	return &AccessGuard{store: store}
}

func (g *AccessGuard) Authorize(ctx context.Context, channelID, userID string) (*model.Access, error) {
	if _, err := uuid.Parse(channelID); err != nil {
		return nil, model.ErrChannelNotFound
	}

	channel, err := g.store.GetChannel(ctx, channelID)
	if errors.Is(err, model.ErrChannelNotFound) {
		return nil, model.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel: %w", err)
	}

	membership, err := g.store.GetMembership(ctx, userID, channel.ServerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if membership == nil {
		return nil, model.ErrForbidden
	}

	return &model.Access{Channel: *channel, Membership: *membership}, nil
}

// RequireRole resolves the caller's membership in serverID and checks that its
// role is one of roles. With no roles any membership passes.
func (g *AccessGuard) RequireRole(ctx context.Context, serverID, userID string, roles ...model.Role) (*model.Membership, error) {
	if _, err := uuid.Parse(serverID); err != nil {
		return nil, model.ErrForbidden
	}

	membership, err := g.store.GetMembership(ctx, userID, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve membership: %w", err)
	}
	if membership == nil {
		return nil, model.ErrForbidden
	}

	if len(roles) > 0 && !membership.Role.In(roles...) {
		return nil, model.ErrForbidden
	}

	return membership, nil
}
