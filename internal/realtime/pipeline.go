package realtime

import (
	"context"
	"fmt"

	"github.com/zveno/chat-service/internal/model"
)

// Pipeline validates, authorizes, persists and fans out chat messages.
type Pipeline struct {
	registry  *Registry
	guard     *AccessGuard
	store     Store
	validator Validator
}

func NewPipeline(registry *Registry, guard *AccessGuard, store Store, validator Validator) *Pipeline {
	return &Pipeline{
		registry:  registry,
		guard:     guard,
		store:     store,
		validator: validator,
	}
}

// Send posts a message on behalf of an authenticated session.
func (p *Pipeline) Send(ctx context.Context, s *Session, channelID, content string) (*model.Message, error) {
	identity, ok := s.Identity()
	if !ok {
		return nil, model.ErrUnauthorized
	}

	return p.Post(ctx, identity.UserID, channelID, content)
}

// Post persists content in channelID and broadcasts message:new to the room.
// Once validation and the access check pass, the message is stored and
// delivered even if ctx is cancelled.
func (p *Pipeline) Post(ctx context.Context, userID, channelID, content string) (*model.Message, error) {
	content, err := p.validator.NormalizeMessage(content)
	if err != nil {
		return nil, err
	}

	if _, err := p.guard.Authorize(ctx, channelID, userID); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	unlock := p.registry.LockRoom(channelID)
	defer unlock()

	msg, err := p.store.CreateMessage(ctx, content, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	payload, err := encodeEvent(EventMessageNew, "", channelID, newMessageEvent(msg))
	if err != nil {
		return msg, err
	}

	for _, s := range live(p.registry.Subscribers(channelID)) {
		s.Send(payload)
	}

	return msg, nil
}
