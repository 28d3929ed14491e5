package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/model"
)

// Gateway drives sessions through their lifecycle and dispatches client
// events to the registry, the pipeline and the presence publisher.
type Gateway struct {
	registry    *Registry
	verifier    TokenVerifier
	guard       *AccessGuard
	pipeline    *Pipeline
	presence    *PresencePublisher
	authTimeout time.Duration
}

func NewGateway(registry *Registry, verifier TokenVerifier, guard *AccessGuard, pipeline *Pipeline, presence *PresencePublisher, authTimeout time.Duration) *Gateway {
	return &Gateway{
		registry:    registry,
		verifier:    verifier,
		guard:       guard,
		pipeline:    pipeline,
		presence:    presence,
		authTimeout: authTimeout,
	}
}

// Connect opens a session for sender. A handshake credential, when present,
// must verify or the session is refused. Without one the session stays
// unauthenticated until an auth event arrives or the auth timeout fires.
func (g *Gateway) Connect(ctx context.Context, sender Sender, credential string) (*Session, error) {
	s := NewSession(sender)

	if credential != "" {
		if _, err := s.Authenticate(g.verifier, credential); err != nil {
			s.expire()
			return nil, err
		}
		return s, nil
	}

	if g.authTimeout > 0 {
		ctx = context.WithoutCancel(ctx)
		s.setAuthTimer(time.AfterFunc(g.authTimeout, func() {
			if s.expire() {
				logger := logger_lib.FromContext(ctx, config.KeyLogger)
				logger.Info(fmt.Sprintf("session %s closed: authentication timed out", s.ID()))
				sender.Close()
			}
		}))
	}

	return s, nil
}

// HandleFrame processes one inbound frame and reports whether the connection
// must be closed.
func (g *Gateway) HandleFrame(ctx context.Context, s *Session, raw []byte) bool {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)

	switch s.State() {
	case StateClosed:
		return true
	case StateUnauthenticated:
		return g.handleUnauthenticated(ctx, s, raw)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.ack(s, "", nil, fmt.Errorf("%w: malformed frame", model.ErrInvalidInput))
		return false
	}

	switch env.Event {
	case EventAuth:
		g.ack(s, env.ID, &Ack{OK: true}, nil)

	case EventChannelJoin:
		channelID, err := channelOf(env)
		if err == nil {
			err = g.Join(ctx, s, channelID)
		}
		if err != nil {
			logger.Warn(fmt.Sprintf("join rejected for %s: %v", s.UserID(), err))
		}
		g.ack(s, env.ID, &Ack{OK: true}, err)

	case EventChannelLeave:
		channelID, err := channelOf(env)
		if err == nil {
			g.Leave(ctx, s, channelID)
		}
		g.ack(s, env.ID, &Ack{OK: true}, err)

	case EventMessageSend:
		var req SendRequest
		if err := decodeData(env, &req); err != nil {
			g.ack(s, env.ID, nil, err)
			return false
		}
		if req.ChannelID == "" {
			req.ChannelID = env.ChannelID
		}

		msg, err := g.pipeline.Send(ctx, s, req.ChannelID, req.Content)
		if err != nil {
			if model.ErrorCode(err) == model.CodeInternal {
				logger.Error(fmt.Sprintf("failed to send message: %v", err))
			}
			g.ack(s, env.ID, nil, err)
			return false
		}
		g.ack(s, env.ID, &Ack{OK: true, MessageID: msg.ID}, nil)

	case EventLogout:
		g.ack(s, env.ID, &Ack{OK: true}, nil)
		g.Disconnect(ctx, s)
		return true

	default:
		g.ack(s, env.ID, nil, fmt.Errorf("%w: %q", model.ErrUnknownEvent, env.Event))
	}

	return false
}

// handleUnauthenticated accepts only a successful auth event; anything else
// closes the connection.
func (g *Gateway) handleUnauthenticated(ctx context.Context, s *Session, raw []byte) bool {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event != EventAuth {
		logger.Warn(fmt.Sprintf("session %s closed: not authenticated", s.ID()))
		s.expire()
		return true
	}

	var req AuthRequest
	if err := decodeData(env, &req); err != nil {
		s.expire()
		return true
	}

	if _, err := s.Authenticate(g.verifier, req.Token); err != nil {
		logger.Warn(fmt.Sprintf("session %s closed: %v", s.ID(), err))
		s.expire()
		return true
	}

	g.ack(s, env.ID, &Ack{OK: true}, nil)
	return false
}

// Join authorizes the session's user for channelID, subscribes the session
// and republishes presence.
func (g *Gateway) Join(ctx context.Context, s *Session, channelID string) error {
	identity, ok := s.Identity()
	if !ok {
		return model.ErrUnauthorized
	}

	if _, err := g.guard.Authorize(ctx, channelID, identity.UserID); err != nil {
		return err
	}

	if _, err := g.registry.Join(channelID, s); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		}
		return err
	}

	g.publish(ctx, channelID)
	return nil
}

// Leave unsubscribes the session. Leaving a room that was never joined is a
// no-op.
func (g *Gateway) Leave(ctx context.Context, s *Session, channelID string) {
	if g.registry.Leave(channelID, s) {
		g.publish(ctx, channelID)
	}
}

// Disconnect closes the session and republishes presence once for every room
// it was in. Repeated calls do nothing.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) {
	for _, roomID := range g.registry.LeaveAll(s) {
		g.publish(ctx, roomID)
	}
}

func (g *Gateway) publish(ctx context.Context, roomID string) {
	if _, err := g.presence.Publish(ctx, roomID); err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Error(fmt.Sprintf("failed to publish presence for %s: %v", roomID, err))
	}
}

func (g *Gateway) ack(s *Session, id string, ok *Ack, err error) {
	if id == "" && err == nil {
		return
	}

	ack := ok
	if err != nil {
		ack = &Ack{OK: false, Error: model.ErrorCode(err)}
	}

	payload, encErr := encodeEvent(EventAck, id, "", ack)
	if encErr != nil {
		return
	}
	s.Send(payload)
}

func channelOf(env Envelope) (string, error) {
	var req ChannelRequest
	if len(env.Data) > 0 {
		if err := decodeData(env, &req); err != nil {
			return "", err
		}
	}
	if req.ChannelID == "" {
		req.ChannelID = env.ChannelID
	}
	if req.ChannelID == "" {
		return "", fmt.Errorf("%w: channelId is required", model.ErrInvalidInput)
	}
	return req.ChannelID, nil
}
