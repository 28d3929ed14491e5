package ws

import (
	"context"

	"github.com/zveno/chat-service/internal/realtime"
)

type Gateway interface {
	Connect(ctx context.Context, sender realtime.Sender, credential string) (*realtime.Session, error)
	HandleFrame(ctx context.Context, s *realtime.Session, raw []byte) bool
	Disconnect(ctx context.Context, s *realtime.Session)
}
