//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package realtime

import (
	"context"

	"github.com/zveno/chat-service/internal/model"
)

// Store is the persistence collaborator. GetChannel returns
// model.ErrChannelNotFound for unknown channels; GetMembership returns nil
// without error when the user is not a member.
type Store interface {
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	GetMembership(ctx context.Context, userID, serverID string) (*model.Membership, error)
	CreateMessage(ctx context.Context, content, channelID, userID string) (*model.Message, error)
	ListUsernames(ctx context.Context, userIDs []string) (map[string]string, error)
}

type TokenVerifier interface {
	ValidateAccessToken(tokenString string) (*model.AccessClaims, error)
}

type Validator interface {
	NormalizeMessage(content string) (string, error)
}

type PresenceMirror interface {
	SetPresence(ctx context.Context, channelID string, usernames []string) error
}

// Sender is the transport side of a session. Send must not block and must not
// call back into the gateway; it reports false when the payload was dropped.
type Sender interface {
	Send(payload []byte) bool
	Close()
}
