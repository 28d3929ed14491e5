//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package rest

import (
	"context"

	"github.com/zveno/chat-service/internal/model"
)

type DBRepo interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateServer(ctx context.Context, name string) (*model.Server, error)
	GetUserServers(ctx context.Context, userID string) ([]model.Server, error)
	AddMember(ctx context.Context, serverID, userID string, role model.Role) (bool, error)
	GetMembership(ctx context.Context, userID, serverID string) (*model.Membership, error)
	GetServerMembers(ctx context.Context, serverID string) (*model.MemberList, error)
	UpdateMemberRole(ctx context.Context, serverID, userID string, role model.Role) (bool, error)
	RemoveMember(ctx context.Context, serverID, userID string) (bool, error)

	CreateChannel(ctx context.Context, serverID, name string) (*model.Channel, error)
	GetServerChannels(ctx context.Context, serverID string) ([]model.Channel, error)
	GetChannelMessages(ctx context.Context, channelID string, after *model.MessageCursor, limit int) (*model.MessageList, error)

	CreateInvite(ctx context.Context, invite *model.Invite) error
	GetInviteByCode(ctx context.Context, code string) (*model.Invite, error)
	DeleteInvite(ctx context.Context, code string) error
	ConsumeInvite(ctx context.Context, inviteID string) (bool, error)

	WithTx(ctx context.Context, cb func(ctx context.Context) error) error
}

type Validator interface {
	ValidateRegister(email, username, password string) error
	ValidateName(kind, name string) error
	ValidateAssignableRole(raw string) (model.Role, error)
}

type JWTGenerator interface {
	GenerateAccessToken(userID, email string) (string, int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type CodeGenerator interface {
	NewCode() string
}

// AccessGuard resolves channel and server membership for every request.
type AccessGuard interface {
	Authorize(ctx context.Context, channelID, userID string) (*model.Access, error)
	RequireRole(ctx context.Context, serverID, userID string, roles ...model.Role) (*model.Membership, error)
}

// MessagePoster persists a message and fans it out to the channel's room.
type MessagePoster interface {
	Post(ctx context.Context, userID, channelID, content string) (*model.Message, error)
}

type PresenceReader interface {
	GetPresence(ctx context.Context, channelID string) ([]string, error)
}
