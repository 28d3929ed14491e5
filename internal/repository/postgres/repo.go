package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/model"
)

const (
	uniqueViolation = "23505"

	defaultMessagesLimit = 50
	maxMessagesLimit     = 200
)

type Repository struct {
	connection *sqlx.DB
}

func New(cfg *config.Config) *Repository {
	conStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.Host, cfg.Postgres.Port)

	conn, err := sqlx.Connect("postgres", conStr)
	if err != nil {
		log.Fatal("error connect: ", err)
	}

	return &Repository{
		connection: conn,
	}
}

func (r *Repository) Close() {
	_ = r.connection.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ----------------------------- users -----------------------------

func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query, args, err := sq.Insert("users").
		Columns("id", "email", "username", "password_hash").
		Values(user.ID, user.Email, user.Username, user.PasswordHash).
		Suffix("RETURNING created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	err = r.Chk(ctx).GetContext(ctx, &user.CreatedAt, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: email or username already registered", model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %v", err)
	}

	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query, args, err := sq.Select("id", "email", "username", "password_hash", "created_at").
		From("users").
		Where(sq.Eq{"email": email}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var user model.User
	err = r.Chk(ctx).GetContext(ctx, &user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}

	return &user, nil
}

func (r *Repository) UpdateUsername(ctx context.Context, userID, username string) error {
	query, args, err := sq.Update("users").
		Set("username", username).
		Where(sq.Eq{"id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	_, err = r.Chk(ctx).ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username already taken", model.ErrConflict)
	}

	return err
}

func (r *Repository) ListUsernames(ctx context.Context, userIDs []string) (map[string]string, error) {
	usernames := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return usernames, nil
	}

	query, args, err := sq.Select("id", "username").
		From("users").
		Where(sq.Eq{"id": userIDs}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var rows []struct {
		ID       string `db:"id"`
		Username string `db:"username"`
	}
	err = r.Chk(ctx).SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usernames: %v", err)
	}

	for _, row := range rows {
		usernames[row.ID] = row.Username
	}

	return usernames, nil
}

// ----------------------------- servers -----------------------------

func (r *Repository) CreateServer(ctx context.Context, name string) (*model.Server, error) {
	query, args, err := sq.Insert("servers").
		Columns("id", "name").
		Values(uuid.NewString(), name).
		Suffix("RETURNING id, name, created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var server model.Server
	err = r.Chk(ctx).GetContext(ctx, &server, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %v", err)
	}

	return &server, nil
}

func (r *Repository) GetUserServers(ctx context.Context, userID string) ([]model.Server, error) {
	query, args, err := sq.Select("s.id", "s.name", "s.created_at").
		From("servers s").
		Join("server_members sm ON sm.server_id = s.id").
		Where(sq.Eq{"sm.user_id": userID}).
		OrderBy("s.created_at ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	servers := []model.Server{}
	err = r.Chk(ctx).SelectContext(ctx, &servers, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user servers: %v", err)
	}

	return servers, nil
}

// ----------------------------- members -----------------------------

func (r *Repository) AddMember(ctx context.Context, serverID, userID string, role model.Role) (bool, error) {
	query, args, err := sq.Insert("server_members").
		Columns("server_id", "user_id", "role").
		Values(serverID, userID, role).
		Suffix("ON CONFLICT (user_id, server_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to add member: %v", err)
	}

	return affected(res)
}

func (r *Repository) GetMembership(ctx context.Context, userID, serverID string) (*model.Membership, error) {
	query, args, err := sq.Select("user_id", "server_id", "role", "joined_at").
		From("server_members").
		Where(sq.Eq{"user_id": userID, "server_id": serverID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var membership model.Membership
	err = r.Chk(ctx).GetContext(ctx, &membership, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %v", err)
	}

	return &membership, nil
}

func (r *Repository) GetServerMembers(ctx context.Context, serverID string) (*model.MemberList, error) {
	query, args, err := sq.Select("sm.user_id", "sm.server_id", "sm.role", "sm.joined_at", "u.username").
		From("server_members sm").
		Join("users u ON u.id = sm.user_id").
		Where(sq.Eq{"sm.server_id": serverID}).
		OrderBy("sm.joined_at ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	members := model.MemberList{}
	err = r.Chk(ctx).SelectContext(ctx, &members, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get server members: %v", err)
	}

	return &members, nil
}

func (r *Repository) UpdateMemberRole(ctx context.Context, serverID, userID string, role model.Role) (bool, error) {
	query, args, err := sq.Update("server_members").
		Set("role", role).
		Where(sq.Eq{"server_id": serverID, "user_id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update member role: %v", err)
	}

	return affected(res)
}

func (r *Repository) RemoveMember(ctx context.Context, serverID, userID string) (bool, error) {
	query, args, err := sq.Delete("server_members").
		Where(sq.Eq{"server_id": serverID, "user_id": userID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %v", err)
	}

	return affected(res)
}

// ----------------------------- channels -----------------------------

func (r *Repository) CreateChannel(ctx context.Context, serverID, name string) (*model.Channel, error) {
	query, args, err := sq.Insert("channels").
		Columns("id", "server_id", "name").
		Values(uuid.NewString(), serverID, name).
		Suffix("RETURNING id, server_id, name, created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var channel model.Channel
	err = r.Chk(ctx).GetContext(ctx, &channel, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %v", err)
	}

	return &channel, nil
}

func (r *Repository) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	query, args, err := sq.Select("id", "server_id", "name", "created_at").
		From("channels").
		Where(sq.Eq{"id": channelID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var channel model.Channel
	err = r.Chk(ctx).GetContext(ctx, &channel, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %v", err)
	}

	return &channel, nil
}

func (r *Repository) GetServerChannels(ctx context.Context, serverID string) ([]model.Channel, error) {
	query, args, err := sq.Select("id", "server_id", "name", "created_at").
		From("channels").
		Where(sq.Eq{"server_id": serverID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	channels := []model.Channel{}
	err = r.Chk(ctx).SelectContext(ctx, &channels, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get server channels: %v", err)
	}

	return channels, nil
}

// ----------------------------- messages -----------------------------

// CreateMessage persists a message and returns it with the author's username.
func (r *Repository) CreateMessage(ctx context.Context, content, channelID, userID string) (*model.Message, error) {
	query, args, err := sq.Insert("messages").
		Columns("id", "channel_id", "user_id", "content").
		Values(uuid.NewString(), channelID, userID, content).
		Suffix("RETURNING id, channel_id, user_id, content, created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var message model.Message
	err = r.Chk(ctx).GetContext(ctx, &message, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %v", err)
	}

	usernames, err := r.ListUsernames(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	message.Username = usernames[userID]

	return &message, nil
}

// GetChannelMessages returns messages oldest first, starting strictly after
// the cursor when one is set.
func (r *Repository) GetChannelMessages(ctx context.Context, channelID string, after *model.MessageCursor, limit int) (*model.MessageList, error) {
	queryBuilder := sq.Select(
		"m.id",
		"m.channel_id",
		"m.user_id",
		"m.content",
		"m.created_at",
		"u.username",
	).
		From("messages m").
		Join("users u ON u.id = m.user_id").
		Where(sq.Eq{"m.channel_id": channelID}).
		OrderBy("m.created_at ASC", "m.id ASC")

	switch {
	case after == nil:
	case after.ID != "":
		queryBuilder = queryBuilder.Where(sq.Expr("(m.created_at, m.id) > (?, ?)", after.CreatedAt, after.ID))
	default:
		queryBuilder = queryBuilder.Where(sq.Gt{"m.created_at": after.CreatedAt})
	}

	switch {
	case limit <= 0:
		limit = defaultMessagesLimit
	case limit > maxMessagesLimit:
		limit = maxMessagesLimit
	}
	queryBuilder = queryBuilder.Limit(uint64(limit))

	query, args, err := queryBuilder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	messages := model.MessageList{}
	err = r.Chk(ctx).SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel messages: %v", err)
	}

	return &messages, nil
}

// ----------------------------- invites -----------------------------

func (r *Repository) CreateInvite(ctx context.Context, invite *model.Invite) error {
	query, args, err := sq.Insert("invites").
		Columns("id", "code", "server_id", "uses", "max_uses", "expires_at").
		Values(uuid.NewString(), invite.Code, invite.ServerID, 0, invite.MaxUses, invite.ExpiresAt).
		Suffix("RETURNING id, code, server_id, uses, max_uses, expires_at, created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	err = r.Chk(ctx).GetContext(ctx, invite, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: invite code already exists", model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create invite: %v", err)
	}

	return nil
}

func (r *Repository) GetInviteByCode(ctx context.Context, code string) (*model.Invite, error) {
	query, args, err := sq.Select("id", "code", "server_id", "uses", "max_uses", "expires_at", "created_at").
		From("invites").
		Where(sq.Eq{"code": code}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var invite model.Invite
	err = r.Chk(ctx).GetContext(ctx, &invite, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %v", err)
	}

	return &invite, nil
}

func (r *Repository) DeleteInvite(ctx context.Context, code string) error {
	query, args, err := sq.Delete("invites").
		Where(sq.Eq{"code": code}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %v", err)
	}

	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrInviteNotFound
	}

	return nil
}

// ConsumeInvite increments the use counter unless the limit is already reached.
func (r *Repository) ConsumeInvite(ctx context.Context, inviteID string) (bool, error) {
	query, args, err := sq.Update("invites").
		Set("uses", sq.Expr("uses + 1")).
		Where(sq.Eq{"id": inviteID}).
		Where(sq.Or{
			sq.Eq{"max_uses": nil},
			sq.Eq{"max_uses": 0},
			sq.Expr("uses < max_uses"),
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to consume invite: %v", err)
	}

	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %v", err)
	}

	return n > 0, nil
}
