package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/model"
	"github.com/zveno/chat-service/internal/pkg/tx"
)

type Handler struct {
	repository   DBRepo
	validator    Validator
	jwtGenerator JWTGenerator
	hasher       PasswordHasher
	codes        CodeGenerator
	guard        AccessGuard
	poster       MessagePoster
	presence     PresenceReader
	now          func() time.Time
}

func New(
	repo DBRepo,
	validator Validator,
	jwtGenerator JWTGenerator,
	hasher PasswordHasher,
	codes CodeGenerator,
	guard AccessGuard,
	poster MessagePoster,
	presence PresenceReader,
) *Handler {
	return &Handler{
		repository:   repo,
		validator:    validator,
		jwtGenerator: jwtGenerator,
		hasher:       hasher,
		codes:        codes,
		guard:        guard,
		poster:       poster,
		presence:     presence,
		now:          time.Now,
	}
}

// Routes mounts the API. Everything except register, login and health goes
// through auth.
func (h *Handler) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/servers", h.CreateServer)
		r.Get("/servers", h.GetUserServers)
		r.Get("/servers/{serverId}/members", h.GetServerMembers)
		r.Patch("/servers/{serverId}/members/{userId}", h.UpdateMemberRole)
		r.Delete("/servers/{serverId}/members/{userId}", h.RemoveMember)
		r.Post("/servers/{serverId}/channels", h.CreateChannel)
		r.Get("/servers/{serverId}/channels", h.GetServerChannels)
		r.Post("/servers/{serverId}/invites", h.CreateInvite)

		r.Get("/channels/{channelId}/messages", h.GetChannelMessages)
		r.Post("/channels/{channelId}/messages", h.SendMessage)
		r.Get("/channels/{channelId}/presence", h.GetChannelPresence)

		r.Delete("/invites/{code}", h.DeleteInvite)
		r.Post("/invites/{code}/join", h.JoinInvite)
	})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("Register")

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if err := h.validator.ValidateRegister(req.Email, req.Username, req.Password); err != nil {
		h.fail(w, logger, err)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	user := &model.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := h.repository.CreateUser(r.Context(), user); err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, user, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("Login")

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	user, err := h.repository.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if user == nil || !h.hasher.Verify(req.Password, user.PasswordHash) {
		h.fail(w, logger, fmt.Errorf("%w: invalid email or password", model.ErrUnauthorized))
		return
	}

	token, expiresAt, err := h.jwtGenerator.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		h.fail(w, logger, fmt.Errorf("failed to generate token: %w", err))
		return
	}

	h.writeJSON(w, LoginResponse{Token: token, ExpiresAt: expiresAt}, http.StatusOK)
}

func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateServer")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	name := strings.TrimSpace(req.Name)
	if err := h.validator.ValidateName("server", name); err != nil {
		h.fail(w, logger, err)
		return
	}

	var server *model.Server
	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		var err error
		server, err = h.repository.CreateServer(ctx, name)
		if err != nil {
			return err
		}

		if _, err := h.repository.AddMember(ctx, server.ID, userID, model.RoleOwner); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		h.fail(w, logger, fmt.Errorf("failed to create server: %w", err))
		return
	}

	h.writeJSON(w, server, http.StatusCreated)
}

func (h *Handler) GetUserServers(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetUserServers")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}

	servers, err := h.repository.GetUserServers(r.Context(), userID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if servers == nil {
		servers = []model.Server{}
	}
	h.writeJSON(w, servers, http.StatusOK)
}

func (h *Handler) GetServerMembers(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetServerMembers")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID); err != nil {
		h.fail(w, logger, err)
		return
	}

	members, err := h.repository.GetServerMembers(r.Context(), serverID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, members, http.StatusOK)
}

// UpdateMemberRole lets the owner promote or demote other members. Ownership
// itself is never assigned or taken away here.
func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("UpdateMemberRole")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")
	targetID := chi.URLParam(r, "userId")

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	role, err := h.validator.ValidateAssignableRole(req.Role)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID, model.RoleOwner); err != nil {
		h.fail(w, logger, err)
		return
	}

	target, err := h.targetMember(r.Context(), serverID, targetID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.repository.UpdateMemberRole(r.Context(), serverID, target.UserID, role); err != nil {
		h.fail(w, logger, err)
		return
	}

	target.Role = role
	h.writeJSON(w, target, http.StatusOK)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("RemoveMember")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")
	targetID := chi.URLParam(r, "userId")

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID, model.ElevatedRoles...); err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.targetMember(r.Context(), serverID, targetID); err != nil {
		h.fail(w, logger, err)
		return
	}

	removed, err := h.repository.RemoveMember(r.Context(), serverID, targetID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}
	if !removed {
		h.fail(w, logger, model.ErrMemberNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateChannel")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	name := strings.TrimSpace(req.Name)
	if err := h.validator.ValidateName("channel", name); err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID, model.ElevatedRoles...); err != nil {
		h.fail(w, logger, err)
		return
	}

	channel, err := h.repository.CreateChannel(r.Context(), serverID, name)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, channel, http.StatusCreated)
}

func (h *Handler) GetServerChannels(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetServerChannels")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID); err != nil {
		h.fail(w, logger, err)
		return
	}

	channels, err := h.repository.GetServerChannels(r.Context(), serverID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if channels == nil {
		channels = []model.Channel{}
	}
	h.writeJSON(w, channels, http.StatusOK)
}

// GetChannelMessages pages through history in ascending creation order. The
// "after" cursor is the createdAt of the last message already seen and
// "afterId" its id, which keeps messages sharing a timestamp on the next page.
func (h *Handler) GetChannelMessages(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetChannelMessages")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	channelID := chi.URLParam(r, "channelId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.fail(w, logger, fmt.Errorf("%w: limit must be a non-negative integer", model.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	after, err := messageCursor(r.URL.Query().Get("after"), r.URL.Query().Get("afterId"))
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.guard.Authorize(r.Context(), channelID, userID); err != nil {
		h.fail(w, logger, err)
		return
	}

	messages, err := h.repository.GetChannelMessages(r.Context(), channelID, after, limit)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	response := MessagesResponse{Messages: []Message{}}
	if messages != nil {
		for _, msg := range *messages {
			response.Messages = append(response.Messages, toMessage(&msg))
		}
	}

	h.writeJSON(w, response, http.StatusOK)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("SendMessage")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	channelID := chi.URLParam(r, "channelId")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
		return
	}

	msg, err := h.poster.Post(r.Context(), userID, channelID, req.Content)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, toMessage(msg), http.StatusCreated)
}

// GetChannelPresence reads the mirrored presence list, so it also works
// against a gateway running in another process.
func (h *Handler) GetChannelPresence(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetChannelPresence")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	channelID := chi.URLParam(r, "channelId")

	if _, err := h.guard.Authorize(r.Context(), channelID, userID); err != nil {
		h.fail(w, logger, err)
		return
	}

	usernames, err := h.presence.GetPresence(r.Context(), channelID)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	users := make([]PresenceUser, 0, len(usernames))
	for _, name := range usernames {
		users = append(users, PresenceUser{Username: name})
	}

	h.writeJSON(w, users, http.StatusOK)
}

func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateInvite")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	serverID := chi.URLParam(r, "serverId")

	var req CreateInviteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.fail(w, logger, fmt.Errorf("%w: failed to decode request: %v", model.ErrInvalidInput, err))
			return
		}
	}

	if req.MaxUses != nil && *req.MaxUses < 0 {
		h.fail(w, logger, fmt.Errorf("%w: maxUses must not be negative", model.ErrInvalidInput))
		return
	}
	if req.ExpiresInSeconds != nil && *req.ExpiresInSeconds <= 0 {
		h.fail(w, logger, fmt.Errorf("%w: expiresInSeconds must be positive", model.ErrInvalidInput))
		return
	}

	if _, err := h.guard.RequireRole(r.Context(), serverID, userID, model.ElevatedRoles...); err != nil {
		h.fail(w, logger, err)
		return
	}

	invite := &model.Invite{
		Code:     h.codes.NewCode(),
		ServerID: serverID,
		MaxUses:  req.MaxUses,
	}
	if req.ExpiresInSeconds != nil {
		expiresAt := h.now().Add(time.Duration(*req.ExpiresInSeconds) * time.Second)
		invite.ExpiresAt = &expiresAt
	}

	if err := h.repository.CreateInvite(r.Context(), invite); err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, invite, http.StatusCreated)
}

func (h *Handler) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("DeleteInvite")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	code := chi.URLParam(r, "code")

	invite, err := h.repository.GetInviteByCode(r.Context(), code)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if _, err := h.guard.RequireRole(r.Context(), invite.ServerID, userID, model.ElevatedRoles...); err != nil {
		h.fail(w, logger, err)
		return
	}

	if err := h.repository.DeleteInvite(r.Context(), code); err != nil {
		h.fail(w, logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// JoinInvite adds the caller to the invite's server. Joining a server the
// caller already belongs to succeeds without spending a use.
func (h *Handler) JoinInvite(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("JoinInvite")

	userID, ok := r.Context().Value(config.KeyUUID).(string)
	if !ok {
		h.fail(w, logger, fmt.Errorf("%w: failed to find uuid", model.ErrUnauthorized))
		return
	}
	code := chi.URLParam(r, "code")

	var response JoinInviteResponse
	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		invite, err := h.repository.GetInviteByCode(ctx, code)
		if err != nil {
			return err
		}
		response.ServerID = invite.ServerID

		if invite.Expired(h.now()) {
			return model.ErrInviteExpired
		}
		if invite.Exhausted() {
			return model.ErrInviteLimitReached
		}

		membership, err := h.repository.GetMembership(ctx, userID, invite.ServerID)
		if err != nil {
			return err
		}
		if membership != nil {
			return nil
		}

		consumed, err := h.repository.ConsumeInvite(ctx, invite.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return model.ErrInviteLimitReached
		}

		response.Joined, err = h.repository.AddMember(ctx, invite.ServerID, userID, model.RoleMember)
		return err
	})
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	h.writeJSON(w, response, http.StatusOK)
}

// ----------------------------- helpers -----------------------------

// targetMember loads the member an owner or admin is acting on. The owner is
// never a valid target.
func (h *Handler) targetMember(ctx context.Context, serverID, userID string) (*model.Membership, error) {
	target, err := h.repository.GetMembership(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.ErrMemberNotFound
	}
	if target.Role == model.RoleOwner {
		return nil, fmt.Errorf("%w: the server owner cannot be changed", model.ErrForbidden)
	}
	return target, nil
}

func toMessage(msg *model.Message) Message {
	return Message{
		ID:        msg.ID,
		Content:   msg.Content,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		CreatedAt: msg.CreatedAt,
		User:      Author{Username: msg.Username},
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrChannelNotFound),
		errors.Is(err, model.ErrServerNotFound),
		errors.Is(err, model.ErrInviteNotFound),
		errors.Is(err, model.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmptyMessage),
		errors.Is(err, model.ErrMessageTooLong),
		errors.Is(err, model.ErrInvalidRole),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInviteLimitReached):
		return http.StatusConflict
	case errors.Is(err, model.ErrInviteExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes its taxonomy tag. Internal errors are logged in
// full but reported to the client without detail.
func (h *Handler) fail(w http.ResponseWriter, logger logger_lib.LoggerInterface, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(err.Error())
		h.writeError(w, model.ErrorCode(err), "", status)
		return
	}

	logger.Warn(err.Error())
	h.writeError(w, model.ErrorCode(err), err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Error{Error: code, Message: message})
}

func messageCursor(rawTime, rawID string) (*model.MessageCursor, error) {
	if rawTime == "" {
		if rawID != "" {
			return nil, fmt.Errorf("%w: afterId requires after", model.ErrInvalidInput)
		}
		return nil, nil
	}

	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: after must be an RFC 3339 timestamp", model.ErrInvalidInput)
	}

	if rawID != "" {
		if _, err := uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("%w: afterId must be a message id", model.ErrInvalidInput)
		}
	}

	return &model.MessageCursor{CreatedAt: createdAt, ID: rawID}, nil
}
