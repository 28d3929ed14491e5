package user

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
)

// ProfileUpdated is the payload published when a user changes their profile.
type ProfileUpdated struct {
	UserID   string `json:"userUuid"`
	Username string `json:"nickname"`
}

type Handler struct {
	dbR DBRepo
}

func New(dbR DBRepo) *Handler {
	return &Handler{dbR: dbR}
}

// Handler keeps the denormalized username used by message history and
// presence in sync with the profile service. Malformed events are logged
// and skipped so they do not block the partition.
func (h *Handler) Handler(ctx context.Context, in []byte) error {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("ProfileUpdated")

	var msg ProfileUpdated
	if err := json.Unmarshal(in, &msg); err != nil {
		logger.Error(fmt.Sprintf("failed to decode profile event: %v", err))
		return nil
	}

	msg.Username = strings.TrimSpace(msg.Username)
	if msg.UserID == "" || msg.Username == "" {
		logger.Warn("profile event without user id or username")
		return nil
	}

	if err := h.dbR.UpdateUsername(ctx, msg.UserID, msg.Username); err != nil {
		logger.Error(fmt.Sprintf("failed to update username: %v", err))
		return fmt.Errorf("failed to update username: %w", err)
	}

	return nil
}
