package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zveno/chat-service/internal/model"
)

const (
	EventAuth           = "auth"
	EventLogout         = "logout"
	EventChannelJoin    = "channel:join"
	EventChannelLeave   = "channel:leave"
	EventMessageSend    = "message:send"
	EventMessageNew     = "message:new"
	EventPresenceUpdate = "presence:update"
	EventAck            = "ack"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	ID        string          `json:"id,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event     string      `json:"event"`
	ID        string      `json:"id,omitempty"`
	ChannelID string      `json:"channelId,omitempty"`
	Data      interface{} `json:"data"`
}

type AuthRequest struct {
	Token string `json:"token"`
}

type ChannelRequest struct {
	ChannelID string `json:"channelId"`
}

type SendRequest struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

type Ack struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Author struct {
	Username string `json:"username"`
}

type NewMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	User      Author    `json:"user"`
}

type PresenceUser struct {
	Username string `json:"username"`
}

func newMessageEvent(msg *model.Message) NewMessage {
	return NewMessage{
		ID:        msg.ID,
		Content:   msg.Content,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		CreatedAt: msg.CreatedAt,
		User:      Author{Username: msg.Username},
	}
}

func encodeEvent(event, id, channelID string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(outEnvelope{
		Event:     event,
		ID:        id,
		ChannelID: channelID,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	return payload, nil
}

func decodeData(env Envelope, dst interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", model.ErrInvalidInput, env.Event)
	}

	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}

	return nil
}
