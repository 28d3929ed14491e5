package model

import (
	"time"
)

const MaxMessageLength = 2000

type MessageList []Message

type Message struct {
	ID        string    `db:"id" json:"id"`
	ChannelID string    `db:"channel_id" json:"channelId"`
	UserID    string    `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Username  string    `db:"username" json:"-"`
}

// MessageCursor points at the last message of a history page. Messages are
// ordered by (CreatedAt, ID); an empty ID compares on CreatedAt alone.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}
