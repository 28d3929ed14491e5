package rest

import "time"

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type CreateInviteRequest struct {
	MaxUses          *int `json:"maxUses,omitempty"`
	ExpiresInSeconds *int `json:"expiresInSeconds,omitempty"`
}

type JoinInviteResponse struct {
	ServerID string `json:"serverId"`
	Joined   bool   `json:"joined"`
}

type Author struct {
	Username string `json:"username"`
}

type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	User      Author    `json:"user"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type PresenceUser struct {
	Username string `json:"username"`
}

type Error struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
