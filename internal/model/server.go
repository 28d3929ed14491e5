package model

import "time"

type Server struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Channel struct {
	ID        string    `db:"id" json:"id"`
	ServerID  string    `db:"server_id" json:"serverId"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Membership struct {
	UserID   string    `db:"user_id" json:"userId"`
	ServerID string    `db:"server_id" json:"serverId"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

type MemberList []Member

// Member is a membership joined with the member's display name.
type Member struct {
	Membership
	Username string `db:"username" json:"username"`
}

// Access is what the access guard resolved for a channel action.
type Access struct {
	Channel    Channel
	Membership Membership
}
