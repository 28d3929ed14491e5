package model

import "time"

type Invite struct {
	ID        string     `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	ServerID  string     `db:"server_id" json:"serverId"`
	Uses      int        `db:"uses" json:"uses"`
	MaxUses   *int       `db:"max_uses" json:"maxUses,omitempty"`
	ExpiresAt *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

func (i *Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

func (i *Invite) Exhausted() bool {
	return i.MaxUses != nil && *i.MaxUses > 0 && i.Uses >= *i.MaxUses
}
