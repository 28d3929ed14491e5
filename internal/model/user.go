package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type AccessClaims struct {
	jwt.RegisteredClaims

	Email string `json:"email"`
}

// Identity is what a verified credential says about its bearer.
type Identity struct {
	UserID string
	Email  string
}
