package model

import "time"

// User represents an account in the database.
type User struct {
	ID        int64
	Email     string
	AuthHash  string
	Disabled  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UID returns the account identifier exposed to clients.
func (u User) UID() string {
	return FormatUID(u.ID)
}

// CreateUserRequest represents a user registration request.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by POST /auth/login and POST /auth/register.
// ExpiresAt is in Unix milliseconds.
type LoginResponse struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Message   string `json:"message,omitempty"`
}

// MessageResponse carries a human-readable status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ValidityResponse is returned by GET /auth/check-validity.
type ValidityResponse struct {
	IsValid bool `json:"isValid"`
}

// IssuedToken records a JWT handed out at login so it can be revoked later.
type IssuedToken struct {
	TokenID   string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}
