package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/duobook/duobook-go/internal/crypto"
	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already taken")
	ErrAccountDisabled    = errors.New("user account is disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenRevoked       = errors.New("token invalidated")
)

// Principal identifies the caller of an authenticated request.
type Principal struct {
	UserID  int64
	TokenID string
}

// AuthService handles authentication business logic.
type AuthService struct {
	users     *repository.UserRepository
	tokens    *repository.TokenRepository
	hasher    *crypto.Hasher
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(users *repository.UserRepository, tokens *repository.TokenRepository, secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		hasher:    crypto.NewHasher(crypto.DefaultHashParams()),
		jwtSecret: secret,
		jwtExpiry: expiry,
	}
}

// Register creates a new account and logs it in.
func (s *AuthService) Register(ctx context.Context, req model.CreateUserRequest) (model.LoginResponse, error) {
	if err := validateStruct(req); err != nil {
		return model.LoginResponse{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.LoginResponse{}, err
	}

	user := &model.User{
		Email:    req.Email,
		AuthHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.LoginResponse{}, ErrEmailTaken
		}
		return model.LoginResponse{}, err
	}

	return s.issue(ctx, user, "Successfully registered")
}

// Login authenticates a user and returns a bearer token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.LoginResponse, error) {
	if err := validateStruct(req); err != nil {
		return model.LoginResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.LoginResponse{}, ErrInvalidCredentials
		}
		return model.LoginResponse{}, err
	}

	match, err := s.hasher.Verify(req.Password, user.AuthHash)
	if err != nil {
		return model.LoginResponse{}, err
	}
	if !match {
		return model.LoginResponse{}, ErrInvalidCredentials
	}
	if user.Disabled {
		return model.LoginResponse{}, ErrAccountDisabled
	}

	return s.issue(ctx, user, "Successfully authenticated")
}

func (s *AuthService) issue(ctx context.Context, user *model.User, msg string) (model.LoginResponse, error) {
	token, err := crypto.GenerateToken(user.ID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return model.LoginResponse{}, err
	}

	if err := s.tokens.RecordIssued(ctx, model.IssuedToken{
		TokenID:   token.ID,
		UserID:    user.ID,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	}); err != nil {
		return model.LoginResponse{}, err
	}

	slog.Info("token issued", "uid", user.ID)

	return model.LoginResponse{
		UID:       user.UID(),
		Email:     user.Email,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt.UnixMilli(),
		Message:   msg,
	}, nil
}

// Authenticate resolves a bearer token to its principal. It fails for bad
// signatures, expiry, revoked tokens and disabled or deleted accounts.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := crypto.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	if user.Disabled {
		return Principal{}, ErrAccountDisabled
	}

	return Principal{UserID: user.ID, TokenID: claims.ID}, nil
}

// CheckValidity reports whether token would be accepted right now.
// Lookup failures count as invalid.
func (s *AuthService) CheckValidity(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if _, err := s.Authenticate(ctx, token); err != nil {
		slog.Debug("check-validity rejected token", "error", err)
		return false
	}
	return true
}

// Logout revokes the token used for the current request.
func (s *AuthService) Logout(ctx context.Context, p Principal) error {
	return s.tokens.Revoke(ctx, p.TokenID)
}

// LogoutAll revokes every token issued to the caller's account, including
// the current one.
func (s *AuthService) LogoutAll(ctx context.Context, p Principal) error {
	n, err := s.tokens.RevokeAllForUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	// The current token may predate the issued-token registry.
	if err := s.tokens.Revoke(ctx, p.TokenID); err != nil {
		return err
	}
	slog.Info("all sessions revoked", "uid", p.UserID, "tokens", n)
	return nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return *user, nil
}
