package remote

import (
	"context"
	"net/http"

	"github.com/duobook/duobook-go/internal/model"
)

// Login exchanges credentials for a bearer token. Wrong credentials and
// disabled accounts both surface as ErrUnauthorized.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	const op = "login"

	var resp model.LoginResponse
	req := model.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, op, http.MethodPost, "auth/login", "", req, &resp); err != nil {
		return model.LoginResponse{}, err
	}
	if resp.Token == "" || resp.ExpiresAt == 0 {
		return model.LoginResponse{}, malformed(op, "missing token or expiresAt")
	}
	return resp, nil
}

// Logout revokes token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "auth/logout", token, nil, nil)
}

// LogoutAll revokes every token of the account that owns token.
func (c *Client) LogoutAll(ctx context.Context, token string) error {
	return c.do(ctx, "logoutAll", http.MethodPost, "auth/logout-all", token, nil, nil)
}

// CheckValidity asks the server whether token is still accepted.
func (c *Client) CheckValidity(ctx context.Context, token string) (bool, error) {
	const op = "checkValidity"

	var resp struct {
		IsValid *bool `json:"isValid"`
	}
	if err := c.do(ctx, op, http.MethodGet, "auth/check-validity", token, nil, &resp); err != nil {
		return false, err
	}
	if resp.IsValid == nil {
		return false, malformed(op, "missing isValid")
	}
	return *resp.IsValid, nil
}
