// Package session tracks the device's bearer token and decides whether a
// sync may be attempted.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/remote"
)

var ErrNoSession = errors.New("not logged in")

// Store persists the session and login details.
type Store interface {
	Session(ctx context.Context) (model.Session, error)
	SetSession(ctx context.Context, s model.Session) error
	LoginInfo(ctx context.Context) (model.LoginInfo, error)
	SetLoginInfo(ctx context.Context, info model.LoginInfo) error
}

// AuthClient is the part of the server API the manager needs.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (model.LoginResponse, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, token string) error
	CheckValidity(ctx context.Context, token string) (bool, error)
}

// Listener is told whenever the session becomes valid or invalid.
type Listener interface {
	SessionChanged(valid bool)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(valid bool)

func (f ListenerFunc) SessionChanged(valid bool) { f(valid) }

// Manager owns the local session. Any authentication failure clears it.
type Manager struct {
	store  Store
	auth   AuthClient
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners []Listener
}

// NewManager creates a Manager. A nil logger means slog.Default().
func NewManager(store Store, auth AuthClient, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers l for validity changes.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Current returns the stored session.
func (m *Manager) Current(ctx context.Context) (model.Session, error) {
	return m.store.Session(ctx)
}

// IsSessionValid reports whether a token is present and not yet expired.
func (m *Manager) IsSessionValid(ctx context.Context) bool {
	_, err := m.Token(ctx)
	return err == nil
}

// Token returns the bearer token of a valid session, or ErrNoSession.
func (m *Manager) Token(ctx context.Context) (string, error) {
	sess, err := m.store.Session(ctx)
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	if !m.valid(sess) {
		return "", ErrNoSession
	}
	return sess.Token, nil
}

func (m *Manager) valid(s model.Session) bool {
	return s.Token != "" && s.ExpiresAt > m.now().UnixMilli()
}

// CanAttemptSync reports whether the session is valid and the server answers.
// A server that rejects the token clears the session.
func (m *Manager) CanAttemptSync(ctx context.Context) bool {
	token, err := m.Token(ctx)
	if err != nil {
		return false
	}

	ok, err := m.auth.CheckValidity(ctx, token)
	switch {
	case err == nil && ok:
		return true
	case err == nil:
		m.Invalidate(ctx, "server rejected token")
		return false
	case remote.IsAuth(err):
		m.Invalidate(ctx, err.Error())
		return false
	default:
		m.logger.Info("server not reachable", "error", err)
		return false
	}
}

// Login exchanges credentials for a session and remembers the login details.
func (m *Manager) Login(ctx context.Context, info model.LoginInfo, password string) (model.Session, error) {
	resp, err := m.auth.Login(ctx, info.Email, password)
	if err != nil {
		return model.Session{}, err
	}

	sess := model.Session{Token: resp.Token, ExpiresAt: resp.ExpiresAt}
	if err := m.store.SetSession(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("save session: %w", err)
	}
	if err := m.store.SetLoginInfo(ctx, info); err != nil {
		return model.Session{}, fmt.Errorf("save login info: %w", err)
	}

	m.logger.Info("logged in", "uid", resp.UID, "server", info.ServerAddress)
	m.notify(m.valid(sess))
	return sess, nil
}

// Logout revokes the token on the server, best effort, and always clears the
// local session. The returned error reports only the server call.
func (m *Manager) Logout(ctx context.Context) error {
	return m.signOut(ctx, "logout", m.auth.Logout)
}

// LogoutAll revokes every token of the account, best effort, and always
// clears the local session.
func (m *Manager) LogoutAll(ctx context.Context) error {
	return m.signOut(ctx, "logout-all", m.auth.LogoutAll)
}

func (m *Manager) signOut(ctx context.Context, op string, call func(context.Context, string) error) error {
	var remoteErr error
	if sess, err := m.store.Session(ctx); err == nil && sess.Token != "" {
		if err := call(ctx, sess.Token); err != nil {
			m.logger.Warn(op+" not confirmed by server", "error", err)
			remoteErr = err
		}
	}

	m.Invalidate(ctx, op)
	return remoteErr
}

// Invalidate overwrites the session with an expired, empty one.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	prev, _ := m.store.Session(ctx)
	wasValid := m.valid(prev)

	cleared := model.Session{ExpiresAt: m.now().UnixMilli()}
	if err := m.store.SetSession(ctx, cleared); err != nil {
		m.logger.Error("clear session failed", "error", err)
	}

	m.logger.Info("session invalidated", "reason", reason)
	if wasValid {
		m.notify(false)
	}
}

// HandleError clears the session when err is an authentication failure and
// reports whether it did.
func (m *Manager) HandleError(ctx context.Context, err error) bool {
	if !remote.IsAuth(err) {
		return false
	}
	m.Invalidate(ctx, err.Error())
	return true
}

func (m *Manager) notify(valid bool) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.SessionChanged(valid)
	}
}
