package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duobook/duobook-go/internal/localstore"
	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/remote"
)

type fakeAuth struct {
	loginResp   model.LoginResponse
	loginErr    error
	valid       bool
	validityErr error
	logoutErr   error
	loggedOut   []string
}

func (f *fakeAuth) Login(_ context.Context, _, _ string) (model.LoginResponse, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, "logout:"+token)
	return f.logoutErr
}

func (f *fakeAuth) LogoutAll(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, "logout-all:"+token)
	return f.logoutErr
}

func (f *fakeAuth) CheckValidity(_ context.Context, _ string) (bool, error) {
	return f.valid, f.validityErr
}

var testNow = time.UnixMilli(1_000_000)

func setupManager(t *testing.T, auth *fakeAuth) (*Manager, *localstore.Store, *[]bool) {
	t.Helper()

	store, err := localstore.Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(store, auth, nil)
	m.now = func() time.Time { return testNow }

	var events []bool
	m.Subscribe(ListenerFunc(func(valid bool) { events = append(events, valid) }))
	return m, store, &events
}

func TestIsSessionValid(t *testing.T) {
	tests := []struct {
		name string
		sess model.Session
		want bool
	}{
		{"never logged in", model.Session{}, false},
		{"empty token", model.Session{ExpiresAt: testNow.UnixMilli() + 1000}, false},
		{"expired", model.Session{Token: "t", ExpiresAt: testNow.UnixMilli() - 1}, false},
		{"expires now", model.Session{Token: "t", ExpiresAt: testNow.UnixMilli()}, false},
		{"valid", model.Session{Token: "t", ExpiresAt: testNow.UnixMilli() + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, _ := setupManager(t, &fakeAuth{})
			require.NoError(t, store.SetSession(context.Background(), tt.sess))

			assert.Equal(t, tt.want, m.IsSessionValid(context.Background()))
		})
	}
}

func TestLogin_StoresSessionAndNotifies(t *testing.T) {
	auth := &fakeAuth{loginResp: model.LoginResponse{UID: "1", Token: "tok", ExpiresAt: testNow.UnixMilli() + 60_000}}
	m, store, events := setupManager(t, auth)
	ctx := context.Background()

	info := model.LoginInfo{ServerAddress: "https://x/", Email: "a@b.c"}
	sess, err := m.Login(ctx, info, "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)

	token, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	saved, err := store.LoginInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, info, saved)
	assert.Equal(t, []bool{true}, *events)
}

func TestLogin_FailureLeavesSessionAlone(t *testing.T) {
	auth := &fakeAuth{loginErr: &remote.Error{Op: "login", Status: 401, Err: remote.ErrUnauthorized}}
	m, _, events := setupManager(t, auth)

	_, err := m.Login(context.Background(), model.LoginInfo{Email: "a@b.c"}, "bad")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.False(t, m.IsSessionValid(context.Background()))
	assert.Empty(t, *events)
}

func TestCanAttemptSync(t *testing.T) {
	valid := model.Session{Token: "tok", ExpiresAt: testNow.UnixMilli() + 60_000}

	tests := []struct {
		name         string
		sess         model.Session
		auth         *fakeAuth
		want         bool
		wantCleared  bool
		wantNotified bool
	}{
		{name: "no session", sess: model.Session{}, auth: &fakeAuth{valid: true}},
		{name: "reachable and valid", sess: valid, auth: &fakeAuth{valid: true}, want: true},
		{name: "offline", sess: valid, auth: &fakeAuth{validityErr: &remote.Error{Op: "checkValidity", Err: remote.ErrNetwork}}},
		{name: "server error", sess: valid, auth: &fakeAuth{validityErr: &remote.Error{Op: "checkValidity", Status: 500, Err: remote.ErrServer}}},
		{name: "revoked on server", sess: valid, auth: &fakeAuth{valid: false}, wantCleared: true, wantNotified: true},
		{name: "unauthorized", sess: valid, auth: &fakeAuth{validityErr: &remote.Error{Op: "checkValidity", Status: 401, Err: remote.ErrUnauthorized}}, wantCleared: true, wantNotified: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, events := setupManager(t, tt.auth)
			ctx := context.Background()
			require.NoError(t, store.SetSession(ctx, tt.sess))

			assert.Equal(t, tt.want, m.CanAttemptSync(ctx))

			sess, err := store.Session(ctx)
			require.NoError(t, err)
			if tt.wantCleared {
				assert.Equal(t, model.Session{ExpiresAt: testNow.UnixMilli()}, sess)
			} else {
				assert.Equal(t, tt.sess, sess)
			}
			if tt.wantNotified {
				assert.Equal(t, []bool{false}, *events)
			} else {
				assert.Empty(t, *events)
			}
		})
	}
}

func TestHandleError_FailsClosed(t *testing.T) {
	m, store, events := setupManager(t, &fakeAuth{})
	ctx := context.Background()
	require.NoError(t, store.SetSession(ctx, model.Session{Token: "tok", ExpiresAt: testNow.UnixMilli() + 1000}))

	assert.False(t, m.HandleError(ctx, &remote.Error{Op: "getBook", Err: remote.ErrNetwork}))
	assert.True(t, m.IsSessionValid(ctx))

	assert.True(t, m.HandleError(ctx, &remote.Error{Op: "getBook", Status: 401, Err: remote.ErrUnauthorized}))
	assert.False(t, m.IsSessionValid(ctx))

	_, err := m.Token(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, []bool{false}, *events)
}

func TestLogout_AlwaysClears(t *testing.T) {
	auth := &fakeAuth{logoutErr: &remote.Error{Op: "logout", Err: remote.ErrNetwork}}
	m, store, events := setupManager(t, auth)
	ctx := context.Background()
	require.NoError(t, store.SetSession(ctx, model.Session{Token: "tok", ExpiresAt: testNow.UnixMilli() + 1000}))

	err := m.Logout(ctx)
	assert.True(t, errors.Is(err, remote.ErrNetwork))
	assert.False(t, m.IsSessionValid(ctx))
	assert.Equal(t, []string{"logout:tok"}, auth.loggedOut)
	assert.Equal(t, []bool{false}, *events)
}

func TestLogoutAll_WithoutSessionSkipsServer(t *testing.T) {
	auth := &fakeAuth{}
	m, _, events := setupManager(t, auth)

	require.NoError(t, m.LogoutAll(context.Background()))
	assert.Empty(t, auth.loggedOut)
	assert.Empty(t, *events)
}
