package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/duobook/duobook-go/internal/model"
)

const (
	loginSetting   = "login"
	sessionSetting = "session"
)

// Session returns the stored session. A device that never logged in gets the
// zero Session, which is never valid.
func (s *Store) Session(ctx context.Context) (model.Session, error) {
	var sess model.Session
	err := s.getSetting(ctx, sessionSetting, &sess)
	if errors.Is(err, ErrNotFound) {
		return model.Session{}, nil
	}
	return sess, err
}

// SetSession replaces the stored session.
func (s *Store) SetSession(ctx context.Context, sess model.Session) error {
	return s.putSetting(ctx, sessionSetting, sess)
}

// LoginInfo returns the cached server address and email, or ErrNotFound.
func (s *Store) LoginInfo(ctx context.Context) (model.LoginInfo, error) {
	var info model.LoginInfo
	err := s.getSetting(ctx, loginSetting, &info)
	return info, err
}

// SetLoginInfo replaces the cached login details.
func (s *Store) SetLoginInfo(ctx context.Context, info model.LoginInfo) error {
	return s.putSetting(ctx, loginSetting, info)
}

func (s *Store) getSetting(ctx context.Context, name string, dst any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get setting %s: %w", name, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
}

func (s *Store) putSetting(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingPrefix+name), data)
	})
}
