// Package admin implements the moderation gate: one-time credential
// bootstrap, password login, and bearer-token session checks.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jokehub-net/jokehub/internal/model"
	"github.com/jokehub-net/jokehub/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for both a wrong username and a
	// wrong password so login failures do not leak which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrInvalidUsername    = errors.New("username must be 2-64 characters")
)

// SessionStore is the session persistence the gate needs. It is injected so
// tests and alternate deployments can swap the backing store.
type SessionStore interface {
	InitAdmin(ctx context.Context, admin *model.Admin) error
	GetAdmin(ctx context.Context, username string) (model.Admin, error)
	CreateAdminSession(ctx context.Context, session model.AdminSession) error
	GetAdminSession(ctx context.Context, token string) (model.AdminSession, error)
	DeleteAdminSession(ctx context.Context, token string) error
}

type Gate struct {
	sessions   SessionStore
	sessionTTL time.Duration
	now        func() time.Time
}

func NewGate(sessions SessionStore, sessionTTL time.Duration) *Gate {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Gate{sessions: sessions, sessionTTL: sessionTTL, now: time.Now}
}

// Initialize sets the admin credential. It succeeds exactly once; later
// calls fail with store.ErrAlreadyInitialized regardless of the password.
func (g *Gate) Initialize(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if len(username) < 2 || len(username) > 64 {
		return ErrInvalidUsername
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return g.sessions.InitAdmin(ctx, &model.Admin{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    g.now(),
	})
}

// Login checks the credential and mints a session token valid for the
// gate's TTL.
func (g *Gate) Login(ctx context.Context, username, password string) (model.AdminSession, error) {
	admin, err := g.sessions.GetAdmin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.AdminSession{}, ErrInvalidCredentials
		}
		return model.AdminSession{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return model.AdminSession{}, ErrInvalidCredentials
	}

	session := model.AdminSession{
		Token:     uuid.NewString(),
		Username:  admin.Username,
		ExpiresAt: g.now().Add(g.sessionTTL),
	}
	if err := g.sessions.CreateAdminSession(ctx, session); err != nil {
		return model.AdminSession{}, err
	}
	return session, nil
}

// Verify reports whether the token names a live session. Expired sessions
// are deleted on sight rather than by a background sweep.
func (g *Gate) Verify(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	session, err := g.sessions.GetAdminSession(ctx, token)
	if err != nil {
		return false
	}
	if !g.now().Before(session.ExpiresAt) {
		_ = g.sessions.DeleteAdminSession(ctx, token)
		return false
	}
	return true
}

// Logout invalidates the token. Unknown tokens are not an error.
func (g *Gate) Logout(ctx context.Context, token string) error {
	err := g.sessions.DeleteAdminSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
