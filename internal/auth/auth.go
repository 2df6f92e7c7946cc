// Package auth keeps the session and local-account bookkeeping used by
// front-ends: OAuth logins against the platform, password logins for
// operators, and session validation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionLife is how long a session stays valid without renewal.
const DefaultSessionLife = 7 * 24 * time.Hour

var (
	// ErrBadCredentials covers unknown account names and wrong
	// passwords alike, so a caller cannot probe for valid names.
	ErrBadCredentials = errors.New("unknown account or wrong password")

	// ErrNoSession means the session ID is unknown or expired.
	ErrNoSession = errors.New("no such session")
)

// UserUpdater stores or refreshes a user from an API record. The crawler
// implements it; auth uses it so a login also freshens the user row.
type UserUpdater interface {
	UpdateUserFromData(
		ctx context.Context, data *platform.User, inspectAll, deferOK bool,
	) (*types.User, bool, error)
}

// Manager issues and validates sessions.
type Manager struct {
	db          database.Client
	api         *platform.API
	updater     UserUpdater
	sessionLife time.Duration
	logger      *zap.Logger
}

// NewManager creates a session manager. updater may be nil, in which case
// OAuth logins only work for users already in the store.
func NewManager(
	db database.Client, api *platform.API, updater UserUpdater,
	sessionLife time.Duration, logger *zap.Logger,
) *Manager {
	if sessionLife <= 0 {
		sessionLife = DefaultSessionLife
	}

	return &Manager{
		db:          db,
		api:         api,
		updater:     updater,
		sessionLife: sessionLife,
		logger:      logger.Named("auth"),
	}
}

// LoginOAuth exchanges an authorisation code for a platform token,
// resolves the user behind it and opens a session for them.
func (m *Manager) LoginOAuth(ctx context.Context, code string) (*types.Session, *types.User, error) {
	token, err := m.api.GetToken(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	data, err := m.api.GetCurrentUser(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve token user: %w", err)
	}

	var user *types.User

	if m.updater != nil {
		user, _, err = m.updater.UpdateUserFromData(ctx, data, false, false)
	} else {
		user, err = m.db.Model().User().GetUser(ctx, data.ID)
	}

	if err != nil {
		return nil, nil, err
	}

	if user == nil {
		return nil, nil, fmt.Errorf("user %d is not known to the store", data.ID)
	}

	session, err := m.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	return session, user, nil
}

// LoginAccount opens a session for a local password login.
func (m *Manager) LoginAccount(ctx context.Context, name, password string) (*types.Session, error) {
	account, err := m.db.Model().Session().GetAccount(ctx, name)
	if err != nil {
		return nil, err
	}

	if account == nil {
		return nil, ErrBadCredentials
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(account.HashedPassword), []byte(password)); err != nil {
		m.logger.Warn("Rejected password login", zap.String("name", name))

		return nil, ErrBadCredentials
	}

	return m.openSession(ctx, account.UserID)
}

// SetAccountPassword creates or updates a local login for the user.
func (m *Manager) SetAccountPassword(
	ctx context.Context, userID uint64, name, password string, changeNextLogin bool,
) error {
	hashed, err := HashPassword(password)
	if err != nil {
		return err
	}

	return m.db.Model().Session().UpsertAccount(ctx, &types.Account{
		UserID:          userID,
		Name:            name,
		HashedPassword:  hashed,
		ChangeNextLogin: changeNextLogin,
	})
}

// Validate returns the session if it exists and has not expired.
func (m *Manager) Validate(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := m.db.Model().Session().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, ErrNoSession
	}

	return session, nil
}

// Logout discards a session.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	return m.db.Model().Session().Delete(ctx, sessionID)
}

// PurgeExpired removes every expired session and returns how many went.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.db.Model().Session().DeleteExpired(ctx)
}

func (m *Manager) openSession(ctx context.Context, userID uint64) (*types.Session, error) {
	session, err := m.db.Model().Session().Create(
		ctx, userID, time.Now().UTC().Add(m.sessionLife))
	if err != nil {
		return nil, err
	}

	m.logger.Info("Opened session", zap.Uint64("userID", userID))

	return session, nil
}

// HashPassword derives the storable hash for a password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashed), nil
}
