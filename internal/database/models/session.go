package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/dbretry"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SessionModel handles database operations for front-end sessions and
// local operator accounts.
type SessionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewSession creates a new session model.
func NewSession(db *bun.DB, logger *zap.Logger) *SessionModel {
	return &SessionModel{
		db:     db,
		logger: logger.Named("db_session"),
	}
}

// Create opens a session for the given user, valid until expiry. The
// session ID is a fresh UUID.
func (m *SessionModel) Create(ctx context.Context, userID uint64, expiry time.Time) (*types.Session, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Session, error) {
		session := &types.Session{
			ID:     uuid.NewString(),
			UserID: userID,
			Expiry: expiry,
		}

		if _, err := m.db.NewInsert().
			Model(session).
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to create session for user %d: %w", userID, err)
		}

		return session, nil
	})
}

// Get fetches a session by ID, treating expired sessions as absent.
func (m *SessionModel) Get(ctx context.Context, id string) (*types.Session, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Session, error) {
		session := new(types.Session)

		err := m.db.NewSelect().
			Model(session).
			Where("session_id = ?", id).
			Where("expiry_date > ?", time.Now()).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}

		return session, nil
	})
}

// Delete removes a session.
func (m *SessionModel) Delete(ctx context.Context, id string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewDelete().
			Model((*types.Session)(nil)).
			Where("session_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}

		return nil
	})
}

// DeleteExpired prunes sessions past their expiry date.
func (m *SessionModel) DeleteExpired(ctx context.Context) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		res, err := m.db.NewDelete().
			Model((*types.Session)(nil)).
			Where("expiry_date <= ?", time.Now()).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to prune sessions: %w", err)
		}

		pruned, _ := res.RowsAffected()
		if pruned > 0 {
			m.logger.Debug("Pruned expired sessions", zap.Int64("count", pruned))
		}

		return pruned, nil
	})
}

// GetAccount fetches a local login by name, or (nil, nil) when absent.
func (m *SessionModel) GetAccount(ctx context.Context, name string) (*types.Account, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Account, error) {
		account := new(types.Account)

		err := m.db.NewSelect().
			Model(account).
			Where("name = ?", name).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get account %q: %w", name, err)
		}

		return account, nil
	})
}

// UpsertAccount creates or replaces a local login.
func (m *SessionModel) UpsertAccount(ctx context.Context, account *types.Account) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(account).
			On("CONFLICT (user_id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("hashed_password = EXCLUDED.hashed_password").
			Set("change_next_login = EXCLUDED.change_next_login").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert account %q: %w", account.Name, err)
		}

		return nil
	})
}
