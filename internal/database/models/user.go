package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/dbretry"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// UserModel handles database operations for user records and their
// dependent rows.
type UserModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewUser creates a new user model.
func NewUser(db *bun.DB, logger *zap.Logger) *UserModel {
	return &UserModel{
		db:     db,
		logger: logger.Named("db_user"),
	}
}

// GetUser fetches a user by ID. Returns (nil, nil) when the user does not
// exist.
func (m *UserModel) GetUser(ctx context.Context, id uint64) (*types.User, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.User, error) {
		user := new(types.User)

		err := m.db.NewSelect().
			Model(user).
			Where("user_id = ?", id).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get user %d: %w", id, err)
		}

		return user, nil
	})
}

// UpsertUser inserts or updates a user record. The local created_at and
// last_inspected_at columns are left untouched on update.
func (m *UserModel) UpsertUser(ctx context.Context, user *types.User) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(user).
			On("CONFLICT (user_id) DO UPDATE").
			Set("screen_name = EXCLUDED.screen_name").
			Set("url = EXCLUDED.url").
			Set("avatar_id = EXCLUDED.avatar_id").
			Set("remote_created_at = EXCLUDED.remote_created_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
		}

		return nil
	})
}

// SetLastInspected records when a user was last run through the inspection
// pipeline.
func (m *UserModel) SetLastInspected(ctx context.Context, id uint64, at time.Time) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.User)(nil)).
			Set("last_inspected_at = ?", at).
			Where("user_id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set last inspected for user %d: %w", id, err)
		}

		return nil
	})
}

// DeleteUser removes a user and every dependent row in one transaction.
func (m *UserModel) DeleteUser(ctx context.Context, id uint64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		dependents := []any{
			(*types.UserDetail)(nil),
			(*types.UserLink)(nil),
			(*types.UserToken)(nil),
			(*types.UserWord)(nil),
			(*types.UserWordAdjacent)(nil),
			(*types.UserHostname)(nil),
			(*types.UserTrait)(nil),
			(*types.UserTraitInstance)(nil),
			(*types.UserGroupAssoc)(nil),
			(*types.UserTag)(nil),
			(*types.DeferredUser)(nil),
			(*types.NewUser)(nil),
			(*types.Session)(nil),
			(*types.Account)(nil),
		}

		for _, model := range dependents {
			if _, err := tx.NewDelete().
				Model(model).
				Where("user_id = ?", id).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete %T rows for user %d: %w", model, id, err)
			}
		}

		if _, err := tx.NewDelete().
			Model((*types.User)(nil)).
			Where("user_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete user %d: %w", id, err)
		}

		m.logger.Info("Deleted user", zap.Uint64("userID", id))

		return nil
	})
}

// KnownIDs returns the subset of the given IDs that already exist as a User
// or a NewUser row.
func (m *UserModel) KnownIDs(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	if len(ids) == 0 {
		return map[uint64]struct{}{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[uint64]struct{}, error) {
		known := make(map[uint64]struct{}, len(ids))

		var userIDs []uint64
		if err := m.db.NewSelect().
			Model((*types.User)(nil)).
			Column("user_id").
			Where("user_id IN (?)", bun.In(ids)).
			Scan(ctx, &userIDs); err != nil {
			return nil, fmt.Errorf("failed to filter known users: %w", err)
		}

		var newIDs []uint64
		if err := m.db.NewSelect().
			Model((*types.NewUser)(nil)).
			Column("user_id").
			Where("user_id IN (?)", bun.In(ids)).
			Scan(ctx, &newIDs); err != nil {
			return nil, fmt.Errorf("failed to filter queued users: %w", err)
		}

		for _, id := range userIDs {
			known[id] = struct{}{}
		}

		for _, id := range newIDs {
			known[id] = struct{}{}
		}

		return known, nil
	})
}

// GetDetail fetches a user's profile detail row. Returns (nil, nil) when
// the user has not been inspected yet.
func (m *UserModel) GetDetail(ctx context.Context, userID uint64) (*types.UserDetail, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserDetail, error) {
		detail := new(types.UserDetail)

		err := m.db.NewSelect().
			Model(detail).
			Where("user_id = ?", userID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get detail for user %d: %w", userID, err)
		}

		return detail, nil
	})
}

// UpsertDetail inserts or replaces a user's profile detail row.
func (m *UserModel) UpsertDetail(ctx context.Context, detail *types.UserDetail) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(detail).
			On("CONFLICT (user_id) DO UPDATE").
			Set("about_me = EXCLUDED.about_me").
			Set("who_am_i = EXCLUDED.who_am_i").
			Set("location = EXCLUDED.location").
			Set("what_i_would_like_to_do = EXCLUDED.what_i_would_like_to_do").
			Set("project_count = EXCLUDED.project_count").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert detail for user %d: %w", detail.UserID, err)
		}

		return nil
	})
}

// UpsertLink records an outbound link on a user's profile, updating the
// title if the URL is already known.
func (m *UserModel) UpsertLink(ctx context.Context, userID uint64, url, title string) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		link := &types.UserLink{UserID: userID, URL: url, Title: title}

		_, err := m.db.NewInsert().
			Model(link).
			On("CONFLICT (user_id, url) DO UPDATE").
			Set("title = EXCLUDED.title").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert link for user %d: %w", userID, err)
		}

		return nil
	})
}

// GetLinks returns every recorded link for a user.
func (m *UserModel) GetLinks(ctx context.Context, userID uint64) ([]types.UserLink, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]types.UserLink, error) {
		var links []types.UserLink

		if err := m.db.NewSelect().
			Model(&links).
			Where("user_id = ?", userID).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get links for user %d: %w", userID, err)
		}

		return links, nil
	})
}

// SetTokens replaces a user's suspicious-token counters with the given
// values. Tokens absent from counts, or with a non-positive count, are
// deleted.
func (m *UserModel) SetTokens(ctx context.Context, userID uint64, counts map[string]int64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		keep := make([]string, 0, len(counts))
		rows := make([]types.UserToken, 0, len(counts))

		for token, count := range counts {
			if count <= 0 {
				continue
			}

			keep = append(keep, token)
			rows = append(rows, types.UserToken{UserID: userID, Token: token, Count: count})
		}

		query := tx.NewDelete().
			Model((*types.UserToken)(nil)).
			Where("user_id = ?", userID)

		if len(keep) > 0 {
			query = query.Where("token NOT IN (?)", bun.In(keep))
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune tokens for user %d: %w", userID, err)
		}

		if len(rows) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (user_id, token) DO UPDATE").
			Set("count = EXCLUDED.count").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert tokens for user %d: %w", userID, err)
		}

		return nil
	})
}

// UpsertTags records the given tag names and links them to the user.
func (m *UserModel) UpsertTags(ctx context.Context, userID uint64, names []string) error {
	if len(names) == 0 {
		return nil
	}

	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		tags := make([]types.Tag, 0, len(names))
		for _, name := range names {
			tags = append(tags, types.Tag{Name: name})
		}

		if _, err := tx.NewInsert().
			Model(&tags).
			On("CONFLICT (tag) DO UPDATE").
			Set("tag = EXCLUDED.tag").
			Returning("tag_id").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert tags: %w", err)
		}

		assocs := make([]types.UserTag, 0, len(tags))
		for _, tag := range tags {
			assocs = append(assocs, types.UserTag{UserID: userID, TagID: tag.ID})
		}

		if _, err := tx.NewInsert().
			Model(&assocs).
			On("CONFLICT (user_id, tag_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to link tags to user %d: %w", userID, err)
		}

		return nil
	})
}

// DeleteEvidence removes the per-user classifier evidence rows kept for a
// user: details, links, tokens, corpus counters and trait links. Used when
// a moderator marks the user legitimate.
func (m *UserModel) DeleteEvidence(ctx context.Context, userID uint64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		evidence := []any{
			(*types.UserDetail)(nil),
			(*types.UserLink)(nil),
			(*types.UserToken)(nil),
			(*types.UserWord)(nil),
			(*types.UserWordAdjacent)(nil),
			(*types.UserHostname)(nil),
			(*types.UserTrait)(nil),
			(*types.UserTraitInstance)(nil),
		}

		for _, model := range evidence {
			if _, err := tx.NewDelete().
				Model(model).
				Where("user_id = ?", userID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to delete %T rows for user %d: %w", model, userID, err)
			}
		}

		return nil
	})
}
