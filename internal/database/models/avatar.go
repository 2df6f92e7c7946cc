package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/dbretry"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AvatarModel handles database operations for cached avatars and their
// hashes.
type AvatarModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAvatar creates a new avatar model.
func NewAvatar(db *bun.DB, logger *zap.Logger) *AvatarModel {
	return &AvatarModel{
		db:     db,
		logger: logger.Named("db_avatar"),
	}
}

// UpsertAvatar returns the avatar row for the given URL, creating an empty
// one if the URL has not been seen before.
func (m *AvatarModel) UpsertAvatar(ctx context.Context, url string) (*types.Avatar, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Avatar, error) {
		avatar := &types.Avatar{URL: url}

		_, err := m.db.NewInsert().
			Model(avatar).
			On("CONFLICT (url) DO UPDATE").
			Set("url = EXCLUDED.url").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert avatar %s: %w", url, err)
		}

		return avatar, nil
	})
}

// GetAvatar fetches an avatar by ID. Returns (nil, nil) when it does not
// exist.
func (m *AvatarModel) GetAvatar(ctx context.Context, id int64) (*types.Avatar, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Avatar, error) {
		avatar := new(types.Avatar)

		err := m.db.NewSelect().
			Model(avatar).
			Where("avatar_id = ?", id).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get avatar %d: %w", id, err)
		}

		return avatar, nil
	})
}

// SetAvatarData stores the fetched image body and its content type.
func (m *AvatarModel) SetAvatarData(ctx context.Context, id int64, contentType string, data []byte) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.Avatar)(nil)).
			Set("avatar_type = ?", contentType).
			Set("avatar = ?", data).
			Where("avatar_id = ?", id).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to store avatar %d body: %w", id, err)
		}

		return nil
	})
}

// UpsertHash returns the hash row for (algorithm, digest), creating it if
// needed, and associates it with the given avatar.
func (m *AvatarModel) UpsertHash(
	ctx context.Context, avatarID int64, algorithm, digest string,
) (*types.AvatarHash, error) {
	var hash *types.AvatarHash

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		hash = &types.AvatarHash{Algorithm: algorithm, Digest: digest}

		if _, err := tx.NewInsert().
			Model(hash).
			On("CONFLICT (hash_algo, hash_data) DO UPDATE").
			Set("hash_algo = EXCLUDED.hash_algo").
			Returning("*").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert %s hash: %w", algorithm, err)
		}

		assoc := &types.AvatarHashAssoc{AvatarID: avatarID, HashID: hash.ID}

		if _, err := tx.NewInsert().
			Model(assoc).
			On("CONFLICT (avatar_id, hash_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to associate hash with avatar %d: %w", avatarID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return hash, nil
}

// GetHash returns the avatar's hash for the given algorithm, or (nil, nil)
// if it has not been computed yet.
func (m *AvatarModel) GetHash(ctx context.Context, avatarID int64, algorithm string) (*types.AvatarHash, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.AvatarHash, error) {
		hash := new(types.AvatarHash)

		err := m.db.NewSelect().
			Model(hash).
			Join("JOIN avatar_hash_assoc AS aha ON aha.hash_id = ah.hash_id").
			Where("aha.avatar_id = ?", avatarID).
			Where("ah.hash_algo = ?", algorithm).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get %s hash for avatar %d: %w", algorithm, avatarID, err)
		}

		return hash, nil
	})
}

// GetHashes returns every hash associated with an avatar, keyed by
// algorithm.
func (m *AvatarModel) GetHashes(ctx context.Context, avatarID int64) (map[string]types.AvatarHash, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[string]types.AvatarHash, error) {
		var hashes []types.AvatarHash

		if err := m.db.NewSelect().
			Model(&hashes).
			Join("JOIN avatar_hash_assoc AS aha ON aha.hash_id = ah.hash_id").
			Where("aha.avatar_id = ?", avatarID).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get hashes for avatar %d: %w", avatarID, err)
		}

		byAlgo := make(map[string]types.AvatarHash, len(hashes))
		for _, hash := range hashes {
			byAlgo[hash.Algorithm] = hash
		}

		return byAlgo, nil
	})
}
