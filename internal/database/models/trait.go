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

// TraitModel handles database operations for traits, their keyed instances
// and the per-user links pointing at them.
type TraitModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTrait creates a new trait model.
func NewTrait(db *bun.DB, logger *zap.Logger) *TraitModel {
	return &TraitModel{
		db:     db,
		logger: logger.Named("db_trait"),
	}
}

// EnsureTrait returns the trait row for the given class, creating it with
// the supplied type and weight if it does not exist. An existing row's
// stats and weight are left untouched.
func (m *TraitModel) EnsureTrait(
	ctx context.Context, class string, traitType types.TraitType, weight float64,
) (*types.Trait, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.Trait, error) {
		trait := &types.Trait{Class: class, Type: traitType, Weight: weight}

		if _, err := m.db.NewInsert().
			Model(trait).
			On("CONFLICT (trait_class) DO UPDATE").
			Set("trait_class = EXCLUDED.trait_class").
			Returning("*").
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure trait %q: %w", class, err)
		}

		return trait, nil
	})
}

// EnsureStringInstance returns the instance of a string-keyed trait for
// the given value, creating it if needed.
func (m *TraitModel) EnsureStringInstance(ctx context.Context, traitID int64, value string) (*types.TraitInstance, error) {
	return m.ensureInstance(ctx, traitID,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("trait_string = ?", value)
		},
		&types.TraitInstance{TraitID: traitID, Value: &value})
}

// EnsureHashInstance returns the instance of an image-hash-keyed trait for
// the given avatar hash, creating it if needed.
func (m *TraitModel) EnsureHashInstance(ctx context.Context, traitID, hashID int64) (*types.TraitInstance, error) {
	return m.ensureInstance(ctx, traitID,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("trait_hash_id = ?", hashID)
		},
		&types.TraitInstance{TraitID: traitID, HashID: &hashID})
}

// EnsurePairInstance returns the instance of a pair-keyed trait for the
// given pair of other instances, creating it if needed.
func (m *TraitModel) EnsurePairInstance(ctx context.Context, traitID, prevID, nextID int64) (*types.TraitInstance, error) {
	return m.ensureInstance(ctx, traitID,
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("prev_id = ?", prevID).Where("next_id = ?", nextID)
		},
		&types.TraitInstance{TraitID: traitID, PrevID: &prevID, NextID: &nextID})
}

// ensureInstance looks up an instance by the caller's key predicate inside
// a transaction, inserting the template row when no match exists. The
// transaction keeps concurrent ensures from racing into duplicates.
func (m *TraitModel) ensureInstance(
	ctx context.Context, traitID int64,
	match func(*bun.SelectQuery) *bun.SelectQuery,
	template *types.TraitInstance,
) (*types.TraitInstance, error) {
	var instance *types.TraitInstance

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		existing := new(types.TraitInstance)

		err := match(tx.NewSelect().
			Model(existing).
			Where("trait_id = ?", traitID).
			For("UPDATE")).
			Scan(ctx)
		if err == nil {
			instance = existing
			return nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up trait instance: %w", err)
		}

		if _, err := tx.NewInsert().
			Model(template).
			Returning("*").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create trait instance: %w", err)
		}

		instance = template

		return nil
	})
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// IncrementTrait folds count observations with the given direction into a
// singleton trait's aggregate stats.
func (m *TraitModel) IncrementTrait(ctx context.Context, traitID, count, direction int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewUpdate().
			Model((*types.Trait)(nil)).
			Set("score = score + ?", direction*count).
			Set("count = count + ?", count).
			Where("trait_id = ?", traitID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to increment trait %d: %w", traitID, err)
		}

		return nil
	})
}

// IncrementInstance folds count observations with the given direction into
// a trait instance's stats.
func (m *TraitModel) IncrementInstance(ctx context.Context, instanceID, count, direction int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewUpdate().
			Model((*types.TraitInstance)(nil)).
			Set("score = score + ?", direction*count).
			Set("count = count + ?", count).
			Where("trait_inst_id = ?", instanceID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to increment trait instance %d: %w", instanceID, err)
		}

		return nil
	})
}

// SetUserTrait records how often a singleton trait fired for a user.
func (m *TraitModel) SetUserTrait(ctx context.Context, userID uint64, traitID, count int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if count <= 0 {
			_, err := m.db.NewDelete().
				Model((*types.UserTrait)(nil)).
				Where("user_id = ?", userID).
				Where("trait_id = ?", traitID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete user trait: %w", err)
			}

			return nil
		}

		row := &types.UserTrait{UserID: userID, TraitID: traitID, Count: count}

		if _, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (user_id, trait_id) DO UPDATE").
			Set("count = EXCLUDED.count").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert user trait: %w", err)
		}

		return nil
	})
}

// SetUserInstance records how often a keyed trait instance fired for a
// user.
func (m *TraitModel) SetUserInstance(ctx context.Context, userID uint64, instanceID, count int64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if count <= 0 {
			_, err := m.db.NewDelete().
				Model((*types.UserTraitInstance)(nil)).
				Where("user_id = ?", userID).
				Where("trait_inst_id = ?", instanceID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete user trait instance: %w", err)
			}

			return nil
		}

		row := &types.UserTraitInstance{UserID: userID, InstanceID: instanceID, Count: count}

		if _, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (user_id, trait_inst_id) DO UPDATE").
			Set("count = EXCLUDED.count").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert user trait instance: %w", err)
		}

		return nil
	})
}

// StoredUserTrait is a user's persisted singleton trait link joined with
// its trait row.
type StoredUserTrait struct {
	Trait types.Trait
	Count int64
}

// StoredUserInstance is a user's persisted keyed trait link joined with
// its instance and owning trait rows.
type StoredUserInstance struct {
	Trait    types.Trait
	Instance types.TraitInstance
	Count    int64
}

// GetUserTraits returns the user's singleton trait links as written at
// inspection time.
func (m *TraitModel) GetUserTraits(ctx context.Context, userID uint64) ([]StoredUserTrait, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]StoredUserTrait, error) {
		var links []types.UserTrait

		if err := m.db.NewSelect().
			Model(&links).
			Where("user_id = ?", userID).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get trait links for user %d: %w", userID, err)
		}

		if len(links) == 0 {
			return nil, nil
		}

		traitIDs := make([]int64, len(links))
		for i, link := range links {
			traitIDs[i] = link.TraitID
		}

		traitRows, err := m.getTraitsByID(ctx, traitIDs)
		if err != nil {
			return nil, err
		}

		stored := make([]StoredUserTrait, 0, len(links))

		for _, link := range links {
			trait, ok := traitRows[link.TraitID]
			if !ok {
				continue
			}

			stored = append(stored, StoredUserTrait{Trait: trait, Count: link.Count})
		}

		return stored, nil
	})
}

// GetUserInstances returns the user's keyed trait instance links as written
// at inspection time.
func (m *TraitModel) GetUserInstances(ctx context.Context, userID uint64) ([]StoredUserInstance, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]StoredUserInstance, error) {
		var links []types.UserTraitInstance

		if err := m.db.NewSelect().
			Model(&links).
			Where("user_id = ?", userID).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get instance links for user %d: %w", userID, err)
		}

		if len(links) == 0 {
			return nil, nil
		}

		instanceIDs := make([]int64, len(links))
		for i, link := range links {
			instanceIDs[i] = link.InstanceID
		}

		var instanceRows []types.TraitInstance

		if err := m.db.NewSelect().
			Model(&instanceRows).
			Where("trait_inst_id IN (?)", bun.In(instanceIDs)).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to get trait instances: %w", err)
		}

		instances := make(map[int64]types.TraitInstance, len(instanceRows))
		traitIDs := make([]int64, 0, len(instanceRows))

		for _, row := range instanceRows {
			instances[row.ID] = row
			traitIDs = append(traitIDs, row.TraitID)
		}

		traitRows, err := m.getTraitsByID(ctx, traitIDs)
		if err != nil {
			return nil, err
		}

		stored := make([]StoredUserInstance, 0, len(links))

		for _, link := range links {
			instance, ok := instances[link.InstanceID]
			if !ok {
				continue
			}

			trait, ok := traitRows[instance.TraitID]
			if !ok {
				continue
			}

			stored = append(stored, StoredUserInstance{
				Trait:    trait,
				Instance: instance,
				Count:    link.Count,
			})
		}

		return stored, nil
	})
}

func (m *TraitModel) getTraitsByID(ctx context.Context, ids []int64) (map[int64]types.Trait, error) {
	if len(ids) == 0 {
		return map[int64]types.Trait{}, nil
	}

	var rows []types.Trait

	if err := m.db.NewSelect().
		Model(&rows).
		Where("trait_id IN (?)", bun.In(ids)).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to get traits: %w", err)
	}

	byID := make(map[int64]types.Trait, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	return byID, nil
}

// DeleteUserLinks discards every per-user trait link for a user, as done
// after a verdict has been folded into the corpus.
func (m *TraitModel) DeleteUserLinks(ctx context.Context, userID uint64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range []any{
			(*types.UserTrait)(nil),
			(*types.UserTraitInstance)(nil),
		} {
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
