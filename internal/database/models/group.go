package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/dbretry"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// exclusions maps each group to the groups a user must leave on joining
// it. Automatic groups exclude each other; a manual verdict clears both
// automatic groups and the opposite verdict.
var exclusions = map[types.GroupName][]types.GroupName{
	types.GroupAutoLegit:   {types.GroupAutoSuspect},
	types.GroupAutoSuspect: {types.GroupAutoLegit},
	types.GroupLegit: {
		types.GroupSuspect, types.GroupAutoLegit, types.GroupAutoSuspect,
	},
	types.GroupSuspect: {
		types.GroupLegit, types.GroupAutoLegit, types.GroupAutoSuspect,
	},
}

// GroupModel handles database operations for classification groups.
type GroupModel struct {
	db     *bun.DB
	logger *zap.Logger

	mu  sync.Mutex
	ids map[types.GroupName]int64
}

// NewGroup creates a new group model.
func NewGroup(db *bun.DB, logger *zap.Logger) *GroupModel {
	return &GroupModel{
		db:     db,
		logger: logger.Named("db_group"),
		ids:    make(map[types.GroupName]int64),
	}
}

// groupID resolves a group name to its row ID, caching the result. Group
// rows are seeded by the migrations and never change.
func (m *GroupModel) groupID(ctx context.Context, idb bun.IDB, name types.GroupName) (int64, error) {
	m.mu.Lock()
	id, ok := m.ids[name]
	m.mu.Unlock()

	if ok {
		return id, nil
	}

	group := new(types.Group)

	if err := idb.NewSelect().
		Model(group).
		Where("name = ?", name).
		Scan(ctx); err != nil {
		return 0, fmt.Errorf("failed to resolve group %q: %w", name, err)
	}

	m.mu.Lock()
	m.ids[name] = group.ID
	m.mu.Unlock()

	return group.ID, nil
}

// Assign adds a user to a group, removing any memberships the group
// excludes in the same transaction.
func (m *GroupModel) Assign(ctx context.Context, userID uint64, name types.GroupName) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		for _, excluded := range exclusions[name] {
			if err := m.remove(ctx, tx, userID, excluded); err != nil {
				return err
			}
		}

		id, err := m.groupID(ctx, tx, name)
		if err != nil {
			return err
		}

		assoc := &types.UserGroupAssoc{UserID: userID, GroupID: id}

		if _, err := tx.NewInsert().
			Model(assoc).
			On("CONFLICT (user_id, group_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to assign user %d to %q: %w", userID, name, err)
		}

		return nil
	})
}

// Remove takes a user out of a group.
func (m *GroupModel) Remove(ctx context.Context, userID uint64, name types.GroupName) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		return m.remove(ctx, m.db, userID, name)
	})
}

func (m *GroupModel) remove(ctx context.Context, idb bun.IDB, userID uint64, name types.GroupName) error {
	id, err := m.groupID(ctx, idb, name)
	if err != nil {
		return err
	}

	if _, err := idb.NewDelete().
		Model((*types.UserGroupAssoc)(nil)).
		Where("user_id = ?", userID).
		Where("group_id = ?", id).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove user %d from %q: %w", userID, name, err)
	}

	return nil
}

// UserGroups returns the set of groups a user belongs to.
func (m *GroupModel) UserGroups(ctx context.Context, userID uint64) (map[types.GroupName]struct{}, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (map[types.GroupName]struct{}, error) {
		var names []types.GroupName

		if err := m.db.NewSelect().
			Model((*types.Group)(nil)).
			Column("name").
			Join("JOIN user_group_assoc AS uga ON uga.group_id = g.group_id").
			Where("uga.user_id = ?", userID).
			Scan(ctx, &names); err != nil {
			return nil, fmt.Errorf("failed to get groups for user %d: %w", userID, err)
		}

		groups := make(map[types.GroupName]struct{}, len(names))
		for _, name := range names {
			groups[name] = struct{}{}
		}

		return groups, nil
	})
}

// Members returns the user IDs belonging to a group.
func (m *GroupModel) Members(ctx context.Context, name types.GroupName) ([]uint64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]uint64, error) {
		id, err := m.groupID(ctx, m.db, name)
		if err != nil {
			return nil, err
		}

		var ids []uint64

		if err := m.db.NewSelect().
			Model((*types.UserGroupAssoc)(nil)).
			Column("user_id").
			Where("group_id = ?", id).
			Scan(ctx, &ids); err != nil {
			return nil, fmt.Errorf("failed to list members of %q: %w", name, err)
		}

		return ids, nil
	})
}

// SetMembers makes the group's membership exactly the given set of user
// IDs, adding and removing as needed in one transaction.
func (m *GroupModel) SetMembers(ctx context.Context, name types.GroupName, ids []uint64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		groupID, err := m.groupID(ctx, tx, name)
		if err != nil {
			return err
		}

		query := tx.NewDelete().
			Model((*types.UserGroupAssoc)(nil)).
			Where("group_id = ?", groupID)

		if len(ids) > 0 {
			query = query.Where("user_id NOT IN (?)", bun.In(ids))
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune members of %q: %w", name, err)
		}

		if len(ids) == 0 {
			return nil
		}

		assocs := make([]types.UserGroupAssoc, 0, len(ids))
		for _, id := range ids {
			assocs = append(assocs, types.UserGroupAssoc{UserID: id, GroupID: groupID})
		}

		if _, err := tx.NewInsert().
			Model(&assocs).
			On("CONFLICT (user_id, group_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to set members of %q: %w", name, err)
		}

		m.logger.Debug("Replaced group membership",
			zap.String("group", string(name)),
			zap.Int("members", len(ids)))

		return nil
	})
}
