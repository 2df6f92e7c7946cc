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

// QueueModel handles database operations for the discovery inbox, the
// deferred-inspection queue and the discovery page cursor.
type QueueModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewQueue creates a new queue model.
func NewQueue(db *bun.DB, logger *zap.Logger) *QueueModel {
	return &QueueModel{
		db:     db,
		logger: logger.Named("db_queue"),
	}
}

// EnqueueNew adds discovered user IDs to the inbox, ignoring duplicates.
func (m *QueueModel) EnqueueNew(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		rows := make([]types.NewUser, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, types.NewUser{UserID: id})
		}

		if _, err := m.db.NewInsert().
			Model(&rows).
			On("CONFLICT (user_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to enqueue new users: %w", err)
		}

		return nil
	})
}

// ListNew returns up to limit inbox IDs, newest (highest) first.
func (m *QueueModel) ListNew(ctx context.Context, limit int) ([]uint64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]uint64, error) {
		var ids []uint64

		if err := m.db.NewSelect().
			Model((*types.NewUser)(nil)).
			Column("user_id").
			OrderExpr("user_id DESC").
			Limit(limit).
			Scan(ctx, &ids); err != nil {
			return nil, fmt.Errorf("failed to list new users: %w", err)
		}

		return ids, nil
	})
}

// DeleteNew removes the given IDs from the inbox.
func (m *QueueModel) DeleteNew(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewDelete().
			Model((*types.NewUser)(nil)).
			Where("user_id IN (?)", bun.In(ids)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete new users: %w", err)
		}

		return nil
	})
}

// GetDeferred returns a user's deferral row, or (nil, nil) if none exists.
func (m *QueueModel) GetDeferred(ctx context.Context, userID uint64) (*types.DeferredUser, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.DeferredUser, error) {
		row := new(types.DeferredUser)

		err := m.db.NewSelect().
			Model(row).
			Where("user_id = ?", userID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get deferral for user %d: %w", userID, err)
		}

		return row, nil
	})
}

// Defer writes or advances a user's deferral row.
func (m *QueueModel) Defer(ctx context.Context, userID uint64, inspectAt time.Time, inspections int) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		row := &types.DeferredUser{
			UserID:      userID,
			InspectAt:   inspectAt,
			Inspections: inspections,
		}

		if _, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (user_id) DO UPDATE").
			Set("inspect_time = EXCLUDED.inspect_time").
			Set("inspections = EXCLUDED.inspections").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to defer user %d: %w", userID, err)
		}

		return nil
	})
}

// Undefer removes a user's deferral row, if any.
func (m *QueueModel) Undefer(ctx context.Context, userID uint64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		if _, err := m.db.NewDelete().
			Model((*types.DeferredUser)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to undefer user %d: %w", userID, err)
		}

		return nil
	})
}

// ListDeferred returns up to limit deferred users that are due for
// re-inspection, oldest due first.
func (m *QueueModel) ListDeferred(ctx context.Context, maxInspections, limit int) ([]types.DeferredUser, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]types.DeferredUser, error) {
		var rows []types.DeferredUser

		if err := m.db.NewSelect().
			Model(&rows).
			Where("inspections < ?", maxInspections).
			Where("inspect_time < ?", time.Now()).
			OrderExpr("inspect_time ASC").
			Limit(limit).
			Scan(ctx); err != nil {
			return nil, fmt.Errorf("failed to list deferred users: %w", err)
		}

		return rows, nil
	})
}

// AdvanceDeferred pushes the given deferral rows further into the future.
// Used when a batch fetch for them came back empty.
func (m *QueueModel) AdvanceDeferred(ctx context.Context, rows []types.DeferredUser, delay time.Duration) error {
	if len(rows) == 0 {
		return nil
	}

	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now()

		for _, row := range rows {
			inspections := row.Inspections + 1
			inspectAt := now.Add(delay * time.Duration(inspections))

			if _, err := tx.NewUpdate().
				Model((*types.DeferredUser)(nil)).
				Set("inspect_time = ?", inspectAt).
				Set("inspections = ?", inspections).
				Where("user_id = ?", row.UserID).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to advance deferral for user %d: %w", row.UserID, err)
			}
		}

		return nil
	})
}

// UpsertPageRefresh records when a discovery page was last scanned.
func (m *QueueModel) UpsertPageRefresh(ctx context.Context, page int, at time.Time) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		row := &types.NewestUserPageRefresh{PageNum: page, RefreshedAt: at}

		if _, err := m.db.NewInsert().
			Model(row).
			On("CONFLICT (page_num) DO UPDATE").
			Set("refresh_date = EXCLUDED.refresh_date").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to record refresh of page %d: %w", page, err)
		}

		return nil
	})
}

// GetPageRefresh returns a page's refresh record, or (nil, nil).
func (m *QueueModel) GetPageRefresh(ctx context.Context, page int) (*types.NewestUserPageRefresh, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.NewestUserPageRefresh, error) {
		row := new(types.NewestUserPageRefresh)

		err := m.db.NewSelect().
			Model(row).
			Where("page_num = ?", page).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get refresh of page %d: %w", page, err)
		}

		return row, nil
	})
}

// MaxPageRefresh returns the highest discovery page ever scanned, or 0.
func (m *QueueModel) MaxPageRefresh(ctx context.Context) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		var page sql.NullInt64

		if err := m.db.NewSelect().
			Model((*types.NewestUserPageRefresh)(nil)).
			ColumnExpr("MAX(page_num)").
			Scan(ctx, &page); err != nil {
			return 0, fmt.Errorf("failed to get max refreshed page: %w", err)
		}

		return int(page.Int64), nil
	})
}
