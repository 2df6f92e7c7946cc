package models

import (
	"context"
	"fmt"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/dbretry"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PairKey identifies a word-adjacency row by its two word IDs.
type PairKey struct {
	ProceedingID int64
	FollowingID  int64
}

// Evidence is one per-user corpus observation joined with the global row's
// aggregate stats, as used by the scoring pass.
type Evidence struct {
	Score     int64 `bun:"score"`
	Count     int64 `bun:"count"`
	UserCount int64 `bun:"user_count"`
}

// CorpusModel handles database operations for the word, hostname and
// adjacency corpus and the per-user counters pointing into it. Corpus rows
// are append-only; per-user rows with a zero count are deleted.
type CorpusModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewCorpus creates a new corpus model.
func NewCorpus(db *bun.DB, logger *zap.Logger) *CorpusModel {
	return &CorpusModel{
		db:     db,
		logger: logger.Named("db_corpus"),
	}
}

// UpsertWords ensures a corpus row exists for every given word and returns
// the rows keyed by text. Existing scores and counts are left untouched.
func (m *CorpusModel) UpsertWords(ctx context.Context, texts []string) (map[string]*types.Word, error) {
	if len(texts) == 0 {
		return map[string]*types.Word{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[string]*types.Word, error) {
		words := make([]types.Word, 0, len(texts))
		for _, text := range texts {
			words = append(words, types.Word{Text: text})
		}

		if _, err := m.db.NewInsert().
			Model(&words).
			On("CONFLICT (word) DO UPDATE").
			Set("word = EXCLUDED.word").
			Returning("*").
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to upsert words: %w", err)
		}

		byText := make(map[string]*types.Word, len(words))
		for i := range words {
			byText[words[i].Text] = &words[i]
		}

		return byText, nil
	})
}

// UpsertHostnames ensures a corpus row exists for every given hostname and
// returns the rows keyed by name.
func (m *CorpusModel) UpsertHostnames(ctx context.Context, names []string) (map[string]*types.Hostname, error) {
	if len(names) == 0 {
		return map[string]*types.Hostname{}, nil
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (map[string]*types.Hostname, error) {
		hosts := make([]types.Hostname, 0, len(names))
		for _, name := range names {
			hosts = append(hosts, types.Hostname{Name: name})
		}

		if _, err := m.db.NewInsert().
			Model(&hosts).
			On("CONFLICT (hostname) DO UPDATE").
			Set("hostname = EXCLUDED.hostname").
			Returning("*").
			Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to upsert hostnames: %w", err)
		}

		byName := make(map[string]*types.Hostname, len(hosts))
		for i := range hosts {
			byName[hosts[i].Name] = &hosts[i]
		}

		return byName, nil
	})
}

// UpsertAdjacent ensures a corpus row exists for every given word pair.
func (m *CorpusModel) UpsertAdjacent(ctx context.Context, pairs []PairKey) error {
	if len(pairs) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		rows := make([]types.WordAdjacent, 0, len(pairs))
		for _, pair := range pairs {
			rows = append(rows, types.WordAdjacent{
				ProceedingID: pair.ProceedingID,
				FollowingID:  pair.FollowingID,
			})
		}

		if _, err := m.db.NewInsert().
			Model(&rows).
			On("CONFLICT (proceeding_id, following_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert word adjacencies: %w", err)
		}

		return nil
	})
}

// SetUserWords replaces a user's word counters with the given values.
// Words absent from counts, or with a non-positive count, lose their row.
func (m *CorpusModel) SetUserWords(ctx context.Context, userID uint64, counts map[int64]int64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		keep := make([]int64, 0, len(counts))
		rows := make([]types.UserWord, 0, len(counts))

		for wordID, count := range counts {
			if count <= 0 {
				continue
			}

			keep = append(keep, wordID)
			rows = append(rows, types.UserWord{UserID: userID, WordID: wordID, Count: count})
		}

		query := tx.NewDelete().
			Model((*types.UserWord)(nil)).
			Where("user_id = ?", userID)

		if len(keep) > 0 {
			query = query.Where("word_id NOT IN (?)", bun.In(keep))
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune word counters for user %d: %w", userID, err)
		}

		if len(rows) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (user_id, word_id) DO UPDATE").
			Set("count = EXCLUDED.count").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert word counters for user %d: %w", userID, err)
		}

		return nil
	})
}

// SetUserHostnames replaces a user's hostname counters with the given
// values.
func (m *CorpusModel) SetUserHostnames(ctx context.Context, userID uint64, counts map[int64]int64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		keep := make([]int64, 0, len(counts))
		rows := make([]types.UserHostname, 0, len(counts))

		for hostID, count := range counts {
			if count <= 0 {
				continue
			}

			keep = append(keep, hostID)
			rows = append(rows, types.UserHostname{UserID: userID, HostnameID: hostID, Count: count})
		}

		query := tx.NewDelete().
			Model((*types.UserHostname)(nil)).
			Where("user_id = ?", userID)

		if len(keep) > 0 {
			query = query.Where("hostname_id NOT IN (?)", bun.In(keep))
		}

		if _, err := query.Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune hostname counters for user %d: %w", userID, err)
		}

		if len(rows) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (user_id, hostname_id) DO UPDATE").
			Set("count = EXCLUDED.count").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert hostname counters for user %d: %w", userID, err)
		}

		return nil
	})
}

// SetUserAdjacent replaces a user's word-pair counters with the given
// values.
func (m *CorpusModel) SetUserAdjacent(ctx context.Context, userID uint64, counts map[PairKey]int64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		rows := make([]types.UserWordAdjacent, 0, len(counts))
		for pair, count := range counts {
			if count <= 0 {
				continue
			}

			rows = append(rows, types.UserWordAdjacent{
				UserID:       userID,
				ProceedingID: pair.ProceedingID,
				FollowingID:  pair.FollowingID,
				Count:        count,
			})
		}

		// Composite keys do not fit a NOT IN clause, so replace wholesale:
		// delete every pair row for the user and reinsert the survivors.
		if _, err := tx.NewDelete().
			Model((*types.UserWordAdjacent)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to prune pair counters for user %d: %w", userID, err)
		}

		if len(rows) == 0 {
			return nil
		}

		if _, err := tx.NewInsert().
			Model(&rows).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert pair counters for user %d: %w", userID, err)
		}

		return nil
	})
}

// UserWordEvidence returns the user's word observations joined with the
// global stats, restricted to corpus rows that have been scored at least
// once.
func (m *CorpusModel) UserWordEvidence(ctx context.Context, userID uint64) ([]Evidence, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]Evidence, error) {
		var evidence []Evidence

		if err := m.db.NewSelect().
			Model((*types.UserWord)(nil)).
			ColumnExpr("w.score AS score").
			ColumnExpr("w.count AS count").
			ColumnExpr("uw.count AS user_count").
			Join("JOIN word AS w ON w.word_id = uw.word_id").
			Where("uw.user_id = ?", userID).
			Where("w.count > 0").
			Scan(ctx, &evidence); err != nil {
			return nil, fmt.Errorf("failed to get word evidence for user %d: %w", userID, err)
		}

		return evidence, nil
	})
}

// UserHostnameEvidence returns the user's hostname observations joined
// with the global stats.
func (m *CorpusModel) UserHostnameEvidence(ctx context.Context, userID uint64) ([]Evidence, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]Evidence, error) {
		var evidence []Evidence

		if err := m.db.NewSelect().
			Model((*types.UserHostname)(nil)).
			ColumnExpr("h.score AS score").
			ColumnExpr("h.count AS count").
			ColumnExpr("uh.count AS user_count").
			Join("JOIN hostname AS h ON h.hostname_id = uh.hostname_id").
			Where("uh.user_id = ?", userID).
			Where("h.count > 0").
			Scan(ctx, &evidence); err != nil {
			return nil, fmt.Errorf("failed to get hostname evidence for user %d: %w", userID, err)
		}

		return evidence, nil
	})
}

// UserAdjacentEvidence returns the user's word-pair observations joined
// with the global stats.
func (m *CorpusModel) UserAdjacentEvidence(ctx context.Context, userID uint64) ([]Evidence, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]Evidence, error) {
		var evidence []Evidence

		if err := m.db.NewSelect().
			Model((*types.UserWordAdjacent)(nil)).
			ColumnExpr("wa.score AS score").
			ColumnExpr("wa.count AS count").
			ColumnExpr("uwa.count AS user_count").
			Join("JOIN word_adjacent AS wa ON wa.proceeding_id = uwa.proceeding_id"+
				" AND wa.following_id = uwa.following_id").
			Where("uwa.user_id = ?", userID).
			Where("wa.count > 0").
			Scan(ctx, &evidence); err != nil {
			return nil, fmt.Errorf("failed to get pair evidence for user %d: %w", userID, err)
		}

		return evidence, nil
	})
}

// ApplyVerdict folds a user's counters into the global corpus with the
// given direction (+1 legitimate, -1 suspect): each global row gains
// direction x user_count on its score and user_count on its count.
// Adjacency rows missing a global entry are created first.
func (m *CorpusModel) ApplyVerdict(ctx context.Context, userID uint64, direction int64) error {
	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw(`
			INSERT INTO word_adjacent (proceeding_id, following_id, score, count)
			SELECT proceeding_id, following_id, 0, 0
			FROM user_word_adjacent
			WHERE user_id = ?
			ON CONFLICT (proceeding_id, following_id) DO NOTHING`,
			userID).Exec(ctx); err != nil {
			return fmt.Errorf("failed to backfill adjacency rows: %w", err)
		}

		updates := []struct {
			table string
			src   string
			keys  string
		}{
			{
				table: "word", src: "user_word",
				keys: "word.word_id = src.word_id",
			},
			{
				table: "hostname", src: "user_hostname",
				keys: "hostname.hostname_id = src.hostname_id",
			},
			{
				table: "word_adjacent", src: "user_word_adjacent",
				keys: "word_adjacent.proceeding_id = src.proceeding_id" +
					" AND word_adjacent.following_id = src.following_id",
			},
		}

		for _, u := range updates {
			if _, err := tx.NewRaw(fmt.Sprintf(`
				UPDATE %s SET
					score = %s.score + ? * src.count,
					count = %s.count + src.count
				FROM %s AS src
				WHERE src.user_id = ? AND %s`,
				u.table, u.table, u.table, u.src, u.keys),
				direction, userID).Exec(ctx); err != nil {
				return fmt.Errorf("failed to apply verdict to %s: %w", u.table, err)
			}
		}

		m.logger.Info("Applied verdict to corpus",
			zap.Uint64("userID", userID),
			zap.Int64("direction", direction))

		return nil
	})
}
