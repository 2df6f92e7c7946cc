package migrations

import (
	"context"
	"fmt"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.User)(nil),
			(*types.UserDetail)(nil),
			(*types.UserLink)(nil),
			(*types.UserToken)(nil),
			(*types.Avatar)(nil),
			(*types.AvatarHash)(nil),
			(*types.AvatarHashAssoc)(nil),
			(*types.Word)(nil),
			(*types.WordAdjacent)(nil),
			(*types.Hostname)(nil),
			(*types.UserWord)(nil),
			(*types.UserWordAdjacent)(nil),
			(*types.UserHostname)(nil),
			(*types.NewUser)(nil),
			(*types.DeferredUser)(nil),
			(*types.NewestUserPageRefresh)(nil),
			(*types.Group)(nil),
			(*types.UserGroupAssoc)(nil),
			(*types.Tag)(nil),
			(*types.UserTag)(nil),
			(*types.Trait)(nil),
			(*types.TraitInstance)(nil),
			(*types.UserTrait)(nil),
			(*types.UserTraitInstance)(nil),
			(*types.Session)(nil),
			(*types.Account)(nil),
		}

		for _, model := range models {
			if _, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		indexes := []struct {
			name    string
			model   any
			columns []string
			unique  bool
		}{
			{"idx_avatar_url", (*types.Avatar)(nil), []string{"url"}, true},
			{"idx_avatar_hash_algo_data", (*types.AvatarHash)(nil), []string{"hash_algo", "hash_data"}, true},
			{"idx_word_text", (*types.Word)(nil), []string{"word"}, true},
			{"idx_hostname_name", (*types.Hostname)(nil), []string{"hostname"}, true},
			{"idx_group_name", (*types.Group)(nil), []string{"name"}, true},
			{"idx_tag_name", (*types.Tag)(nil), []string{"tag"}, true},
			{"idx_trait_class", (*types.Trait)(nil), []string{"trait_class"}, true},
			{"idx_trait_instance_trait", (*types.TraitInstance)(nil), []string{"trait_id"}, false},
			{"idx_deferred_user_inspect", (*types.DeferredUser)(nil), []string{"inspect_time"}, false},
			{"idx_session_user", (*types.Session)(nil), []string{"user_id"}, false},
		}

		for _, idx := range indexes {
			query := db.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists()

			if idx.unique {
				query = query.Unique()
			}

			if _, err := query.Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		// Seed the classification groups the crawler expects to exist.
		groups := make([]types.Group, 0, len(types.RequiredGroups))
		for _, name := range types.RequiredGroups {
			groups = append(groups, types.Group{Name: name})
		}

		if _, err := db.NewInsert().
			Model(&groups).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed groups: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Account)(nil),
			(*types.Session)(nil),
			(*types.UserTraitInstance)(nil),
			(*types.UserTrait)(nil),
			(*types.TraitInstance)(nil),
			(*types.Trait)(nil),
			(*types.UserTag)(nil),
			(*types.Tag)(nil),
			(*types.UserGroupAssoc)(nil),
			(*types.Group)(nil),
			(*types.NewestUserPageRefresh)(nil),
			(*types.DeferredUser)(nil),
			(*types.NewUser)(nil),
			(*types.UserHostname)(nil),
			(*types.UserWordAdjacent)(nil),
			(*types.UserWord)(nil),
			(*types.Hostname)(nil),
			(*types.WordAdjacent)(nil),
			(*types.Word)(nil),
			(*types.AvatarHashAssoc)(nil),
			(*types.AvatarHash)(nil),
			(*types.Avatar)(nil),
			(*types.UserToken)(nil),
			(*types.UserLink)(nil),
			(*types.UserDetail)(nil),
			(*types.User)(nil),
		}

		for _, model := range models {
			if _, err := db.NewDropTable().
				Model(model).
				IfExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table for %T: %w", model, err)
			}
		}

		return nil
	})
}
