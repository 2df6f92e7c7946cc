package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/migrations"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var ErrNameRequired = errors.New("NAME argument required")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize migration tables",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMigrator(ctx, c, func(ctx context.Context, migrator *migrate.Migrator, _ *zap.Logger) error {
						return migrator.Init(ctx)
					})
				},
			},
			{
				Name:  "migrate",
				Usage: "Run pending migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMigrator(ctx, c, func(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger) error {
						if err := migrator.Lock(ctx); err != nil {
							return err
						}
						defer migrator.Unlock(ctx) //nolint:errcheck

						group, err := migrator.Migrate(ctx)
						if err != nil {
							return err
						}

						if group.IsZero() {
							logger.Info("No new migrations to run (database is up to date)")
							return nil
						}

						logger.Info("Successfully migrated",
							zap.String("group", group.String()),
						)
						return nil
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "Rollback the last migration group",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMigrator(ctx, c, func(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger) error {
						if err := migrator.Lock(ctx); err != nil {
							return err
						}
						defer migrator.Unlock(ctx) //nolint:errcheck

						group, err := migrator.Rollback(ctx)
						if err != nil {
							return err
						}

						if group.IsZero() {
							logger.Info("No groups to roll back")
							return nil
						}

						logger.Info("Successfully rolled back",
							zap.String("group", group.String()),
						)
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMigrator(ctx, c, func(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger) error {
						ms, err := migrator.MigrationsWithStatus(ctx)
						if err != nil {
							return err
						}

						logger.Info("Migration status",
							zap.String("migrations", ms.String()),
							zap.String("unapplied", ms.Unapplied().String()),
							zap.String("last_group", ms.LastGroup().String()),
						)
						return nil
					})
				},
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 1 {
						return ErrNameRequired
					}

					return withMigrator(ctx, c, func(ctx context.Context, migrator *migrate.Migrator, logger *zap.Logger) error {
						mf, err := migrator.CreateGoMigration(ctx, c.Args().First())
						if err != nil {
							return err
						}

						logger.Info("Created Go migration",
							zap.String("name", mf.Name),
							zap.String("path", mf.Path),
						)
						return nil
					})
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// withMigrator connects to the database and hands a migrator to fn,
// closing the connection afterwards.
func withMigrator(
	ctx context.Context, c *cli.Command,
	fn func(context.Context, *migrate.Migrator, *zap.Logger) error,
) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, logger, false)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	return fn(ctx, migrator, logger)
}
