// Package setup bootstraps the application's shared dependencies.
package setup

import (
	"context"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/hasher"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup/config"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/tld"
	"go.uber.org/zap"
)

// App bundles the core dependencies shared by the crawler and any
// front-end embedding it.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     database.Client
	API    *platform.API
	TLD    *tld.Cache
	Hasher *hasher.Hasher
}

// InitializeApp bootstraps all application dependencies in order, so each
// component has what it needs available.
func InitializeApp(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := NewLoggers(&cfg.Debug)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &cfg.PostgreSQL, dbLogger, true)
	if err != nil {
		return nil, err
	}

	client := platform.NewClient(
		time.Duration(cfg.API.RequestInterval)*time.Second, logger)
	api := platform.NewAPI(client, platform.Credentials{
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		APIKey:       cfg.API.APIKey,
	}, logger)

	suffixes := tld.NewCache(
		cfg.Crawler.TLDSuffixURI,
		time.Duration(cfg.Crawler.TLDSuffixCacheDuration)*time.Second,
		logger)

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		API:    api,
		TLD:    suffixes,
		Hasher: hasher.New(cfg.Hasher.Workers, logger),
	}, nil
}

// Cleanup releases the app's resources.
func (a *App) Cleanup() {
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database", zap.Error(err))
	}

	_ = a.Logger.Sync()
}
