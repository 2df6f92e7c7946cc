package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/crawler"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "crawler",
		Usage: "Start the spam-hunter crawler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runCrawler(ctx, c.String("config"))
		},
	}

	return app.Run(context.Background(), os.Args)
}

func runCrawler(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer app.Cleanup()

	c := crawler.New(app.DB, app.API, app.TLD, app.Hasher,
		&app.Config.Crawler, app.Logger)

	app.Logger.Info("Crawler starting")

	if err := c.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	app.Logger.Info("Crawler stopped", zap.Error(ctx.Err()))

	return nil
}
