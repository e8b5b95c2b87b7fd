// Command c3ds-archiver polls the message feed and stores every message in PostgreSQL.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/app"
	"github.com/and161185/c3ds-console/internal/archive"
	"github.com/and161185/c3ds-console/internal/archive/postgres"
	"github.com/and161185/c3ds-console/internal/config"
	"github.com/and161185/c3ds-console/internal/migrate"
	"github.com/and161185/c3ds-console/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, migrates the archive schema, signs in and
// archives the feed until interrupted.
func main() {
	cfgPath := flag.String("config", "", "config file (YAML)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides archive.dsn)")
	addr := flag.String("addr", "", "backend base URL (overrides api.base_url)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *dsn != "" {
		cfg.Archive.DSN = *dsn
	}
	if *addr != "" {
		cfg.API.BaseURL = *addr
	}
	if cfg.Archive.DSN == "" {
		logger.Fatal("missing archive dsn (--dsn or C3DS_ARCHIVE_DSN)")
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("backend", cfg.API.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Archive.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	db, err := postgres.New(ctx, cfg.Archive.DSN)
	if err != nil {
		logger.Fatal("connect archive", zap.Error(err))
	}
	defer db.Close()

	a, err := app.New(cfg, app.WithLogger(logger), app.Ephemeral())
	if err != nil {
		logger.Fatal("init client", zap.Error(err))
	}
	a.Start(ctx)
	defer func() { _ = a.Close() }()

	login := func(ctx context.Context) error {
		if cfg.Archive.Username == "" {
			return nil
		}
		_, err := a.Session.Login(ctx, model.Credentials{
			Username: cfg.Archive.Username,
			Password: cfg.Archive.Password,
		})
		return err
	}
	if err := login(ctx); err != nil {
		logger.Fatal("login", zap.Error(err))
	}

	f := model.MessageFilter{
		Type:       model.MessageType(cfg.Archive.Filter.Type),
		TimeWindow: model.TimeWindow(cfg.Archive.Filter.Window),
		Limit:      cfg.Archive.Filter.Limit,
	}
	arch := archive.New(a.Cache, a.API, postgres.NewMessageRepo(db), f,
		archive.WithInterval(cfg.Archive.Interval),
		archive.WithRelogin(login),
		archive.WithSession(a.Session),
		archive.WithLogger(logger.Named("archive")),
	)
	if err := arch.Run(ctx); err != nil {
		logger.Error("archiver stopped", zap.Error(err))
		return
	}
	logger.Info("stopped", zap.Int("archived", arch.Saved()))
}
