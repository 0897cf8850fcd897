package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yokitheyo/gamdlbot/internal/access"
	"github.com/yokitheyo/gamdlbot/internal/api"
	"github.com/yokitheyo/gamdlbot/internal/archive"
	"github.com/yokitheyo/gamdlbot/internal/bot"
	"github.com/yokitheyo/gamdlbot/internal/catalog"
	"github.com/yokitheyo/gamdlbot/internal/chat/telegram"
	"github.com/yokitheyo/gamdlbot/internal/config"
	"github.com/yokitheyo/gamdlbot/internal/delivery"
	"github.com/yokitheyo/gamdlbot/internal/gamdl"
	"github.com/yokitheyo/gamdlbot/internal/hostlock"
	"github.com/yokitheyo/gamdlbot/internal/i18n"
	"github.com/yokitheyo/gamdlbot/internal/limiter"
	"github.com/yokitheyo/gamdlbot/internal/session"
	"github.com/yokitheyo/gamdlbot/internal/store"
)

// shutdownGrace is how long running jobs may keep going after a stop signal.
const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	lock, err := hostlock.Acquire(cfg.LockFile)
	if err != nil {
		return fmt.Errorf("another instance is running: %w", err)
	}
	defer lock.Release()

	recorder, history, closeDB := openRecorder(cfg, logger)
	defer closeDB()

	texts, err := i18n.Load(cfg.LocalesDir, cfg.Locale)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	sweeper := archive.Sweeper{
		Base:       cfg.OutputRoot,
		Prefix:     cfg.TempDirPrefix,
		Retention:  cfg.Retention(),
		Interval:   cfg.CleanupInterval(),
		FirstDelay: archive.DefaultFirstDelay,
		Logger:     logger,
	}
	go sweeper.Run(ctx)

	client, err := telegram.New(cfg.Telegram.Token, logger)
	if err != nil {
		return err
	}

	sessions := session.NewStore()
	lim := limiter.New(cfg.Concurrency)
	cat := catalog.NewClient(logger)
	guard := access.NewGuard(access.Options{
		Public:  cfg.PublicMode(),
		Admins:  cfg.Access.Admins,
		Allowed: cfg.Access.Allowed,
		ForceSub: access.ForceSub{
			Enabled: cfg.ForceSub.Enabled,
			Channel: cfg.ForceSub.Channel,
			JoinURL: cfg.ForceSub.JoinURL,
		},
		Members: client,
		Texts:   texts,
		Logger:  logger,
	})

	flow := bot.NewFlow(bot.Deps{
		Messenger: client,
		Store:     sessions,
		Limiter:   lim,
		Downloader: &gamdl.Runner{
			Command:     gamdl.LookupCommand(cfg.Gamdl.Binary),
			CookiesPath: cfg.Gamdl.CookiesPath,
			LogLevel:    cfg.Gamdl.LogLevel,
			ExtraArgs:   cfg.Gamdl.ExtraArgs,
			Logger:      logger,
		},
		Deliverer: &delivery.Deliverer{
			Messenger: client,
			Texts:     texts,
			Tags:      &delivery.FileTagReader{},
			Thumbs:    cat,
			MaxBytes:  cfg.MaxFileBytes,
			Logger:    logger,
		},
		Packager: archive.Packager{MaxBytes: cfg.MaxFileBytes},
		Catalog:  cat,
		Guard:    guard,
		Recorder: recorder,
		Texts:    texts,
		Presets:  cfg.Presets,
		Settings: bot.Settings{
			OutputRoot:       cfg.OutputRoot,
			TempDirPrefix:    cfg.TempDirPrefix,
			ProgressInterval: cfg.ProgressEvery(),
			CaptionShowURL:   cfg.CaptionShowURL,
		},
		Logger: logger,
	})

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		handler := &api.APIHandler{Sessions: sessions, Limiter: lim, Presets: cfg.Presets, History: history}
		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(handler),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin api listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin api failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, waiting for running jobs", "grace", shutdownGrace)
		t := time.NewTimer(shutdownGrace)
		defer t.Stop()
		<-t.C
		logger.Warn("grace period over, aborting running jobs")
		flow.Abort()
	}()

	logger.Info("bot started", "bot", client.Username(), "concurrency", lim.Capacity(), "public", guard.Public())
	flow.Run(ctx, client.Updates(ctx))

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin api shutdown failed", "error", err)
			_ = srv.Close()
		}
	}
	logger.Info("bot stopped")
	return nil
}

// openRecorder returns the sqlite store when a path is configured and the
// no-op recorder otherwise. A database that cannot be opened is logged and
// skipped; the bot works without it.
func openRecorder(cfg *config.Config, logger *slog.Logger) (store.Recorder, api.History, func()) {
	if cfg.DBPath == "" {
		return store.Nop{}, nil, func() {}
	}
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Warn("database unavailable, continuing without it", "path", cfg.DBPath, "error", err)
		return store.Nop{}, nil, func() {}
	}
	return db, db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database failed", "error", err)
		}
	}
}
