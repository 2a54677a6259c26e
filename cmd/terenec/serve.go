package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/erazemk/terenec/internal/api"
	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/backend"
	"github.com/erazemk/terenec/internal/config"
	"github.com/erazemk/terenec/internal/draft"
	"github.com/erazemk/terenec/internal/imaging"
	"github.com/erazemk/terenec/internal/realtime"
	"github.com/erazemk/terenec/internal/report"
	"github.com/erazemk/terenec/internal/store"
)

func serveCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Sources: cli.EnvVars("TERENEC_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "durable-drafts",
				Usage:   "keep report drafts in the database",
				Sources: cli.EnvVars("TERENEC_DURABLE_DRAFTS"),
			},
			&cli.StringFlag{
				Name:    "media-dir",
				Usage:   "directory for media waiting to be submitted",
				Sources: cli.EnvVars("TERENEC_MEDIA_DIR"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.IsSet("addr") {
				cfg.Addr = c.String("addr")
			}
			if c.IsSet("durable-drafts") {
				cfg.Drafts.Durable = c.Bool("durable-drafts")
			}
			if c.IsSet("media-dir") {
				cfg.Media.Dir = c.String("media-dir")
			}
			return serve(ctx, *cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	database, err := openDatabase(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	secret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading token secret: %w", err)
	}

	hub := realtime.NewHub(realtime.DefaultBuffer)
	hub.OnDrop(func(e realtime.Event) {
		log.Debug().Str("type", string(e.Type)).Int64("job_id", e.JobID).Msg("event dropped for slow subscriber")
	})

	b := backend.New(database, imaging.New(cfg.Media.MaxDimension), hub, cfg.Media.Dir, log.Logger)

	memDrafts := draft.NewMemoryStore()
	var drafts draft.Store = memDrafts
	if cfg.Drafts.Durable {
		drafts = draft.NewSQLiteStore(database)
	}
	reports := report.New(b, drafts, log.Logger)

	srv := api.New(database, auth.NewIssuer(secret, auth.DefaultTTL), b, reports, hub, api.Options{
		MediaDir:       cfg.Media.Dir,
		MaxUploadBytes: cfg.Media.MaxUploadBytes,
		GeofenceRadius: cfg.Geofence.RadiusMeters,
		PollInterval:   cfg.Attendance.PollInterval,
	}, log.Logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Bool("durable_drafts", cfg.Drafts.Durable).Msg("server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	if !cfg.Drafts.Durable {
		if pending := memDrafts.Jobs(); len(pending) > 0 {
			log.Warn().Ints64("job_ids", pending).Msg("unsubmitted in-memory drafts discarded")
		}
	}

	log.Info().Msg("server stopped, closing database")
	return nil
}
