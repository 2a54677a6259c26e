package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/erazemk/terenec/internal/config"
	"github.com/erazemk/terenec/internal/db"
	"github.com/erazemk/terenec/internal/logging"
)

var version = "dev"

// flags are the global options shared by every command.
type flags struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	LogFile    string
}

func main() {
	var (
		f         flags
		cfg       config.Config
		logCloser = func() {}
	)

	app := &cli.Command{
		Name:    "terenec",
		Usage:   "Field-service jobs and service reports",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TERENEC_CONFIG"),
				Value:       config.DefaultPath,
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "db",
				Usage:       "path to SQLite database file",
				Sources:     cli.EnvVars("TERENEC_DB"),
				Destination: &f.DBPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("TERENEC_LOG_LEVEL"),
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (stdout when empty)",
				Sources:     cli.EnvVars("TERENEC_LOG_FILE"),
				Destination: &f.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			cfg, err = config.Load(f.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if c.IsSet("db") {
				cfg.DBPath = f.DBPath
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = f.LogLevel
			}
			if c.IsSet("log-file") {
				cfg.LogFile = f.LogFile
			}

			logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			logCloser()
			return nil
		},
		Commands: []*cli.Command{
			initCmd(&cfg),
			serveCmd(&cfg),
			userCmd(&cfg),
			jobCmd(&cfg),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openDatabase opens the database and brings its schema up to date.
func openDatabase(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return database, nil
}
