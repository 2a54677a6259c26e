package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/config"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

func initCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the database and an admin account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "admin",
				Usage: "admin username",
				Value: "admin",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if _, err := os.Stat(cfg.DBPath); err == nil {
				return fmt.Errorf("database file %s already exists", cfg.DBPath)
			}

			password, err := initDatabase(ctx, cfg.DBPath, c.String("admin"))
			if err != nil {
				return err
			}

			fmt.Printf("Database created: %s\n", cfg.DBPath)
			fmt.Println()
			fmt.Println("Admin account created:")
			fmt.Printf("  Username: %s\n", c.String("admin"))
			fmt.Printf("  Password: %s\n", password)
			fmt.Println()
			fmt.Println("Save this password, it cannot be recovered.")
			return nil
		},
	}
}

// initDatabase creates the database with its schema and an admin user, and
// returns the admin's generated password. The file is removed on failure.
func initDatabase(ctx context.Context, path, adminUsername string) (string, error) {
	database, err := openDatabase(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	fail := func(err error) (string, error) {
		database.Close()
		os.Remove(path)
		return "", err
	}

	password, err := auth.GeneratePassword(16)
	if err != nil {
		return fail(fmt.Errorf("generating password: %w", err))
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fail(err)
	}
	if _, err := store.CreateUser(ctx, database, adminUsername, hash, model.RoleAdmin); err != nil {
		return fail(fmt.Errorf("creating admin user: %w", err))
	}
	return password, nil
}
