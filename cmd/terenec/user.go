package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/config"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

func userCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage user accounts",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a user with a generated password",
				ArgsUsage: "<username>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "role",
						Usage: "technician, dispatcher or admin",
						Value: model.RoleTechnician,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					username := c.Args().First()
					if username == "" {
						return fmt.Errorf("username required")
					}
					role := c.String("role")
					if !model.ValidRole(role) {
						return fmt.Errorf("invalid role %q", role)
					}

					database, err := openDatabase(cfg.DBPath)
					if err != nil {
						return err
					}
					defer database.Close()

					password, err := auth.GeneratePassword(16)
					if err != nil {
						return fmt.Errorf("generating password: %w", err)
					}
					hash, err := auth.HashPassword(password)
					if err != nil {
						return err
					}
					u, err := store.CreateUser(ctx, database, username, hash, role)
					if err != nil {
						return err
					}

					fmt.Printf("User %s (%s) created with id %d\n", u.Username, u.Role, u.ID)
					fmt.Printf("  Password: %s\n", password)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List active users",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Usage: "only users with this role"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					database, err := openDatabase(cfg.DBPath)
					if err != nil {
						return err
					}
					defer database.Close()

					users, err := store.ListUsers(ctx, database, c.String("role"))
					if err != nil {
						return err
					}

					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tUSERNAME\tROLE")
					for _, u := range users {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", u.ID, u.Username, u.Role)
					}
					return tw.Flush()
				},
			},
		},
	}
}
