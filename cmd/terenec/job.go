package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/erazemk/terenec/internal/config"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

func jobCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "job",
		Usage: "Manage jobs",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a job, optionally assigned to a technician",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "site", Usage: "id of an existing site"},
					&cli.StringFlag{Name: "site-name", Usage: "create a new site with this name"},
					&cli.StringFlag{Name: "address", Usage: "address of the new site"},
					&cli.FloatFlag{Name: "lat", Usage: "latitude of the new site"},
					&cli.FloatFlag{Name: "lon", Usage: "longitude of the new site"},
					&cli.StringFlag{Name: "description", Usage: "job description (HTML)"},
					&cli.StringFlag{Name: "scheduled", Usage: "scheduled start (RFC 3339)"},
					&cli.StringFlag{Name: "technician", Usage: "username of the technician to assign"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					title := c.Args().First()
					if title == "" {
						return fmt.Errorf("title required")
					}

					var scheduledAt *time.Time
					if s := c.String("scheduled"); s != "" {
						t, err := time.Parse(time.RFC3339, s)
						if err != nil {
							return fmt.Errorf("parsing --scheduled: %w", err)
						}
						scheduledAt = &t
					}

					database, err := openDatabase(cfg.DBPath)
					if err != nil {
						return err
					}
					defer database.Close()

					var tech *model.User
					if name := c.String("technician"); name != "" {
						tech, err = store.GetUserByUsername(ctx, database, name)
						if err != nil {
							return err
						}
						if tech == nil || tech.Role != model.RoleTechnician {
							return fmt.Errorf("technician %q not found", name)
						}
					}

					siteID := c.Int64("site")
					switch {
					case siteID > 0:
						site, err := store.GetSite(ctx, database, siteID)
						if err != nil {
							return err
						}
						if site == nil || site.DeletedAt != nil {
							return fmt.Errorf("site %d not found", siteID)
						}
					case c.String("site-name") != "":
						site, err := store.CreateSite(ctx, database, c.String("site-name"), c.String("address"),
							c.Float("lat"), c.Float("lon"))
						if err != nil {
							return err
						}
						siteID = site.ID
					default:
						return fmt.Errorf("--site or --site-name required")
					}

					job, err := store.CreateJob(ctx, database, title, c.String("description"), siteID, scheduledAt)
					if err != nil {
						return err
					}
					fmt.Printf("Job %d created at site %d\n", job.ID, siteID)

					if tech != nil {
						tj, err := store.AssignTechnician(ctx, database, job.ID, tech.ID)
						if err != nil {
							return err
						}
						fmt.Printf("Assigned to %s (assignment %d)\n", tech.Username, tj.ID)
					}
					return nil
				},
			},
		},
	}
}
