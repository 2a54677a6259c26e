package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/terenec/internal/model"
)

// CreateSite creates a new customer site.
func CreateSite(ctx context.Context, db *sql.DB, name, address string, lat, lon float64) (*model.Site, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO sites (name, address, latitude, longitude) VALUES (?, ?, ?, ?)`,
		name, address, lat, lon,
	)
	if err != nil {
		return nil, fmt.Errorf("creating site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting site id: %w", err)
	}

	return GetSite(ctx, db, id)
}

// GetSite returns a site by ID.
func GetSite(ctx context.Context, db *sql.DB, id int64) (*model.Site, error) {
	s := &model.Site{}
	var address sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, address, latitude, longitude, created_at, deleted_at
		 FROM sites WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &address, &s.Latitude, &s.Longitude, &s.CreatedAt, &s.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting site: %w", err)
	}
	s.Address = address.String
	return s, nil
}

// ListSites returns all non-deleted sites.
func ListSites(ctx context.Context, db *sql.DB) ([]model.Site, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, address, latitude, longitude, created_at, deleted_at
		 FROM sites WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var s model.Site
		var address sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &address, &s.Latitude, &s.Longitude, &s.CreatedAt, &s.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		s.Address = address.String
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// UpdateSite updates a site's name, address and coordinates.
func UpdateSite(ctx context.Context, db *sql.DB, id int64, name, address string, lat, lon float64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE sites SET name = ?, address = ?, latitude = ?, longitude = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		name, address, lat, lon, id,
	)
	if err != nil {
		return fmt.Errorf("updating site: %w", err)
	}
	return nil
}

// DeleteSite soft-deletes a site. Fails while unfinished jobs are scheduled there.
func DeleteSite(ctx context.Context, db *sql.DB, id int64) error {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE site_id = ? AND status IN ('scheduled', 'in_progress')`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking site jobs: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete site: %d open jobs", count)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE sites SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting site: %w", err)
	}
	return nil
}
