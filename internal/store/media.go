package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/erazemk/terenec/internal/model"
)

const mediaColumns = `id, client_token, job_id, technician_job_id, kind, description, mime, created_by, created_at`

// CreateMedia stores a media blob with its metadata, de-duplicating on the
// client token.
func CreateMedia(ctx context.Context, db *sql.DB, m model.MediaItem, data []byte) (*model.MediaItem, error) {
	if m.Token == "" {
		return nil, fmt.Errorf("creating media: missing client token")
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO media (client_token, job_id, technician_job_id, kind, description, mime, data, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_token) DO NOTHING`,
		m.Token, m.JobID, m.TechnicianJobID, m.Kind, m.Description, m.MIME, data, m.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating media: %w", err)
	}

	got, err := scanMedia(db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE client_token = ?`, m.Token,
	))
	if err != nil {
		return nil, fmt.Errorf("reading back media: %w", err)
	}
	return got, nil
}

// GetMediaByToken returns the media item created with the given client
// token, or nil.
func GetMediaByToken(ctx context.Context, db *sql.DB, token string) (*model.MediaItem, error) {
	m, err := scanMedia(db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE client_token = ?`, token,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting media by token: %w", err)
	}
	return m, nil
}

// ListMediaByJob returns the metadata of a job's committed media, oldest
// first. Blobs are served separately by GetMediaData.
func ListMediaByJob(ctx context.Context, db *sql.DB, jobID int64) ([]model.MediaItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE job_id = ? ORDER BY id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer rows.Close()

	out := []model.MediaItem{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetMediaData returns a media blob and its MIME type. data is nil when the
// media does not exist.
func GetMediaData(ctx context.Context, db *sql.DB, id int64) (data []byte, mime string, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT data, mime FROM media WHERE id = ?`, id,
	).Scan(&data, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting media data: %w", err)
	}
	return data, mime, nil
}

// GetMediaJobID returns the job a media item belongs to, or 0 when missing.
func GetMediaJobID(ctx context.Context, db *sql.DB, id int64) (int64, error) {
	var jobID int64
	err := db.QueryRowContext(ctx, `SELECT job_id FROM media WHERE id = ?`, id).Scan(&jobID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting media job: %w", err)
	}
	return jobID, nil
}

// MediaURL is the API path a committed media blob is served from.
func MediaURL(id int64) string {
	return "/api/media/" + strconv.FormatInt(id, 10)
}

func scanMedia(s scanner) (*model.MediaItem, error) {
	var (
		m           model.MediaItem
		id          int64
		description sql.NullString
	)
	if err := s.Scan(&id, &m.Token, &m.JobID, &m.TechnicianJobID, &m.Kind, &description, &m.MIME,
		&m.CreatedBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ID = strconv.FormatInt(id, 10)
	m.Origin = model.OriginCommitted
	m.Description = description.String
	m.URL = MediaURL(id)
	return &m, nil
}
