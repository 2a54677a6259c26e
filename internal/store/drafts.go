package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erazemk/terenec/internal/model"
)

// draftRecord is the stored form of a draft. Local media paths are kept
// beside the items, keyed by media id, since MediaItem does not encode them.
type draftRecord struct {
	model.Draft
	LocalRefs map[string]string `json:"local_refs,omitempty"`
}

// GetDraft returns the persisted draft of a job, or nil when none is stored.
func GetDraft(ctx context.Context, db *sql.DB, jobID int64) (*model.Draft, error) {
	var payload []byte
	err := db.QueryRowContext(ctx, `SELECT payload FROM drafts WHERE job_id = ?`, jobID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting draft: %w", err)
	}

	var rec draftRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decoding draft for job %d: %w", jobID, err)
	}
	d := rec.Draft
	for i, m := range d.Media {
		d.Media[i].LocalRef = rec.LocalRefs[m.ID]
	}
	return &d, nil
}

// SaveDraft replaces the persisted draft of a job.
func SaveDraft(ctx context.Context, db *sql.DB, jobID int64, d model.Draft) error {
	rec := draftRecord{Draft: d}
	for _, m := range d.Media {
		if m.LocalRef == "" {
			continue
		}
		if rec.LocalRefs == nil {
			rec.LocalRefs = make(map[string]string, len(d.Media))
		}
		rec.LocalRefs[m.ID] = m.LocalRef
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding draft: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO drafts (job_id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (job_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		jobID, payload,
	)
	if err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

// DeleteDraft removes the persisted draft of a job.
func DeleteDraft(ctx context.Context, db *sql.DB, jobID int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM drafts WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	return nil
}
