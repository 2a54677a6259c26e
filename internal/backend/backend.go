// Package backend is the report store the reconciler flushes into: SQLite
// for records and blobs, the imaging pipeline for uploads, and the realtime
// hub for change events.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/erazemk/terenec/internal/imaging"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
	"github.com/erazemk/terenec/internal/report"
	"github.com/erazemk/terenec/internal/store"
)

// ErrOutsideMediaDir is returned for uploads whose local file is not under
// the configured media directory.
var ErrOutsideMediaDir = errors.New("media file is outside the media directory")

// Backend implements report.Remote and attendance.Source.
type Backend struct {
	db       *sql.DB
	images   *imaging.Processor
	hub      *realtime.Hub
	mediaDir string
	logger   zerolog.Logger
}

// New creates a backend. Draft media files must live under mediaDir.
func New(db *sql.DB, images *imaging.Processor, hub *realtime.Hub, mediaDir string, logger zerolog.Logger) *Backend {
	return &Backend{
		db:       db,
		images:   images,
		hub:      hub,
		mediaDir: mediaDir,
		logger:   logger.With().Str("component", "backend").Logger(),
	}
}

func (b *Backend) publish(t realtime.EventType, jobID int64, itemID string) {
	b.hub.Publish(realtime.Event{Type: t, JobID: jobID, ItemID: itemID})
}

func (b *Backend) TasksByJob(ctx context.Context, jobID int64) ([]model.Task, error) {
	return store.ListTasksByJob(ctx, b.db, jobID)
}

func (b *Backend) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	created, err := store.CreateTask(ctx, b.db, t)
	if err != nil {
		return nil, err
	}
	b.publish(realtime.TaskCreated, created.JobID, created.ID)
	return created, nil
}

func (b *Backend) FollowUpsByJob(ctx context.Context, jobID int64) ([]model.FollowUp, error) {
	return store.ListFollowUpsByJob(ctx, b.db, jobID)
}

func (b *Backend) CreateFollowUp(ctx context.Context, f model.FollowUp) (*model.FollowUp, error) {
	created, err := store.CreateFollowUp(ctx, b.db, f)
	if err != nil {
		return nil, err
	}
	b.publish(realtime.FollowUpCreated, created.JobID, created.ID)
	return created, nil
}

func (b *Backend) MediaByJob(ctx context.Context, jobID int64) ([]model.MediaItem, error) {
	return store.ListMediaByJob(ctx, b.db, jobID)
}

// UploadMedia processes the local file behind u.LocalRef and stores it with
// its metadata. The local file is removed once the record exists. An
// upload whose token was already accepted returns the stored item without
// touching the file, which may be gone by then.
func (b *Backend) UploadMedia(ctx context.Context, u report.MediaUpload) (*model.MediaItem, error) {
	if u.Token != "" {
		existing, err := store.GetMediaByToken(ctx, b.db, u.Token)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	path, err := b.localPath(u.LocalRef)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening media file: %w", err)
	}
	defer f.Close()

	var res *imaging.Result
	switch u.Kind {
	case model.MediaImage:
		res, err = b.images.Image(f)
	case model.MediaVideo:
		res, err = b.images.Video(f, u.Extension)
	default:
		err = fmt.Errorf("unknown media kind %q", u.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("uploading media: %w", err)
	}

	item := model.MediaItem{
		Token:       u.Token,
		JobID:       u.JobID,
		Kind:        u.Kind,
		Description: u.Description,
		MIME:        res.MIME,
	}
	if u.TechnicianJobID > 0 {
		item.TechnicianJobID = &u.TechnicianJobID
	}
	if u.UserID > 0 {
		item.CreatedBy = &u.UserID
	}

	created, err := store.CreateMedia(ctx, b.db, item, res.Data)
	if err != nil {
		return nil, fmt.Errorf("recording media: %w", err)
	}

	f.Close()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.logger.Warn().Err(err).Str("path", path).Msg("removing uploaded media file")
	}

	b.publish(realtime.MediaCreated, created.JobID, created.ID)
	return created, nil
}

func (b *Backend) localPath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("media file reference is empty")
	}
	path := filepath.Clean(ref)
	if b.mediaDir == "" {
		return path, nil
	}

	dir, err := filepath.Abs(b.mediaDir)
	if err != nil {
		return "", fmt.Errorf("resolving media dir: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving media file: %w", err)
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideMediaDir
	}
	return abs, nil
}

func (b *Backend) TechnicianJob(ctx context.Context, id int64) (*model.TechnicianJob, error) {
	return store.GetTechnicianJob(ctx, b.db, id)
}

func (b *Backend) SetReportSubmitted(ctx context.Context, id int64, submitted bool) error {
	tj, err := store.GetTechnicianJob(ctx, b.db, id)
	if err != nil {
		return err
	}
	if tj == nil {
		return fmt.Errorf("technician job %d not found", id)
	}
	if err := store.SetServiceReportSubmitted(ctx, b.db, id, submitted); err != nil {
		return err
	}

	if submitted {
		b.publish(realtime.ReportSubmitted, tj.JobID, "")
	} else {
		b.publish(realtime.JobUpdated, tj.JobID, "")
	}
	return nil
}

func (b *Backend) IsClockedIn(ctx context.Context, userID int64) (bool, error) {
	return store.IsClockedIn(ctx, b.db, userID)
}

func (b *Backend) OnBreak(ctx context.Context, userID int64) (bool, error) {
	return store.OnBreak(ctx, b.db, userID)
}

// StartJob moves a job to in progress and notifies subscribers.
func (b *Backend) StartJob(ctx context.Context, jobID int64) (*model.Job, error) {
	if err := store.StartJob(ctx, b.db, jobID); err != nil {
		return nil, err
	}
	job, err := store.GetJob(ctx, b.db, jobID)
	if err != nil {
		return nil, err
	}
	b.publish(realtime.JobStarted, jobID, "")
	return job, nil
}

// AssignTechnician assigns a technician to a job and notifies subscribers.
func (b *Backend) AssignTechnician(ctx context.Context, jobID, technicianID int64) (*model.TechnicianJob, error) {
	tj, err := store.AssignTechnician(ctx, b.db, jobID, technicianID)
	if err != nil {
		return nil, err
	}
	b.publish(realtime.JobAssigned, jobID, "")
	return tj, nil
}

// UpdateJobStatus changes a job's status and notifies subscribers.
func (b *Backend) UpdateJobStatus(ctx context.Context, jobID int64, status string) error {
	if err := store.UpdateJobStatus(ctx, b.db, jobID, status); err != nil {
		return err
	}
	b.publish(realtime.JobUpdated, jobID, "")
	return nil
}
