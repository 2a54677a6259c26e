// Package report merges committed service report items with local drafts
// and submits drafts to the report store.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/terenec/internal/draft"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
)

// Remote is the authoritative report store.
type Remote interface {
	TasksByJob(ctx context.Context, jobID int64) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (*model.Task, error)
	FollowUpsByJob(ctx context.Context, jobID int64) ([]model.FollowUp, error)
	CreateFollowUp(ctx context.Context, f model.FollowUp) (*model.FollowUp, error)
	MediaByJob(ctx context.Context, jobID int64) ([]model.MediaItem, error)
	UploadMedia(ctx context.Context, u MediaUpload) (*model.MediaItem, error)
	TechnicianJob(ctx context.Context, id int64) (*model.TechnicianJob, error)
	SetReportSubmitted(ctx context.Context, id int64, submitted bool) error
}

// Notifier delivers change events for a job.
type Notifier interface {
	Subscribe(jobID int64) (<-chan realtime.Event, func())
}

// MediaUpload is a draft media item on its way to the report store. The
// store uploads the file behind LocalRef and then records its metadata.
type MediaUpload struct {
	JobID           int64
	TechnicianJobID int64
	LocalRef        string
	Description     string
	UserID          int64
	Kind            string
	Extension       string
	Token           string
}

// Report is the merged view of a job's service report. Each list holds the
// committed items in store order followed by the draft items in insertion
// order.
type Report struct {
	JobID     int64             `json:"job_id"`
	Tasks     []model.Task      `json:"tasks"`
	FollowUps []model.FollowUp  `json:"follow_ups"`
	Media     []model.MediaItem `json:"media"`
	Submitted bool              `json:"submitted"`
}

// Len returns the number of items across all categories.
func (r Report) Len() int {
	return len(r.Tasks) + len(r.FollowUps) + len(r.Media)
}

// SubmitResult reports what a successful submit flushed.
type SubmitResult struct {
	Tasks     int    `json:"tasks"`
	FollowUps int    `json:"follow_ups"`
	Media     int    `json:"media"`
	Warning   string `json:"warning,omitempty"`
}

// Reconciler owns the draft side of every job's service report. A job has
// one draft shared by its technicians. Draft mutations and Submit name the
// technician job whose submitted flag makes the report read-only for that
// technician; the flag is read from the report store the first time a
// technician job is seen.
type Reconciler struct {
	remote Remote
	drafts draft.Store
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	jobs map[int64]*jobState
}

type jobState struct {
	// edit serializes draft read-modify-save sequences and submits.
	edit sync.Mutex

	// Guarded by Reconciler.mu.
	submitted    map[int64]bool // by technician job
	submitting   bool
	pending      bool
	countsKnown  bool
	committed    counts
	committedIDs map[string]struct{}
	refresh      chan struct{}
	// checked holds the technician jobs whose submitted flag was read
	// from the report store.
	checked map[int64]bool
}

type counts struct {
	tasks, followUps, media int
}

func (c counts) total() int { return c.tasks + c.followUps + c.media }

// New creates a Reconciler.
func New(remote Remote, drafts draft.Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		remote: remote,
		drafts: drafts,
		logger: logger.With().Str("component", "report").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		jobs:   make(map[int64]*jobState),
	}
}

func (r *Reconciler) state(jobID int64) *jobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(jobID)
}

func (r *Reconciler) stateLocked(jobID int64) *jobState {
	s, ok := r.jobs[jobID]
	if !ok {
		s = &jobState{
			committedIDs: map[string]struct{}{},
			refresh:      make(chan struct{}, 1),
			checked:      map[int64]bool{},
			submitted:    map[int64]bool{},
		}
		r.jobs[jobID] = s
	}
	return s
}

// Submitted reports whether the technician job's report is known to be
// submitted.
func (r *Reconciler) Submitted(jobID, technicianJobID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(jobID).submitted[technicianJobID]
}

// Load fetches the committed items and the draft of a job in parallel and
// merges them. A failed category fetch is logged and leaves that category
// with only its draft items. Submitted comes from the technician job when
// technicianJobID is non-zero. Only a failing draft store fails the load.
func (r *Reconciler) Load(ctx context.Context, jobID, technicianJobID int64) (Report, error) {
	var (
		tasks     []model.Task
		followUps []model.FollowUp
		media     []model.MediaItem
		d         model.Draft
		submitted bool

		tasksOK, followUpsOK, mediaOK, techJobOK bool
	)

	log := r.logger.With().Int64("job_id", jobID).Logger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tasks, err = r.remote.TasksByJob(gctx, jobID); err != nil {
			log.Error().Err(err).Str("category", string(CategoryTasks)).Msg("loading committed items")
			return nil
		}
		tasksOK = true
		return nil
	})
	g.Go(func() error {
		var err error
		if followUps, err = r.remote.FollowUpsByJob(gctx, jobID); err != nil {
			log.Error().Err(err).Str("category", string(CategoryFollowUps)).Msg("loading committed items")
			return nil
		}
		followUpsOK = true
		return nil
	})
	g.Go(func() error {
		var err error
		if media, err = r.remote.MediaByJob(gctx, jobID); err != nil {
			log.Error().Err(err).Str("category", string(CategoryMedia)).Msg("loading committed items")
			return nil
		}
		mediaOK = true
		return nil
	})
	g.Go(func() error {
		var err error
		if d, err = r.drafts.Get(gctx, jobID); err != nil {
			return fmt.Errorf("loading draft: %w", err)
		}
		return nil
	})
	if technicianJobID > 0 {
		g.Go(func() error {
			tj, err := r.remote.TechnicianJob(gctx, technicianJobID)
			if err != nil {
				log.Warn().Err(err).Int64("technician_job_id", technicianJobID).Msg("loading submission state")
				return nil
			}
			techJobOK = true
			submitted = tj != nil && tj.IsServiceReportSubmitted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep := Report{
		JobID:     jobID,
		Tasks:     make([]model.Task, 0, len(tasks)+len(d.Tasks)),
		FollowUps: make([]model.FollowUp, 0, len(followUps)+len(d.FollowUps)),
		Media:     make([]model.MediaItem, 0, len(media)+len(d.Media)),
	}
	rep.Tasks = append(append(rep.Tasks, tasks...), d.Tasks...)
	rep.FollowUps = append(append(rep.FollowUps, followUps...), d.FollowUps...)
	rep.Media = append(append(rep.Media, media...), d.Media...)

	ids := make(map[string]struct{}, len(tasks)+len(followUps)+len(media))
	for _, t := range tasks {
		ids[committedKey(CategoryTasks, t.ID)] = struct{}{}
	}
	for _, f := range followUps {
		ids[committedKey(CategoryFollowUps, f.ID)] = struct{}{}
	}
	for _, m := range media {
		ids[committedKey(CategoryMedia, m.ID)] = struct{}{}
	}

	r.mu.Lock()
	s := r.stateLocked(jobID)
	s.countsKnown = tasksOK && followUpsOK && mediaOK
	s.committed = counts{tasks: len(tasks), followUps: len(followUps), media: len(media)}
	s.committedIDs = ids
	if submitted {
		s.submitted[technicianJobID] = true
	}
	if techJobOK {
		s.checked[technicianJobID] = true
	}
	rep.Submitted = s.submitted[technicianJobID]
	r.mu.Unlock()

	return rep, nil
}

func committedKey(c Category, id string) string {
	return string(c) + "/" + id
}

// checkSubmitted reads the submitted flag of a technician job from the
// report store unless a Load or an earlier check already did. A zero
// technicianJobID has no flag to check.
func (r *Reconciler) checkSubmitted(ctx context.Context, jobID, technicianJobID int64) error {
	r.mu.Lock()
	s := r.stateLocked(jobID)
	done := technicianJobID <= 0 || s.checked[technicianJobID] || s.submitted[technicianJobID]
	r.mu.Unlock()
	if done {
		return nil
	}

	tj, err := r.remote.TechnicianJob(ctx, technicianJobID)
	if err != nil {
		return fmt.Errorf("checking submission state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.checked[technicianJobID] = true
	if tj != nil && tj.IsServiceReportSubmitted {
		s.submitted[technicianJobID] = true
	}
	return nil
}

// flushed records an item the report store accepted during a submit.
func (r *Reconciler) flushed(jobID int64, c Category, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stateLocked(jobID)
	switch c {
	case CategoryTasks:
		s.committed.tasks++
	case CategoryFollowUps:
		s.committed.followUps++
	case CategoryMedia:
		s.committed.media++
	}
	s.committedIDs[committedKey(c, id)] = struct{}{}
}

// mutate runs fn on the job's draft and saves the result. Mutations of one
// job never interleave with each other or with a submit.
func (r *Reconciler) mutate(ctx context.Context, jobID, technicianJobID int64, fn func(d *model.Draft) error) error {
	s := r.state(jobID)
	s.edit.Lock()
	defer s.edit.Unlock()

	if err := r.checkSubmitted(ctx, jobID, technicianJobID); err != nil {
		return err
	}
	if r.Submitted(jobID, technicianJobID) {
		return ErrAlreadySubmitted
	}

	d, err := r.drafts.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reading draft: %w", err)
	}
	if err := fn(&d); err != nil {
		return err
	}
	if err := r.drafts.Save(ctx, jobID, d); err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

// missing picks the error for an id absent from the draft. An empty
// category matches committed items of any category.
func (r *Reconciler) missing(jobID int64, c Category, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.stateLocked(jobID).committedIDs

	cats := []Category{c}
	if c == "" {
		cats = []Category{CategoryTasks, CategoryFollowUps, CategoryMedia}
	}
	for _, cat := range cats {
		if _, ok := ids[committedKey(cat, id)]; ok {
			return ErrReadOnlyItem
		}
	}
	return ErrItemNotFound
}

func (r *Reconciler) committedTasks(jobID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(jobID).committed.tasks
}

// AddTask appends a draft task.
func (r *Reconciler) AddTask(ctx context.Context, jobID, technicianJobID int64, in TaskInput) (model.Task, error) {
	if err := in.Validate(); err != nil {
		return model.Task{}, err
	}

	base := r.committedTasks(jobID)
	var t model.Task
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		t = model.Task{
			ID:          uuid.NewString(),
			Token:       uuid.NewString(),
			Origin:      model.OriginDraft,
			JobID:       jobID,
			Name:        in.Name,
			Description: in.Description,
			Position:    base + len(d.Tasks),
			Completed:   in.Completed,
			CreatedAt:   r.now(),
		}
		d.Tasks = append(d.Tasks, t)
		return nil
	})
	return t, err
}

// UpdateTask edits a draft task.
func (r *Reconciler) UpdateTask(ctx context.Context, jobID, technicianJobID int64, id string, in TaskInput) (model.Task, error) {
	if err := in.Validate(); err != nil {
		return model.Task{}, err
	}

	var t model.Task
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		i := model.IndexOf(d.Tasks, id)
		if i < 0 {
			return r.missing(jobID, CategoryTasks, id)
		}
		d.Tasks[i].Name = in.Name
		d.Tasks[i].Description = in.Description
		d.Tasks[i].Completed = in.Completed
		t = d.Tasks[i]
		return nil
	})
	return t, err
}

// AddFollowUp appends a draft follow-up.
func (r *Reconciler) AddFollowUp(ctx context.Context, jobID, technicianJobID int64, in FollowUpInput) (model.FollowUp, error) {
	if err := in.Validate(); err != nil {
		return model.FollowUp{}, err
	}
	in = in.withDefaults()

	var f model.FollowUp
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		f = model.FollowUp{
			ID:        uuid.NewString(),
			Token:     uuid.NewString(),
			Origin:    model.OriginDraft,
			JobID:     jobID,
			Notes:     in.Notes,
			Type:      in.Type,
			Priority:  in.Priority,
			Status:    in.Status,
			DueDate:   in.DueDate,
			CreatedAt: r.now(),
		}
		d.FollowUps = append(d.FollowUps, f)
		return nil
	})
	return f, err
}

// UpdateFollowUp edits a draft follow-up.
func (r *Reconciler) UpdateFollowUp(ctx context.Context, jobID, technicianJobID int64, id string, in FollowUpInput) (model.FollowUp, error) {
	if err := in.Validate(); err != nil {
		return model.FollowUp{}, err
	}
	in = in.withDefaults()

	var f model.FollowUp
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		i := model.IndexOf(d.FollowUps, id)
		if i < 0 {
			return r.missing(jobID, CategoryFollowUps, id)
		}
		d.FollowUps[i].Notes = in.Notes
		d.FollowUps[i].Type = in.Type
		d.FollowUps[i].Priority = in.Priority
		d.FollowUps[i].Status = in.Status
		d.FollowUps[i].DueDate = in.DueDate
		f = d.FollowUps[i]
		return nil
	})
	return f, err
}

// AddMedia appends a draft media item pointing at a local file.
func (r *Reconciler) AddMedia(ctx context.Context, jobID, technicianJobID int64, in MediaInput) (model.MediaItem, error) {
	if err := in.Validate(); err != nil {
		return model.MediaItem{}, err
	}

	var m model.MediaItem
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		m = model.MediaItem{
			ID:          uuid.NewString(),
			Token:       uuid.NewString(),
			Origin:      model.OriginDraft,
			JobID:       jobID,
			Kind:        in.Kind,
			Description: in.Description,
			LocalRef:    in.LocalRef,
			Extension:   in.Extension,
			CreatedAt:   r.now(),
		}
		d.Media = append(d.Media, m)
		return nil
	})
	return m, err
}

// DeleteDraftItem removes a draft item of any category and returns it.
func (r *Reconciler) DeleteDraftItem(ctx context.Context, jobID, technicianJobID int64, id string) (model.ReportItem, error) {
	var removed model.ReportItem
	err := r.mutate(ctx, jobID, technicianJobID, func(d *model.Draft) error {
		if i := model.IndexOf(d.Tasks, id); i >= 0 {
			removed = d.Tasks[i]
			d.Tasks = append(d.Tasks[:i], d.Tasks[i+1:]...)
			return nil
		}
		if i := model.IndexOf(d.FollowUps, id); i >= 0 {
			removed = d.FollowUps[i]
			d.FollowUps = append(d.FollowUps[:i], d.FollowUps[i+1:]...)
			return nil
		}
		if i := model.IndexOf(d.Media, id); i >= 0 {
			removed = d.Media[i]
			d.Media = append(d.Media[:i], d.Media[i+1:]...)
			return nil
		}
		return r.missing(jobID, "", id)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// Submit flushes the job's draft to the report store: tasks, then
// follow-ups, then media, each in insertion order. The first failure stops
// the submit and is returned as a *FlushError. Items are removed from the
// draft as the store accepts them, so a retry resumes at the failed item.
// On success the technician job is marked submitted; a failure there is
// only a warning. Submit is not cancelled by ctx.
func (r *Reconciler) Submit(ctx context.Context, jobID, technicianJobID, userID int64) (*SubmitResult, error) {
	ctx = context.WithoutCancel(ctx)
	log := r.logger.With().Int64("job_id", jobID).Int64("technician_job_id", technicianJobID).Logger()

	r.mu.Lock()
	s := r.stateLocked(jobID)
	switch {
	case s.submitting:
		r.mu.Unlock()
		return nil, ErrSubmitInProgress
	case s.submitted[technicianJobID]:
		r.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	s.submitting = true
	r.mu.Unlock()
	defer r.settle(jobID)

	s.edit.Lock()
	defer s.edit.Unlock()

	if err := r.checkSubmitted(ctx, jobID, technicianJobID); err != nil {
		return nil, err
	}
	if r.Submitted(jobID, technicianJobID) {
		return nil, ErrAlreadySubmitted
	}

	d, err := r.drafts.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("reading draft: %w", err)
	}

	if d.Len() == 0 {
		committed, err := r.committedTotal(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if committed == 0 {
			return nil, ErrEmptyReport
		}
	}

	var tjID *int64
	if technicianJobID > 0 {
		tjID = &technicianJobID
	}
	var createdBy *int64
	if userID > 0 {
		createdBy = &userID
	}

	res := &SubmitResult{}
	accepted := func(c Category, id string) {
		r.flushed(jobID, c, id)
		if err := r.drafts.Save(ctx, jobID, d); err != nil {
			// The store de-duplicates on the item token, so a stale draft
			// only costs a no-op write on retry.
			log.Warn().Err(err).Msg("saving draft after flush")
		}
	}

	for i := 0; len(d.Tasks) > 0; i++ {
		t := d.Tasks[0]
		t.TechnicianJobID = tjID
		t.CreatedBy = createdBy
		created, err := r.remote.CreateTask(ctx, t)
		if err != nil {
			return nil, &FlushError{Category: CategoryTasks, Index: i, ItemID: t.ID, Err: err}
		}
		log.Debug().Str("draft_id", t.ID).Str("id", created.ID).Msg("task flushed")
		d.Tasks = d.Tasks[1:]
		res.Tasks++
		accepted(CategoryTasks, created.ID)
	}

	for i := 0; len(d.FollowUps) > 0; i++ {
		f := d.FollowUps[0]
		f.TechnicianJobID = tjID
		f.CreatedBy = createdBy
		created, err := r.remote.CreateFollowUp(ctx, f)
		if err != nil {
			return nil, &FlushError{Category: CategoryFollowUps, Index: i, ItemID: f.ID, Err: err}
		}
		log.Debug().Str("draft_id", f.ID).Str("id", created.ID).Msg("follow-up flushed")
		d.FollowUps = d.FollowUps[1:]
		res.FollowUps++
		accepted(CategoryFollowUps, created.ID)
	}

	for i := 0; len(d.Media) > 0; i++ {
		m := d.Media[0]
		created, err := r.remote.UploadMedia(ctx, MediaUpload{
			JobID:           jobID,
			TechnicianJobID: technicianJobID,
			LocalRef:        m.LocalRef,
			Description:     m.Description,
			UserID:          userID,
			Kind:            m.Kind,
			Extension:       m.Extension,
			Token:           m.Token,
		})
		if err != nil {
			return nil, &FlushError{Category: CategoryMedia, Index: i, ItemID: m.ID, Err: err}
		}
		log.Debug().Str("draft_id", m.ID).Str("id", created.ID).Msg("media flushed")
		d.Media = d.Media[1:]
		res.Media++
		accepted(CategoryMedia, created.ID)
	}

	if technicianJobID > 0 {
		if err := r.remote.SetReportSubmitted(ctx, technicianJobID, true); err != nil {
			log.Warn().Err(err).Msg("marking report submitted")
			res.Warning = "report saved, but it could not be marked as submitted: " + err.Error()
		}
	}

	if err := r.drafts.Clear(ctx, jobID); err != nil {
		log.Warn().Err(err).Msg("clearing draft")
	}

	r.mu.Lock()
	s.submitted[technicianJobID] = true
	r.mu.Unlock()

	log.Info().
		Int("tasks", res.Tasks).
		Int("follow_ups", res.FollowUps).
		Int("media", res.Media).
		Msg("report submitted")

	return res, nil
}

// committedTotal returns the number of committed items of a job. The count
// from the last complete Load is used when there is one, so a job loaded as
// empty is rejected without calling the store.
func (r *Reconciler) committedTotal(ctx context.Context, jobID int64) (int, error) {
	r.mu.Lock()
	s := r.stateLocked(jobID)
	known, n := s.countsKnown, s.committed.total()
	r.mu.Unlock()
	if known {
		return n, nil
	}

	var c counts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := r.remote.TasksByJob(gctx, jobID)
		c.tasks = len(tasks)
		return err
	})
	g.Go(func() error {
		followUps, err := r.remote.FollowUpsByJob(gctx, jobID)
		c.followUps = len(followUps)
		return err
	})
	g.Go(func() error {
		media, err := r.remote.MediaByJob(gctx, jobID)
		c.media = len(media)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("counting committed items: %w", err)
	}
	return c.total(), nil
}

// settle ends a submit and wakes a watcher whose refresh was deferred.
func (r *Reconciler) settle(jobID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stateLocked(jobID)
	s.submitting = false
	if s.pending {
		s.pending = false
		select {
		case s.refresh <- struct{}{}:
		default:
		}
	}
}

// deferRefresh records a refresh request when a submit is running.
func (r *Reconciler) deferRefresh(jobID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stateLocked(jobID)
	if s.submitting {
		s.pending = true
		return true
	}
	return false
}

// Watch reloads the job's report on every change event from n and passes
// it to onChange. Events that arrive while a submit of the job is running
// are held back and cause a single reload after the submit ends. Watch
// blocks until ctx is done or the subscription closes. One watcher per job
// is expected. The reports carry the submitted flag of technicianJobID.
func (r *Reconciler) Watch(ctx context.Context, n Notifier, jobID, technicianJobID int64, onChange func(Report)) error {
	events, cancel := n.Subscribe(jobID)
	defer cancel()

	r.mu.Lock()
	refresh := r.stateLocked(jobID).refresh
	r.mu.Unlock()

	reload := func() {
		rep, err := r.Load(ctx, jobID, technicianJobID)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error().Err(err).Int64("job_id", jobID).Msg("reloading report")
			}
			return
		}
		onChange(rep)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			if r.deferRefresh(jobID) {
				continue
			}
			reload()
		case <-refresh:
			reload()
		}
	}
}
