package report

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/terenec/internal/draft"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
)

var errNetwork = errors.New("network unreachable")

type fakeRemote struct {
	mu        sync.Mutex
	nextID    int
	tasks     map[int64][]model.Task
	followUps map[int64][]model.FollowUp
	media     map[int64][]model.MediaItem
	techJobs  map[int64]*model.TechnicianJob
	calls     []string

	fetchErr     map[Category]error
	techJobErr   error
	createTask   func(model.Task) error
	createFollow func(model.FollowUp) error
	upload       func(MediaUpload) error
	setSubmitErr error

	// When set, CreateTask signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tasks:     map[int64][]model.Task{},
		followUps: map[int64][]model.FollowUp{},
		media:     map[int64][]model.MediaItem{},
		techJobs:  map[int64]*model.TechnicianJob{},
		fetchErr:  map[Category]error{},
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) id() string {
	f.nextID++
	return strconv.Itoa(f.nextID)
}

func (f *fakeRemote) seedTask(jobID int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[jobID] = append(f.tasks[jobID], model.Task{ID: f.id(), Origin: model.OriginCommitted, JobID: jobID, Name: name})
}

func (f *fakeRemote) TasksByJob(_ context.Context, jobID int64) ([]model.Task, error) {
	f.record("TasksByJob")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[CategoryTasks]; err != nil {
		return nil, err
	}
	return append([]model.Task(nil), f.tasks[jobID]...), nil
}

func (f *fakeRemote) CreateTask(_ context.Context, t model.Task) (*model.Task, error) {
	f.record("CreateTask")
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.createTask != nil {
		if err := f.createTask(t); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tasks[t.JobID] {
		if existing.Token == t.Token {
			return &existing, nil
		}
	}
	t.ID = f.id()
	t.Origin = model.OriginCommitted
	f.tasks[t.JobID] = append(f.tasks[t.JobID], t)
	return &t, nil
}

func (f *fakeRemote) FollowUpsByJob(_ context.Context, jobID int64) ([]model.FollowUp, error) {
	f.record("FollowUpsByJob")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[CategoryFollowUps]; err != nil {
		return nil, err
	}
	return append([]model.FollowUp(nil), f.followUps[jobID]...), nil
}

func (f *fakeRemote) CreateFollowUp(_ context.Context, fu model.FollowUp) (*model.FollowUp, error) {
	f.record("CreateFollowUp")
	if f.createFollow != nil {
		if err := f.createFollow(fu); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fu.ID = f.id()
	fu.Origin = model.OriginCommitted
	f.followUps[fu.JobID] = append(f.followUps[fu.JobID], fu)
	return &fu, nil
}

func (f *fakeRemote) MediaByJob(_ context.Context, jobID int64) ([]model.MediaItem, error) {
	f.record("MediaByJob")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[CategoryMedia]; err != nil {
		return nil, err
	}
	return append([]model.MediaItem(nil), f.media[jobID]...), nil
}

func (f *fakeRemote) UploadMedia(_ context.Context, u MediaUpload) (*model.MediaItem, error) {
	f.record("UploadMedia")
	if f.upload != nil {
		if err := f.upload(u); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.id()
	m := model.MediaItem{ID: id, Origin: model.OriginCommitted, JobID: u.JobID, Kind: u.Kind, Description: u.Description, URL: "/api/media/" + id}
	f.media[u.JobID] = append(f.media[u.JobID], m)
	return &m, nil
}

func (f *fakeRemote) TechnicianJob(_ context.Context, id int64) (*model.TechnicianJob, error) {
	f.record("TechnicianJob")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.techJobErr != nil {
		return nil, f.techJobErr
	}
	tj, ok := f.techJobs[id]
	if !ok {
		return nil, nil
	}
	c := *tj
	return &c, nil
}

func (f *fakeRemote) SetReportSubmitted(_ context.Context, id int64, submitted bool) error {
	f.record("SetReportSubmitted")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setSubmitErr != nil {
		return f.setSubmitErr
	}
	if tj, ok := f.techJobs[id]; ok {
		tj.IsServiceReportSubmitted = submitted
	}
	return nil
}

func (f *fakeRemote) mutatingCalls() []string {
	var out []string
	for _, c := range f.Calls() {
		switch c {
		case "CreateTask", "CreateFollowUp", "UploadMedia", "SetReportSubmitted":
			out = append(out, c)
		}
	}
	return out
}

const (
	jobID    int64 = 10
	techJob  int64 = 20
	techJob2 int64 = 21
	userID   int64 = 30
	otherJob int64 = 11
)

func newTestReconciler(t *testing.T) (*Reconciler, *fakeRemote, *draft.MemoryStore) {
	t.Helper()
	remote := newFakeRemote()
	remote.techJobs[techJob] = &model.TechnicianJob{ID: techJob, JobID: jobID, TechnicianID: userID}
	drafts := draft.NewMemoryStore()
	return New(remote, drafts, zerolog.Nop()), remote, drafts
}

func taskNames(tasks []model.Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

func TestLoadMergesCommittedBeforeDraft(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	remote.seedTask(jobID, "Committed one")
	remote.seedTask(jobID, "Committed two")
	remote.seedTask(otherJob, "Elsewhere")

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Draft one"})
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Draft two"})
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Draft three"})
	require.NoError(t, err)

	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)

	assert.Equal(t, []string{"Committed one", "Committed two", "Draft one", "Draft two", "Draft three"}, taskNames(rep.Tasks))
	for i, task := range rep.Tasks {
		want := model.OriginDraft
		if i < 2 {
			want = model.OriginCommitted
		}
		assert.Equal(t, want, task.Origin, "task %d", i)
	}
	assert.NotNil(t, rep.FollowUps)
	assert.NotNil(t, rep.Media)
	assert.False(t, rep.Submitted)
}

func TestLoadDegradesFailedCategory(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	remote.seedTask(jobID, "Committed")
	remote.fetchErr[CategoryFollowUps] = errNetwork
	_, err := rec.AddFollowUp(ctx, jobID, 0, FollowUpInput{Notes: "Draft follow-up"})
	require.NoError(t, err)

	rep, err := rec.Load(ctx, jobID, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Tasks, 1)
	require.Len(t, rep.FollowUps, 1)
	assert.Equal(t, model.OriginDraft, rep.FollowUps[0].Origin)
	assert.NotContains(t, remote.Calls(), "TechnicianJob")
}

func TestLoadSubmittedFlag(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	remote.techJobs[techJob].IsServiceReportSubmitted = true
	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	assert.True(t, rep.Submitted)

	rec2, remote2, _ := newTestReconciler(t)
	remote2.techJobErr = errNetwork
	rep, err = rec2.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	assert.False(t, rep.Submitted)
}

func TestScenarioADraftTasksInOrder(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Clean filter"})
	require.NoError(t, err)

	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	require.Len(t, rep.Tasks, 2)
	assert.Equal(t, []string{"Inspect unit", "Clean filter"}, taskNames(rep.Tasks))
	assert.Equal(t, model.OriginDraft, rep.Tasks[0].Origin)
	assert.Equal(t, model.OriginDraft, rep.Tasks[1].Origin)
}

func TestScenarioBDeleteDraftTaskMakesNoRemoteCall(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	clean, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Clean filter"})
	require.NoError(t, err)

	removed, err := rec.DeleteDraftItem(ctx, jobID, techJob, clean.ID)
	require.NoError(t, err)
	assert.Equal(t, clean.ID, removed.ItemID())

	d, err := drafts.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inspect unit"}, taskNames(d.Tasks))
	assert.Empty(t, remote.mutatingCalls())
}

func TestCommittedItemsAreReadOnly(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	remote.seedTask(jobID, "Committed")
	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	committed := rep.Tasks[0]

	_, err = rec.DeleteDraftItem(ctx, jobID, techJob, committed.ID)
	assert.ErrorIs(t, err, ErrReadOnlyItem)

	_, err = rec.UpdateTask(ctx, jobID, techJob, committed.ID, TaskInput{Name: "Renamed"})
	assert.ErrorIs(t, err, ErrReadOnlyItem)

	_, err = rec.DeleteDraftItem(ctx, jobID, techJob, "no-such-id")
	assert.ErrorIs(t, err, ErrItemNotFound)

	// Committed items never leak into the draft.
	d, _ := drafts.Get(ctx, jobID)
	assert.Equal(t, 0, d.Len())

	rep, err = rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	assert.Equal(t, model.OriginCommitted, rep.Tasks[0].Origin)
}

func TestUpdateDraftItems(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestReconciler(t)

	task, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)
	updated, err := rec.UpdateTask(ctx, jobID, techJob, task.ID, TaskInput{Name: "Inspect unit", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, task.Token, updated.Token)
	assert.True(t, updated.Completed)
	assert.Equal(t, model.OriginDraft, updated.Origin)

	fu, err := rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "Order part"})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, fu.Priority)
	assert.Equal(t, model.FollowUpOpen, fu.Status)

	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	fu, err = rec.UpdateFollowUp(ctx, jobID, techJob, fu.ID, FollowUpInput{Notes: "Order part", Priority: model.PriorityUrgent, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityUrgent, fu.Priority)
	require.NotNil(t, fu.DueDate)

	_, err = rec.UpdateFollowUp(ctx, jobID, techJob, task.ID, FollowUpInput{Notes: "x"})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestInputValidation(t *testing.T) {
	ctx := context.Background()
	rec, _, drafts := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "   "})
	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "name", fieldErrs[0].Field)

	_, err = rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "n", Priority: "critical", Status: "done"})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)

	_, err = rec.AddMedia(ctx, jobID, techJob, MediaInput{Kind: "audio"})
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 2)

	d, _ := drafts.Get(ctx, jobID)
	assert.Equal(t, 0, d.Len())
}

func TestSubmitFlushesInOrderAndClears(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	_, err := rec.AddMedia(ctx, jobID, techJob, MediaInput{Kind: model.MediaImage, LocalRef: "/tmp/a.jpg", Extension: "jpg"})
	require.NoError(t, err)
	_, err = rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "Order part"})
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Clean filter"})
	require.NoError(t, err)

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
	assert.Equal(t, &SubmitResult{Tasks: 2, FollowUps: 1, Media: 1}, res)

	assert.Equal(t, []string{"CreateTask", "CreateTask", "CreateFollowUp", "UploadMedia", "SetReportSubmitted"}, remote.mutatingCalls())
	assert.Equal(t, []string{"Inspect unit", "Clean filter"}, taskNames(remote.tasks[jobID]))
	require.NotNil(t, remote.tasks[jobID][0].CreatedBy)
	assert.Equal(t, userID, *remote.tasks[jobID][0].CreatedBy)
	require.NotNil(t, remote.followUps[jobID][0].TechnicianJobID)
	assert.Equal(t, techJob, *remote.followUps[jobID][0].TechnicianJobID)

	d, err := drafts.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Empty(t, d.Tasks)
	assert.Empty(t, d.FollowUps)
	assert.Empty(t, d.Media)
	assert.True(t, rec.Submitted(jobID, techJob))
	assert.True(t, remote.techJobs[techJob].IsServiceReportSubmitted)

	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	assert.True(t, rep.Submitted)
	assert.Len(t, rep.Tasks, 2)
	assert.Equal(t, model.OriginCommitted, rep.Tasks[0].Origin)
}

func TestSubmitAbortsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	for _, name := range []string{"one", "two", "three", "four"} {
		_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: name})
		require.NoError(t, err)
	}
	_, err := rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "later"})
	require.NoError(t, err)

	remote.createTask = func(t model.Task) error {
		if t.Name == "three" {
			return errNetwork
		}
		return nil
	}

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	assert.Nil(t, res)

	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.Equal(t, CategoryTasks, flushErr.Category)
	assert.Equal(t, 2, flushErr.Index)
	assert.ErrorIs(t, err, errNetwork)
	assert.Equal(t, "could not save tasks: network unreachable", flushErr.UserMessage())

	d, err := drafts.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, taskNames(d.Tasks))
	assert.Len(t, d.FollowUps, 1)
	assert.False(t, rec.Submitted(jobID, techJob))
	assert.NotContains(t, remote.Calls(), "CreateFollowUp")
	assert.NotContains(t, remote.Calls(), "SetReportSubmitted")
}

func TestScenarioCFollowUpFailureKeepsFollowUp(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	fu, err := rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "Replace valve"})
	require.NoError(t, err)
	remote.createFollow = func(model.FollowUp) error { return errNetwork }

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.Equal(t, CategoryFollowUps, flushErr.Category)
	assert.Equal(t, fu.ID, flushErr.ItemID)

	assert.Len(t, remote.tasks[jobID], 1)
	d, _ := drafts.Get(ctx, jobID)
	assert.Empty(t, d.Tasks)
	require.Len(t, d.FollowUps, 1)
	assert.Equal(t, fu.ID, d.FollowUps[0].ID)
	assert.False(t, rec.Submitted(jobID, techJob))

	// A retry flushes only what is left.
	remote.createFollow = nil
	res, err := rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Tasks)
	assert.Equal(t, 1, res.FollowUps)
	assert.Len(t, remote.tasks[jobID], 1)
}

func TestSubmitRetryAfterPartialFlushWithEmptyDraft(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	rep, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	require.Equal(t, 0, rep.Len())

	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	fu, err := rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "Replace valve"})
	require.NoError(t, err)
	remote.createFollow = func(model.FollowUp) error { return errNetwork }

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	require.Len(t, remote.tasks[jobID], 1)

	_, err = rec.DeleteDraftItem(ctx, jobID, techJob, fu.ID)
	require.NoError(t, err)
	d, _ := drafts.Get(ctx, jobID)
	require.Equal(t, 0, d.Len())

	// The flushed task still counts, so the report is not empty.
	res, err := rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
	assert.Equal(t, &SubmitResult{}, res)
	assert.True(t, rec.Submitted(jobID, techJob))
	assert.True(t, remote.techJobs[techJob].IsServiceReportSubmitted)
}

func TestFlushedItemsAreReadOnlyAndShiftPositions(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	_, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	_, err = rec.AddFollowUp(ctx, jobID, techJob, FollowUpInput{Notes: "Replace valve"})
	require.NoError(t, err)
	remote.createFollow = func(model.FollowUp) error { return errNetwork }

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	require.Error(t, err)
	committedID := remote.tasks[jobID][0].ID

	_, err = rec.UpdateTask(ctx, jobID, techJob, committedID, TaskInput{Name: "Renamed"})
	assert.ErrorIs(t, err, ErrReadOnlyItem)

	next, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Clean filter"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.Position)
}

func TestMutationsWithoutLoadSeeRemoteSubmitted(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)
	remote.techJobs[techJob].IsServiceReportSubmitted = true

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Late"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	_, err = rec.AddMedia(ctx, jobID, techJob, MediaInput{Kind: model.MediaImage, LocalRef: "/tmp/x.jpg"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	d, _ := drafts.Get(ctx, jobID)
	assert.Equal(t, 0, d.Len())
	assert.True(t, rec.Submitted(jobID, techJob))
	assert.Equal(t, []string{"TechnicianJob"}, remote.Calls())
}

func TestSubmitWithoutLoadSeesRemoteSubmitted(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	// A draft left over from before the report was submitted elsewhere.
	require.NoError(t, drafts.Save(ctx, jobID, model.Draft{
		Tasks: []model.Task{{ID: "a", Token: "a", Origin: model.OriginDraft, JobID: jobID, Name: "Stale"}},
	}))
	remote.techJobs[techJob].IsServiceReportSubmitted = true

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Empty(t, remote.mutatingCalls())
	assert.Empty(t, remote.tasks[jobID])
}

func TestSubmitFailsWhenSubmissionStateUnreadable(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	require.NoError(t, drafts.Save(ctx, jobID, model.Draft{
		Tasks: []model.Task{{ID: "a", Token: "a", Origin: model.OriginDraft, JobID: jobID, Name: "Inspect"}},
	}))
	remote.techJobErr = errNetwork

	_, err := rec.Submit(ctx, jobID, techJob, userID)
	assert.ErrorIs(t, err, errNetwork)
	assert.Empty(t, remote.mutatingCalls())
	assert.False(t, rec.Submitted(jobID, techJob))

	remote.techJobErr = nil
	_, err = rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
}

func TestSubmitMediaFailure(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	m, err := rec.AddMedia(ctx, jobID, techJob, MediaInput{Kind: model.MediaVideo, LocalRef: "/tmp/v.mp4", Extension: "mp4", Description: "Leak"})
	require.NoError(t, err)
	var got MediaUpload
	remote.upload = func(u MediaUpload) error {
		got = u
		return errNetwork
	}

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	var flushErr *FlushError
	require.ErrorAs(t, err, &flushErr)
	assert.Equal(t, CategoryMedia, flushErr.Category)

	assert.Equal(t, MediaUpload{
		JobID: jobID, TechnicianJobID: techJob, LocalRef: "/tmp/v.mp4", Description: "Leak",
		UserID: userID, Kind: model.MediaVideo, Extension: "mp4", Token: m.Token,
	}, got)

	d, _ := drafts.Get(ctx, jobID)
	assert.Len(t, d.Media, 1)
}

func TestSubmitEmptyReport(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	_, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)
	before := len(remote.Calls())

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrEmptyReport)
	assert.Len(t, remote.Calls(), before)
	assert.False(t, rec.Submitted(jobID, techJob))
}

func TestSubmitEmptyReportWithoutLoadOnlyReads(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	_, err := rec.Submit(ctx, jobID, techJob, userID)
	assert.ErrorIs(t, err, ErrEmptyReport)
	assert.Empty(t, remote.mutatingCalls())
}

func TestSubmitOnlyCommittedItemsMarksSubmitted(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)
	remote.seedTask(jobID, "Committed")

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
	assert.Equal(t, &SubmitResult{}, res)
	assert.Equal(t, []string{"SetReportSubmitted"}, remote.mutatingCalls())
	assert.True(t, rec.Submitted(jobID, techJob))
}

func TestSubmitFlagFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	rec, remote, drafts := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)
	remote.setSubmitErr = errNetwork

	res, err := rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "network unreachable")
	assert.True(t, rec.Submitted(jobID, techJob))

	d, _ := drafts.Get(ctx, jobID)
	assert.Equal(t, 0, d.Len())
}

func TestMutationsRejectedAfterSubmit(t *testing.T) {
	ctx := context.Background()
	rec, _, _ := newTestReconciler(t)

	task, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)
	_, err = rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)

	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Late"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	_, err = rec.DeleteDraftItem(ctx, jobID, techJob, task.ID)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	_, err = rec.AddMedia(ctx, jobID, techJob, MediaInput{Kind: model.MediaImage, LocalRef: "/tmp/x.jpg"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	_, err = rec.Submit(ctx, jobID, techJob, userID)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	// Other jobs are unaffected.
	_, err = rec.AddTask(ctx, otherJob, 0, TaskInput{Name: "Fine"})
	assert.NoError(t, err)
}

func TestMutationsRejectedWhenRemoteSaysSubmitted(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)
	remote.techJobs[techJob].IsServiceReportSubmitted = true

	_, err := rec.Load(ctx, jobID, techJob)
	require.NoError(t, err)

	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Late"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmittedFlagIsPerTechnicianJob(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)
	remote.techJobs[techJob2] = &model.TechnicianJob{ID: techJob2, JobID: jobID, TechnicianID: userID + 1}

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect unit"})
	require.NoError(t, err)
	_, err = rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)

	_, err = rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Late"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = rec.AddTask(ctx, jobID, techJob2, TaskInput{Name: "Second visit"})
	require.NoError(t, err)
	res, err := rec.Submit(ctx, jobID, techJob2, userID+1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tasks)
	assert.True(t, rec.Submitted(jobID, techJob2))
	assert.True(t, remote.techJobs[techJob2].IsServiceReportSubmitted)

	// A fresh process reads the same flags from the store.
	fresh := New(remote, draft.NewMemoryStore(), zerolog.Nop())
	_, err = fresh.AddTask(ctx, jobID, techJob, TaskInput{Name: "After restart"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestConcurrentSubmitFailsFast(t *testing.T) {
	ctx := context.Background()
	rec, remote, _ := newTestReconciler(t)

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)

	remote.entered = make(chan struct{})
	remote.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := rec.Submit(ctx, jobID, techJob, userID)
		done <- err
	}()
	<-remote.entered

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	assert.ErrorIs(t, err, ErrSubmitInProgress)

	close(remote.release)
	require.NoError(t, <-done)
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	rec, remote, drafts := newTestReconciler(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)

	remote.createTask = func(model.Task) error {
		cancel()
		return nil
	}

	_, err = rec.Submit(ctx, jobID, techJob, userID)
	require.NoError(t, err)

	d, _ := drafts.Get(context.Background(), jobID)
	assert.Equal(t, 0, d.Len())
}

func TestWatchReloadsOnChange(t *testing.T) {
	rec, remote, _ := newTestReconciler(t)
	hub := realtime.NewHub(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan Report, 4)
	go func() { _ = rec.Watch(ctx, hub, jobID, techJob, func(r Report) { reports <- r }) }()
	require.Eventually(t, func() bool { return hub.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)

	remote.seedTask(jobID, "Added by dispatcher")
	hub.Publish(realtime.Event{Type: realtime.TaskCreated, JobID: jobID})

	select {
	case rep := <-reports:
		assert.Equal(t, []string{"Added by dispatcher"}, taskNames(rep.Tasks))
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after change event")
	}
}

func TestWatchDefersRefreshDuringSubmit(t *testing.T) {
	rec, remote, _ := newTestReconciler(t)
	hub := realtime.NewHub(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := rec.AddTask(ctx, jobID, techJob, TaskInput{Name: "Inspect"})
	require.NoError(t, err)

	reports := make(chan Report, 4)
	go func() { _ = rec.Watch(ctx, hub, jobID, techJob, func(r Report) { reports <- r }) }()
	require.Eventually(t, func() bool { return hub.Subscribers(jobID) == 1 }, time.Second, 5*time.Millisecond)

	remote.entered = make(chan struct{})
	remote.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := rec.Submit(ctx, jobID, techJob, userID)
		done <- err
	}()
	<-remote.entered

	hub.Publish(realtime.Event{Type: realtime.JobUpdated, JobID: jobID})
	hub.Publish(realtime.Event{Type: realtime.JobUpdated, JobID: jobID})

	select {
	case <-reports:
		t.Fatal("reloaded while a submit was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(remote.release)
	require.NoError(t, <-done)

	select {
	case rep := <-reports:
		assert.True(t, rep.Submitted)
		require.Len(t, rep.Tasks, 1)
		assert.Equal(t, model.OriginCommitted, rep.Tasks[0].Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred refresh never ran")
	}

	select {
	case <-reports:
		t.Fatal("deferred refreshes were not coalesced")
	case <-time.After(100 * time.Millisecond):
	}
}
