package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/erazemk/terenec/internal/attendance"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
	"github.com/erazemk/terenec/internal/report"
	"github.com/erazemk/terenec/internal/store"
)

// liveFeed runs one report watcher per job and fans the reloaded reports
// out to every connected client of that job.
type liveFeed struct {
	reports *report.Reconciler
	hub     *realtime.Hub
	logger  zerolog.Logger

	mu      sync.Mutex
	jobs    map[int64]*liveJob
	pollers map[int64]map[*attendance.Poller]struct{}
}

type liveJob struct {
	cancel    context.CancelFunc
	listeners map[chan report.Report]struct{}
}

func newLiveFeed(reports *report.Reconciler, hub *realtime.Hub, logger zerolog.Logger) *liveFeed {
	return &liveFeed{
		reports: reports,
		hub:     hub,
		logger:  logger,
		jobs:    make(map[int64]*liveJob),
		pollers: make(map[int64]map[*attendance.Poller]struct{}),
	}
}

// track registers p as the attendance poller of a live client of userID.
func (f *liveFeed) track(userID int64, p *attendance.Poller) (untrack func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollers[userID] == nil {
		f.pollers[userID] = make(map[*attendance.Poller]struct{})
	}
	f.pollers[userID][p] = struct{}{}

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.pollers[userID], p)
		if len(f.pollers[userID]) == 0 {
			delete(f.pollers, userID)
		}
	}
}

// refreshAttendance makes the live clients of userID poll now.
func (f *liveFeed) refreshAttendance(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p := range f.pollers[userID] {
		p.Refresh()
	}
}

// join registers a listener for jobID, starting the job's watcher if it is
// the first. The channel holds only the latest report. leave must be called.
func (f *liveFeed) join(jobID, technicianJobID int64) (reports <-chan report.Report, leave func()) {
	ch := make(chan report.Report, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	j := f.jobs[jobID]
	if j == nil {
		ctx, cancel := context.WithCancel(context.Background())
		j = &liveJob{cancel: cancel, listeners: make(map[chan report.Report]struct{})}
		f.jobs[jobID] = j
		go func() {
			err := f.reports.Watch(ctx, f.hub, jobID, technicianJobID, func(rep report.Report) {
				f.broadcast(jobID, rep)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Error().Err(err).Int64("job_id", jobID).Msg("report watcher stopped")
			}
		}()
	}
	j.listeners[ch] = struct{}{}
	f.logger.Debug().
		Int64("job_id", jobID).
		Int("listeners", len(j.listeners)).
		Int("subscribers", f.hub.Subscribers(jobID)).
		Msg("live report client joined")

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(j.listeners, ch)
		if len(j.listeners) == 0 && f.jobs[jobID] == j {
			j.cancel()
			delete(f.jobs, jobID)
		}
	}
}

func (f *liveFeed) broadcast(jobID int64, rep report.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j := f.jobs[jobID]; j != nil {
		for ch := range j.listeners {
			offer(ch, rep)
		}
	}
}

// offer replaces whatever is buffered in ch with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

type liveMessage struct {
	Type   string         `json:"type"`
	Report *report.Report `json:"report,omitempty"`
	Gate   *gateResponse  `json:"gate,omitempty"`
}

// liveReport handles GET /api/jobs/{id}/report/live as a websocket. It
// sends the merged report whenever it changes and the submit gate whenever
// the report, the job or the technician's attendance changes.
func (s *Server) liveReport(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rep, err := s.reports.Load(ctx, job.ID, tj.ID)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}

	reports, leave := s.live.join(job.ID, tj.ID)
	defer leave()

	statuses := make(chan model.AttendanceStatus, 1)
	poller := attendance.NewPoller(s.backend, tj.TechnicianID, s.opts.PollInterval, s.logger)
	poller.OnChange(func(st model.AttendanceStatus) { offer(statuses, st) })
	defer s.live.track(tj.TechnicianID, poller)()
	go func() { _ = poller.Run(ctx) }()

	jobID, technicianJobID := job.ID, tj.ID
	msgs := make(chan liveMessage)
	go func(job *model.Job, rep report.Report) {
		var (
			st     model.AttendanceStatus
			haveSt bool
		)
		send := func(m liveMessage) bool {
			select {
			case msgs <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}
		sendGate := func() bool {
			if !haveSt {
				return true
			}
			g := gateFor(job, rep, st)
			return send(liveMessage{Type: "gate", Gate: &g})
		}

		initial := rep
		if !send(liveMessage{Type: "report", Report: &initial}) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case rep = <-reports:
				if j, err := store.GetJob(ctx, s.db, jobID); err == nil && j != nil {
					job = j
				}
				if haveSt {
					st = poller.Snapshot()
				}
				latest := rep
				latest.Submitted = s.reports.Submitted(jobID, technicianJobID)
				if !send(liveMessage{Type: "report", Report: &latest}) || !sendGate() {
					return
				}
			case st = <-statuses:
				haveSt = true
				if !sendGate() {
					return
				}
			}
		}
	}(job, rep)

	realtime.Pump(ctx, w, r, msgs, s.logger.With().Int64("job_id", jobID).Logger())
}
