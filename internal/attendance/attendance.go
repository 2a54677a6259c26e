// Package attendance tracks whether a technician is clocked in or on break.
package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/erazemk/terenec/internal/model"
)

// DefaultInterval is how often a Poller refreshes attendance.
const DefaultInterval = 30 * time.Second

// Source answers attendance questions for a user.
type Source interface {
	IsClockedIn(ctx context.Context, userID int64) (bool, error)
	OnBreak(ctx context.Context, userID int64) (bool, error)
}

// Status fetches both attendance flags of a user.
func Status(ctx context.Context, src Source, userID int64) (model.AttendanceStatus, error) {
	var s model.AttendanceStatus
	var err error
	if s.ClockedIn, err = src.IsClockedIn(ctx, userID); err != nil {
		return s, fmt.Errorf("checking clock-in: %w", err)
	}
	if s.OnBreak, err = src.OnBreak(ctx, userID); err != nil {
		return s, fmt.Errorf("checking break: %w", err)
	}
	return s, nil
}

// Poller keeps a user's attendance status fresh by polling a Source.
type Poller struct {
	src      Source
	userID   int64
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.RWMutex
	status   model.AttendanceStatus
	loaded   bool
	onChange []func(model.AttendanceStatus)

	kick chan struct{}
}

// NewPoller creates a poller for userID. A non-positive interval uses
// DefaultInterval.
func NewPoller(src Source, userID int64, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		src:      src,
		userID:   userID,
		interval: interval,
		logger:   logger.With().Str("component", "attendance").Int64("user_id", userID).Logger(),
		kick:     make(chan struct{}, 1),
	}
}

// OnChange registers fn to be called with the new status whenever it
// changes, including the first successful poll.
func (p *Poller) OnChange(fn func(model.AttendanceStatus)) {
	p.mu.Lock()
	p.onChange = append(p.onChange, fn)
	p.mu.Unlock()
}

// Snapshot returns the last polled status.
func (p *Poller) Snapshot() model.AttendanceStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Refresh asks a running poller to poll now. It does not wait.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run polls immediately, then every interval and on Refresh, until ctx is
// done. Failed polls keep the previous status.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	s, err := Status(ctx, p.src, p.userID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("attendance poll failed")
		}
		return
	}

	p.mu.Lock()
	changed := !p.loaded || s != p.status
	p.status, p.loaded = s, true
	hooks := make([]func(model.AttendanceStatus), len(p.onChange))
	copy(hooks, p.onChange)
	p.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range hooks {
		fn(s)
	}
}
