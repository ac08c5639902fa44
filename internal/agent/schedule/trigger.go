// Package schedule evaluates the device's schedules once per minute and
// auto-starts the matching mode.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/anchorhq/anchor/internal/domain"
)

// Starter starts a blocking session; schedules always start with
// override so they win over a manually started different mode.
type Starter interface {
	Start(ctx context.Context, modeID string, override bool) error
}

// Store is the slice of the local store the trigger needs.
type Store interface {
	Schedules(ctx context.Context) ([]domain.Schedule, error)
	GetMode(ctx context.Context, id string) (*domain.Mode, error)
	PutSchedule(ctx context.Context, schedule *domain.Schedule) error
}

// Trigger fires schedule evaluation once at startup and then once per
// minute against local wall-clock time.
type Trigger struct {
	store   Store
	starter Starter
	log     *slog.Logger
	tick    time.Duration
	now     func() time.Time
}

// New creates a Trigger with the default 1-minute interval.
func New(store Store, starter Starter, log *slog.Logger) *Trigger {
	return &Trigger{
		store:   store,
		starter: starter,
		log:     log,
		tick:    1 * time.Minute,
		now:     time.Now,
	}
}

// SetTickInterval overrides the default 1-minute evaluation interval.
func (t *Trigger) SetTickInterval(d time.Duration) {
	t.tick = d
}

// SetClock overrides the wall clock (useful for testing).
func (t *Trigger) SetClock(now func() time.Time) {
	t.now = now
}

// Run starts the trigger loop, blocking until ctx is cancelled. It
// evaluates immediately once, to catch triggers missed while the
// process was not running.
func (t *Trigger) Run(ctx context.Context) {
	t.Evaluate(ctx, t.now())

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Evaluate(ctx, t.now())
		}
	}
}

// Evaluate runs all enabled schedules against the given instant.
// Matching is exact to the minute, not a range window. Schedules are
// processed in stored order; when several match the same minute, each
// later start overrides the previous one, so the last processed wins.
func (t *Trigger) Evaluate(ctx context.Context, now time.Time) {
	schedules, err := t.store.Schedules(ctx)
	if err != nil {
		t.log.Error("list schedules", "error", err)
		return
	}

	weekday := int(now.Weekday())
	minute := now.Format("15:04")

	for _, schedule := range schedules {
		if ctx.Err() != nil {
			return
		}
		if !schedule.Enabled {
			continue
		}
		if !slices.Contains(schedule.Weekdays, weekday) || schedule.StartTime != minute {
			continue
		}

		if _, err := t.store.GetMode(ctx, schedule.ModeID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				t.disable(ctx, schedule, "mode deleted")
				continue
			}
			t.log.Error("resolve schedule mode", "schedule", schedule.Name, "error", err)
			continue
		}

		if err := t.starter.Start(ctx, schedule.ModeID, true); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				t.disable(ctx, schedule, "mode not found on start")
				continue
			}
			// Transient failure: leave the schedule enabled.
			t.log.Error("start scheduled session", "schedule", schedule.Name, "error", err)
			continue
		}

		t.log.Info("schedule fired", "schedule", schedule.Name, "time", minute)
	}
}

func (t *Trigger) disable(ctx context.Context, schedule domain.Schedule, reason string) {
	schedule.Enabled = false
	schedule.UpdatedAt = t.now().UTC()
	if err := t.store.PutSchedule(ctx, &schedule); err != nil {
		t.log.Error("disable schedule", "schedule", schedule.Name, "error", err)
		return
	}
	t.log.Warn("schedule disabled", "schedule", schedule.Name, "reason", reason)
}
