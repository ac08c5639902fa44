package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/internal/domain"
)

// ScheduleInput carries the user-editable schedule fields.
type ScheduleInput struct {
	Name      string
	ModeID    string
	StartTime string
	Weekdays  []int
}

// Schedules lists the device's schedules in stored order.
func (e *Engine) Schedules(ctx context.Context) ([]domain.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Schedules(ctx)
}

// CreateSchedule validates and stores a new enabled schedule.
func (e *Engine) CreateSchedule(ctx context.Context, in ScheduleInput) (*domain.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validateSchedule(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	schedule := &domain.Schedule{
		ID:        uuid.NewString(),
		Name:      in.Name,
		ModeID:    in.ModeID,
		StartTime: in.StartTime,
		Weekdays:  normalizeWeekdays(in.Weekdays),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.PutSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}

	e.log.Info("schedule created", "schedule", schedule.Name, "time", schedule.StartTime)
	return schedule, nil
}

// UpdateSchedule validates and rewrites an existing schedule.
func (e *Engine) UpdateSchedule(ctx context.Context, id string, in ScheduleInput) (*domain.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	schedule, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.validateSchedule(ctx, in); err != nil {
		return nil, err
	}

	schedule.Name = in.Name
	schedule.ModeID = in.ModeID
	schedule.StartTime = in.StartTime
	schedule.Weekdays = normalizeWeekdays(in.Weekdays)
	schedule.UpdatedAt = time.Now().UTC()
	if err := e.store.PutSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}
	return schedule, nil
}

// ToggleSchedule flips a schedule's enabled flag.
func (e *Engine) ToggleSchedule(ctx context.Context, id string, enabled bool) (*domain.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	schedule, err := e.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule.Enabled = enabled
	schedule.UpdatedAt = time.Now().UTC()
	if err := e.store.PutSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("store schedule: %w", err)
	}
	return schedule, nil
}

// DeleteSchedule removes a schedule by id.
func (e *Engine) DeleteSchedule(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetSchedule(ctx, id); err != nil {
		return err
	}
	return e.store.DeleteSchedule(ctx, id)
}

func (e *Engine) validateSchedule(ctx context.Context, in ScheduleInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: schedule name is required", domain.ErrValidation)
	}
	if len(in.Weekdays) == 0 {
		return fmt.Errorf("%w: at least one weekday must be selected", domain.ErrValidation)
	}
	for _, d := range in.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0-6", domain.ErrValidation, d)
		}
	}
	if _, err := time.Parse("15:04", in.StartTime); err != nil {
		return fmt.Errorf("%w: start time must be HH:MM", domain.ErrValidation)
	}
	if _, err := e.store.GetMode(ctx, in.ModeID); err != nil {
		return err
	}
	return nil
}

func normalizeWeekdays(weekdays []int) []int {
	out := slices.Clone(weekdays)
	slices.Sort(out)
	return slices.Compact(out)
}
