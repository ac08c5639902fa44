package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anchorhq/anchor/internal/domain"
)

const scheduleColumns = "id, name, mode_id, start_time, weekdays, enabled, created_at, updated_at"

// Schedules returns all schedules in stored (insertion) order. The
// trigger relies on this order when several schedules match the same
// minute: the last one processed wins.
func (s *Store) Schedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// GetSchedule returns a schedule by id, or domain.ErrNotFound.
func (s *Store) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ?", id)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return schedule, nil
}

// PutSchedule inserts or rewrites a schedule.
func (s *Store) PutSchedule(ctx context.Context, schedule *domain.Schedule) error {
	weekdays, err := json.Marshal(schedule.Weekdays)
	if err != nil {
		return fmt.Errorf("marshal weekdays: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, mode_id = excluded.mode_id,
		   start_time = excluded.start_time, weekdays = excluded.weekdays,
		   enabled = excluded.enabled, updated_at = excluded.updated_at`,
		schedule.ID, schedule.Name, schedule.ModeID, schedule.StartTime,
		string(weekdays), schedule.Enabled, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule by id.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteSchedulesByMode removes every schedule referencing the mode and
// returns how many were removed. Used by the mode-deletion cascade.
func (s *Store) DeleteSchedulesByMode(ctx context.Context, modeID string) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM schedules WHERE mode_id = ?", modeID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules by mode: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	schedule := &domain.Schedule{}
	var weekdays string
	if err := row.Scan(&schedule.ID, &schedule.Name, &schedule.ModeID, &schedule.StartTime,
		&weekdays, &schedule.Enabled, &schedule.CreatedAt, &schedule.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(weekdays), &schedule.Weekdays); err != nil {
		return nil, fmt.Errorf("unmarshal weekdays: %w", err)
	}
	return schedule, nil
}
