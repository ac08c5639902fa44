package schedule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anchorhq/anchor/internal/agent/schedule"
	"github.com/anchorhq/anchor/internal/domain"
)

type fakeStore struct {
	schedules []domain.Schedule
	modes     map[string]domain.Mode
}

func (s *fakeStore) Schedules(ctx context.Context) ([]domain.Schedule, error) {
	out := make([]domain.Schedule, len(s.schedules))
	copy(out, s.schedules)
	return out, nil
}

func (s *fakeStore) GetMode(ctx context.Context, id string) (*domain.Mode, error) {
	m, ok := s.modes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (s *fakeStore) PutSchedule(ctx context.Context, sc *domain.Schedule) error {
	for i := range s.schedules {
		if s.schedules[i].ID == sc.ID {
			s.schedules[i] = *sc
			return nil
		}
	}
	s.schedules = append(s.schedules, *sc)
	return nil
}

func (s *fakeStore) schedule(id string) domain.Schedule {
	for _, sc := range s.schedules {
		if sc.ID == id {
			return sc
		}
	}
	return domain.Schedule{}
}

type fakeStarter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeStarter) Start(ctx context.Context, modeID string, override bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if !override {
		return errors.New("schedules must start with override")
	}
	f.calls = append(f.calls, modeID)
	return nil
}

func (f *fakeStarter) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// tuesdayAt returns a fixed Tuesday (weekday 2) at the given HH:MM.
func tuesdayAt(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	return time.Date(2026, 9, 1, parsed.Hour(), parsed.Minute(), 30, 0, time.UTC)
}

func enabledSchedule(id, modeID, at string, days ...int) domain.Schedule {
	return domain.Schedule{ID: id, Name: id, ModeID: modeID, StartTime: at, Weekdays: days, Enabled: true}
}

func newTrigger(store *fakeStore, starter *fakeStarter) *schedule.Trigger {
	return schedule.New(store, starter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluateFiresOnExactMinute(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1", Name: "Focus"}},
		schedules: []domain.Schedule{enabledSchedule("s1", "m1", "09:00", 2)},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.Equal(t, []string{"m1"}, starter.started())
}

func TestEvaluateSkipsOtherMinutes(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1"}},
		schedules: []domain.Schedule{enabledSchedule("s1", "m1", "09:00", 2)},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	// One minute late is a miss, not a window.
	trig.Evaluate(context.Background(), tuesdayAt(t, "09:01"))
	require.Empty(t, starter.started())
}

func TestEvaluateSkipsWrongWeekday(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1"}},
		schedules: []domain.Schedule{enabledSchedule("s1", "m1", "09:00", 0, 6)},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.Empty(t, starter.started())
}

func TestEvaluateSkipsDisabled(t *testing.T) {
	sc := enabledSchedule("s1", "m1", "09:00", 2)
	sc.Enabled = false
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1"}},
		schedules: []domain.Schedule{sc},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.Empty(t, starter.started())
}

func TestEvaluateLastMatchWins(t *testing.T) {
	store := &fakeStore{
		modes: map[string]domain.Mode{"a": {ID: "a"}, "b": {ID: "b"}},
		schedules: []domain.Schedule{
			enabledSchedule("s1", "a", "09:00", 2),
			enabledSchedule("s2", "b", "09:00", 2),
		},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	// Both fire in stored order; the later start overrides the earlier.
	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.Equal(t, []string{"a", "b"}, starter.started())
}

func TestEvaluateDisablesOrphanedSchedule(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{},
		schedules: []domain.Schedule{enabledSchedule("s1", "gone", "09:00", 2)},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)

	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.Empty(t, starter.started())
	require.False(t, store.schedule("s1").Enabled)
}

func TestEvaluateKeepsScheduleOnTransientError(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1"}},
		schedules: []domain.Schedule{enabledSchedule("s1", "m1", "09:00", 2)},
	}
	starter := &fakeStarter{err: errors.New("store busy")}
	trig := newTrigger(store, starter)

	trig.Evaluate(context.Background(), tuesdayAt(t, "09:00"))
	require.True(t, store.schedule("s1").Enabled)
}

func TestRunEvaluatesImmediately(t *testing.T) {
	store := &fakeStore{
		modes:     map[string]domain.Mode{"m1": {ID: "m1"}},
		schedules: []domain.Schedule{enabledSchedule("s1", "m1", "09:00", 2)},
	}
	starter := &fakeStarter{}
	trig := newTrigger(store, starter)
	trig.SetTickInterval(time.Hour)
	trig.SetClock(func() time.Time { return tuesdayAt(t, "09:00") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		trig.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(starter.started()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
