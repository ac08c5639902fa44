package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/internal/agent/rules"
	"github.com/anchorhq/anchor/internal/domain"
)

// Modes lists the device's modes.
func (e *Engine) Modes(ctx context.Context) ([]domain.Mode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Modes(ctx)
}

// GetMode returns a single mode by id.
func (e *Engine) GetMode(ctx context.Context, id string) (*domain.Mode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GetMode(ctx, id)
}

// CreateMode stores a new mode.
func (e *Engine) CreateMode(ctx context.Context, name string, websites []string) (*domain.Mode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("%w: mode name is required", domain.ErrValidation)
	}

	mode := &domain.Mode{
		ID:        uuid.NewString(),
		Name:      name,
		Websites:  cleanWebsites(websites),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.PutMode(ctx, mode); err != nil {
		return nil, fmt.Errorf("store mode: %w", err)
	}

	e.log.Info("mode created", "mode", mode.Name, "websites", len(mode.Websites))
	return mode, nil
}

// UpdateMode rewrites a mode's name and website list. When the edited
// mode is the one currently blocking, the installed rules are replaced
// to match; the active-mode snapshot and any remote session row keep
// the websites they were started with until the next start or sync.
func (e *Engine) UpdateMode(ctx context.Context, id, name string, websites []string) (*domain.Mode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode, err := e.store.GetMode(ctx, id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: mode name is required", domain.ErrValidation)
	}

	mode.Name = name
	mode.Websites = cleanWebsites(websites)
	if err := e.store.PutMode(ctx, mode); err != nil {
		return nil, fmt.Errorf("store mode: %w", err)
	}

	active, err := e.store.ActiveMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("read active mode: %w", err)
	}
	if active != nil && active.ModeID == id {
		if err := e.sink.ReplaceRules(ctx, rules.Translate(mode.Websites)); err != nil {
			return nil, fmt.Errorf("install block rules: %w", err)
		}
	}

	e.log.Info("mode updated", "mode", mode.Name)
	return mode, nil
}

// DeleteMode removes a mode. Every schedule referencing it is deleted,
// and if the mode is currently active the session is fully stopped.
func (e *Engine) DeleteMode(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode, err := e.store.GetMode(ctx, id)
	if err != nil {
		return err
	}

	removed, err := e.store.DeleteSchedulesByMode(ctx, id)
	if err != nil {
		return fmt.Errorf("delete schedules for mode: %w", err)
	}

	active, err := e.store.ActiveMode(ctx)
	if err != nil {
		return fmt.Errorf("read active mode: %w", err)
	}
	if active != nil && active.ModeID == id {
		if err := e.stop(ctx); err != nil {
			return fmt.Errorf("stop session for deleted mode: %w", err)
		}
	}

	if err := e.store.DeleteMode(ctx, id); err != nil {
		return fmt.Errorf("delete mode: %w", err)
	}

	e.log.Info("mode deleted", "mode", mode.Name, "schedules_removed", removed)
	return nil
}

func cleanWebsites(websites []string) []string {
	out := make([]string, 0, len(websites))
	for _, w := range websites {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return slices.Clip(out)
}
