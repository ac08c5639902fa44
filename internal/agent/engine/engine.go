// Package engine implements the cross-device session reconciliation
// core: it keeps the device's local active-mode snapshot consistent
// with the shared session record, enforces the one-active-session-per-
// user invariant on the start path, and owns the mode and schedule
// lifecycles on this device.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/internal/agent/rules"
	"github.com/anchorhq/anchor/internal/domain"
)

// LocalStore is the device-local persistent store the engine works
// against: modes, schedules, the active-mode snapshot, and the cached
// credential.
type LocalStore interface {
	Modes(ctx context.Context) ([]domain.Mode, error)
	GetMode(ctx context.Context, id string) (*domain.Mode, error)
	PutMode(ctx context.Context, mode *domain.Mode) error
	DeleteMode(ctx context.Context, id string) error

	Schedules(ctx context.Context) ([]domain.Schedule, error)
	GetSchedule(ctx context.Context, id string) (*domain.Schedule, error)
	PutSchedule(ctx context.Context, schedule *domain.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	DeleteSchedulesByMode(ctx context.Context, modeID string) (int, error)

	// ActiveMode returns (nil, nil) when no snapshot is stored.
	ActiveMode(ctx context.Context) (*domain.ActiveMode, error)
	SetActiveMode(ctx context.Context, mode *domain.ActiveMode) error
	ClearActiveMode(ctx context.Context) error

	// Credential returns (nil, nil) when no user is signed in.
	Credential(ctx context.Context) (*domain.Credential, error)
	SetCredential(ctx context.Context, cred *domain.Credential) error
	ClearCredential(ctx context.Context) error
}

// SessionStore is the shared session record backend. Implementations
// return domain.ErrNotFound from QueryActive when no active row exists
// and domain.ErrUnauthenticated when the cached credential is missing
// or rejected.
type SessionStore interface {
	QueryActive(ctx context.Context) (*domain.Session, error)
	Insert(ctx context.Context, session *domain.Session) error
	DeactivateActive(ctx context.Context) error
}

// RuleSink receives the device's block rule set. Replacement is atomic:
// the previous set is removed and the new one installed as one step.
type RuleSink interface {
	ReplaceRules(ctx context.Context, ruleSet []rules.Rule) error
}

// SyncOutcome describes what a Sync pass did.
type SyncOutcome string

const (
	// SyncNoUser means no credential was available; nothing was checked.
	SyncNoUser SyncOutcome = "no_user"
	// SyncNoChange means local state already matched the remote record.
	SyncNoChange SyncOutcome = "no_change"
	// SyncApplied means the remote snapshot overwrote local state.
	SyncApplied SyncOutcome = "applied"
	// SyncStopped means the remote had no active session and the local
	// one was cleared.
	SyncStopped SyncOutcome = "stopped"
)

// Engine is the reconciliation engine. All operations serialize on an
// internal mutex, mirroring the single-threaded event loop of the
// device processes this logic comes from. Remote writes are best
// effort: local state always advances first and remote failures are
// logged and swallowed, to be healed by a later sync.
type Engine struct {
	mu    sync.Mutex
	store LocalStore
	sess  SessionStore
	sink  RuleSink
	log   *slog.Logger

	// applyingRemote suppresses the outbound remote write inside stop
	// while a sync is applying remote state, so a remote-triggered stop
	// does not echo back to the store.
	applyingRemote bool
}

// New creates an Engine over the given collaborators.
func New(store LocalStore, sess SessionStore, sink RuleSink, log *slog.Logger) *Engine {
	return &Engine{store: store, sess: sess, sink: sink, log: log}
}

// Start begins a blocking session for the mode. Starting the already
// active mode is a no-op. Starting a different mode fails with
// ErrConflict unless override is set, in which case the existing
// session is fully stopped first.
func (e *Engine) Start(ctx context.Context, modeID string, override bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start(ctx, modeID, override)
}

func (e *Engine) start(ctx context.Context, modeID string, override bool) error {
	mode, err := e.store.GetMode(ctx, modeID)
	if err != nil {
		return err
	}

	active, err := e.store.ActiveMode(ctx)
	if err != nil {
		return fmt.Errorf("read active mode: %w", err)
	}
	if active != nil {
		if active.ModeID == modeID {
			return nil
		}
		if !override {
			return fmt.Errorf("%w (%s)", domain.ErrConflict, active.Name)
		}
		if err := e.stop(ctx); err != nil {
			return fmt.Errorf("stop previous session: %w", err)
		}
	}

	snapshot := &domain.ActiveMode{
		ModeID:    mode.ID,
		Name:      mode.Name,
		Websites:  slices.Clone(mode.Websites),
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.SetActiveMode(ctx, snapshot); err != nil {
		return fmt.Errorf("store active mode: %w", err)
	}
	if err := e.sink.ReplaceRules(ctx, rules.Translate(snapshot.Websites)); err != nil {
		return fmt.Errorf("install block rules: %w", err)
	}

	e.log.Info("blocking session started", "mode", mode.Name, "websites", len(mode.Websites))
	e.pushRemoteStart(ctx, snapshot)
	return nil
}

// pushRemoteStart mirrors the new session into the shared store:
// deactivate whatever is active, then insert a fresh row. The two steps
// are not transactional; concurrent starts from two devices can race,
// and readers resolve the mess by taking the most recent row.
func (e *Engine) pushRemoteStart(ctx context.Context, snapshot *domain.ActiveMode) {
	cred, err := e.store.Credential(ctx)
	if err != nil || cred == nil {
		e.log.Debug("skipping remote session write", "reason", "no credential")
		return
	}

	if err := e.sess.DeactivateActive(ctx); err != nil {
		e.log.Warn("deactivate remote session", "error", err)
	}

	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    cred.UserID,
		ModeID:    snapshot.ModeID,
		ModeName:  snapshot.Name,
		Websites:  slices.Clone(snapshot.Websites),
		Active:    true,
		StartedAt: snapshot.StartedAt,
	}
	if err := e.sess.Insert(ctx, session); err != nil {
		e.log.Warn("insert remote session", "error", err)
	}
}

// Stop ends the current blocking session. It always succeeds locally:
// the snapshot is cleared and an empty rule set installed even when the
// remote deactivation fails.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop(ctx)
}

func (e *Engine) stop(ctx context.Context) error {
	if err := e.store.ClearActiveMode(ctx); err != nil {
		return fmt.Errorf("clear active mode: %w", err)
	}
	if err := e.sink.ReplaceRules(ctx, nil); err != nil {
		return fmt.Errorf("clear block rules: %w", err)
	}

	if e.applyingRemote {
		// The stop came from remote state; writing it back would loop.
		return nil
	}

	cred, err := e.store.Credential(ctx)
	if err != nil || cred == nil {
		return nil
	}
	if err := e.sess.DeactivateActive(ctx); err != nil {
		e.log.Warn("deactivate remote session", "error", err)
	}
	return nil
}

// Sync pulls the authoritative session record and corrects local drift.
// It fails soft when no user is signed in. The website list comparison
// is element-wise in stored order: a reordering counts as a change.
func (e *Engine) Sync(ctx context.Context, reason string) (SyncOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cred, err := e.store.Credential(ctx)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if cred == nil {
		e.log.Debug("sync skipped", "reason", reason)
		return SyncNoUser, nil
	}

	remote, err := e.sess.QueryActive(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			e.log.Debug("sync skipped", "reason", reason, "cause", "unauthenticated")
			return SyncNoUser, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("query active session: %w", err)
		}
		remote = nil
	}

	e.applyingRemote = true
	defer func() { e.applyingRemote = false }()

	local, err := e.store.ActiveMode(ctx)
	if err != nil {
		return "", fmt.Errorf("read active mode: %w", err)
	}

	switch {
	case remote == nil && local == nil:
		return SyncNoChange, nil

	case remote == nil:
		if err := e.stop(ctx); err != nil {
			return "", err
		}
		e.log.Info("session stopped by remote", "reason", reason)
		return SyncStopped, nil

	case local != nil &&
		local.ModeID == remote.ModeID &&
		local.Name == remote.ModeName &&
		slices.Equal(local.Websites, remote.Websites):
		return SyncNoChange, nil

	default:
		snapshot := &domain.ActiveMode{
			ModeID:    remote.ModeID,
			Name:      remote.ModeName,
			Websites:  slices.Clone(remote.Websites),
			StartedAt: remote.StartedAt,
		}
		if err := e.store.SetActiveMode(ctx, snapshot); err != nil {
			return "", fmt.Errorf("store active mode: %w", err)
		}
		if err := e.sink.ReplaceRules(ctx, rules.Translate(snapshot.Websites)); err != nil {
			return "", fmt.Errorf("install block rules: %w", err)
		}
		e.log.Info("session applied from remote", "mode", snapshot.Name, "reason", reason)
		return SyncApplied, nil
	}
}

// ActiveMode returns the device's current active-mode snapshot, or nil.
func (e *Engine) ActiveMode(ctx context.Context) (*domain.ActiveMode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ActiveMode(ctx)
}

// RestoreRules reinstalls the block rules for the stored snapshot.
// Called once at process start so rules survive restarts even before
// the first sync.
func (e *Engine) RestoreRules(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.store.ActiveMode(ctx)
	if err != nil {
		return fmt.Errorf("read active mode: %w", err)
	}
	if active == nil {
		return nil
	}
	return e.sink.ReplaceRules(ctx, rules.Translate(active.Websites))
}
