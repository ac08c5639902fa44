package domain

import "context"

// Database defines lifecycle operations for the session store backend.
// The implementation owns its migration files and strategy, so the
// whole backend can be swapped without touching services or handlers.
type Database interface {
	Migrate(ctx context.Context) error
	Close() error
}
