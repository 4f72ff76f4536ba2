package journal

import (
	"context"

	"github.com/starford/syndicator/internal/syndication"
)

// Journal defines the journal operations. Consumers should depend on this
// interface rather than the concrete *DB type.
type Journal interface {
	RecordRun(ctx context.Context, r *syndication.Report) error
	RecordTransition(ctx context.Context, t syndication.Transition) error
	RecentRuns(ctx context.Context, limit int) ([]RunRow, error)
	Transitions(ctx context.Context, slug string, limit int) ([]syndication.Transition, error)
	Close() error
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
