package saga

import (
	"context"
	"time"
)

// ExecutionStore persists saga executions together with their pending
// events.
type ExecutionStore interface {
	// Create inserts a new execution; ErrExecutionExists if the id is taken
	Create(ctx context.Context, exec *Execution) error

	// Save writes exec if the stored version still equals exec.Version and
	// bumps the version; ErrVersionConflict otherwise
	Save(ctx context.Context, exec *Execution) error

	// FindByID returns ErrExecutionNotFound when no execution has id
	FindByID(ctx context.Context, id string) (*Execution, error)

	// FindStale lists executions in one of states last updated before cutoff,
	// oldest first
	FindStale(ctx context.Context, states []State, cutoff time.Time, limit int) ([]*Execution, error)

	// FindUnfinalized lists completed executions whose hold is still to be
	// finalized, oldest first
	FindUnfinalized(ctx context.Context, limit int) ([]*Execution, error)

	// Ping checks the backing store is reachable for readiness
	Ping(ctx context.Context) error
}
