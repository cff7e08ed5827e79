package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thunderndwind/Microservices-E-Commerce/orchestrator/internal/saga"
)

// ExecutionStore keeps saga executions in process memory for local runs
// and tests
type ExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*saga.Execution
	events     []saga.DomainEvent
}

// NewExecutionStore creates an empty store
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{executions: make(map[string]*saga.Execution)}
}

func clone(e *saga.Execution) *saga.Execution {
	c := *e
	c.Transitions = append(make([]saga.Transition, 0, len(e.Transitions)), e.Transitions...)
	if e.Item != nil {
		item := *e.Item
		c.Item = &item
	}
	if e.Failure != nil {
		failure := *e.Failure
		c.Failure = &failure
	}
	if e.Compensation != nil {
		compensation := *e.Compensation
		c.Compensation = &compensation
	}
	if e.Finalizing != nil {
		finalization := *e.Finalizing
		c.Finalizing = &finalization
	}
	if e.HoldExpiresAt != nil {
		at := *e.HoldExpiresAt
		c.HoldExpiresAt = &at
	}
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		c.CompletedAt = &at
	}
	c.DomainEvents = nil
	return &c
}

// Create inserts a new execution
func (s *ExecutionStore) Create(ctx context.Context, exec *saga.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.executions[exec.ID]; taken {
		return saga.ErrExecutionExists
	}
	s.executions[exec.ID] = clone(exec)
	s.events = append(s.events, exec.GetDomainEvents()...)
	exec.ClearDomainEvents()
	return nil
}

// Save replaces the stored execution when the versions agree
func (s *ExecutionStore) Save(ctx context.Context, exec *saga.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.executions[exec.ID]
	if !ok {
		return saga.ErrExecutionNotFound
	}
	if stored.Version != exec.Version {
		return saga.ErrVersionConflict
	}

	next := clone(exec)
	next.Version++
	s.executions[exec.ID] = next
	s.events = append(s.events, exec.GetDomainEvents()...)
	exec.Version = next.Version
	exec.ClearDomainEvents()
	return nil
}

// FindByID returns a copy of the execution
func (s *ExecutionStore) FindByID(ctx context.Context, id string) (*saga.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, saga.ErrExecutionNotFound
	}
	return clone(exec), nil
}

// FindStale lists executions in states last updated before cutoff
func (s *ExecutionStore) FindStale(ctx context.Context, states []saga.State, cutoff time.Time, limit int) ([]*saga.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[saga.State]bool, len(states))
	for _, state := range states {
		wanted[state] = true
	}

	return s.collect(limit, func(exec *saga.Execution) bool {
		return wanted[exec.State] && exec.UpdatedAt.Before(cutoff)
	}), nil
}

// FindUnfinalized lists completed executions still owing a finalize
func (s *ExecutionStore) FindUnfinalized(ctx context.Context, limit int) ([]*saga.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, (*saga.Execution).NeedsFinalize), nil
}

// collect returns copies of the matching executions, oldest update first.
// Callers hold s.mu.
func (s *ExecutionStore) collect(limit int, match func(*saga.Execution) bool) []*saga.Execution {
	var out []*saga.Execution
	for _, exec := range s.executions {
		if match(exec) {
			out = append(out, clone(exec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Ping always succeeds
func (s *ExecutionStore) Ping(ctx context.Context) error {
	return nil
}

// Events returns the types of every event recorded so far
func (s *ExecutionStore) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.EventType()
	}
	return types
}

var _ saga.ExecutionStore = (*ExecutionStore)(nil)
