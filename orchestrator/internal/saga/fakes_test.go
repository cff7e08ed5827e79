package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/thunderndwind/Microservices-E-Commerce/shared/pkg/errors"
)

type fakeItem struct {
	price    float64
	currency string
	total    int
	holds    map[string]int
}

// fakeInventory is a small ledger: availability is total minus held units,
// and reserve checks and holds under one lock.
type fakeInventory struct {
	mu    sync.Mutex
	items map[string]*fakeItem
	calls map[Step]int

	errs          map[Step]error
	block         map[Step]bool
	failNext      map[Step]int
	loseReply     map[Step]int
	rejectReserve bool
	now           func() time.Time
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		items:     make(map[string]*fakeItem),
		calls:     make(map[Step]int),
		errs:      make(map[Step]error),
		block:     make(map[Step]bool),
		failNext:  make(map[Step]int),
		loseReply: make(map[Step]int),
		now:       time.Now,
	}
}

func (f *fakeInventory) seed(id string, total int, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id] = &fakeItem{price: price, currency: "USD", total: total, holds: make(map[string]int)}
}

func (f *fakeInventory) hold(itemID, holdID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemID].holds[holdID] = quantity
}

// expire drops a hold the way the sweeper does once its TTL has passed
func (f *fakeInventory) expire(itemID, holdID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[itemID].holds, holdID)
}

func (f *fakeInventory) expireAll(itemID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemID].holds = make(map[string]int)
}

func (f *fakeInventory) enter(ctx context.Context, step Step) error {
	f.mu.Lock()
	f.calls[step]++
	block := f.block[step]
	err := f.errs[step]
	if f.failNext[step] > 0 {
		f.failNext[step]--
		err = apperrors.ErrServiceUnavailable("inventory-service")
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeInventory) callCount(step Step) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[step]
}

func (f *fakeInventory) available(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[id]
	reserved := 0
	for _, q := range item.holds {
		reserved += q
	}
	return item.total - reserved
}

func (f *fakeInventory) total(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].total
}

func (f *fakeInventory) holdCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[id].holds)
}

func (f *fakeInventory) availableLocked(item *fakeItem) int {
	reserved := 0
	for _, q := range item.holds {
		reserved += q
	}
	return item.total - reserved
}

func (f *fakeInventory) CheckStock(ctx context.Context, itemID string, quantity int) (*StockCheck, error) {
	if err := f.enter(ctx, StepCheckStock); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[itemID]
	if !ok {
		return &StockCheck{Message: "Item not found", Code: apperrors.CodeItemNotFound}, nil
	}
	available := f.availableLocked(item)
	if available < quantity {
		return &StockCheck{CurrentStock: available, Message: "Insufficient stock", Code: apperrors.CodeInsufficientStock}, nil
	}
	return &StockCheck{Available: true, CurrentStock: available, Message: "Stock available"}, nil
}

func (f *fakeInventory) ReserveStock(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if err := f.enter(ctx, StepReserveStock); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[req.ItemID]
	if !ok {
		return &Reservation{Message: "Item not found", Code: apperrors.CodeItemNotFound}, nil
	}
	if f.rejectReserve || f.availableLocked(item) < req.Quantity {
		return &Reservation{Message: "Insufficient stock", Code: apperrors.CodeInsufficientStock}, nil
	}
	item.holds[req.HoldID] = req.Quantity
	expiresAt := f.now().Add(15 * time.Minute)
	return &Reservation{Success: true, HoldID: req.HoldID, ReservedQuantity: req.Quantity, ExpiresAt: &expiresAt, Message: "Stock reserved successfully"}, nil
}

func (f *fakeInventory) GetItem(ctx context.Context, itemID string) (*ItemLookup, error) {
	if err := f.enter(ctx, StepGetItem); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[itemID]
	if !ok {
		return &ItemLookup{Message: "Item not found", Code: apperrors.CodeItemNotFound}, nil
	}
	return &ItemLookup{
		Success: true,
		Item: &Item{
			ID:                itemID,
			Name:              "Mechanical Keyboard",
			UnitPrice:         item.price,
			Currency:          item.currency,
			TotalQuantity:     item.total,
			AvailableQuantity: f.availableLocked(item),
		},
		Message: "Item retrieved successfully",
	}, nil
}

func (f *fakeInventory) ReleaseStock(ctx context.Context, holdID, itemID string) (*Release, error) {
	if err := f.enter(ctx, StepReleaseStock); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item := f.items[itemID]
	q, ok := item.holds[holdID]
	if !ok {
		return &Release{Message: "Hold not found", Code: apperrors.CodeHoldNotFound}, nil
	}
	delete(item.holds, holdID)
	return &Release{Success: true, ReleasedQuantity: q, Message: "Stock reservation released successfully"}, nil
}

func (f *fakeInventory) FinalizeStock(ctx context.Context, holdID, itemID string) (*Finalization, error) {
	if err := f.enter(ctx, StepFinalizeStock); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	item := f.items[itemID]
	q, ok := item.holds[holdID]
	if !ok {
		return &Finalization{Message: "Hold not found", Code: apperrors.CodeHoldNotFound}, nil
	}
	delete(item.holds, holdID)
	item.total -= q
	if f.loseReply[StepFinalizeStock] > 0 {
		f.loseReply[StepFinalizeStock]--
		return nil, errors.New("read tcp 127.0.0.1:8081: connection reset by peer")
	}
	return &Finalization{Success: true, FinalizedQuantity: q, RemainingQuantity: item.total, Message: "Stock reservation finalized successfully"}, nil
}

type fakePayment struct {
	mu       sync.Mutex
	decline  bool
	err      error
	block    bool
	onCharge func()
	requests []PaymentRequest
}

func (f *fakePayment) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	decline, err, block, onCharge := f.decline, f.err, f.block, f.onCharge
	f.mu.Unlock()

	if onCharge != nil {
		onCharge()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if decline {
		return &PaymentResponse{Message: "Payment declined by issuer", Code: apperrors.CodePaymentDeclined}, nil
	}
	return &PaymentResponse{
		Success:       true,
		PaymentID:     fmt.Sprintf("pay-%d", n),
		TransactionID: fmt.Sprintf("TXN_%016d", n),
		Message:       "Payment processed successfully",
	}, nil
}

func (f *fakePayment) lastRequest() PaymentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakePayment) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeStore mirrors the optimistic version check of the real stores
type fakeStore struct {
	mu         sync.Mutex
	executions map[string]*Execution
	events     []string

	createErr   error
	saveErr     error
	failStates  map[State]bool
	conflictFor map[string]bool
	saveDelay   time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions:  make(map[string]*Execution),
		failStates:  make(map[State]bool),
		conflictFor: make(map[string]bool),
	}
}

func copyExecution(e *Execution) *Execution {
	c := *e
	c.Transitions = append([]Transition(nil), e.Transitions...)
	if e.Failure != nil {
		failure := *e.Failure
		c.Failure = &failure
	}
	if e.Compensation != nil {
		compensation := *e.Compensation
		c.Compensation = &compensation
	}
	if e.Finalizing != nil {
		progress := *e.Finalizing
		c.Finalizing = &progress
	}
	c.DomainEvents = nil
	return &c
}

func (s *fakeStore) Create(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.executions[exec.ID]; ok {
		return ErrExecutionExists
	}
	s.executions[exec.ID] = copyExecution(exec)
	return nil
}

func (s *fakeStore) Save(ctx context.Context, exec *Execution) error {
	if s.saveDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.saveDelay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	if s.failStates[exec.State] {
		return errConnectionRefused
	}
	stored, ok := s.executions[exec.ID]
	if !ok {
		return ErrExecutionNotFound
	}
	if s.conflictFor[exec.ID] || stored.Version != exec.Version {
		return ErrVersionConflict
	}

	for _, e := range exec.GetDomainEvents() {
		s.events = append(s.events, e.EventType())
	}
	exec.ClearDomainEvents()
	exec.Version++
	s.executions[exec.ID] = copyExecution(exec)
	return nil
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return copyExecution(exec), nil
}

func (s *fakeStore) FindStale(ctx context.Context, states []State, cutoff time.Time, limit int) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Execution
	for _, exec := range s.executions {
		for _, state := range states {
			if exec.State == state && exec.UpdatedAt.Before(cutoff) {
				out = append(out, copyExecution(exec))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) FindUnfinalized(ctx context.Context, limit int) ([]*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Execution
	for _, exec := range s.executions {
		if exec.NeedsFinalize() {
			out = append(out, copyExecution(exec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	return nil
}

func (s *fakeStore) put(exec *Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = copyExecution(exec)
}

func (s *fakeStore) get(id string) *Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyExecution(s.executions[id])
}

func (s *fakeStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

var errConnectionRefused = errors.New("dial tcp 127.0.0.1:8081: connect: connection refused")
