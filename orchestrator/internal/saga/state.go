package saga

// State is the position of a purchase saga in its state machine
type State string

const (
	StateInit             State = "INIT"
	StateStockChecked     State = "STOCK_CHECKED"
	StateReserved         State = "RESERVED"
	StatePriceFetched     State = "PRICE_FETCHED"
	StatePaymentSubmitted State = "PAYMENT_SUBMITTED"
	StateCompleted        State = "COMPLETED"
	StateCompensating     State = "COMPENSATING"
	StateFailed           State = "FAILED"
)

// Step names a remote call made by the saga
type Step string

const (
	StepCheckStock     Step = "CHECK_STOCK"
	StepReserveStock   Step = "RESERVE_STOCK"
	StepGetItem        Step = "GET_ITEM"
	StepProcessPayment Step = "PROCESS_PAYMENT"
	StepFinalizeStock  Step = "FINALIZE_STOCK"
	StepReleaseStock   Step = "RELEASE_STOCK"
	StepRecovery       Step = "RECOVERY"
)

// transitions lists the states reachable from each non-terminal state.
// Before a hold exists a failure goes straight to FAILED; afterwards it has
// to pass through COMPENSATING.
var transitions = map[State][]State{
	StateInit:             {StateStockChecked, StateFailed},
	StateStockChecked:     {StateReserved, StateFailed},
	StateReserved:         {StatePriceFetched, StateCompensating},
	StatePriceFetched:     {StatePaymentSubmitted, StateCompensating},
	StatePaymentSubmitted: {StateCompleted, StateCompensating},
	StateCompensating:     {StateFailed},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// HoldsStock reports whether a saga in this state owns a hold that must be
// released on failure
func (s State) HoldsStock() bool {
	switch s {
	case StateReserved, StatePriceFetched, StatePaymentSubmitted:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }

func (s Step) String() string { return string(s) }
