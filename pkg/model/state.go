package model

// OperationState represents the lifecycle state of an Operation.
type OperationState string

const (
	OperationStatePending    OperationState = "PENDING"
	OperationStateInProgress OperationState = "IN_PROGRESS"
	OperationStateCompleted  OperationState = "COMPLETED"
)

// String returns the string representation of the operation state.
func (s OperationState) String() string {
	return string(s)
}

// IsTerminal returns true if the operation is in a final state.
func (s OperationState) IsTerminal() bool {
	return s == OperationStateCompleted
}

// ValidOperationTransitions defines the allowed state transitions for Operations.
// IN_PROGRESS → PENDING is a halt; the elapsed work moves into the order's halt ledger.
var ValidOperationTransitions = map[OperationState][]OperationState{
	OperationStatePending:    {OperationStateInProgress},
	OperationStateInProgress: {OperationStateCompleted, OperationStatePending},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s OperationState) CanTransitionTo(next OperationState) bool {
	for _, allowed := range ValidOperationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderState represents the derived lifecycle state of an Order.
type OrderState string

const (
	OrderStatePending    OrderState = "PENDING"
	OrderStateInProgress OrderState = "IN_PROGRESS"
	OrderStateCompleted  OrderState = "COMPLETED"
)

// String returns the string representation of the order state.
func (s OrderState) String() string {
	return string(s)
}

// IsTerminal returns true if the order is in a final state.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateCompleted
}

// ParseOrderState converts a (case-sensitive) state name to an OrderState.
func ParseOrderState(s string) (OrderState, bool) {
	switch OrderState(s) {
	case OrderStatePending, OrderStateInProgress, OrderStateCompleted:
		return OrderState(s), true
	}
	return "", false
}

// DeriveOrderState computes the order state from its operations' states.
// COMPLETED iff every operation is COMPLETED; IN_PROGRESS iff any operation
// is IN_PROGRESS or COMPLETED; PENDING otherwise. An order without
// operations is PENDING.
func DeriveOrderState(ops []*Operation) OrderState {
	if len(ops) == 0 {
		return OrderStatePending
	}
	completed, started := 0, 0
	for _, op := range ops {
		switch op.State {
		case OperationStateCompleted:
			completed++
		case OperationStateInProgress:
			started++
		}
	}
	switch {
	case completed == len(ops):
		return OrderStateCompleted
	case completed > 0 || started > 0:
		return OrderStateInProgress
	}
	return OrderStatePending
}

// MachineState reports whether a machine is executing an entry right now.
type MachineState string

const (
	MachineStateIdle MachineState = "idle"
	MachineStateBusy MachineState = "busy"
)
