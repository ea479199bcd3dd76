package model

import "time"

// EntryKind distinguishes how a schedule entry came to be placed.
type EntryKind string

const (
	// EntryFixed is an operation already IN_PROGRESS on its assigned machine.
	EntryFixed EntryKind = "fixed"
	// EntryFresh is a pending operation placed for its full duration.
	EntryFresh EntryKind = "fresh"
	// EntryResume is a halted operation placed for its remaining duration.
	EntryResume EntryKind = "resume"
)

// ScheduleEntry is one placement produced by a scheduling pass.
type ScheduleEntry struct {
	OrderCode     string    `json:"order_code"`
	OperationID   string    `json:"operation_id"`
	OperationName string    `json:"operation_name"`
	Sequence      int       `json:"sequence"`
	MachineID     string    `json:"machine_id"`
	Kind          EntryKind `json:"kind"`
	Forced        bool      `json:"forced"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// Duration is the length of the entry's interval.
func (e ScheduleEntry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Plan maps machine IDs to their entries ordered by start time.
type Plan map[string][]ScheduleEntry

// Len returns the total number of entries across machines.
func (p Plan) Len() int {
	n := 0
	for _, entries := range p {
		n += len(entries)
	}
	return n
}

// Clone returns a copy whose slices can be handed to readers.
func (p Plan) Clone() Plan {
	c := make(Plan, len(p))
	for m, entries := range p {
		c[m] = append([]ScheduleEntry(nil), entries...)
	}
	return c
}

// PassResult is the outcome of one scheduling pass.
type PassResult struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Plan      Plan      `json:"plan"`
	Preempted []string  `json:"preempted"`
	Started   int       `json:"started"`
	Resumed   int       `json:"resumed"`
	Completed int       `json:"completed"`
	Halted    int       `json:"halted"`
	// Unplaced lists "order/operation" keys that found no machine this pass.
	Unplaced []string `json:"unplaced,omitempty"`
}

// MachineStatus is the presentation view of one machine.
type MachineStatus struct {
	MachineID string          `json:"machine_id"`
	State     MachineState    `json:"state"`
	Current   *ScheduleEntry  `json:"current,omitempty"`
	Progress  float64         `json:"progress"`
	Elapsed   time.Duration   `json:"elapsed"`
	Remaining time.Duration   `json:"remaining"`
	Upcoming  []ScheduleEntry `json:"upcoming"`
	FullPlan  []ScheduleEntry `json:"full_plan"`
}

// OrderView is the presentation view of one order.
type OrderView struct {
	*Order
	Progress       float64       `json:"progress"`
	Remaining      time.Duration `json:"remaining"`
	EstimatedTotal time.Duration `json:"estimated_total"`
}

// Summary aggregates the whole shop floor for a dashboard.
type Summary struct {
	At             time.Time               `json:"at"`
	TotalOrders    int                     `json:"total_orders"`
	TotalRemaining time.Duration           `json:"total_remaining"`
	MeanProgress   float64                 `json:"mean_progress"`
	ByState        map[OrderState][]string `json:"by_state"`
	BusyMachines   int                     `json:"busy_machines"`
	IdleMachines   int                     `json:"idle_machines"`
	LastPass       *PassResult             `json:"last_pass,omitempty"`
}
