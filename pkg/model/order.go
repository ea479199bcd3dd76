package model

import (
	"sort"
	"time"
)

// Operation is one step of an Order, executable on any of its capable machines.
type Operation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`

	// Machines lists capable machine IDs in declaration order. The order is
	// significant: machine selection breaks ties by it.
	Machines  []string                 `json:"machines"`
	Durations map[string]time.Duration `json:"durations"`

	State             OperationState `json:"state"`
	AssignedMachine   string         `json:"assigned_machine,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	EndsAt            *time.Time     `json:"ends_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CompletedQuantity int            `json:"completed_quantity"`

	// Halt is present only while the operation is paused mid-execution.
	Halt *HaltRecord `json:"halt,omitempty"`
}

// HaltRecord preserves the progress of an operation displaced from its machine.
type HaltRecord struct {
	Progress float64       `json:"progress"`
	Elapsed  time.Duration `json:"elapsed"`
	Machine  string        `json:"machine"`
	HaltedAt time.Time     `json:"halted_at"`
}

// CanRunOn reports whether machineID is in the capable set.
func (op *Operation) CanRunOn(machineID string) bool {
	_, ok := op.Durations[machineID]
	if !ok {
		return false
	}
	for _, m := range op.Machines {
		if m == machineID {
			return true
		}
	}
	return false
}

// Duration returns the processing time on machineID (zero if not capable).
func (op *Operation) Duration(machineID string) time.Duration {
	return op.Durations[machineID]
}

// MinDuration returns the fastest capable machine's duration.
func (op *Operation) MinDuration() time.Duration {
	var best time.Duration
	for i, m := range op.Machines {
		d := op.Durations[m]
		if i == 0 || d < best {
			best = d
		}
	}
	return best
}

// IsHalted reports whether the operation has saved progress awaiting resume.
func (op *Operation) IsHalted() bool {
	return op.Halt != nil
}

// Order is a customer work request composed of sequenced operations.
type Order struct {
	Code        string       `json:"code"`
	Quantity    int          `json:"quantity"`
	Operations  []*Operation `json:"operations"`
	State       OrderState   `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Forced      bool         `json:"forced"`
	ForcedAt    *time.Time   `json:"forced_at,omitempty"`
}

// Operation returns the operation with the given id, or nil.
func (o *Order) Operation(id string) *Operation {
	for _, op := range o.Operations {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// OperationBySequence returns the operation with the given sequence number, or nil.
func (o *Order) OperationBySequence(seq int) *Operation {
	for _, op := range o.Operations {
		if op.Sequence == seq {
			return op
		}
	}
	return nil
}

// SortOperations orders operations by ascending sequence number.
func (o *Order) SortOperations() {
	sort.SliceStable(o.Operations, func(i, j int) bool {
		return o.Operations[i].Sequence < o.Operations[j].Sequence
	})
}

// HaltedOperations returns the operations currently carrying a halt record.
func (o *Order) HaltedOperations() []*Operation {
	var out []*Operation
	for _, op := range o.Operations {
		if op.Halt != nil {
			out = append(out, op)
		}
	}
	return out
}

// AllCompleted reports whether every operation is COMPLETED.
func (o *Order) AllCompleted() bool {
	for _, op := range o.Operations {
		if op.State != OperationStateCompleted {
			return false
		}
	}
	return len(o.Operations) > 0
}

// Clone returns a deep copy safe to hand to readers outside the service lock.
func (o *Order) Clone() *Order {
	c := *o
	c.StartedAt = cloneTime(o.StartedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.ForcedAt = cloneTime(o.ForcedAt)
	c.Operations = make([]*Operation, len(o.Operations))
	for i, op := range o.Operations {
		c.Operations[i] = op.Clone()
	}
	return &c
}

// Clone returns a deep copy of the operation.
func (op *Operation) Clone() *Operation {
	c := *op
	c.Machines = append([]string(nil), op.Machines...)
	c.Durations = make(map[string]time.Duration, len(op.Durations))
	for k, v := range op.Durations {
		c.Durations[k] = v
	}
	c.StartedAt = cloneTime(op.StartedAt)
	c.EndsAt = cloneTime(op.EndsAt)
	c.CompletedAt = cloneTime(op.CompletedAt)
	if op.Halt != nil {
		h := *op.Halt
		c.Halt = &h
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
