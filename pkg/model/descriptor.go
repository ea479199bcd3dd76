package model

import (
	"fmt"
	"time"
)

// OperationDescriptor is one row of an order definition as delivered by a loader.
type OperationDescriptor struct {
	OrderCode     string                   `json:"order_code"`
	Quantity      int                      `json:"quantity"`
	OperationID   string                   `json:"operation_id"`
	OperationName string                   `json:"operation_name"`
	Sequence      int                      `json:"sequence_number"`
	Machines      []string                 `json:"capable_machines"`
	Durations     map[string]time.Duration `json:"processing_times"`
}

// Validate checks the structural rules every descriptor must satisfy.
func (d *OperationDescriptor) Validate() []FieldError {
	var errs []FieldError
	path := d.OrderCode + "/" + d.OperationID
	if d.OrderCode == "" {
		errs = append(errs, FieldError{Field: "order_code", Path: path, Message: "required"})
	}
	if d.OperationID == "" {
		errs = append(errs, FieldError{Field: "operation_id", Path: path, Message: "required"})
	}
	if d.Quantity <= 0 {
		errs = append(errs, FieldError{Field: "quantity", Path: path, Message: "must be positive"})
	}
	if d.Sequence <= 0 {
		errs = append(errs, FieldError{Field: "sequence_number", Path: path, Message: "must be 1-based"})
	}
	errs = append(errs, validateCapability(path, d.Machines, d.Durations)...)
	return errs
}

// ValidateOrder checks an assembled order: unique operation ids and sequence
// numbers, and a well-formed capability set on every operation.
func ValidateOrder(o *Order) []FieldError {
	var errs []FieldError
	if o.Code == "" {
		errs = append(errs, FieldError{Field: "code", Message: "required"})
	}
	if len(o.Operations) == 0 {
		errs = append(errs, FieldError{Field: "operations", Path: o.Code, Message: "order has no operations"})
	}
	ids := make(map[string]bool, len(o.Operations))
	seqs := make(map[int]bool, len(o.Operations))
	for _, op := range o.Operations {
		path := o.Code + "/" + op.ID
		if ids[op.ID] {
			errs = append(errs, FieldError{Field: "operation_id", Path: path, Message: "duplicate operation id"})
		}
		ids[op.ID] = true
		if seqs[op.Sequence] {
			errs = append(errs, FieldError{Field: "sequence_number", Path: path,
				Message: fmt.Sprintf("duplicate sequence number %d", op.Sequence)})
		}
		seqs[op.Sequence] = true
		errs = append(errs, validateCapability(path, op.Machines, op.Durations)...)
		if op.AssignedMachine != "" && !op.CanRunOn(op.AssignedMachine) {
			errs = append(errs, FieldError{Field: "assigned_machine", Path: path,
				Message: fmt.Sprintf("machine %s is not in the capable set", op.AssignedMachine)})
		}
	}
	return errs
}

func validateCapability(path string, machines []string, durations map[string]time.Duration) []FieldError {
	var errs []FieldError
	if len(machines) == 0 {
		errs = append(errs, FieldError{Field: "capable_machines", Path: path, Message: "empty capability set"})
	}
	for _, m := range machines {
		d, ok := durations[m]
		switch {
		case !ok:
			errs = append(errs, FieldError{Field: "processing_times", Path: path,
				Message: fmt.Sprintf("no processing time for machine %s", m)})
		case d <= 0:
			errs = append(errs, FieldError{Field: "processing_times", Path: path,
				Message: fmt.Sprintf("processing time for machine %s must be positive", m)})
		}
	}
	return errs
}
