// Package lifecycle holds the only code paths that mutate Order and
// Operation state. Every transition validates before touching the entity,
// so a failed call leaves the order unchanged.
package lifecycle

import (
	"time"

	"github.com/me/opsched/pkg/model"
)

// StartOperation places a pending operation on machineID at now.
func StartOperation(o *model.Order, opID, machineID string, now time.Time) error {
	op, err := lookup(o, opID)
	if err != nil {
		return err
	}
	if !op.CanRunOn(machineID) {
		return model.NewInvalidCapabilityError(machineID, opID)
	}
	if !op.State.CanTransitionTo(model.OperationStateInProgress) {
		return transitionError(o, op, model.OperationStateInProgress)
	}
	if op.Halt != nil {
		return model.NewInvalidStateError("operation %s/%s holds halted progress on %s; resume it instead",
			o.Code, opID, op.Halt.Machine)
	}

	start := now
	end := start.Add(op.Duration(machineID))
	op.State = model.OperationStateInProgress
	op.AssignedMachine = machineID
	op.StartedAt = &start
	op.EndsAt = &end
	op.CompletedAt = nil
	markOrderStarted(o, now)
	return nil
}

// CompleteOperation finishes a running operation. When it was the last open
// operation the order is completed as well; the order's completion time is
// only ever set once.
func CompleteOperation(o *model.Order, opID string, completedQty int, now time.Time) error {
	op, err := lookup(o, opID)
	if err != nil {
		return err
	}
	if !op.State.CanTransitionTo(model.OperationStateCompleted) {
		return transitionError(o, op, model.OperationStateCompleted)
	}
	if completedQty < 0 {
		return model.NewValidationError("completed quantity must not be negative",
			model.FieldError{Field: "completed_quantity", Path: o.Code + "/" + opID, Message: "negative"})
	}

	done := now
	op.State = model.OperationStateCompleted
	op.CompletedAt = &done
	op.CompletedQuantity = completedQty
	op.EndsAt = nil

	if o.AllCompleted() {
		o.State = model.OrderStateCompleted
		if o.CompletedAt == nil {
			o.CompletedAt = &done
		}
	}
	return nil
}

// HaltOperation pauses a running operation and stores its progress on the
// operation's halt record. It is a no-op (returning nil, nil) unless the
// operation is IN_PROGRESS. Elapsed time is capped at the machine duration.
func HaltOperation(o *model.Order, opID string, now time.Time) (*model.HaltRecord, error) {
	op, err := lookup(o, opID)
	if err != nil {
		return nil, err
	}
	if op.State != model.OperationStateInProgress || op.StartedAt == nil {
		return nil, nil
	}

	total := op.Duration(op.AssignedMachine)
	elapsed := now.Sub(*op.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > total {
		elapsed = total
	}
	var progress float64
	if total > 0 {
		progress = float64(elapsed) * 100 / float64(total)
	}

	rec := &model.HaltRecord{
		Progress: progress,
		Elapsed:  elapsed,
		Machine:  op.AssignedMachine,
		HaltedAt: now,
	}
	op.Halt = rec
	op.State = model.OperationStatePending
	op.AssignedMachine = ""
	op.StartedAt = nil
	op.EndsAt = nil
	op.CompletedAt = nil
	return rec, nil
}

// ResumeOperation restarts a halted operation on the machine it was halted
// on. The start time is backdated by the saved elapsed time so progress
// continues where it stopped.
func ResumeOperation(o *model.Order, opID string, now time.Time) error {
	op, err := lookup(o, opID)
	if err != nil {
		return err
	}
	if op.Halt == nil {
		return model.NewInvalidStateError("operation %s/%s is not halted", o.Code, opID)
	}
	if !op.State.CanTransitionTo(model.OperationStateInProgress) {
		return transitionError(o, op, model.OperationStateInProgress)
	}

	rec := op.Halt
	start := now.Add(-rec.Elapsed)
	end := start.Add(op.Duration(rec.Machine))
	op.State = model.OperationStateInProgress
	op.AssignedMachine = rec.Machine
	op.StartedAt = &start
	op.EndsAt = &end
	op.Halt = nil
	markOrderStarted(o, now)
	return nil
}

// Force gives the order top scheduling priority. Whether forcing is allowed
// in the order's current state is the caller's policy.
func Force(o *model.Order, now time.Time) {
	at := now
	o.Forced = true
	o.ForcedAt = &at
}

// Unforce removes the override.
func Unforce(o *model.Order) error {
	if !o.Forced {
		return model.NewInvalidStateError("order %s is not forced", o.Code)
	}
	o.Forced = false
	o.ForcedAt = nil
	return nil
}

func lookup(o *model.Order, opID string) (*model.Operation, error) {
	op := o.Operation(opID)
	if op == nil {
		return nil, model.NewNotFoundError("operation", o.Code+"/"+opID)
	}
	return op, nil
}

func markOrderStarted(o *model.Order, now time.Time) {
	if o.StartedAt == nil {
		at := now
		o.StartedAt = &at
	}
	if o.State == model.OrderStatePending {
		o.State = model.OrderStateInProgress
	}
}

func transitionError(o *model.Order, op *model.Operation, to model.OperationState) error {
	return &model.InvalidTransitionError{
		Entity: "operation",
		ID:     o.Code + "/" + op.ID,
		From:   op.State.String(),
		To:     to.String(),
	}
}
