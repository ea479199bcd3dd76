package model

import "time"

// Progress returns the completion percentage (0-100) of op at now.
func Progress(op *Operation, now time.Time) float64 {
	switch op.State {
	case OperationStateCompleted:
		return 100
	case OperationStateInProgress:
		if op.StartedAt == nil {
			return 0
		}
		total := op.Duration(op.AssignedMachine)
		if total <= 0 {
			return 0
		}
		pct := float64(elapsedSince(*op.StartedAt, now)) * 100 / float64(total)
		if pct > 100 {
			return 100
		}
		return pct
	}
	return 0
}

// Remaining returns the estimated time left for op at now. A pending
// operation is estimated on its fastest capable machine.
func Remaining(op *Operation, now time.Time) time.Duration {
	switch op.State {
	case OperationStateCompleted:
		return 0
	case OperationStateInProgress:
		if op.StartedAt == nil {
			return op.Duration(op.AssignedMachine)
		}
		left := op.Duration(op.AssignedMachine) - elapsedSince(*op.StartedAt, now)
		if left < 0 {
			return 0
		}
		return left
	}
	return op.MinDuration()
}

// ResumeRemaining returns the work left for a halted operation on the machine
// it was halted on.
func ResumeRemaining(op *Operation) time.Duration {
	if op.Halt == nil {
		return 0
	}
	left := op.Duration(op.Halt.Machine) - op.Halt.Elapsed
	if left < 0 {
		return 0
	}
	return left
}

// OrderProgress is the mean progress of the order's operations.
func OrderProgress(o *Order, now time.Time) float64 {
	if len(o.Operations) == 0 {
		return 0
	}
	if o.State == OrderStateCompleted {
		return 100
	}
	var sum float64
	for _, op := range o.Operations {
		sum += Progress(op, now)
	}
	return sum / float64(len(o.Operations))
}

// OrderRemaining is the summed remaining time of the order's operations.
func OrderRemaining(o *Order, now time.Time) time.Duration {
	var sum time.Duration
	for _, op := range o.Operations {
		sum += Remaining(op, now)
	}
	return sum
}

// EstimateTotal sums the processing time of every operation, using the machine
// named in selection when present and the fastest capable machine otherwise.
func EstimateTotal(o *Order, selection map[string]string) (time.Duration, error) {
	var total time.Duration
	for _, op := range o.Operations {
		if m, ok := selection[op.ID]; ok {
			if !op.CanRunOn(m) {
				return 0, NewInvalidCapabilityError(m, op.ID)
			}
			total += op.Duration(m)
			continue
		}
		total += op.MinDuration()
	}
	return total, nil
}

// elapsedSince clamps negative elapsed time (clock skew) to zero.
func elapsedSince(start, now time.Time) time.Duration {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
