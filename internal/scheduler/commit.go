package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/me/opsched/internal/lifecycle"
	"github.com/me/opsched/pkg/model"
)

// Outcome is what applying a Draft did to the orders.
type Outcome struct {
	Started   int
	Resumed   int
	Completed int
	Halted    int
	Preempted []string
	Events    []model.Event
}

// Commit applies a draft through the lifecycle controller in a fixed order:
// preemption halts, then completion of running work whose end has passed,
// then starts and resumes of entries due at now. Derived order states are
// reconciled last. Failures on individual entries are collected and returned
// together; the rest of the draft is still applied.
func Commit(orders []*model.Order, d *Draft, passID string, now time.Time) (*Outcome, error) {
	byCode := make(map[string]*model.Order, len(orders))
	for _, o := range orders {
		byCode[o.Code] = o
	}
	out := &Outcome{}
	var errs []error
	emit := func(t model.EventType, orderCode, opID, machineID string, at time.Time) {
		out.Events = append(out.Events, model.Event{
			ID:          uuid.NewString(),
			Type:        t,
			PassID:      passID,
			OrderCode:   orderCode,
			OperationID: opID,
			MachineID:   machineID,
			At:          at,
		})
	}

	preempted := make(map[string]bool)
	for _, p := range d.Preemptions {
		o := byCode[p.OrderCode]
		if o == nil {
			errs = append(errs, model.NewNotFoundError("order", p.OrderCode))
			continue
		}
		rec, err := lifecycle.HaltOperation(o, p.OperationID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("halt %s/%s: %w", p.OrderCode, p.OperationID, err))
			continue
		}
		if rec == nil {
			continue
		}
		out.Halted++
		emit(model.EventOperationHalted, p.OrderCode, p.OperationID, p.MachineID, now)
		if !preempted[p.OrderCode] {
			preempted[p.OrderCode] = true
			out.Preempted = append(out.Preempted, p.OrderCode)
			emit(model.EventOrderPreempted, p.OrderCode, "", p.MachineID, now)
		}
	}
	slices.Sort(out.Preempted)

	complete := func(o *model.Order, e model.ScheduleEntry, at time.Time) {
		wasDone := o.State == model.OrderStateCompleted
		if err := lifecycle.CompleteOperation(o, e.OperationID, o.Quantity, at); err != nil {
			errs = append(errs, fmt.Errorf("complete %s/%s: %w", e.OrderCode, e.OperationID, err))
			return
		}
		out.Completed++
		emit(model.EventOperationCompleted, e.OrderCode, e.OperationID, e.MachineID, at)
		if !wasDone && o.State == model.OrderStateCompleted {
			emit(model.EventOrderCompleted, e.OrderCode, "", "", at)
		}
	}

	machines := make([]string, 0, len(d.Plan))
	for m := range d.Plan {
		machines = append(machines, m)
	}
	slices.Sort(machines)

	for _, m := range machines {
		for _, e := range d.Plan[m] {
			if e.Kind != model.EntryFixed || e.End.After(now) {
				continue
			}
			o := byCode[e.OrderCode]
			if o == nil {
				continue
			}
			if op := o.Operation(e.OperationID); op == nil || op.State != model.OperationStateInProgress {
				continue
			}
			complete(o, e, e.End)
		}
	}

	for _, m := range machines {
		for _, e := range d.Plan[m] {
			if e.Kind == model.EntryFixed || e.Start.After(now) {
				continue
			}
			o := byCode[e.OrderCode]
			if o == nil {
				continue
			}
			op := o.Operation(e.OperationID)
			if op == nil || op.State == model.OperationStateInProgress {
				continue
			}
			var err error
			if e.Kind == model.EntryResume {
				err = lifecycle.ResumeOperation(o, e.OperationID, now)
			} else {
				err = lifecycle.StartOperation(o, e.OperationID, e.MachineID, now)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s/%s: %w", e.Kind, e.OrderCode, e.OperationID, err))
				continue
			}
			if e.Kind == model.EntryResume {
				out.Resumed++
				emit(model.EventOperationResumed, e.OrderCode, e.OperationID, e.MachineID, now)
			} else {
				out.Started++
				emit(model.EventOperationStarted, e.OrderCode, e.OperationID, e.MachineID, now)
			}
			// Zero-length work finishes in the same pass.
			if op.EndsAt != nil && !op.EndsAt.After(now) {
				complete(o, e, now)
			}
		}
	}

	lifecycle.ReconcileAll(orders)
	return out, errors.Join(errs...)
}
