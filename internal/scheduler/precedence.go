package scheduler

import (
	"time"

	"github.com/me/opsched/pkg/model"
)

// Predecessor returns the operation with the greatest sequence number below
// op's, or nil for the first operation of the order.
func Predecessor(o *model.Order, op *model.Operation) *model.Operation {
	var pred *model.Operation
	for _, other := range o.Operations {
		if other.Sequence < op.Sequence && (pred == nil || other.Sequence > pred.Sequence) {
			pred = other
		}
	}
	return pred
}

// readyAt returns the earliest start permitted by intra-order precedence.
// The second result is false when the predecessor has not been placed.
func (p *Planner) readyAt(c candidate, ends map[string]time.Time, now time.Time) (time.Time, bool) {
	if !p.policy.StrictPrecedence {
		return now, true
	}
	pred := Predecessor(c.order, c.op)
	if pred == nil || pred.State == model.OperationStateCompleted {
		return now, true
	}
	end, ok := ends[c.order.Code+"/"+pred.ID]
	if !ok {
		return time.Time{}, false
	}
	return latest(now, end), true
}
