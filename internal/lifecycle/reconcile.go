package lifecycle

import (
	"time"

	"github.com/me/opsched/pkg/model"
)

// Reconcile derives the order state from its operations and stamps the
// order's start and completion times the first time they apply. It reports
// whether anything changed; a second call without intervening mutation
// always reports false.
func Reconcile(o *model.Order) bool {
	changed := false

	state := model.DeriveOrderState(o.Operations)
	if state != o.State {
		o.State = state
		changed = true
	}

	if state != model.OrderStatePending && o.StartedAt == nil {
		if first := earliestStart(o); first != nil {
			o.StartedAt = first
			changed = true
		}
	}

	if state == model.OrderStateCompleted && o.CompletedAt == nil {
		if last := latestCompletion(o); last != nil {
			o.CompletedAt = last
			changed = true
		}
	}
	return changed
}

// ReconcileAll reconciles every order and returns the codes of the orders
// that changed, in input order.
func ReconcileAll(orders []*model.Order) []string {
	var changed []string
	for _, o := range orders {
		if Reconcile(o) {
			changed = append(changed, o.Code)
		}
	}
	return changed
}

func earliestStart(o *model.Order) *time.Time {
	var first *time.Time
	for _, op := range o.Operations {
		t := op.StartedAt
		if t == nil {
			t = op.CompletedAt
		}
		if t != nil && (first == nil || t.Before(*first)) {
			v := *t
			first = &v
		}
	}
	return first
}

func latestCompletion(o *model.Order) *time.Time {
	var last *time.Time
	for _, op := range o.Operations {
		if op.CompletedAt != nil && (last == nil || op.CompletedAt.After(*last)) {
			v := *op.CompletedAt
			last = &v
		}
	}
	return last
}
