package loader

import (
	"fmt"
	"time"

	"github.com/me/opsched/pkg/model"
)

// BuildOrders groups descriptors into pending orders, in order of first
// appearance. Creation times step by one millisecond from base so file order
// becomes scheduling age.
func BuildOrders(ds []model.OperationDescriptor, base time.Time) ([]*model.Order, error) {
	var orders []*model.Order
	byCode := make(map[string]*model.Order)
	var problems []model.FieldError

	for _, d := range ds {
		o, ok := byCode[d.OrderCode]
		if !ok {
			o = &model.Order{
				Code:      d.OrderCode,
				Quantity:  d.Quantity,
				State:     model.OrderStatePending,
				CreatedAt: base.Add(time.Duration(len(orders)) * time.Millisecond),
			}
			byCode[d.OrderCode] = o
			orders = append(orders, o)
		} else if o.Quantity != d.Quantity {
			problems = append(problems, model.FieldError{
				Field:   "quantity",
				Path:    d.OrderCode + "/" + d.OperationID,
				Message: fmt.Sprintf("quantity %d differs from %d on an earlier row", d.Quantity, o.Quantity),
			})
		}

		durations := make(map[string]time.Duration, len(d.Durations))
		for m, v := range d.Durations {
			durations[m] = v
		}
		o.Operations = append(o.Operations, &model.Operation{
			ID:        d.OperationID,
			Name:      d.OperationName,
			Sequence:  d.Sequence,
			Machines:  append([]string(nil), d.Machines...),
			Durations: durations,
			State:     model.OperationStatePending,
		})
	}

	for _, o := range orders {
		o.SortOperations()
		problems = append(problems, model.ValidateOrder(o)...)
	}
	if len(problems) > 0 {
		return nil, model.NewValidationError("inconsistent order descriptors", problems...)
	}
	return orders, nil
}

// Descriptors flattens orders back into descriptor rows.
func Descriptors(orders []*model.Order) []model.OperationDescriptor {
	var out []model.OperationDescriptor
	for _, o := range orders {
		for _, op := range o.Operations {
			out = append(out, model.OperationDescriptor{
				OrderCode:     o.Code,
				Quantity:      o.Quantity,
				OperationID:   op.ID,
				OperationName: op.Name,
				Sequence:      op.Sequence,
				Machines:      append([]string(nil), op.Machines...),
				Durations:     op.Durations,
			})
		}
	}
	return out
}
