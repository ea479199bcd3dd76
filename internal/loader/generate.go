package loader

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/me/opsched/pkg/model"
)

var operationNames = []string{
	"Cutting", "Drilling", "Milling", "Turning", "Grinding", "Welding",
	"Assembly", "Testing", "Quality Control", "Packaging", "Shipping",
}

// GenerateOptions configures the synthetic order generator.
type GenerateOptions struct {
	Orders   int
	Machines []string
	Seed     uint64
}

// Generate produces a deterministic synthetic order book. Each order has
// 4-8 operations sharing a 1-3 day budget split in whole hours, and each
// operation runs on 2-4 machines whose times vary by up to 10%.
func Generate(opts GenerateOptions) ([]model.OperationDescriptor, error) {
	if opts.Orders <= 0 {
		return nil, model.NewValidationError("order count must be positive",
			model.FieldError{Field: "orders", Message: "must be positive"})
	}
	if len(opts.Machines) < 2 {
		return nil, model.NewValidationError("at least two machines are required",
			model.FieldError{Field: "machines", Message: "need at least 2"})
	}
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var out []model.OperationDescriptor
	for i := 0; i < opts.Orders; i++ {
		code := fmt.Sprintf("ORD%04d", i+1)
		qty := 10 + r.IntN(91)
		nOps := 4 + r.IntN(5)
		remaining := (1+r.IntN(3))*24 + r.IntN(24)

		for j := 0; j < nOps; j++ {
			left := nOps - j
			var hours int
			if left == 1 {
				hours = remaining
			} else {
				lo := min(4, remaining/left)
				hi := min(remaining-(left-1)*lo, 36)
				hours = lo
				if hi > lo {
					hours += r.IntN(hi - lo + 1)
				}
				remaining -= hours
			}
			hours = max(hours, 1)

			n := min(2+r.IntN(3), len(opts.Machines))
			perm := r.Perm(len(opts.Machines))[:n]
			d := model.OperationDescriptor{
				OrderCode:     code,
				Quantity:      qty,
				OperationID:   fmt.Sprintf("OP%02d", j+1),
				OperationName: operationNames[r.IntN(len(operationNames))],
				Sequence:      j + 1,
				Durations:     make(map[string]time.Duration, n),
			}
			for _, k := range perm {
				m := opts.Machines[k]
				h := max(int(float64(hours)*(0.9+0.2*r.Float64())), 1)
				d.Machines = append(d.Machines, m)
				d.Durations[m] = time.Duration(h) * time.Hour
			}
			out = append(out, d)
		}
	}
	return out, nil
}
