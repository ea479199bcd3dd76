package engine

import (
	"slices"
	"time"

	"github.com/me/opsched/pkg/model"
)

func view(o *model.Order, now time.Time) *model.OrderView {
	est, _ := model.EstimateTotal(o, nil)
	return &model.OrderView{
		Order:          o.Clone(),
		Progress:       model.OrderProgress(o, now),
		Remaining:      model.OrderRemaining(o, now),
		EstimatedTotal: est,
	}
}

// Order returns a snapshot of one order.
func (s *Service) Order(code string) (*model.OrderView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.lookup(code)
	if err != nil {
		return nil, err
	}
	return view(o, s.clock()), nil
}

// Orders lists order snapshots in load order, filtered and paginated.
func (s *Service) Orders(opts model.ListOptions) ([]*model.OrderView, *model.Pagination, error) {
	opts.Clamp()
	var want model.OrderState
	if opts.State != "" {
		st, ok := model.ParseOrderState(opts.State)
		if !ok {
			return nil, nil, model.NewValidationError("invalid state filter",
				model.FieldError{Field: "state", Message: "unknown order state " + opts.State})
		}
		want = st
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock()
	var matched []*model.Order
	for _, o := range s.state.Orders() {
		if want != "" && o.State != want {
			continue
		}
		if opts.Forced != nil && o.Forced != *opts.Forced {
			continue
		}
		matched = append(matched, o)
	}
	lo, hi, pg := opts.Page(len(matched))
	out := make([]*model.OrderView, 0, hi-lo)
	for _, o := range matched[lo:hi] {
		out = append(out, view(o, now))
	}
	return out, pg, nil
}

// LastPass returns the most recent pass, or nil before the first one.
func (s *Service) LastPass() *model.PassResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePass(s.lastPass)
}

// Machines returns the status of every pool machine, in pool order, followed
// by any machine outside the pool that still runs work.
func (s *Service) Machines() []model.MachineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock()
	running := s.runningByMachine()

	ids := append([]string(nil), s.pool...)
	var extra []string
	for m := range running {
		if !slices.Contains(ids, m) {
			extra = append(extra, m)
		}
	}
	slices.Sort(extra)
	ids = append(ids, extra...)

	out := make([]model.MachineStatus, 0, len(ids))
	for _, m := range ids {
		out = append(out, s.machineStatus(m, running[m], now))
	}
	return out
}

// Machine returns the status of one machine.
func (s *Service) Machine(id string) (model.MachineStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	running := s.runningByMachine()
	if !slices.Contains(s.pool, id) && running[id].op == nil {
		return model.MachineStatus{}, model.NewNotFoundError("machine", id)
	}
	return s.machineStatus(id, running[id], s.clock()), nil
}

type placement struct {
	order *model.Order
	op    *model.Operation
}

func (s *Service) runningByMachine() map[string]placement {
	out := make(map[string]placement)
	for _, o := range s.state.Orders() {
		for _, op := range o.Operations {
			if op.State == model.OperationStateInProgress && op.AssignedMachine != "" {
				out[op.AssignedMachine] = placement{order: o, op: op}
			}
		}
	}
	return out
}

// machineStatus combines live occupancy with the last plan: the current
// entry reflects what actually runs, upcoming entries come from the plan.
func (s *Service) machineStatus(id string, cur placement, now time.Time) model.MachineStatus {
	st := model.MachineStatus{
		MachineID: id,
		State:     model.MachineStateIdle,
		Upcoming:  []model.ScheduleEntry{},
		FullPlan:  []model.ScheduleEntry{},
	}
	if s.lastPass != nil {
		st.FullPlan = append(st.FullPlan, s.lastPass.Plan[id]...)
	}

	if cur.op != nil && cur.op.StartedAt != nil {
		start := *cur.op.StartedAt
		end := start.Add(cur.op.Duration(id))
		if cur.op.EndsAt != nil {
			end = *cur.op.EndsAt
		}
		st.State = model.MachineStateBusy
		st.Current = &model.ScheduleEntry{
			OrderCode:     cur.order.Code,
			OperationID:   cur.op.ID,
			OperationName: cur.op.Name,
			Sequence:      cur.op.Sequence,
			MachineID:     id,
			Kind:          model.EntryFixed,
			Forced:        cur.order.Forced,
			Start:         start,
			End:           end,
		}
		st.Progress = model.Progress(cur.op, now)
		st.Remaining = model.Remaining(cur.op, now)
		if now.After(start) {
			st.Elapsed = min(now.Sub(start), cur.op.Duration(id))
		}
	}

	for _, e := range st.FullPlan {
		if len(st.Upcoming) >= s.lookahead {
			break
		}
		if st.Current != nil && e.OrderCode == st.Current.OrderCode && e.OperationID == st.Current.OperationID {
			continue
		}
		if e.Start.After(now) {
			st.Upcoming = append(st.Upcoming, e)
		}
	}
	return st
}

// Summary aggregates the shop floor for a dashboard. Forced orders lead the
// IN_PROGRESS list.
func (s *Service) Summary() model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock()
	sum := model.Summary{
		At:       now,
		ByState:  make(map[model.OrderState][]string),
		LastPass: clonePass(s.lastPass),
	}

	var progress float64
	var forcedRunning, running []string
	for _, o := range s.state.Orders() {
		sum.TotalOrders++
		sum.TotalRemaining += model.OrderRemaining(o, now)
		progress += model.OrderProgress(o, now)
		switch {
		case o.State == model.OrderStateInProgress && o.Forced:
			forcedRunning = append(forcedRunning, o.Code)
		case o.State == model.OrderStateInProgress:
			running = append(running, o.Code)
		default:
			sum.ByState[o.State] = append(sum.ByState[o.State], o.Code)
		}
	}
	if ip := append(forcedRunning, running...); len(ip) > 0 {
		sum.ByState[model.OrderStateInProgress] = ip
	}
	if sum.TotalOrders > 0 {
		sum.MeanProgress = progress / float64(sum.TotalOrders)
	}

	busy := s.runningByMachine()
	for _, m := range s.pool {
		if busy[m].op != nil {
			sum.BusyMachines++
		} else {
			sum.IdleMachines++
		}
	}
	return sum
}

// Snapshot returns deep copies of every order in load order.
func (s *Service) Snapshot() []*model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := s.state.Orders()
	out := make([]*model.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}
