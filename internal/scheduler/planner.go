package scheduler

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/me/opsched/pkg/model"
)

// Policy holds the tunable parts of the placement rules.
type Policy struct {
	// StrictPrecedence makes operation N+1 of an order wait for the end of
	// operation N. Off, sequence numbers only act as a priority key.
	StrictPrecedence bool
}

// Preemption records a running operation displaced by a forced order.
type Preemption struct {
	OrderCode   string
	OperationID string
	MachineID   string
	ForcedBy    string
}

// Draft is a computed plan that has not been applied to any entity yet.
type Draft struct {
	At          time.Time
	Plan        model.Plan
	Preemptions []Preemption
	Unplaced    []string
}

// Planner computes machine assignment plans. It never mutates orders.
type Planner struct {
	pool   []string
	inPool map[string]bool
	policy Policy
	logger *slog.Logger
}

// NewPlanner creates a planner over the given machine pool. Machines are
// kept in the given order; an empty pool accepts every machine.
func NewPlanner(pool []string, policy Policy, logger *slog.Logger) *Planner {
	in := make(map[string]bool, len(pool))
	for _, m := range pool {
		in[m] = true
	}
	return &Planner{
		pool:   append([]string(nil), pool...),
		inPool: in,
		policy: policy,
		logger: logger.With("component", "planner"),
	}
}

// Pool returns the configured machine IDs.
func (p *Planner) Pool() []string {
	return append([]string(nil), p.pool...)
}

// Policy returns the active placement policy.
func (p *Planner) Policy() Policy {
	return p.policy
}

func (p *Planner) available(machineID string) bool {
	return len(p.inPool) == 0 || p.inPool[machineID]
}

// lane is one machine's timeline. Fixed entries come first; every later
// entry starts no earlier than the end of the one before it.
type lane struct {
	entries []model.ScheduleEntry
}

func (l *lane) end() (time.Time, bool) {
	if len(l.entries) == 0 {
		return time.Time{}, false
	}
	return l.entries[len(l.entries)-1].End, true
}

type candidate struct {
	order *model.Order
	op    *model.Operation
	kind  model.EntryKind
}

func (c candidate) key() string {
	return c.order.Code + "/" + c.op.ID
}

// Plan computes one scheduling pass over orders at now. Structurally invalid
// orders abort the pass with a VALIDATION_ERROR before anything is placed.
func (p *Planner) Plan(orders []*model.Order, now time.Time) (*Draft, error) {
	var problems []model.FieldError
	for _, o := range orders {
		problems = append(problems, model.ValidateOrder(o)...)
	}
	if len(problems) > 0 {
		return nil, model.NewValidationError("malformed order set; pass aborted", problems...)
	}

	lanes := make(map[string]*lane)
	laneFor := func(m string) *lane {
		l, ok := lanes[m]
		if !ok {
			l = &lane{}
			lanes[m] = l
		}
		return l
	}
	// ends tracks where each placed operation finishes, for precedence.
	ends := make(map[string]time.Time)
	draft := &Draft{At: now}

	// Running operations keep their machine until preempted or completed.
	var fixed []candidate
	var queue []candidate
	for _, o := range orders {
		for _, op := range o.Operations {
			c := candidate{order: o, op: op}
			switch {
			case op.State == model.OperationStateInProgress:
				c.kind = model.EntryFixed
				fixed = append(fixed, c)
			case op.State == model.OperationStatePending && op.Halt != nil:
				c.kind = model.EntryResume
				queue = append(queue, c)
			case op.State == model.OperationStatePending:
				c.kind = model.EntryFresh
				queue = append(queue, c)
			}
		}
	}

	slices.SortFunc(fixed, func(a, b candidate) int {
		return cmp.Or(
			startedAt(a.op, now).Compare(startedAt(b.op, now)),
			cmp.Compare(a.order.Code, b.order.Code),
			cmp.Compare(a.op.Sequence, b.op.Sequence),
		)
	})
	for _, c := range fixed {
		start := startedAt(c.op, now)
		e := newEntry(c, c.op.AssignedMachine, start, start.Add(c.op.Duration(c.op.AssignedMachine)))
		l := laneFor(e.MachineID)
		l.entries = append(l.entries, e)
		ends[c.key()] = e.End
	}

	slices.SortFunc(queue, comparePriority)

	for _, c := range queue {
		ready, ok := p.readyAt(c, ends, now)
		if !ok {
			p.logger.Debug("operation waits for its predecessor", "order", c.order.Code, "operation", c.op.ID)
			draft.Unplaced = append(draft.Unplaced, c.key())
			continue
		}

		machine, found := p.selectMachine(c, lanes)
		if !found {
			p.logger.Debug("no capable machine available", "order", c.order.Code, "operation", c.op.ID)
			draft.Unplaced = append(draft.Unplaced, c.key())
			continue
		}
		l := laneFor(machine)

		if c.order.Forced {
			// The first forced candidate on a lane removes every preemptible
			// entry, so no entry after a removed one needs re-timing.
			kept := l.entries[:0]
			for _, s := range l.entries {
				if !p.preemptible(s, c.order, orders, now) {
					kept = append(kept, s)
					continue
				}
				draft.Preemptions = append(draft.Preemptions, Preemption{
					OrderCode:   s.OrderCode,
					OperationID: s.OperationID,
					MachineID:   machine,
					ForcedBy:    c.order.Code,
				})
				delete(ends, s.OrderCode+"/"+s.OperationID)
				p.logger.Debug("preempting running operation",
					"order", s.OrderCode, "operation", s.OperationID,
					"machine", machine, "forced_by", c.order.Code)
			}
			l.entries = kept
		}

		start := latest(now, ready)
		if end, ok := l.end(); ok {
			start = latest(start, end)
		}
		var d time.Duration
		if c.kind == model.EntryResume {
			d = model.ResumeRemaining(c.op)
		} else {
			d = c.op.Duration(machine)
		}
		e := newEntry(c, machine, start, start.Add(d))
		l.entries = append(l.entries, e)
		ends[c.key()] = e.End
		p.logger.Debug("placed operation", "order", c.order.Code, "operation", c.op.ID,
			"machine", machine, "kind", c.kind, "start", e.Start, "end", e.End)
	}

	draft.Plan = make(model.Plan, len(lanes))
	for m, l := range lanes {
		if len(l.entries) == 0 {
			continue
		}
		entries := slices.Clone(l.entries)
		slices.SortStableFunc(entries, func(a, b model.ScheduleEntry) int { return a.Start.Compare(b.Start) })
		draft.Plan[m] = entries
	}
	return draft, nil
}

// comparePriority orders candidates: forced orders first, then halted work,
// then older orders, then lower sequence numbers. The order code makes the
// ordering total across orders created at the same instant.
func comparePriority(a, b candidate) int {
	if a.order.Forced != b.order.Forced {
		if a.order.Forced {
			return -1
		}
		return 1
	}
	ar, br := a.kind == model.EntryResume, b.kind == model.EntryResume
	if ar != br {
		if ar {
			return -1
		}
		return 1
	}
	return cmp.Or(
		a.order.CreatedAt.Compare(b.order.CreatedAt),
		cmp.Compare(a.op.Sequence, b.op.Sequence),
		cmp.Compare(a.order.Code, b.order.Code),
	)
}

// selectMachine picks the capable machine offering the earliest start: the
// first machine without entries wins outright, otherwise the one whose last
// entry ends soonest. Halted work is pinned to the machine it was halted on.
func (p *Planner) selectMachine(c candidate, lanes map[string]*lane) (string, bool) {
	machines := c.op.Machines
	if c.kind == model.EntryResume {
		machines = []string{c.op.Halt.Machine}
	}

	best := ""
	var bestEnd time.Time
	for _, m := range machines {
		if !p.available(m) || !c.op.CanRunOn(m) {
			continue
		}
		l, ok := lanes[m]
		if !ok || len(l.entries) == 0 {
			return m, true
		}
		end, _ := l.end()
		if best == "" || end.Before(bestEnd) {
			best, bestEnd = m, end
		}
	}
	return best, best != ""
}

// preemptible reports whether a forced order may displace entry s: it must be
// another order's operation that is still running and whose order is not
// forced itself.
func (p *Planner) preemptible(s model.ScheduleEntry, forced *model.Order, orders []*model.Order, now time.Time) bool {
	if s.Kind != model.EntryFixed || s.OrderCode == forced.Code {
		return false
	}
	if !s.End.After(now) {
		return false
	}
	for _, o := range orders {
		if o.Code == s.OrderCode {
			return !o.Forced
		}
	}
	return false
}

func newEntry(c candidate, machine string, start, end time.Time) model.ScheduleEntry {
	return model.ScheduleEntry{
		OrderCode:     c.order.Code,
		OperationID:   c.op.ID,
		OperationName: c.op.Name,
		Sequence:      c.op.Sequence,
		MachineID:     machine,
		Kind:          c.kind,
		Forced:        c.order.Forced,
		Start:         start,
		End:           end,
	}
}

func startedAt(op *model.Operation, now time.Time) time.Time {
	if op.StartedAt == nil {
		return now
	}
	return *op.StartedAt
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
