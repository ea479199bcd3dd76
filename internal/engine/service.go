package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/opsched/internal/events"
	"github.com/me/opsched/internal/lifecycle"
	"github.com/me/opsched/internal/scheduler"
	"github.com/me/opsched/pkg/model"
)

// Clock returns the current time. Tests inject a fixed or stepping clock.
type Clock func() time.Time

// Reloader produces a fresh order set for Reset.
type Reloader func(ctx context.Context) ([]*model.Order, error)

// Config holds the service configuration.
type Config struct {
	Machines  []string
	Policy    scheduler.Policy
	Lookahead int
}

// Service is the single serialization point for every trigger that reads or
// mutates orders: operator actions, periodic passes and resets.
type Service struct {
	mu        sync.RWMutex
	state     *State
	planner   *scheduler.Planner
	pool      []string
	lookahead int
	clock     Clock
	publisher events.Publisher
	reloader  Reloader
	lastPass  *model.PassResult
	logger    *slog.Logger
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPublisher sets where events go after each mutation.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithReloader sets the source Reset reloads from.
func WithReloader(r Reloader) Option {
	return func(s *Service) { s.reloader = r }
}

// WithState injects a pre-populated container.
func WithState(st *State) Option {
	return func(s *Service) { s.state = st }
}

// New creates a scheduling service.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 2
	}
	s := &Service{
		state:     NewState(),
		planner:   scheduler.NewPlanner(cfg.Machines, cfg.Policy, logger),
		pool:      append([]string(nil), cfg.Machines...),
		lookahead: cfg.Lookahead,
		clock:     func() time.Time { return time.Now().UTC() },
		publisher: events.Nop{},
		logger:    logger.With("component", "engine"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Pool returns the configured machine IDs.
func (s *Service) Pool() []string {
	return append([]string(nil), s.pool...)
}

// mutate runs fn under the write lock and publishes its events after the
// lock is released.
func (s *Service) mutate(ctx context.Context, fn func(now time.Time) ([]model.Event, error)) error {
	s.mu.Lock()
	evs, err := fn(s.clock())
	s.mu.Unlock()
	s.publish(ctx, evs)
	return err
}

func (s *Service) publish(ctx context.Context, evs []model.Event) {
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs); err != nil {
		s.logger.Warn("publish events", "count", len(evs), "error", err)
	}
}

// Load validates orders and adds them to the live set. Nothing is added
// when any order is malformed or already present.
func (s *Service) Load(ctx context.Context, orders []*model.Order) error {
	return s.mutate(ctx, func(time.Time) ([]model.Event, error) {
		if err := s.checkBatch(orders, true); err != nil {
			return nil, err
		}
		for _, o := range orders {
			_ = s.state.Add(o)
		}
		lifecycle.ReconcileAll(orders)
		s.logger.Info("orders loaded", "count", len(orders), "total", s.state.Len())
		return nil, nil
	})
}

// Reset drops every order and the last plan, then reloads from the
// configured reloader when there is one. It returns the number of orders
// now held.
func (s *Service) Reset(ctx context.Context) (int, error) {
	var orders []*model.Order
	if s.reloader != nil {
		var err error
		if orders, err = s.reloader(ctx); err != nil {
			return 0, err
		}
	}
	var n int
	err := s.mutate(ctx, func(time.Time) ([]model.Event, error) {
		if err := s.checkBatch(orders, false); err != nil {
			return nil, err
		}
		s.state.Clear()
		for _, o := range orders {
			_ = s.state.Add(o)
		}
		lifecycle.ReconcileAll(orders)
		s.lastPass = nil
		n = s.state.Len()
		s.logger.Info("state reset", "orders", n)
		return nil, nil
	})
	return n, err
}

func (s *Service) checkBatch(orders []*model.Order, againstState bool) error {
	var problems []model.FieldError
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		problems = append(problems, model.ValidateOrder(o)...)
		if seen[o.Code] || (againstState && s.state.Get(o.Code) != nil) {
			return &model.APIError{Code: model.ErrCodeConflict, Message: "order '" + o.Code + "' already exists"}
		}
		seen[o.Code] = true
	}
	if len(problems) > 0 {
		return model.NewValidationError("malformed orders", problems...)
	}
	return nil
}

func (s *Service) lookup(code string) (*model.Order, error) {
	o := s.state.Get(code)
	if o == nil {
		return nil, model.NewNotFoundError("order", code)
	}
	return o, nil
}

func (s *Service) inPool(machineID string) bool {
	return len(s.pool) == 0 || slices.Contains(s.pool, machineID)
}

// occupant returns the operation running on machineID, if any.
func (s *Service) occupant(machineID string) (*model.Order, *model.Operation) {
	for _, o := range s.state.Orders() {
		for _, op := range o.Operations {
			if op.State == model.OperationStateInProgress && op.AssignedMachine == machineID {
				return o, op
			}
		}
	}
	return nil, nil
}

// StartOperation starts a pending operation on a specific machine.
func (s *Service) StartOperation(ctx context.Context, code, opID, machineID string) error {
	return s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		op := o.Operation(opID)
		if op == nil {
			return nil, model.NewNotFoundError("operation", code+"/"+opID)
		}
		if !op.CanRunOn(machineID) {
			return nil, model.NewInvalidCapabilityError(machineID, opID)
		}
		if !s.inPool(machineID) {
			return nil, model.NewNotFoundError("machine", machineID)
		}
		if other, busy := s.occupant(machineID); busy != nil && busy != op {
			return nil, model.NewInvalidStateError("machine %s is busy with %s/%s", machineID, other.Code, busy.ID)
		}
		if err := lifecycle.StartOperation(o, opID, machineID, now); err != nil {
			return nil, err
		}
		lifecycle.Reconcile(o)
		s.logger.Info("operation started", "order", code, "operation", opID, "machine", machineID)
		return []model.Event{newEvent(model.EventOperationStarted, code, opID, machineID, now)}, nil
	})
}

// CompleteOperation finishes a running operation. A nil quantity records the
// whole order quantity.
func (s *Service) CompleteOperation(ctx context.Context, code, opID string, qty *int) error {
	return s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		q := o.Quantity
		if qty != nil {
			q = *qty
		}
		var machine string
		if op := o.Operation(opID); op != nil {
			machine = op.AssignedMachine
		}
		wasDone := o.State == model.OrderStateCompleted
		if err := lifecycle.CompleteOperation(o, opID, q, now); err != nil {
			return nil, err
		}
		lifecycle.Reconcile(o)
		s.logger.Info("operation completed", "order", code, "operation", opID, "quantity", q)
		evs := []model.Event{newEvent(model.EventOperationCompleted, code, opID, machine, now)}
		if !wasDone && o.State == model.OrderStateCompleted {
			evs = append(evs, newEvent(model.EventOrderCompleted, code, "", "", now))
		}
		return evs, nil
	})
}

// HaltOperation pauses a running operation. Halting anything that is not
// running is a no-op and returns a nil record. The next pass resumes the
// operation on its machine once nothing of higher priority claims it.
func (s *Service) HaltOperation(ctx context.Context, code, opID string) (*model.HaltRecord, error) {
	var rec *model.HaltRecord
	err := s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		if rec, err = lifecycle.HaltOperation(o, opID, now); err != nil || rec == nil {
			return nil, err
		}
		lifecycle.Reconcile(o)
		s.logger.Info("operation halted", "order", code, "operation", opID,
			"machine", rec.Machine, "elapsed", rec.Elapsed)
		return []model.Event{newEvent(model.EventOperationHalted, code, opID, rec.Machine, now)}, nil
	})
	if rec != nil {
		c := *rec
		return &c, err
	}
	return nil, err
}

// ResumeOperation restarts a halted operation on its original machine.
func (s *Service) ResumeOperation(ctx context.Context, code, opID string) error {
	return s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		op := o.Operation(opID)
		if op == nil {
			return nil, model.NewNotFoundError("operation", code+"/"+opID)
		}
		if op.Halt != nil {
			if other, busy := s.occupant(op.Halt.Machine); busy != nil {
				return nil, model.NewInvalidStateError("machine %s is busy with %s/%s",
					op.Halt.Machine, other.Code, busy.ID)
			}
		}
		if err := lifecycle.ResumeOperation(o, opID, now); err != nil {
			return nil, err
		}
		lifecycle.Reconcile(o)
		s.logger.Info("operation resumed", "order", code, "operation", opID, "machine", op.AssignedMachine)
		return []model.Event{newEvent(model.EventOperationResumed, code, opID, op.AssignedMachine, now)}, nil
	})
}

// ForceOrder gives a pending order top priority and immediately runs a pass,
// which may preempt running work of other orders.
func (s *Service) ForceOrder(ctx context.Context, code string) (*model.PassResult, error) {
	var res *model.PassResult
	err := s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		if o.State != model.OrderStatePending {
			return nil, model.NewInvalidStateError("order %s is %s; only PENDING orders can be forced", code, o.State)
		}
		if o.Forced {
			return nil, model.NewInvalidStateError("order %s is already forced", code)
		}
		lifecycle.Force(o, now)
		s.logger.Info("order forced", "order", code)

		var evs []model.Event
		res, evs, err = s.runPassLocked(now)
		if err != nil {
			_ = lifecycle.Unforce(o)
			return nil, err
		}
		forced := newEvent(model.EventOrderForced, code, "", "", now)
		forced.PassID = res.ID
		return append([]model.Event{forced}, evs...), nil
	})
	return res, err
}

// UnforceOrder removes the override and reruns the pass.
func (s *Service) UnforceOrder(ctx context.Context, code string) (*model.PassResult, error) {
	var res *model.PassResult
	err := s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		o, err := s.lookup(code)
		if err != nil {
			return nil, err
		}
		forcedAt := now
		if o.ForcedAt != nil {
			forcedAt = *o.ForcedAt
		}
		if err := lifecycle.Unforce(o); err != nil {
			return nil, err
		}
		s.logger.Info("order unforced", "order", code)

		var evs []model.Event
		res, evs, err = s.runPassLocked(now)
		if err != nil {
			lifecycle.Force(o, forcedAt)
			return nil, err
		}
		unforced := newEvent(model.EventOrderUnforced, code, "", "", now)
		unforced.PassID = res.ID
		return append([]model.Event{unforced}, evs...), nil
	})
	return res, err
}

// RunPass executes one scheduling pass at the current time.
func (s *Service) RunPass(ctx context.Context) (*model.PassResult, error) {
	var res *model.PassResult
	err := s.mutate(ctx, func(now time.Time) ([]model.Event, error) {
		var evs []model.Event
		var err error
		res, evs, err = s.runPassLocked(now)
		return evs, err
	})
	return res, err
}

func (s *Service) runPassLocked(now time.Time) (*model.PassResult, []model.Event, error) {
	began := time.Now()
	orders := s.state.Orders()
	d, err := s.planner.Plan(orders, now)
	if err != nil {
		s.logger.Error("scheduling pass aborted", "error", err)
		return nil, nil, err
	}

	id := uuid.NewString()
	out, err := scheduler.Commit(orders, d, id, now)
	if err != nil {
		// The planner and the lifecycle disagree; keep what was applied.
		s.logger.Error("scheduling pass commit", "pass_id", id, "error", err)
	}
	for _, p := range d.Preemptions {
		s.logger.Warn("operation preempted",
			"order", p.OrderCode, "operation", p.OperationID,
			"machine", p.MachineID, "forced_by", p.ForcedBy)
	}

	res := &model.PassResult{
		ID:        id,
		At:        now,
		Plan:      d.Plan,
		Preempted: out.Preempted,
		Started:   out.Started,
		Resumed:   out.Resumed,
		Completed: out.Completed,
		Halted:    out.Halted,
		Unplaced:  d.Unplaced,
	}
	s.lastPass = res
	s.logger.Info("scheduling pass",
		"pass_id", id,
		"entries", d.Plan.Len(),
		"started", out.Started,
		"completed", out.Completed,
		"resumed", out.Resumed,
		"preempted", out.Preempted,
		"unplaced", len(d.Unplaced),
		"duration", time.Since(began),
	)
	return clonePass(res), out.Events, nil
}

// EstimateOrder sums the order's processing time for a machine selection.
func (s *Service) EstimateOrder(code string, selection map[string]string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, err := s.lookup(code)
	if err != nil {
		return 0, err
	}
	for opID := range selection {
		if o.Operation(opID) == nil {
			return 0, model.NewNotFoundError("operation", code+"/"+opID)
		}
	}
	return model.EstimateTotal(o, selection)
}

func newEvent(t model.EventType, orderCode, opID, machineID string, at time.Time) model.Event {
	return model.Event{
		ID:          uuid.NewString(),
		Type:        t,
		OrderCode:   orderCode,
		OperationID: opID,
		MachineID:   machineID,
		At:          at,
	}
}

func clonePass(p *model.PassResult) *model.PassResult {
	if p == nil {
		return nil
	}
	c := *p
	c.Plan = p.Plan.Clone()
	c.Preempted = slices.Clone(p.Preempted)
	c.Unplaced = slices.Clone(p.Unplaced)
	return &c
}
