// Package engine owns the live order set and serializes every scheduling
// trigger against it.
package engine

import (
	"github.com/me/opsched/pkg/model"
)

// State is the in-memory entity container. It is not safe for concurrent
// use on its own; Service guards it.
type State struct {
	orders map[string]*model.Order
	codes  []string
}

// NewState returns an empty container.
func NewState() *State {
	return &State{orders: make(map[string]*model.Order)}
}

// Add inserts an order, keeping insertion order for listings.
func (s *State) Add(o *model.Order) error {
	if _, ok := s.orders[o.Code]; ok {
		return &model.APIError{Code: model.ErrCodeConflict, Message: "order '" + o.Code + "' already exists"}
	}
	s.orders[o.Code] = o
	s.codes = append(s.codes, o.Code)
	return nil
}

// Get returns the order with the given code, or nil.
func (s *State) Get(code string) *model.Order {
	return s.orders[code]
}

// Orders returns the live orders in insertion order.
func (s *State) Orders() []*model.Order {
	out := make([]*model.Order, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, s.orders[c])
	}
	return out
}

// Len returns the number of orders held.
func (s *State) Len() int {
	return len(s.codes)
}

// Clear drops every order.
func (s *State) Clear() {
	s.orders = make(map[string]*model.Order)
	s.codes = nil
}
