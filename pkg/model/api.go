package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures order listing with pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	State  string // Optional order state filter
	Forced *bool  // Optional forced-flag filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 50, Offset: 0}
}

// Clamp enforces limits (max 500, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Page slices total items according to the options and reports pagination.
func (o ListOptions) Page(total int) (lo, hi int, pg *Pagination) {
	lo = min(o.Offset, total)
	hi = min(lo+o.Limit, total)
	return lo, hi, &Pagination{Total: total, Limit: o.Limit, Offset: o.Offset, HasMore: hi < total}
}

// StartOperationRequest is the body of POST .../operations/{id}/start.
type StartOperationRequest struct {
	MachineID string `json:"machine_id"`
}

// CompleteOperationRequest is the body of POST .../operations/{id}/complete.
// A missing quantity means the whole order quantity.
type CompleteOperationRequest struct {
	CompletedQuantity *int `json:"completed_quantity,omitempty"`
}

// EstimateRequest is the body of POST /orders/{code}/estimate.
type EstimateRequest struct {
	Selection map[string]string `json:"selection,omitempty"`
}

// ForceResponse reports a force together with the pass it triggered.
type ForceResponse struct {
	OrderCode string      `json:"order_code"`
	Forced    bool        `json:"forced"`
	Pass      *PassResult `json:"pass"`
}
