package model

import "time"

// EventType names a scheduling event.
type EventType string

const (
	EventOperationStarted   EventType = "operation.started"
	EventOperationCompleted EventType = "operation.completed"
	EventOperationHalted    EventType = "operation.halted"
	EventOperationResumed   EventType = "operation.resumed"
	EventOrderCompleted     EventType = "order.completed"
	EventOrderPreempted     EventType = "order.preempted"
	EventOrderForced        EventType = "order.forced"
	EventOrderUnforced      EventType = "order.unforced"
)

// Event records one state change for downstream consumers.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	PassID      string    `json:"pass_id,omitempty"`
	OrderCode   string    `json:"order_code"`
	OperationID string    `json:"operation_id,omitempty"`
	MachineID   string    `json:"machine_id,omitempty"`
	At          time.Time `json:"at"`
}
