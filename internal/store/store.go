package store

import (
	"context"

	"github.com/me/opsched/pkg/model"
)

// Store persists the descriptor catalog the service reloads from and a
// journal of scheduling events.
type Store interface {
	// Descriptor catalog
	ReplaceDescriptors(ctx context.Context, ds []model.OperationDescriptor) error
	ListDescriptors(ctx context.Context) ([]model.OperationDescriptor, error)
	CountOrders(ctx context.Context) (int, error)

	// Event journal
	AppendEvents(ctx context.Context, evs []model.Event) error
	RecentEvents(ctx context.Context, n int) ([]model.Event, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
