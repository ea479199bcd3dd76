package scheduler

import (
	"context"

	"github.com/me/opsched/pkg/model"
)

// Scheduler drives periodic scheduling passes.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error
}

// Runner executes one scheduling pass over the live order set.
type Runner interface {
	RunPass(ctx context.Context) (*model.PassResult, error)
}
