package eventsub

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

type reconcileFunc interface {
	Reconcile(ctx context.Context) error
}

// Reconciler periodically compares remote subscription state against
// local records and revokes what the provider no longer honors.
type Reconciler struct {
	registry    reconcileFunc
	coordinator bootstrapper
	interval    time.Duration
	clock       clockwork.Clock
}

func NewReconciler(registry reconcileFunc, coordinator bootstrapper, interval time.Duration, clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		registry:    registry,
		coordinator: coordinator,
		interval:    interval,
		clock:       clock,
	}
}

// Run blocks until ctx is cancelled. The first reconcile happens after
// one full interval, not at startup.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	if err := r.coordinator.Ensure(ctx); err != nil {
		slog.Error("Reconcile skipped, eventsub not ready", "error", err)
		return
	}
	if err := r.registry.Reconcile(ctx); err != nil {
		slog.Error("Subscription reconcile failed", "error", err)
	}
}
