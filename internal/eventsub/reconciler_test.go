package eventsub

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (c *countingReconciler) Reconcile(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestReconciler_RunsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := &countingReconciler{}
	r := NewReconciler(target, readyCoordinator{}, 15*time.Minute, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	clock.BlockUntil(1)
	assert.Equal(t, int32(0), target.calls.Load(), "no reconcile before the first interval")

	clock.Advance(15 * time.Minute)
	assert.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(15 * time.Minute)
	assert.Eventually(t, func() bool { return target.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReconciler_SkipsWhenBringUpFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := &countingReconciler{}
	r := NewReconciler(target, failingCoordinator{err: errors.New("not ready")}, time.Minute, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	// Give the loop a moment; the registry must stay untouched.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), target.calls.Load())
}
