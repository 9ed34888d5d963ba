package eventsub

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Serph91P/streamvault/internal/metrics"
)

// State is the coordinator's bring-up state.
type State int

const (
	StateUninitialized State = iota
	StateSessionReady
	StateListenerReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSessionReady:
		return "session_ready"
	case StateListenerReady:
		return "listener_ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// sessionStarter acquires the provider session (app access token).
type sessionStarter interface {
	EnsureSession(ctx context.Context) error
}

// webhookListener starts and stops the callback endpoint.
type webhookListener interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Coordinator brings up the provider session and the webhook listener
// exactly once per process. Concurrent callers collapse onto a single
// in-flight attempt and all observe its result. After a failed attempt the
// next call starts a fresh one; after success all calls are cheap no-ops.
//
// The mutex only guards state transitions; it is never held across the
// session acquisition or the listener start, so steady-state traffic is not
// serialized behind bring-up.
type Coordinator struct {
	session  sessionStarter
	listener webhookListener

	group singleflight.Group

	mu      sync.Mutex
	state   State
	initErr error
}

func NewCoordinator(session sessionStarter, listener webhookListener) *Coordinator {
	return &Coordinator{
		session:  session,
		listener: listener,
	}
}

// Ensure guarantees the session and listener are up, performing the bring-up
// on first use. Returns nil once the coordinator reaches StateListenerReady.
func (c *Coordinator) Ensure(ctx context.Context) error {
	// Idempotent fast path after successful bring-up.
	c.mu.Lock()
	if c.state == StateListenerReady {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do("init", func() (any, error) {
		return nil, c.initialize(ctx)
	})
	return err
}

// State returns the current bring-up state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed bring-up attempt, if any.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// Shutdown stops the listener if it was started.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	started := c.state == StateListenerReady
	c.mu.Unlock()

	if !started {
		return nil
	}
	return c.listener.Shutdown(ctx)
}

func (c *Coordinator) initialize(ctx context.Context) error {
	// Another caller of the same flight may have finished already.
	c.mu.Lock()
	if c.state == StateListenerReady {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateUninitialized, nil)
	c.mu.Unlock()

	if err := c.session.EnsureSession(ctx); err != nil {
		slog.Error("EventSub bring-up failed during session acquisition", "error", err)
		c.setState(StateFailed, err)
		return err
	}
	c.setState(StateSessionReady, nil)

	if err := c.listener.Start(ctx); err != nil {
		// Never park in SESSION_READY without a listener: settle to FAILED
		// so callers see a deterministic terminal state.
		slog.Error("EventSub bring-up failed during listener start", "error", err)
		c.setState(StateFailed, err)
		return err
	}
	c.setState(StateListenerReady, nil)

	slog.Info("EventSub coordinator ready")
	return nil
}

func (c *Coordinator) setState(s State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s, err)
}

func (c *Coordinator) setStateLocked(s State, err error) {
	c.state = s
	c.initErr = err
	metrics.CoordinatorState.Set(float64(s))
}
