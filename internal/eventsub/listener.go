package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ErrListenerBindConflict means the callback port is bound by something that
// does not answer our health probe, so it cannot be an earlier healthy
// instance of this listener.
var ErrListenerBindConflict = errors.New("listener port bound by an unhealthy process")

const probeInterval = 250 * time.Millisecond

// Listener is the webhook callback endpoint: a dedicated HTTP listener on a
// fixed port, separate from the main API server, whose accept loop handles
// provider deliveries. At most one instance runs per process; it is started
// once and never restarted while healthy.
type Listener struct {
	echo        *echo.Echo
	port        int
	path        string
	bindTimeout time.Duration

	// external is set when the port was already bound by a healthy listener,
	// in which case this instance serves nothing and shutdown is a no-op.
	external bool
}

func NewListener(port int, path string, handler *WebhookHandler, bindTimeout time.Duration) *Listener {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/live", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.POST(path, handler.HandleCallback)

	return &Listener{
		echo:        e,
		port:        port,
		path:        path,
		bindTimeout: bindTimeout,
	}
}

// Start binds the callback port and waits, bounded by the configured bind
// timeout, until the endpoint answers its own health probe. A port already
// bound by a healthy listener is tolerated as a no-op: duplicate bring-up
// calls and process restarts can race an existing bound listener.
func (l *Listener) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.bindTimeout)
	defer cancel()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", l.port))
	if err != nil {
		if !errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("failed to bind webhook listener port %d: %w", l.port, err)
		}
		if probeErr := l.probe(ctx); probeErr != nil {
			return fmt.Errorf("port %d: %w: %v", l.port, ErrListenerBindConflict, probeErr)
		}
		slog.Warn("Webhook listener port already bound by a healthy listener, reusing it", "port", l.port)
		l.external = true
		return nil
	}

	l.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.echo.Start("")
	}()

	// Wait until the accept loop actually serves requests. Never retry the
	// bind silently: if the window elapses, surface the error.
	probeTicker := time.NewTicker(probeInterval)
	defer probeTicker.Stop()

	for {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("webhook listener failed to start: %w", err)
			}
			return fmt.Errorf("webhook listener stopped before becoming ready")
		case <-ctx.Done():
			_ = l.echo.Close()
			return fmt.Errorf("webhook listener not ready within %s: %w", l.bindTimeout, ctx.Err())
		case <-probeTicker.C:
			if err := l.probe(ctx); err == nil {
				slog.Info("Webhook listener ready", "port", l.port, "path", l.path)
				return nil
			}
		}
	}
}

// Shutdown stops the listener. A reused external listener is left alone.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.external {
		return nil
	}
	return l.echo.Shutdown(ctx)
}

func (l *Listener) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/live", l.port), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected probe status %d", resp.StatusCode)
	}
	return nil
}
