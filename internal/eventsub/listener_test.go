package eventsub

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/streamvault/internal/twitch"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testWebhookHandler() *WebhookHandler {
	dispatcher := NewDispatcher(newMemStreamers(), newMemStreams(), newMemEventLog(), clockwork.NewFakeClock())
	return NewWebhookHandler(twitch.NewReceiver(handlerTestSecret), dispatcher, &recordingSink{})
}

func TestListener_StartServesHealthEndpoint(t *testing.T) {
	port := freePort(t)
	l := NewListener(port, "/webhook/callback", testWebhookHandler(), 5*time.Second)

	require.NoError(t, l.Start(context.Background()))
	defer func() { _ = l.Shutdown(context.Background()) }()

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/live", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListener_ReusesHealthyListenerOnSamePort(t *testing.T) {
	port := freePort(t)
	first := NewListener(port, "/webhook/callback", testWebhookHandler(), 5*time.Second)
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Shutdown(context.Background()) }()

	second := NewListener(port, "/webhook/callback", testWebhookHandler(), 5*time.Second)
	require.NoError(t, second.Start(context.Background()), "healthy occupant counts as success")

	// Shutting the reused listener down must not stop the real one.
	require.NoError(t, second.Shutdown(context.Background()))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/live", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListener_BindConflictWithUnhealthyOccupant(t *testing.T) {
	port := freePort(t)

	// Occupy the port with something that never answers HTTP.
	squatter, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	require.NoError(t, err)
	defer squatter.Close()

	l := NewListener(port, "/webhook/callback", testWebhookHandler(), 500*time.Millisecond)
	err = l.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenerBindConflict)
}
