package eventsub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/twitch"
)

const webhookProcessingTimeout = 5 * time.Second

// revocationSink records upstream-initiated subscription cancellations.
type revocationSink interface {
	HandleRevocation(ctx context.Context, subscriptionID string) error
}

// WebhookHandler is the HTTP handler behind the callback path. It verifies
// each delivery, answers handshakes, and forwards notifications to the
// dispatcher. Processing runs under its own timeout so a slow lookup never
// stalls the listener's accept loop.
type WebhookHandler struct {
	receiver   *twitch.Receiver
	dispatcher *Dispatcher
	registry   revocationSink
}

func NewWebhookHandler(receiver *twitch.Receiver, dispatcher *Dispatcher, registry revocationSink) *WebhookHandler {
	return &WebhookHandler{
		receiver:   receiver,
		dispatcher: dispatcher,
		registry:   registry,
	}
}

func (h *WebhookHandler) HandleCallback(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	msg, err := h.receiver.Verify(c.Request().Header, body)
	if err != nil {
		var sigErr *twitch.SignatureError
		if errors.As(err, &sigErr) {
			metrics.WebhookSignatureFailures.Inc()
			slog.Warn("Rejected webhook delivery with bad signature", "message_id", sigErr.MessageID)
			return c.NoContent(http.StatusForbidden)
		}
		slog.Warn("Rejected malformed webhook delivery", "error", err)
		return c.NoContent(http.StatusBadRequest)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), webhookProcessingTimeout)
	defer cancel()

	switch msg.Type {
	case twitch.MessageVerification:
		// Handshake: echo the challenge verbatim as plain text.
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(msg.Type), "ok").Inc()
		slog.Info("Answered EventSub handshake", "subscription_id", msg.SubscriptionID, "subscription_type", msg.SubscriptionType)
		return c.String(http.StatusOK, msg.Challenge)

	case twitch.MessageNotification:
		if err := h.dispatcher.Dispatch(ctx, msg); err != nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(msg.Type), "error").Inc()
			slog.Error("Failed to dispatch notification", "message_id", msg.ID, "subscription_type", msg.SubscriptionType, "error", err)
			// Still 204: the provider retries non-2xx responses and revokes
			// the subscription after enough of them.
			return c.NoContent(http.StatusNoContent)
		}
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(msg.Type), "ok").Inc()
		return c.NoContent(http.StatusNoContent)

	case twitch.MessageRevocation:
		metrics.WebhookDeliveriesTotal.WithLabelValues(string(msg.Type), "ok").Inc()
		metrics.RevocationsTotal.Inc()
		slog.Warn("EventSub subscription revoked upstream", "subscription_id", msg.SubscriptionID, "subscription_type", msg.SubscriptionType)
		if err := h.registry.HandleRevocation(ctx, msg.SubscriptionID); err != nil {
			slog.Error("Failed to record revocation", "subscription_id", msg.SubscriptionID, "error", err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	return c.NoContent(http.StatusBadRequest)
}
