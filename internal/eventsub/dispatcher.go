package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/logging"
	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/twitch"
)

// seenTTL is how long message IDs are remembered for fast in-memory dedupe.
// The provider retries deliveries within minutes; the durable event log
// catches anything older.
const seenTTL = 10 * time.Minute

// Dispatcher routes verified notifications to the matching entity mutation.
// Every handler is idempotent: re-applying a duplicate delivery leaves the
// persisted state unchanged.
type Dispatcher struct {
	streamers domain.StreamerRepository
	streams   domain.StreamRepository
	events    domain.EventLogRepository
	clock     clockwork.Clock

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDispatcher(streamers domain.StreamerRepository, streams domain.StreamRepository, events domain.EventLogRepository, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		streamers: streamers,
		streams:   streams,
		events:    events,
		clock:     clock,
		seen:      make(map[string]time.Time),
	}
}

// Dispatch applies the state mutation for a notification. Duplicate message
// IDs and events for untracked channels are dropped without error. The dedupe
// markers (seen-set and event log) are only committed once the mutation has
// applied: a failed dispatch leaves no trace, so the provider's redelivery of
// the same message ID goes through the handler again.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *twitch.Message) error {
	if d.alreadySeen(msg.ID) {
		metrics.DispatcherDroppedEvents.WithLabelValues("duplicate").Inc()
		slog.Debug("Dropping duplicate notification", "message_id", msg.ID)
		return nil
	}

	first, err := d.events.Insert(ctx, domain.EventLog{
		MessageID:  msg.ID,
		EventType:  msg.SubscriptionType,
		Payload:    msg.Event,
		ReceivedAt: d.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if !first {
		d.markSeen(msg.ID)
		metrics.DispatcherDroppedEvents.WithLabelValues("duplicate").Inc()
		slog.Debug("Dropping redelivered notification", "message_id", msg.ID)
		return nil
	}

	switch msg.SubscriptionType {
	case domain.EventStreamOnline:
		err = d.handleStreamOnline(ctx, msg.Event)
	case domain.EventStreamOffline:
		err = d.handleStreamOffline(ctx, msg.Event)
	case domain.EventChannelUpdate:
		err = d.handleChannelUpdate(ctx, msg.Event)
	default:
		d.markSeen(msg.ID)
		metrics.DispatcherDroppedEvents.WithLabelValues("unknown_type").Inc()
		slog.Warn("Notification for unhandled subscription type", "subscription_type", msg.SubscriptionType, "message_id", msg.ID)
		return nil
	}

	if errors.Is(err, domain.ErrStreamerNotFound) {
		// The provider can deliver events for channels this system no
		// longer tracks. Log and drop.
		d.markSeen(msg.ID)
		metrics.DispatcherDroppedEvents.WithLabelValues("unknown_entity").Inc()
		slog.Info("Notification for untracked channel", "subscription_type", msg.SubscriptionType, "message_id", msg.ID)
		return nil
	}
	if err != nil {
		// Release the event log entry so the redelivery is not dropped as a
		// duplicate while the state change never landed.
		if delErr := d.events.Delete(ctx, msg.ID); delErr != nil {
			slog.Error("Failed to release event log entry after dispatch failure", "message_id", msg.ID, "error", delErr)
		}
		return err
	}

	d.markSeen(msg.ID)
	return nil
}

func (d *Dispatcher) handleStreamOnline(ctx context.Context, payload json.RawMessage) error {
	var event helix.EventSubStreamOnlineEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse stream.online event: %w", err)
	}

	streamer, err := d.streamers.GetByTwitchID(ctx, event.BroadcasterUserID)
	if err != nil {
		return err
	}

	if err := d.streamers.SetLive(ctx, event.BroadcasterUserID, true); err != nil {
		return fmt.Errorf("failed to mark streamer live: %w", err)
	}

	log := logging.WithBroadcaster(event.BroadcasterUserID)

	// A different stream still marked open means the offline event for it was
	// missed. Close it before opening the new session.
	if open, err := d.streams.GetOpenStream(ctx, streamer.ID); err != nil {
		return fmt.Errorf("failed to check open stream: %w", err)
	} else if open != nil && open.ID != event.ID {
		log.Warn("Closing stale open stream", "stale_stream_id", open.ID)
		if err := d.streams.CloseOpenStream(ctx, streamer.ID, event.StartedAt.Time); err != nil {
			return fmt.Errorf("failed to close stale stream: %w", err)
		}
	}

	if err := d.streams.OpenStream(ctx, domain.Stream{
		ID:         event.ID,
		StreamerID: streamer.ID,
		Type:       event.Type,
		StartedAt:  event.StartedAt.Time,
	}); err != nil {
		return fmt.Errorf("failed to open stream history row: %w", err)
	}

	log.Info("Stream went online", "stream_id", event.ID)
	return nil
}

func (d *Dispatcher) handleStreamOffline(ctx context.Context, payload json.RawMessage) error {
	var event helix.EventSubStreamOfflineEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse stream.offline event: %w", err)
	}

	streamer, err := d.streamers.GetByTwitchID(ctx, event.BroadcasterUserID)
	if err != nil {
		return err
	}

	if err := d.streamers.SetLive(ctx, event.BroadcasterUserID, false); err != nil {
		return fmt.Errorf("failed to mark streamer offline: %w", err)
	}

	if err := d.streams.CloseOpenStream(ctx, streamer.ID, d.clock.Now()); err != nil {
		return fmt.Errorf("failed to close stream history row: %w", err)
	}

	logging.WithBroadcaster(event.BroadcasterUserID).Info("Stream went offline")
	return nil
}

func (d *Dispatcher) handleChannelUpdate(ctx context.Context, payload json.RawMessage) error {
	var event helix.EventSubChannelUpdateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse channel.update event: %w", err)
	}

	if _, err := d.streamers.GetByTwitchID(ctx, event.BroadcasterUserID); err != nil {
		return err
	}

	if err := d.streamers.UpdateChannelInfo(ctx, event.BroadcasterUserID, event.Title, event.CategoryName); err != nil {
		return fmt.Errorf("failed to update channel info: %w", err)
	}

	logging.WithBroadcaster(event.BroadcasterUserID).Info("Channel info updated", "title", event.Title, "category", event.CategoryName)
	return nil
}

// alreadySeen reports whether the message ID is in the in-memory seen-set.
// Entries older than seenTTL are evicted on the way through. The ID is not
// recorded here; markSeen runs only after the delivery was fully handled.
func (d *Dispatcher) alreadySeen(messageID string) bool {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.seen {
		if now.Sub(at) > seenTTL {
			delete(d.seen, id)
		}
	}

	_, ok := d.seen[messageID]
	return ok
}

func (d *Dispatcher) markSeen(messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[messageID] = d.clock.Now()
}
