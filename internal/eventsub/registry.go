package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/retry"
	"github.com/Serph91P/streamvault/internal/twitch"
)

// ErrCreateTimeout is returned when every create attempt for a subscription
// ran into its per-attempt deadline.
var ErrCreateTimeout = errors.New("subscription create timed out")

// apiClient is the subset of the Twitch client used by the Registry.
type apiClient interface {
	GetUserByLogin(ctx context.Context, login string) (*twitch.Channel, error)
	ListSubscriptions(ctx context.Context) ([]twitch.RemoteSubscription, error)
	CreateSubscription(ctx context.Context, eventType, broadcasterUserID string) (*twitch.RemoteSubscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// EnsureResult reports the per-event-type outcome of EnsureSubscribed.
type EnsureResult struct {
	Subscribed []string          // event types newly subscribed upstream
	Skipped    []string          // event types that were already active
	Failed     map[string]string // event type -> failure reason
}

// DeleteSummary reports the per-item outcome of DeleteAll.
type DeleteSummary struct {
	Deleted []string          // provider subscription IDs removed
	Failed  map[string]string // provider subscription ID -> failure reason
}

// Registry owns the local view of upstream EventSub subscriptions and keeps
// it consistent with the provider's authoritative list.
type Registry struct {
	api       apiClient
	streamers domain.StreamerRepository
	subs      domain.SubscriptionRepository
	clock     clockwork.Clock

	createPolicy retry.Policy
}

func NewRegistry(api apiClient, streamers domain.StreamerRepository, subs domain.SubscriptionRepository, clock clockwork.Clock, maxAttempts int, attemptTimeout time.Duration) *Registry {
	return &Registry{
		api:       api,
		streamers: streamers,
		subs:      subs,
		clock:     clock,
		createPolicy: retry.Policy{
			MaxAttempts:    maxAttempts,
			AttemptTimeout: attemptTimeout,
			OnRetry: func(attempt int, err error) {
				metrics.SubscriptionRetryAttempts.Inc()
				slog.Warn("Retrying subscription create", "attempt", attempt, "error", err)
			},
		},
	}
}

// EnsureSubscribed makes sure an active upstream subscription exists for each
// requested event type of the streamer. Existing subscriptions are skipped,
// never recreated; missing ones are created under the retry policy. The
// operation is idempotent: a second identical call issues no provider create
// calls and leaves the same records in place.
func (r *Registry) EnsureSubscribed(ctx context.Context, streamerID uuid.UUID, eventTypes []string) (*EnsureResult, error) {
	streamer, err := r.streamers.GetByID(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load streamer: %w", err)
	}

	// External ID is resolved lazily on first use.
	if streamer.TwitchID == "" {
		channel, err := r.api.GetUserByLogin(ctx, streamer.Username)
		if err != nil {
			return nil, err
		}
		if err := r.streamers.SetTwitchID(ctx, streamer.ID, channel.ID); err != nil {
			return nil, fmt.Errorf("failed to persist resolved twitch id: %w", err)
		}
		streamer.TwitchID = channel.ID
	}

	occupied, err := r.remoteSubscriptionsFor(ctx, streamer.TwitchID)
	if err != nil {
		return nil, err
	}

	result := &EnsureResult{Failed: make(map[string]string)}
	var newRecords []domain.SubscriptionRecord

	for _, eventType := range eventTypes {
		if remote, ok := occupied[eventType]; ok {
			result.Skipped = append(result.Skipped, eventType)
			if rec := r.recordIfMissing(ctx, streamer, remote); rec != nil {
				newRecords = append(newRecords, *rec)
			}
			continue
		}

		remote, err := r.createWithRetry(ctx, eventType, streamer.TwitchID)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// The local view was stale. Re-fetch the authoritative list and
			// skip; retrying the create would fail identically.
			metrics.SubscriptionCreatesTotal.WithLabelValues("already_exists").Inc()
			occupied, err = r.remoteSubscriptionsFor(ctx, streamer.TwitchID)
			if err != nil {
				return nil, err
			}
			result.Skipped = append(result.Skipped, eventType)
			if existing, ok := occupied[eventType]; ok {
				if rec := r.recordIfMissing(ctx, streamer, existing); rec != nil {
					newRecords = append(newRecords, *rec)
				}
			}
			continue
		}
		if err != nil {
			result.Failed[eventType] = err.Error()
			// Keep an audit row for the exhausted create. Failed rows never
			// collide with the active uniqueness constraint.
			newRecords = append(newRecords, domain.SubscriptionRecord{
				ID:         uuid.New(),
				StreamerID: streamer.ID,
				TwitchID:   streamer.TwitchID,
				EventType:  eventType,
				Status:     domain.SubscriptionFailed,
				CreatedAt:  r.clock.Now(),
			})
			continue
		}

		metrics.SubscriptionCreatesTotal.WithLabelValues("created").Inc()
		result.Subscribed = append(result.Subscribed, eventType)
		newRecords = append(newRecords, domain.SubscriptionRecord{
			ID:             uuid.New(),
			StreamerID:     streamer.ID,
			TwitchID:       streamer.TwitchID,
			EventType:      eventType,
			SubscriptionID: remote.ID,
			Status:         domain.SubscriptionActive,
			CreatedAt:      r.clock.Now(),
		})
	}

	if len(newRecords) > 0 {
		if err := r.subs.CreateBatch(ctx, newRecords); err != nil {
			return nil, fmt.Errorf("failed to persist subscription records: %w", err)
		}
	}

	return result, nil
}

// DeleteAll enumerates the provider's subscription list and deletes every
// entry independently: one failed delete never aborts the rest. Matching
// local records are flipped to revoked, keeping their history.
func (r *Registry) DeleteAll(ctx context.Context) (*DeleteSummary, error) {
	remote, err := r.api.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	summary := &DeleteSummary{Failed: make(map[string]string)}
	for _, sub := range remote {
		if err := r.api.DeleteSubscription(ctx, sub.ID); err != nil {
			summary.Failed[sub.ID] = err.Error()
			slog.Warn("Failed to delete subscription", "subscription_id", sub.ID, "error", err)
			continue
		}
		summary.Deleted = append(summary.Deleted, sub.ID)
		r.markRevokedQuiet(ctx, sub.ID)
	}

	slog.Info("Deleted upstream subscriptions", "deleted", len(summary.Deleted), "failed", len(summary.Failed))
	return summary, nil
}

// UnsubscribeStreamer removes a streamer's upstream subscriptions before the
// streamer record itself is deleted. Best effort: upstream delete failures
// are logged, the local records are revoked regardless.
func (r *Registry) UnsubscribeStreamer(ctx context.Context, streamerID uuid.UUID) error {
	records, err := r.subs.ListByStreamer(ctx, streamerID)
	if err != nil {
		return fmt.Errorf("failed to list subscription records: %w", err)
	}

	for _, rec := range records {
		if rec.Status != domain.SubscriptionActive {
			continue
		}
		if err := r.api.DeleteSubscription(ctx, rec.SubscriptionID); err != nil {
			slog.Warn("Failed to delete subscription upstream, revoking locally anyway", "subscription_id", rec.SubscriptionID, "error", err)
		}
	}

	return r.subs.MarkRevokedByStreamer(ctx, streamerID, r.clock.Now())
}

// HandleRevocation flips the matching record to revoked after the provider
// unilaterally cancelled a subscription.
func (r *Registry) HandleRevocation(ctx context.Context, subscriptionID string) error {
	err := r.subs.MarkRevoked(ctx, subscriptionID, r.clock.Now())
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		slog.Warn("Revocation for unknown subscription", "subscription_id", subscriptionID)
		return nil
	}
	return err
}

// Reconcile re-derives the local active set from the provider's list: local
// records whose upstream subscription no longer exists are revoked. The
// remote list is authoritative; the local cache may be stale.
func (r *Registry) Reconcile(ctx context.Context) error {
	remote, err := r.api.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	live := make(map[string]bool, len(remote))
	for _, sub := range remote {
		if sub.Enabled() {
			live[sub.ID] = true
		}
	}

	records, err := r.subs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local subscription records: %w", err)
	}

	revoked := 0
	for _, rec := range records {
		if live[rec.SubscriptionID] {
			continue
		}
		if err := r.subs.MarkRevoked(ctx, rec.SubscriptionID, r.clock.Now()); err != nil {
			slog.Error("Failed to revoke stale subscription record", "subscription_id", rec.SubscriptionID, "error", err)
			continue
		}
		revoked++
	}

	metrics.ActiveSubscriptions.Set(float64(len(records) - revoked))
	if revoked > 0 {
		slog.Info("Reconciled subscription records", "revoked", revoked, "active", len(records)-revoked)
	}
	return nil
}

func (r *Registry) createWithRetry(ctx context.Context, eventType, twitchID string) (*twitch.RemoteSubscription, error) {
	remote, err := retry.Do(ctx, r.createPolicy, classifyCreateError, func(ctx context.Context) (*twitch.RemoteSubscription, error) {
		return r.api.CreateSubscription(ctx, eventType, twitchID)
	})
	if err == nil {
		return remote, nil
	}

	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		return nil, domain.ErrAlreadyExists
	case retry.IsAttemptTimeout(err):
		metrics.SubscriptionCreatesTotal.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrCreateTimeout, r.createPolicy.MaxAttempts, err)
	default:
		metrics.SubscriptionCreatesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
}

// classifyCreateError: conflicts and rejections stop immediately, everything
// else (timeouts, transient network failures) is retried up to the attempt
// cap with no backoff. The fixed-attempt immediate retry is deliberate.
func classifyCreateError(err error) retry.Action {
	var authErr *twitch.AuthError
	switch {
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrProviderRejected),
		errors.As(err, &authErr):
		return retry.Stop
	default:
		return retry.Retry
	}
}

func (r *Registry) remoteSubscriptionsFor(ctx context.Context, twitchID string) (map[string]twitch.RemoteSubscription, error) {
	remote, err := r.api.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	occupied := make(map[string]twitch.RemoteSubscription)
	for _, sub := range remote {
		if sub.BroadcasterUserID == twitchID && sub.Enabled() {
			occupied[sub.Type] = sub
		}
	}
	return occupied, nil
}

// recordIfMissing returns a record for an upstream subscription that has no
// local active row (e.g. the row was lost in a crash between create and
// persist). Nil when the local view already matches.
func (r *Registry) recordIfMissing(ctx context.Context, streamer *domain.Streamer, remote twitch.RemoteSubscription) *domain.SubscriptionRecord {
	existing, err := r.subs.GetActive(ctx, streamer.TwitchID, remote.Type)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		slog.Error("Failed to check local subscription record", "twitch_id", streamer.TwitchID, "event_type", remote.Type, "error", err)
		return nil
	}
	if existing != nil {
		return nil
	}

	return &domain.SubscriptionRecord{
		ID:             uuid.New(),
		StreamerID:     streamer.ID,
		TwitchID:       streamer.TwitchID,
		EventType:      remote.Type,
		SubscriptionID: remote.ID,
		Status:         domain.SubscriptionActive,
		CreatedAt:      r.clock.Now(),
	}
}

func (r *Registry) markRevokedQuiet(ctx context.Context, subscriptionID string) {
	err := r.subs.MarkRevoked(ctx, subscriptionID, r.clock.Now())
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		slog.Error("Failed to revoke local subscription record", "subscription_id", subscriptionID, "error", err)
	}
}
