package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/logging"
)

// bootstrapper guarantees session and listener are up before provider calls.
type bootstrapper interface {
	Ensure(ctx context.Context) error
}

// subscriptionManager is the subset of Registry the service orchestrates.
type subscriptionManager interface {
	EnsureSubscribed(ctx context.Context, streamerID uuid.UUID, eventTypes []string) (*EnsureResult, error)
	UnsubscribeStreamer(ctx context.Context, streamerID uuid.UUID) error
}

// Service implements the use cases behind the API and the background jobs:
// track a streamer, resubscribe everything after drift, untrack a streamer.
type Service struct {
	coordinator bootstrapper
	registry    subscriptionManager
	streamers   domain.StreamerRepository
}

func NewService(coordinator bootstrapper, registry subscriptionManager, streamers domain.StreamerRepository) *Service {
	return &Service{
		coordinator: coordinator,
		registry:    registry,
		streamers:   streamers,
	}
}

// TrackStreamer creates the streamer record if needed and ensures its
// EventSub subscriptions exist. Safe to run repeatedly for the same
// username.
func (s *Service) TrackStreamer(ctx context.Context, username string) (string, error) {
	if err := s.coordinator.Ensure(ctx); err != nil {
		return "", fmt.Errorf("eventsub bring-up failed: %w", err)
	}

	streamer, err := s.streamers.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		streamer, err = s.streamers.Create(ctx, username)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load streamer %q: %w", username, err)
	}

	result, err := s.registry.EnsureSubscribed(ctx, streamer.ID, domain.DefaultEventTypes())
	if err != nil {
		return "", err
	}
	if len(result.Failed) > 0 {
		return "", fmt.Errorf("failed to subscribe %q to %d of %d event types: %v",
			username, len(result.Failed), len(domain.DefaultEventTypes()), result.Failed)
	}

	slog.Info("Streamer tracked", "username", username, "subscribed", result.Subscribed, "skipped", result.Skipped)
	return fmt.Sprintf("Streamer %s added successfully", username), nil
}

// ResubscribeAll re-ensures subscriptions for every tracked streamer.
// Individual failures are collected; one broken streamer never aborts the
// rest.
func (s *Service) ResubscribeAll(ctx context.Context) (string, error) {
	if err := s.coordinator.Ensure(ctx); err != nil {
		return "", fmt.Errorf("eventsub bring-up failed: %w", err)
	}

	streamers, err := s.streamers.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list streamers: %w", err)
	}

	failures := 0
	for _, streamer := range streamers {
		result, err := s.registry.EnsureSubscribed(ctx, streamer.ID, domain.DefaultEventTypes())
		if err != nil {
			failures++
			slog.Error("Resubscribe failed for streamer", "username", streamer.Username, "error", err)
			continue
		}
		if len(result.Failed) > 0 {
			failures++
			slog.Error("Resubscribe partially failed for streamer", "username", streamer.Username, "failed", result.Failed)
		}
	}

	if failures > 0 {
		return "", fmt.Errorf("resubscribe failed for %d of %d streamers", failures, len(streamers))
	}

	slog.Info("Resubscribed all streamers", "count", len(streamers))
	return fmt.Sprintf("Resubscribed %d streamers", len(streamers)), nil
}

// UntrackStreamer removes the streamer's subscriptions (best effort) and
// then deletes the record.
func (s *Service) UntrackStreamer(ctx context.Context, streamerID uuid.UUID) error {
	if err := s.coordinator.Ensure(ctx); err != nil {
		return fmt.Errorf("eventsub bring-up failed: %w", err)
	}

	if err := s.registry.UnsubscribeStreamer(ctx, streamerID); err != nil {
		logging.WithStreamer(streamerID.String()).Warn("Failed to clean up subscriptions before delete", "error", err)
	}

	return s.streamers.Delete(ctx, streamerID)
}
