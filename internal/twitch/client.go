package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"

	"github.com/Serph91P/streamvault/internal/domain"
)

const apiCallTimeout = 15 * time.Second

// Channel is a resolved Twitch channel.
type Channel struct {
	ID          string
	Login       string
	DisplayName string
}

// RemoteSubscription is one entry of the provider's authoritative
// subscription list.
type RemoteSubscription struct {
	ID                string
	Type              string
	Status            string
	BroadcasterUserID string
	CallbackURL       string
}

// Enabled reports whether the provider considers the subscription live.
// Freshly created webhook subscriptions sit in pending until the handshake
// completes; both count as occupied for dedup purposes.
func (s RemoteSubscription) Enabled() bool {
	return s.Status == helix.EventSubStatusEnabled || s.Status == helix.EventSubStatusPending
}

// Client wraps a helix client with app-token authentication for user lookup
// and EventSub subscription CRUD. All calls carry a timeout so a hung
// upstream never blocks callers indefinitely.
type Client struct {
	helix       *helix.Client
	tokens      *AppTokenSource
	callbackURL string
	secret      string
}

func NewClient(clientID, clientSecret, callbackURL, secret string, clock clockwork.Clock) (*Client, error) {
	return newClient(helixOptions(clientID, clientSecret), callbackURL, secret, clock)
}

// helixOptions builds the helix client options. The HTTP client carries its
// own timeout: helix binds context.Background() internally, so a per-call
// context alone would never reach the request.
func helixOptions(clientID, clientSecret string) *helix.Options {
	return &helix.Options{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: apiCallTimeout},
	}
}

func newClient(opts *helix.Options, callbackURL, secret string, clock clockwork.Clock) (*Client, error) {
	hc, err := helix.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}

	return &Client{
		helix:       hc,
		tokens:      NewAppTokenSource(hc, clock),
		callbackURL: callbackURL,
		secret:      secret,
	}, nil
}

// EnsureSession acquires the app access token if not already held.
func (c *Client) EnsureSession(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// GetUserByLogin resolves a channel by its login name. Returns
// domain.ErrChannelNotFound when no channel matches.
func (c *Client) GetUserByLogin(ctx context.Context, login string) (*Channel, error) {
	var resp *helix.UsersResponse
	err := c.withSession(ctx, func() (*helix.ResponseCommon, error) {
		var err error
		resp, err = c.helix.GetUsers(&helix.UsersParams{Logins: []string{login}})
		if err != nil {
			return nil, err
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", login, err)
	}

	if len(resp.Data.Users) == 0 {
		return nil, fmt.Errorf("login %q: %w", login, domain.ErrChannelNotFound)
	}

	user := resp.Data.Users[0]
	return &Channel{ID: user.ID, Login: user.Login, DisplayName: user.DisplayName}, nil
}

// ListSubscriptions fetches the provider's full subscription list, following
// pagination. The remote list is the source of truth for what is subscribed.
func (c *Client) ListSubscriptions(ctx context.Context) ([]RemoteSubscription, error) {
	var subs []RemoteSubscription
	cursor := ""

	for {
		var resp *helix.EventSubSubscriptionsResponse
		err := c.withSession(ctx, func() (*helix.ResponseCommon, error) {
			var err error
			resp, err = c.helix.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{After: cursor})
			if err != nil {
				return nil, err
			}
			return &resp.ResponseCommon, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list eventsub subscriptions: %w", err)
		}

		for _, sub := range resp.Data.EventSubSubscriptions {
			subs = append(subs, RemoteSubscription{
				ID:                sub.ID,
				Type:              sub.Type,
				Status:            sub.Status,
				BroadcasterUserID: sub.Condition.BroadcasterUserID,
				CallbackURL:       sub.Transport.Callback,
			})
		}

		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return subs, nil
		}
	}
}

// CreateSubscription registers a webhook subscription for (broadcaster,
// eventType) pointing at the configured callback URL. A 409 from the
// provider maps to domain.ErrAlreadyExists.
func (c *Client) CreateSubscription(ctx context.Context, eventType, broadcasterUserID string) (*RemoteSubscription, error) {
	var resp *helix.EventSubSubscriptionsResponse
	err := c.withSession(ctx, func() (*helix.ResponseCommon, error) {
		var err error
		resp, err = c.helix.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:    eventType,
			Version: "1",
			Condition: helix.EventSubCondition{
				BroadcasterUserID: broadcasterUserID,
			},
			Transport: helix.EventSubTransport{
				Method:   "webhook",
				Callback: c.callbackURL,
				Secret:   c.secret,
			},
		})
		if err != nil {
			return nil, err
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eventsub subscription: %w", err)
	}

	if len(resp.Data.EventSubSubscriptions) == 0 {
		return nil, fmt.Errorf("%w: empty subscription response", domain.ErrProviderRejected)
	}

	sub := resp.Data.EventSubSubscriptions[0]
	slog.Info("Created EventSub subscription", "subscription_id", sub.ID, "type", eventType, "broadcaster_user_id", broadcasterUserID)
	return &RemoteSubscription{
		ID:                sub.ID,
		Type:              sub.Type,
		Status:            sub.Status,
		BroadcasterUserID: broadcasterUserID,
		CallbackURL:       c.callbackURL,
	}, nil
}

// DeleteSubscription removes a subscription by its provider ID. Deleting a
// subscription that is already gone (404) is not an error.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	err := c.withSession(ctx, func() (*helix.ResponseCommon, error) {
		resp, err := c.helix.RemoveEventSubSubscription(subscriptionID)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.StatusCode = http.StatusNoContent
		}
		return &resp.ResponseCommon, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete eventsub subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// withSession runs a helix call with a valid app token, retrying once after
// re-acquisition when the provider reports the token invalid (refresh-on-401).
// The returned ResponseCommon is inspected for the shared error mapping:
// 409 → domain.ErrAlreadyExists, other 4xx/5xx → domain.ErrProviderRejected.
func (c *Client) withSession(ctx context.Context, call func() (*helix.ResponseCommon, error)) error {
	ctx, cancel := context.WithTimeout(ctx, apiCallTimeout)
	defer cancel()

	if _, err := c.tokens.Token(ctx); err != nil {
		return err
	}

	common, err := call()
	if err != nil {
		return err
	}

	if common.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		if _, err := c.tokens.Token(ctx); err != nil {
			return err
		}
		common, err = call()
		if err != nil {
			return err
		}
	}

	switch {
	case common.StatusCode == http.StatusConflict:
		return domain.ErrAlreadyExists
	case common.StatusCode == http.StatusUnauthorized:
		return &AuthError{StatusCode: common.StatusCode, Err: fmt.Errorf("%s: %s", common.Error, common.ErrorMessage)}
	case common.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderRejected, common.StatusCode, common.ErrorMessage)
	}
	return nil
}
