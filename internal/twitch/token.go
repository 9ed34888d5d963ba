package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nicklaw5/helix/v2"

	"github.com/Serph91P/streamvault/internal/metrics"
	"github.com/Serph91P/streamvault/internal/retry"
)

// refreshMargin is how long before expiry a token is considered stale.
const refreshMargin = 60 * time.Second

// AuthError is a permanent authentication failure. It is not retried;
// the credentials themselves are wrong.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// appTokenRequester is the subset of the helix client used by AppTokenSource.
type appTokenRequester interface {
	RequestAppAccessToken(scopes []string) (*helix.AppAccessTokenResponse, error)
	SetAppAccessToken(token string)
}

// AppTokenSource maintains the app access token (client credentials grant).
// It refreshes the token before expiry and collapses concurrent refreshes to
// a single upstream call. Transient network failures are retried with
// exponential backoff; invalid-credential responses fail permanently.
type AppTokenSource struct {
	mu     sync.Mutex
	client appTokenRequester
	clock  clockwork.Clock

	token  string
	expiry time.Time
}

func NewAppTokenSource(client appTokenRequester, clock clockwork.Clock) *AppTokenSource {
	return &AppTokenSource{client: client, clock: clock}
}

// Token returns a valid app access token, acquiring or refreshing it if
// needed. The lock is held across the acquisition so concurrent callers
// observe a single in-flight request.
func (ts *AppTokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.clock.Now().Add(refreshMargin).Before(ts.expiry) {
		return ts.token, nil
	}

	return ts.acquireLocked(ctx)
}

// Invalidate discards the cached token. Called when the API reports 401 so
// the next Token call acquires a fresh one.
func (ts *AppTokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiry = time.Time{}
}

func (ts *AppTokenSource) acquireLocked(ctx context.Context) (string, error) {
	policy := retry.Policy{
		MaxAttempts:    5,
		AttemptTimeout: 10 * time.Second,
		Backoff:        500 * time.Millisecond,
	}

	resp, err := retry.Do(ctx, policy, classifyTokenError, func(ctx context.Context) (*helix.AppAccessTokenResponse, error) {
		resp, err := ts.client.RequestAppAccessToken(nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s: %s", resp.Error, resp.ErrorMessage)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, resp.ErrorMessage)
		}
		return resp, nil
	})
	if err != nil {
		if _, ok := authError(err); ok {
			metrics.TokenAcquisitionsTotal.WithLabelValues("auth_error").Inc()
		} else {
			metrics.TokenAcquisitionsTotal.WithLabelValues("transient_error").Inc()
		}
		return "", err
	}

	ts.token = resp.Data.AccessToken
	ts.expiry = ts.clock.Now().Add(time.Duration(resp.Data.ExpiresIn) * time.Second)
	ts.client.SetAppAccessToken(ts.token)
	metrics.TokenAcquisitionsTotal.WithLabelValues("success").Inc()

	return ts.token, nil
}

func classifyTokenError(err error) retry.Action {
	if _, ok := authError(err); ok {
		return retry.Stop
	}
	return retry.Retry
}

func authError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
