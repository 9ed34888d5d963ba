package eventsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/twitch"
)

func newTestRegistry(api *fakeAPI, streamers *memStreamers, subs *memSubscriptions) *Registry {
	return NewRegistry(api, streamers, subs, clockwork.NewFakeClock(), 3, time.Second)
}

func TestEnsureSubscribed_CreatesAllEventTypes(t *testing.T) {
	api := newFakeAPI()
	api.channels["alice"] = twitch.Channel{ID: "123", Login: "alice"}
	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice"})

	registry := newTestRegistry(api, streamers, subs)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, domain.DefaultEventTypes())
	require.NoError(t, err)

	assert.ElementsMatch(t, domain.DefaultEventTypes(), result.Subscribed)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 3, api.createCallCount())
	assert.Equal(t, 3, subs.activeCount())

	// The lazy ID resolve persisted.
	got, err := streamers.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "123", got.TwitchID)
}

func TestEnsureSubscribed_SecondCallIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.channels["alice"] = twitch.Channel{ID: "123", Login: "alice"}
	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice"})

	registry := newTestRegistry(api, streamers, subs)

	_, err := registry.EnsureSubscribed(context.Background(), alice.ID, domain.DefaultEventTypes())
	require.NoError(t, err)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, domain.DefaultEventTypes())
	require.NoError(t, err)

	assert.Empty(t, result.Subscribed)
	assert.ElementsMatch(t, domain.DefaultEventTypes(), result.Skipped)
	// No additional provider create calls, no duplicate records.
	assert.Equal(t, 3, api.createCallCount())
	assert.Equal(t, 3, subs.activeCount())
}

func TestEnsureSubscribed_UnknownChannel(t *testing.T) {
	api := newFakeAPI()
	streamers := newMemStreamers()
	ghost := streamers.add(domain.Streamer{Username: "ghost"})

	registry := newTestRegistry(api, streamers, newMemSubscriptions())

	_, err := registry.EnsureSubscribed(context.Background(), ghost.ID, domain.DefaultEventTypes())
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestEnsureSubscribed_ConflictTreatedAsSuccess(t *testing.T) {
	api := newFakeAPI()
	api.channels["alice"] = twitch.Channel{ID: "123", Login: "alice"}
	// The provider already holds an online subscription this instance does
	// not know about; its create answers 409.
	api.addRemote(twitch.RemoteSubscription{ID: "remote-existing", Type: domain.EventStreamOnline, Status: "enabled", BroadcasterUserID: "123"})

	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice", TwitchID: "123"})

	registry := newTestRegistry(api, streamers, subs)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, domain.DefaultEventTypes())
	require.NoError(t, err)

	assert.Contains(t, result.Skipped, domain.EventStreamOnline)
	assert.ElementsMatch(t, []string{domain.EventStreamOffline, domain.EventChannelUpdate}, result.Subscribed)
	assert.Empty(t, result.Failed)

	// The occupied slot got a local record pointing at the existing remote ID.
	rec, err := subs.GetActive(context.Background(), "123", domain.EventStreamOnline)
	require.NoError(t, err)
	assert.Equal(t, "remote-existing", rec.SubscriptionID)
}

func TestEnsureSubscribed_StaleViewConflictRefetches(t *testing.T) {
	api := newFakeAPI()
	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice", TwitchID: "123"})

	// First create answers conflict; by then the remote list holds the
	// winner created by a concurrent instance.
	api.createErrs[domain.EventStreamOnline] = []error{domain.ErrAlreadyExists}
	api.onConflict = []twitch.RemoteSubscription{
		{ID: "remote-winner", Type: domain.EventStreamOnline, Status: "enabled", BroadcasterUserID: "123"},
	}

	registry := newTestRegistry(api, streamers, subs)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, []string{domain.EventStreamOnline})
	require.NoError(t, err)

	assert.Empty(t, result.Subscribed)
	assert.Equal(t, []string{domain.EventStreamOnline}, result.Skipped)
	assert.Empty(t, result.Failed)

	rec, err := subs.GetActive(context.Background(), "123", domain.EventStreamOnline)
	require.NoError(t, err)
	assert.Equal(t, "remote-winner", rec.SubscriptionID)
}

func TestEnsureSubscribed_PartialFailureReported(t *testing.T) {
	api := newFakeAPI()
	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice", TwitchID: "123"})

	rejection := errors.New("the provider said no")
	api.createErrs[domain.EventChannelUpdate] = []error{rejection, rejection, rejection}

	registry := newTestRegistry(api, streamers, subs)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, domain.DefaultEventTypes())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{domain.EventStreamOnline, domain.EventStreamOffline}, result.Subscribed)
	assert.Contains(t, result.Failed, domain.EventChannelUpdate)
	assert.Equal(t, 2, subs.activeCount())
	assert.Equal(t, 1, subs.statusCount(domain.SubscriptionFailed), "exhausted creates leave a failed audit row")
}

func TestEnsureSubscribed_TransientErrorRetried(t *testing.T) {
	api := newFakeAPI()
	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice", TwitchID: "123"})

	api.createErrs[domain.EventStreamOnline] = []error{errors.New("connection reset")}

	registry := newTestRegistry(api, streamers, subs)

	result, err := registry.EnsureSubscribed(context.Background(), alice.ID, []string{domain.EventStreamOnline})
	require.NoError(t, err)

	assert.Equal(t, []string{domain.EventStreamOnline}, result.Subscribed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 2, api.createCallCount())
}

func TestDeleteAll_FailureIsolation(t *testing.T) {
	api := newFakeAPI()
	api.addRemote(twitch.RemoteSubscription{ID: "sub-a", Type: domain.EventStreamOnline, Status: "enabled", BroadcasterUserID: "1"})
	api.addRemote(twitch.RemoteSubscription{ID: "sub-b", Type: domain.EventStreamOffline, Status: "enabled", BroadcasterUserID: "1"})
	api.addRemote(twitch.RemoteSubscription{ID: "sub-c", Type: domain.EventChannelUpdate, Status: "enabled", BroadcasterUserID: "1"})
	api.deleteErrs["sub-b"] = errors.New("backend hiccup")

	registry := newTestRegistry(api, newMemStreamers(), newMemSubscriptions())

	summary, err := registry.DeleteAll(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"sub-a", "sub-c"}, summary.Deleted)
	assert.Contains(t, summary.Failed, "sub-b")
}

func TestUnsubscribeStreamer_RevokesLocallyDespiteUpstreamFailure(t *testing.T) {
	api := newFakeAPI()
	api.deleteErrs["sub-a"] = errors.New("backend hiccup")

	streamers := newMemStreamers()
	subs := newMemSubscriptions()
	alice := streamers.add(domain.Streamer{Username: "alice", TwitchID: "123"})
	require.NoError(t, subs.Create(context.Background(), domain.SubscriptionRecord{
		StreamerID: alice.ID, TwitchID: "123", EventType: domain.EventStreamOnline,
		SubscriptionID: "sub-a", Status: domain.SubscriptionActive,
	}))

	registry := newTestRegistry(api, streamers, subs)

	require.NoError(t, registry.UnsubscribeStreamer(context.Background(), alice.ID))
	assert.Equal(t, 0, subs.activeCount())
}

func TestHandleRevocation(t *testing.T) {
	subs := newMemSubscriptions()
	require.NoError(t, subs.Create(context.Background(), domain.SubscriptionRecord{
		TwitchID: "123", EventType: domain.EventStreamOnline,
		SubscriptionID: "sub-a", Status: domain.SubscriptionActive,
	}))

	registry := newTestRegistry(newFakeAPI(), newMemStreamers(), subs)

	require.NoError(t, registry.HandleRevocation(context.Background(), "sub-a"))
	assert.Equal(t, 0, subs.activeCount())

	// A revocation for an unknown subscription is logged, not an error.
	assert.NoError(t, registry.HandleRevocation(context.Background(), "sub-never-seen"))
}

func TestReconcile_RevokesStaleRecords(t *testing.T) {
	api := newFakeAPI()
	api.addRemote(twitch.RemoteSubscription{ID: "sub-live", Type: domain.EventStreamOnline, Status: "enabled", BroadcasterUserID: "123"})

	subs := newMemSubscriptions()
	require.NoError(t, subs.Create(context.Background(), domain.SubscriptionRecord{
		TwitchID: "123", EventType: domain.EventStreamOnline,
		SubscriptionID: "sub-live", Status: domain.SubscriptionActive,
	}))
	require.NoError(t, subs.Create(context.Background(), domain.SubscriptionRecord{
		TwitchID: "123", EventType: domain.EventStreamOffline,
		SubscriptionID: "sub-gone", Status: domain.SubscriptionActive,
	}))

	registry := newTestRegistry(api, newMemStreamers(), subs)

	require.NoError(t, registry.Reconcile(context.Background()))
	assert.Equal(t, 1, subs.activeCount())

	_, err := subs.GetActive(context.Background(), "123", domain.EventStreamOffline)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
