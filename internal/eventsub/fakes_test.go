package eventsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Serph91P/streamvault/internal/domain"
	"github.com/Serph91P/streamvault/internal/twitch"
)

// memStreamers is an in-memory domain.StreamerRepository.
type memStreamers struct {
	mu        sync.Mutex
	streamers map[uuid.UUID]*domain.Streamer

	// setLiveErrs are consumed one per SetLive call before the write applies.
	setLiveErrs []error
}

func newMemStreamers() *memStreamers {
	return &memStreamers{streamers: make(map[uuid.UUID]*domain.Streamer)}
}

func (m *memStreamers) add(s domain.Streamer) *domain.Streamer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.streamers[s.ID] = &s
	return &s
}

func (m *memStreamers) Create(_ context.Context, username string) (*domain.Streamer, error) {
	return m.add(domain.Streamer{Username: username, CreatedAt: time.Now()}), nil
}

func (m *memStreamers) GetByID(_ context.Context, id uuid.UUID) (*domain.Streamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streamers[id]
	if !ok {
		return nil, domain.ErrStreamerNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memStreamers) GetByTwitchID(_ context.Context, twitchID string) (*domain.Streamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streamers {
		if s.TwitchID == twitchID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *memStreamers) GetByUsername(_ context.Context, username string) (*domain.Streamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streamers {
		if s.Username == username {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *memStreamers) List(_ context.Context) ([]domain.Streamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Streamer
	for _, s := range m.streamers {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStreamers) SetTwitchID(_ context.Context, id uuid.UUID, twitchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streamers[id]
	if !ok {
		return domain.ErrStreamerNotFound
	}
	s.TwitchID = twitchID
	return nil
}

func (m *memStreamers) SetLive(_ context.Context, twitchID string, live bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.setLiveErrs) > 0 {
		err := m.setLiveErrs[0]
		m.setLiveErrs = m.setLiveErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, s := range m.streamers {
		if s.TwitchID == twitchID {
			s.IsLive = live
			return nil
		}
	}
	return domain.ErrStreamerNotFound
}

func (m *memStreamers) UpdateChannelInfo(_ context.Context, twitchID, title, gameName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streamers {
		if s.TwitchID == twitchID {
			s.StreamTitle = title
			s.GameName = gameName
			return nil
		}
	}
	return domain.ErrStreamerNotFound
}

func (m *memStreamers) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streamers[id]; !ok {
		return domain.ErrStreamerNotFound
	}
	delete(m.streamers, id)
	return nil
}

// memSubscriptions is an in-memory domain.SubscriptionRepository.
type memSubscriptions struct {
	mu      sync.Mutex
	records []domain.SubscriptionRecord
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{}
}

func (m *memSubscriptions) Create(_ context.Context, rec domain.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memSubscriptions) CreateBatch(ctx context.Context, recs []domain.SubscriptionRecord) error {
	for _, rec := range recs {
		if err := m.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *memSubscriptions) GetActive(_ context.Context, twitchID, eventType string) (*domain.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		rec := m.records[i]
		if rec.TwitchID == twitchID && rec.EventType == eventType && rec.Status == domain.SubscriptionActive {
			return &rec, nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (m *memSubscriptions) ListActive(_ context.Context) ([]domain.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SubscriptionRecord
	for _, rec := range m.records {
		if rec.Status == domain.SubscriptionActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSubscriptions) ListByStreamer(_ context.Context, streamerID uuid.UUID) ([]domain.SubscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SubscriptionRecord
	for _, rec := range m.records {
		if rec.StreamerID == streamerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memSubscriptions) MarkRevoked(_ context.Context, subscriptionID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		rec := &m.records[i]
		if rec.SubscriptionID == subscriptionID && rec.Status == domain.SubscriptionActive {
			rec.Status = domain.SubscriptionRevoked
			rec.RevokedAt = &revokedAt
			return nil
		}
	}
	return domain.ErrSubscriptionNotFound
}

func (m *memSubscriptions) MarkRevokedByStreamer(_ context.Context, streamerID uuid.UUID, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		rec := &m.records[i]
		if rec.StreamerID == streamerID && rec.Status == domain.SubscriptionActive {
			rec.Status = domain.SubscriptionRevoked
			rec.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memSubscriptions) activeCount() int {
	return m.statusCount(domain.SubscriptionActive)
}

func (m *memSubscriptions) statusCount(status domain.SubscriptionStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.records {
		if rec.Status == status {
			n++
		}
	}
	return n
}

// memStreams is an in-memory domain.StreamRepository.
type memStreams struct {
	mu      sync.Mutex
	streams map[string]*domain.Stream
}

func newMemStreams() *memStreams {
	return &memStreams{streams: make(map[string]*domain.Stream)}
}

func (m *memStreams) OpenStream(_ context.Context, stream domain.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[stream.ID]; ok {
		return nil
	}
	m.streams[stream.ID] = &stream
	return nil
}

func (m *memStreams) CloseOpenStream(_ context.Context, streamerID uuid.UUID, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s.StreamerID == streamerID && s.EndedAt == nil {
			at := endedAt
			s.EndedAt = &at
		}
	}
	return nil
}

func (m *memStreams) GetOpenStream(_ context.Context, streamerID uuid.UUID) (*domain.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s.StreamerID == streamerID && s.EndedAt == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

// memEventLog is an in-memory domain.EventLogRepository.
type memEventLog struct {
	mu   sync.Mutex
	seen map[string]domain.EventLog
}

func newMemEventLog() *memEventLog {
	return &memEventLog{seen: make(map[string]domain.EventLog)}
}

func (m *memEventLog) Insert(_ context.Context, event domain.EventLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[event.MessageID]; ok {
		return false, nil
	}
	m.seen[event.MessageID] = event
	return true, nil
}

func (m *memEventLog) Delete(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, messageID)
	return nil
}

// fakeAPI scripts the provider side of the Registry.
type fakeAPI struct {
	mu sync.Mutex

	channels map[string]twitch.Channel // login -> channel
	remote   []twitch.RemoteSubscription

	createErrs map[string][]error // event type -> errors before success
	deleteErrs map[string]error   // subscription ID -> error

	// onConflict entries appear in the remote list the moment a scripted
	// ErrAlreadyExists fires, mimicking a concurrent winner.
	onConflict []twitch.RemoteSubscription

	createCalls int
	listCalls   int
	nextID      int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		channels:   make(map[string]twitch.Channel),
		createErrs: make(map[string][]error),
		deleteErrs: make(map[string]error),
	}
}

func (f *fakeAPI) GetUserByLogin(_ context.Context, login string) (*twitch.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[login]
	if !ok {
		return nil, fmt.Errorf("login %q: %w", login, domain.ErrChannelNotFound)
	}
	return &ch, nil
}

func (f *fakeAPI) ListSubscriptions(_ context.Context) ([]twitch.RemoteSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]twitch.RemoteSubscription, len(f.remote))
	copy(out, f.remote)
	return out, nil
}

func (f *fakeAPI) CreateSubscription(_ context.Context, eventType, broadcasterUserID string) (*twitch.RemoteSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	if errs := f.createErrs[eventType]; len(errs) > 0 {
		err := errs[0]
		f.createErrs[eventType] = errs[1:]
		if errors.Is(err, domain.ErrAlreadyExists) {
			f.remote = append(f.remote, f.onConflict...)
			f.onConflict = nil
		}
		return nil, err
	}

	f.nextID++
	sub := twitch.RemoteSubscription{
		ID:                fmt.Sprintf("remote-%d", f.nextID),
		Type:              eventType,
		Status:            "enabled",
		BroadcasterUserID: broadcasterUserID,
	}
	f.remote = append(f.remote, sub)
	return &sub, nil
}

func (f *fakeAPI) DeleteSubscription(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErrs[subscriptionID]; err != nil {
		return err
	}
	for i, sub := range f.remote {
		if sub.ID == subscriptionID {
			f.remote = append(f.remote[:i], f.remote[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeAPI) addRemote(sub twitch.RemoteSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, sub)
}

func (f *fakeAPI) createCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}
