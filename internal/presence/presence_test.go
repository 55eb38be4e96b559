package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/channel"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/model"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/repo"
)

type fakeProfiles struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

var _ repo.ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{lastSeen: make(map[string]time.Time)}
}

func (f *fakeProfiles) Get(_ context.Context, id string) (*model.Profile, error) {
	return &model.Profile{ID: id, FullName: "User " + id}, nil
}

func (f *fakeProfiles) LastSeen(_ context.Context, id string) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if at, ok := f.lastSeen[id]; ok {
		return &at, nil
	}
	return nil, nil
}

func (f *fakeProfiles) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen[id] = at
	return nil
}

func (f *fakeProfiles) seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.lastSeen[id]
	return ok
}

func newTestService(t *testing.T) (*Service, *fakeProfiles) {
	t.Helper()
	profiles := newFakeProfiles()
	return NewService(channel.NewBroker(zap.NewNop()), profiles, zap.NewNop()), profiles
}

func TestAttachSeesPeersNotSelf(t *testing.T) {
	svc, _ := newTestService(t)

	alice, err := svc.Attach("alice", model.ProfileSnippet{FullName: "Alice"}, nil)
	require.NoError(t, err)
	defer alice.Release(context.Background())

	bob, err := svc.Attach("bob", model.ProfileSnippet{FullName: "Bob"}, nil)
	require.NoError(t, err)
	defer bob.Release(context.Background())

	assert.True(t, alice.IsOnline("bob"))
	assert.True(t, bob.IsOnline("alice"))

	assert.False(t, alice.IsOnline("alice"), "self is excluded from the observed set")
	require.Len(t, alice.Peers(), 1)
	assert.Equal(t, "Bob", alice.Peers()[0].FullName)
}

func TestLateJoinerSeesExistingSessions(t *testing.T) {
	svc, _ := newTestService(t)

	alice, err := svc.Attach("alice", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer alice.Release(context.Background())

	// Bob attaches after alice is already tracked; the initial sync must
	// hand him the existing state.
	bob, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer bob.Release(context.Background())

	assert.True(t, bob.IsOnline("alice"))
}

func TestReleaseGoesOfflineAndRecordsLastSeen(t *testing.T) {
	svc, profiles := newTestService(t)

	alice, err := svc.Attach("alice", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	bob, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer alice.Release(context.Background())

	require.True(t, alice.IsOnline("bob"))

	bob.Release(context.Background())

	assert.False(t, alice.IsOnline("bob"))
	assert.True(t, profiles.seen("bob"), "release writes durable last_seen")

	status, err := alice.PeerStatus(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, status.Online)
	require.NotNil(t, status.LastSeen, "durable last_seen fallback after release")

	bob.Release(context.Background()) // idempotent
}

func TestUserStaysOnlineWhileAnotherSessionRemains(t *testing.T) {
	svc, _ := newTestService(t)

	alice, err := svc.Attach("alice", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer alice.Release(context.Background())

	// Bob opens two conversations, so two sessions share one presence key.
	bob1, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	bob2, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)

	require.True(t, alice.IsOnline("bob"))
	require.Equal(t, 2, svc.OnlineCount())

	bob1.Release(context.Background())

	assert.True(t, alice.IsOnline("bob"), "closing one connection must not take the user offline")
	assert.Equal(t, 2, svc.OnlineCount())

	bob2.Release(context.Background())

	assert.False(t, alice.IsOnline("bob"))
	assert.Equal(t, 1, svc.OnlineCount())
}

func TestPeerStatusOnlineSkipsLookup(t *testing.T) {
	svc, _ := newTestService(t)

	alice, err := svc.Attach("alice", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer alice.Release(context.Background())
	bob, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	defer bob.Release(context.Background())

	status, err := alice.PeerStatus(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Nil(t, status.LastSeen)
}

func TestOnChangeFiresOnJoinAndLeave(t *testing.T) {
	svc, _ := newTestService(t)

	var mu sync.Mutex
	changes := 0
	alice, err := svc.Attach("alice", model.ProfileSnippet{}, func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer alice.Release(context.Background())

	bob, err := svc.Attach("bob", model.ProfileSnippet{}, nil)
	require.NoError(t, err)
	bob.Release(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, changes, 2, "one join and one leave at minimum")
}

func TestServiceOnlineDirectory(t *testing.T) {
	svc, _ := newTestService(t)

	assert.Zero(t, svc.OnlineCount())

	alice, err := svc.Attach("alice", model.ProfileSnippet{FullName: "Alice"}, nil)
	require.NoError(t, err)
	bob, err := svc.Attach("bob", model.ProfileSnippet{FullName: "Bob"}, nil)
	require.NoError(t, err)
	defer bob.Release(context.Background())

	require.Equal(t, 2, svc.OnlineCount())

	names := map[string]bool{}
	for _, rec := range svc.Online() {
		names[rec.FullName] = true
	}
	assert.True(t, names["Alice"] && names["Bob"])

	alice.Release(context.Background())
	assert.Equal(t, 1, svc.OnlineCount())
}
