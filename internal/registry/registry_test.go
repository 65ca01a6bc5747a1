package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/conference"
	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/mediaengine/mediaenginetest"
	"github.com/riftward/sfucore/internal/workerpool"
)

type fakeParent struct {
	mutex         sync.Mutex
	notifications []conference.Notification
}

func (f *fakeParent) Log(logger.Level, string, ...interface{}) {}

func (f *fakeParent) OnNotification(n conference.Notification) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.notifications = append(f.notifications, n)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	engine := &mediaenginetest.Engine{}
	pool, err := workerpool.New(context.Background(), engine, 2, []mediaengine.CodecParameters{
		{Kind: mediaengine.KindAudio, MimeType: "audio/opus"},
		{Kind: mediaengine.KindVideo, MimeType: "video/VP8"},
	}, 1, 1, &fakeParent{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	r := New(pool, 0, time.Second, mediaengine.TransportOptions{}, nil, "", false, "", &fakeParent{})
	t.Cleanup(r.Close)
	return r
}

func TestGetOrCreateReturnsSameConferenceForSameID(t *testing.T) {
	r := newTestRegistry(t)

	c1, err := r.GetOrCreate(context.Background(), "room1", "Room One")
	require.NoError(t, err)
	c2, err := r.GetOrCreate(context.Background(), "room1", "Room One")
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.Equal(t, 1, r.ActiveConferences())
}

func TestGetOrCreateConcurrentRaceCreatesOneConference(t *testing.T) {
	r := newTestRegistry(t)

	const n = 20
	results := make(chan *conference.Conference, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			c, err := r.GetOrCreate(context.Background(), "room1", "Room One")
			require.NoError(t, err)
			results <- c
		}()
	}
	wg.Wait()
	close(results)

	var first *conference.Conference
	for c := range results {
		if first == nil {
			first = c
		}
		require.Same(t, first, c)
	}
	require.Equal(t, 1, r.ActiveConferences())
}

func TestRemoveIfEmptyRemovesOnlyWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)

	c, err := r.GetOrCreate(context.Background(), "room1", "Room One")
	require.NoError(t, err)

	_, err = c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)

	r.removeIfEmpty("room1")
	require.Equal(t, 1, r.ActiveConferences(), "conference with a participant must not be removed")

	_, err = c.Leave("alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.ActiveConferences() == 0
	}, time.Second, time.Millisecond)
}

func TestJoinLeaveCounters(t *testing.T) {
	r := newTestRegistry(t)
	require.Equal(t, uint64(0), r.JoinsTotal())
	r.RecordJoin()
	r.RecordJoin()
	r.RecordLeave()
	require.Equal(t, uint64(2), r.JoinsTotal())
	require.Equal(t, uint64(1), r.LeavesTotal())
}

// TestUpdateHooksAppliesToConferencesCreatedAfterward covers
// configuration reload: UpdateHooks must replace the stored hook
// commands that GetOrCreate reads when it creates a new conference.
func TestUpdateHooksAppliesToConferencesCreatedAfterward(t *testing.T) {
	r := newTestRegistry(t)

	r.UpdateHooks("echo created", true, "echo emptied")

	r.mutex.Lock()
	runOnCreate := r.runOnConferenceCreate
	restart := r.runOnConferenceCreateRestart
	runOnEmpty := r.runOnConferenceEmpty
	r.mutex.Unlock()

	require.Equal(t, "echo created", runOnCreate)
	require.True(t, restart)
	require.Equal(t, "echo emptied", runOnEmpty)
}
