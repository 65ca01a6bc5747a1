package conference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/mediaengine/mediaenginetest"
)

// fakeParent records every notification and empty-conference signal it
// receives, mirroring what registry.conferenceAdapter does for real.
type fakeParent struct {
	mutex         sync.Mutex
	notifications []Notification
	emptied       []string
}

func (f *fakeParent) Log(logger.Level, string, ...interface{}) {}

func (f *fakeParent) OnNotification(n Notification) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeParent) OnEmpty(id string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.emptied = append(f.emptied, id)
}

func (f *fakeParent) events() []EventName {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]EventName, len(f.notifications))
	for i, n := range f.notifications {
		out[i] = n.Event
	}
	return out
}

func newTestConference(t *testing.T) (*Conference, *fakeParent) {
	t.Helper()
	engine := &mediaenginetest.Engine{}
	w, err := engine.NewWorker(context.Background(), "w0", nil)
	require.NoError(t, err)
	r, err := w.NewRouter(context.Background())
	require.NoError(t, err)

	parent := &fakeParent{}
	c := New("conf1", "Room", w, r, 0, time.Second, mediaengine.TransportOptions{}, parent)
	t.Cleanup(c.Close)
	return c, parent
}

// TestJoinProduceConsumeMuteLeave walks through spec.md's end-to-end
// happy path: two participants join, one produces, the other consumes,
// mute/unmute round-trips, then both leave and the conference empties.
func TestJoinProduceConsumeMuteLeave(t *testing.T) {
	c, parent := newTestConference(t)

	_, err := c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)
	_, err = c.Join("bob", "Bob", nil, "sock-b")
	require.NoError(t, err)

	desc, err := c.CreateTransport("alice", mediaengine.DirectionProducer)
	require.NoError(t, err)
	require.NotEmpty(t, desc.ID)

	require.NoError(t, c.ConnectTransport("alice", mediaengine.DirectionProducer, nil))

	producerID, err := c.Produce("alice", desc.ID, mediaengine.KindAudio, nil, mediaengine.StreamTypeAudio)
	require.NoError(t, err)
	require.NotEmpty(t, producerID)

	_, err = c.CreateTransport("bob", mediaengine.DirectionConsumer)
	require.NoError(t, err)
	require.NoError(t, c.ConnectTransport("bob", mediaengine.DirectionConsumer, nil))

	consumers, err := c.ConsumeFromParticipant("bob", "alice", nil)
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	require.Equal(t, producerID, consumers[0].ProducerID)

	require.NoError(t, c.ResumeConsumer("bob", consumers[0].ID))

	ids, err := c.MuteAudio("alice")
	require.NoError(t, err)
	require.Equal(t, []string{producerID}, ids)

	ids, err = c.UnmuteAudio("alice")
	require.NoError(t, err)
	require.Equal(t, []string{producerID}, ids)

	_, err = c.Leave("bob")
	require.NoError(t, err)
	require.Equal(t, 1, c.ParticipantCount())

	_, err = c.Leave("alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		parent.mutex.Lock()
		defer parent.mutex.Unlock()
		return len(parent.emptied) == 1 && parent.emptied[0] == "conf1"
	}, time.Second, time.Millisecond)

	events := parent.events()
	require.Contains(t, events, EventParticipantJoined)
	require.Contains(t, events, EventNewProducer)
	require.Contains(t, events, EventAudioMuted)
	require.Contains(t, events, EventAudioUnmuted)
	require.Contains(t, events, EventParticipantLeft)
}

func TestJoinRejectsDuplicateParticipant(t *testing.T) {
	c, _ := newTestConference(t)

	_, err := c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)

	_, err = c.Join("alice", "Alice again", nil, "sock-a2")
	require.Error(t, err)
	require.Equal(t, mediaengine.ErrInvalidState, mediaengine.KindOf(err))
}

func TestJoinRejectsOverCapacity(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	w, err := engine.NewWorker(context.Background(), "w0", nil)
	require.NoError(t, err)
	r, err := w.NewRouter(context.Background())
	require.NoError(t, err)

	c := New("conf1", "Room", w, r, 1, time.Second, mediaengine.TransportOptions{}, &fakeParent{})
	defer c.Close()

	_, err = c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)

	_, err = c.Join("bob", "Bob", nil, "sock-b")
	require.Error(t, err)
	require.Equal(t, mediaengine.ErrCapacityExceeded, mediaengine.KindOf(err))
}

func TestConsumeFromParticipantRejectsSelfTarget(t *testing.T) {
	c, _ := newTestConference(t)
	_, err := c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)

	_, err = c.ConsumeFromParticipant("alice", "alice", nil)
	require.Error(t, err)
	require.Equal(t, mediaengine.ErrInvalidState, mediaengine.KindOf(err))
}

// TestConsumeFromParticipantRepeatCallSucceeds covers spec.md §8
// scenario 2: Bob already consumes Alice's audio and video, Alice then
// adds a screenshare producer, and a fresh consumeParticipantMedia call
// must succeed with descriptors for whatever is left rather than
// erroring out on the producers Bob already holds a consumer for.
func TestConsumeFromParticipantRepeatCallSucceeds(t *testing.T) {
	c, _ := newTestConference(t)

	_, err := c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)
	_, err = c.Join("bob", "Bob", nil, "sock-b")
	require.NoError(t, err)

	desc, err := c.CreateTransport("alice", mediaengine.DirectionProducer)
	require.NoError(t, err)
	require.NoError(t, c.ConnectTransport("alice", mediaengine.DirectionProducer, nil))

	_, err = c.Produce("alice", desc.ID, mediaengine.KindAudio, nil, mediaengine.StreamTypeAudio)
	require.NoError(t, err)
	_, err = c.Produce("alice", desc.ID, mediaengine.KindVideo, nil, mediaengine.StreamTypeVideo)
	require.NoError(t, err)

	_, err = c.CreateTransport("bob", mediaengine.DirectionConsumer)
	require.NoError(t, err)
	require.NoError(t, c.ConnectTransport("bob", mediaengine.DirectionConsumer, nil))

	consumers, err := c.ConsumeFromParticipant("bob", "alice", nil)
	require.NoError(t, err)
	require.Len(t, consumers, 2)

	screenshareID, err := c.Produce("alice", desc.ID, mediaengine.KindVideo, nil, mediaengine.StreamTypeScreenshare)
	require.NoError(t, err)

	consumers, err = c.ConsumeFromParticipant("bob", "alice", nil)
	require.NoError(t, err)
	require.Len(t, consumers, 1)
	require.Equal(t, screenshareID, consumers[0].ProducerID)
}

// TestProducerCloseClosesDownstreamConsumers covers the cascade from
// spec.md: closing a producer must close every consumer bound to it and
// notify the owning participants.
func TestProducerCloseClosesDownstreamConsumers(t *testing.T) {
	c, parent := newTestConference(t)

	_, err := c.Join("alice", "Alice", nil, "sock-a")
	require.NoError(t, err)
	_, err = c.Join("bob", "Bob", nil, "sock-b")
	require.NoError(t, err)

	desc, err := c.CreateTransport("alice", mediaengine.DirectionProducer)
	require.NoError(t, err)
	require.NoError(t, c.ConnectTransport("alice", mediaengine.DirectionProducer, nil))
	producerID, err := c.Produce("alice", desc.ID, mediaengine.KindVideo, nil, mediaengine.StreamTypeVideo)
	require.NoError(t, err)

	_, err = c.CreateTransport("bob", mediaengine.DirectionConsumer)
	require.NoError(t, err)
	require.NoError(t, c.ConnectTransport("bob", mediaengine.DirectionConsumer, nil))
	consumers, err := c.ConsumeFromParticipant("bob", "alice", nil)
	require.NoError(t, err)
	require.Len(t, consumers, 1)

	require.NoError(t, c.CloseProducer("alice", producerID))

	require.Eventually(t, func() bool {
		events := parent.events()
		foundProd, foundCons := false, false
		for _, e := range events {
			if e == EventProducerClosed {
				foundProd = true
			}
			if e == EventConsumerClosed {
				foundCons = true
			}
		}
		return foundProd && foundCons
	}, time.Second, time.Millisecond)
}

// TestWorkerQuarantineTerminatesConference exercises spec.md's degraded
// worker handling: if the engine quarantines a conference's worker, the
// conference notifies its parent and force-closes.
func TestWorkerQuarantineTerminatesConference(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	w, err := engine.NewWorker(context.Background(), "w0", nil)
	require.NoError(t, err)
	r, err := w.NewRouter(context.Background())
	require.NoError(t, err)

	parent := &fakeParent{}
	c := New("conf1", "Room", w, r, 0, time.Second, mediaengine.TransportOptions{}, parent)

	engine.Quarantine("w0")

	require.Eventually(t, func() bool {
		events := parent.events()
		for _, e := range events {
			if e == EventConferenceTerminated {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
