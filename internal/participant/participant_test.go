package participant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/mediaengine/mediaenginetest"
)

func newEngine(t *testing.T) (*mediaenginetest.Router) {
	t.Helper()
	engine := &mediaenginetest.Engine{}
	w, err := engine.NewWorker(context.Background(), "w0", nil)
	require.NoError(t, err)
	r, err := w.NewRouter(context.Background())
	require.NoError(t, err)
	return r.(*mediaenginetest.Router)
}

func TestAttachTransportRejectsDuplicateDirection(t *testing.T) {
	r := newEngine(t)
	p := New("p1", "Alice", nil, "sock-1")

	t1, err := r.NewTransport(context.Background(), mediaengine.DirectionProducer, mediaengine.TransportOptions{})
	require.NoError(t, err)
	require.NoError(t, p.AttachTransport(mediaengine.DirectionProducer, t1))

	t2, err := r.NewTransport(context.Background(), mediaengine.DirectionProducer, mediaengine.TransportOptions{})
	require.NoError(t, err)
	err = p.AttachTransport(mediaengine.DirectionProducer, t2)
	require.Error(t, err)
	require.Equal(t, mediaengine.ErrAlreadyExists, mediaengine.KindOf(err))
}

func TestConnectTransportIsIdempotentOnceConnected(t *testing.T) {
	r := newEngine(t)
	p := New("p1", "Alice", nil, "sock-1")

	tr, err := r.NewTransport(context.Background(), mediaengine.DirectionProducer, mediaengine.TransportOptions{})
	require.NoError(t, err)
	require.NoError(t, p.AttachTransport(mediaengine.DirectionProducer, tr))

	require.NoError(t, p.ConnectTransport(context.Background(), mediaengine.DirectionProducer, nil))
	require.Equal(t, mediaengine.TransportStateConnected, tr.State())

	// Second call must not error and must not require a fresh Connect.
	require.NoError(t, p.ConnectTransport(context.Background(), mediaengine.DirectionProducer, nil))
}

func TestConnectTransportMissingDirection(t *testing.T) {
	p := New("p1", "Alice", nil, "sock-1")
	err := p.ConnectTransport(context.Background(), mediaengine.DirectionConsumer, nil)
	require.Error(t, err)
	require.Equal(t, mediaengine.ErrNotFound, mediaengine.KindOf(err))
}

func TestMuteAudioPausesOnlyAudioProducers(t *testing.T) {
	r := newEngine(t)
	p := New("p1", "Alice", nil, "sock-1")

	tr, err := r.NewTransport(context.Background(), mediaengine.DirectionProducer, mediaengine.TransportOptions{})
	require.NoError(t, err)

	audioProd, err := tr.Produce(context.Background(), mediaengine.KindAudio, nil)
	require.NoError(t, err)
	videoProd, err := tr.Produce(context.Background(), mediaengine.KindVideo, nil)
	require.NoError(t, err)

	p.AddProducer(audioProd.ID(), &Producer{Engine: audioProd, StreamType: mediaengine.StreamTypeAudio})
	p.AddProducer(videoProd.ID(), &Producer{Engine: videoProd, StreamType: mediaengine.StreamTypeVideo})

	ids, err := p.MuteAudio(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{audioProd.ID()}, ids)
	require.True(t, p.AudioMuted())
	require.True(t, audioProd.Paused())
	require.False(t, videoProd.Paused())
}

func TestCloseTearsDownEverythingAndIsIdempotent(t *testing.T) {
	r := newEngine(t)
	p := New("p1", "Alice", nil, "sock-1")

	prodTr, err := r.NewTransport(context.Background(), mediaengine.DirectionProducer, mediaengine.TransportOptions{})
	require.NoError(t, err)
	require.NoError(t, p.AttachTransport(mediaengine.DirectionProducer, prodTr))

	prod, err := prodTr.Produce(context.Background(), mediaengine.KindAudio, nil)
	require.NoError(t, err)
	p.AddProducer(prod.ID(), &Producer{Engine: prod, StreamType: mediaengine.StreamTypeAudio})

	consTr, err := r.NewTransport(context.Background(), mediaengine.DirectionConsumer, mediaengine.TransportOptions{})
	require.NoError(t, err)
	cons, err := consTr.Consume(context.Background(), prod, nil)
	require.NoError(t, err)
	p.AddConsumer(cons.ID(), &Consumer{Engine: cons, ProducerParticipantID: "p1"})

	report := p.Close()
	require.ElementsMatch(t, []string{prod.ID()}, report.ClosedProducerIDs)
	require.ElementsMatch(t, []string{cons.ID()}, report.ClosedConsumerIDs)

	second := p.Close()
	require.Empty(t, second.ClosedProducerIDs)
	require.Empty(t, second.ClosedConsumerIDs)
}
