package pionengine

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
)

// Producer forwards RTP read from a remote track to every Consumer
// currently attached to it. It is the SFU's fan-out point: one read
// loop per producer, N writes per packet.
type Producer struct {
	id            string
	transport     *Transport
	receiver      *webrtc.RTPReceiver
	kind          mediaengine.Kind
	rtpParameters mediaengine.RTPParameters

	paused atomic.Bool

	mutex     sync.Mutex
	consumers map[*Consumer]struct{}
	closed    chan struct{}
	once      sync.Once
	onClose   func()
}

func newProducer(t *Transport, receiver *webrtc.RTPReceiver, kind mediaengine.Kind, rtpParameters mediaengine.RTPParameters) *Producer {
	return &Producer{
		id:            newID(),
		transport:     t,
		receiver:      receiver,
		kind:          kind,
		rtpParameters: rtpParameters,
		consumers:     make(map[*Consumer]struct{}),
		closed:        make(chan struct{}),
	}
}

// start launches the forwarding loop. Called once, right after the
// receiver is created.
func (p *Producer) start() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	go p.readLoop(track)
}

func (p *Producer) readLoop(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.transport.router.worker.parent.Log(logger.Warn, "producer %s read error: %v", p.id, err)
			}
			p.Close()
			return
		}

		if p.paused.Load() {
			continue
		}

		p.mutex.Lock()
		consumers := make([]*Consumer, 0, len(p.consumers))
		for c := range p.consumers {
			consumers = append(consumers, c)
		}
		p.mutex.Unlock()

		for _, c := range consumers {
			c.forward(pkt)
		}
	}
}

// attach registers a consumer to receive forwarded packets.
func (p *Producer) attach(c *Consumer) {
	p.mutex.Lock()
	p.consumers[c] = struct{}{}
	p.mutex.Unlock()
}

// detach removes a consumer, called when the consumer closes.
func (p *Producer) detach(c *Consumer) {
	p.mutex.Lock()
	delete(p.consumers, c)
	p.mutex.Unlock()
}

// ID implements mediaengine.Producer.
func (p *Producer) ID() string { return p.id }

// Kind implements mediaengine.Producer.
func (p *Producer) Kind() mediaengine.Kind { return p.kind }

// RTPParameters implements mediaengine.Producer.
func (p *Producer) RTPParameters() mediaengine.RTPParameters { return p.rtpParameters }

// Paused implements mediaengine.Producer.
func (p *Producer) Paused() bool { return p.paused.Load() }

// Pause implements mediaengine.Producer.
func (p *Producer) Pause(ctx context.Context) error {
	p.paused.Store(true)
	return nil
}

// Resume implements mediaengine.Producer.
func (p *Producer) Resume(ctx context.Context) error {
	p.paused.Store(false)
	return nil
}

// writeRTCP is a best-effort hook for consumer-initiated feedback
// (key-frame requests). pion/webrtc's componentized RTPReceiver does
// not expose a public RTCP send path the way PeerConnection.WriteRTCP
// does for the SDP API; this reference engine logs the intent instead
// of silently dropping it, and a production engine behind
// mediaengine.Engine is expected to wire real feedback.
func (p *Producer) writeRTCP(pkts []rtcp.Packet) error {
	p.transport.router.worker.parent.Log(logger.Debug, "producer %s: keyframe request (%d RTCP packets, not wired to transport)", p.id, len(pkts))
	return nil
}

// Closed implements mediaengine.Producer.
func (p *Producer) Closed() <-chan struct{} { return p.closed }

// Close implements mediaengine.Producer.
func (p *Producer) Close() {
	p.once.Do(func() {
		p.mutex.Lock()
		consumers := make([]*Consumer, 0, len(p.consumers))
		for c := range p.consumers {
			consumers = append(consumers, c)
		}
		p.mutex.Unlock()

		for _, c := range consumers {
			c.Close()
		}

		_ = p.receiver.Stop()
		close(p.closed)

		if p.onClose != nil {
			p.onClose()
		}
	})
}
