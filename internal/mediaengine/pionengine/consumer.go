package pionengine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/riftward/sfucore/internal/asyncwriter"
	"github.com/riftward/sfucore/internal/mediaengine"
)

// Consumer writes RTP forwarded from its Producer onto a local track
// sent to one participant. Consumers start paused; the first Resume
// call also requests a key frame from the producer via RTCP so the
// newly opened stream begins on a decodable picture.
type Consumer struct {
	id         string
	transport  *Transport
	sender     *webrtc.RTPSender
	track      *webrtc.TrackLocalStaticRTP
	producer   *Producer
	feedback   *asyncwriter.Writer

	paused atomic.Bool

	closed  chan struct{}
	once    sync.Once
	onClose func()
}

func newConsumer(t *Transport, sender *webrtc.RTPSender, track *webrtc.TrackLocalStaticRTP, producer *Producer) *Consumer {
	c := &Consumer{
		id:        newID(),
		transport: t,
		sender:    sender,
		track:     track,
		producer:  producer,
		feedback:  asyncwriter.New(8, t.router.worker.parent),
		closed:    make(chan struct{}),
	}
	c.paused.Store(true)
	c.feedback.Start()
	go c.readRTCP()
	return c
}

// readRTCP drains the sender's incoming RTCP so pion's interceptor
// chain (NACK, REMB, etc.) keeps functioning; it discards packets it
// does not act on itself.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		_ = pkts
	}
}

// forward writes one packet from the producer to this consumer's
// local track, unless paused.
func (c *Consumer) forward(pkt *rtp.Packet) {
	if c.paused.Load() {
		return
	}
	_ = c.track.WriteRTP(pkt)
}

// ID implements mediaengine.Consumer.
func (c *Consumer) ID() string { return c.id }

// ProducerID implements mediaengine.Consumer.
func (c *Consumer) ProducerID() string { return c.producer.ID() }

// Kind implements mediaengine.Consumer.
func (c *Consumer) Kind() mediaengine.Kind { return c.producer.Kind() }

// RTPParameters implements mediaengine.Consumer.
func (c *Consumer) RTPParameters() mediaengine.RTPParameters { return c.producer.RTPParameters() }

// Paused implements mediaengine.Consumer.
func (c *Consumer) Paused() bool { return c.paused.Load() }

// Resume implements mediaengine.Consumer.
func (c *Consumer) Resume(ctx context.Context) error {
	c.paused.Store(false)
	c.requestKeyFrame()
	return nil
}

// requestKeyFrame asks the producer for a key frame via PLI, queued on
// the feedback writer so a slow RTCP round trip never blocks the
// conference actor that called Resume.
func (c *Consumer) requestKeyFrame() {
	c.feedback.Push(func() error {
		ssrc := c.producer.receiver.Track().SSRC()
		return c.producer.writeRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)},
		})
	})
}

// Closed implements mediaengine.Consumer.
func (c *Consumer) Closed() <-chan struct{} { return c.closed }

// Close implements mediaengine.Consumer.
func (c *Consumer) Close() {
	c.once.Do(func() {
		c.producer.detach(c)
		c.feedback.Stop()
		_ = c.sender.Stop()
		close(c.closed)

		if c.onClose != nil {
			c.onClose()
		}
	})
}
