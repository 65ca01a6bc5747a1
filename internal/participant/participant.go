// Package participant holds per-peer state: transports, producers,
// consumers, media flags. It is a pure state container -- it never
// talks to the signaling layer and never spans more than one
// conference.
package participant

import (
	"context"
	"sync"

	"github.com/riftward/sfucore/internal/mediaengine"
)

// Participant holds everything one joined peer owns within a
// conference. All mutating methods are safe to call concurrently, but
// Conference in practice only ever calls them from its single owning
// goroutine.
type Participant struct {
	ID              string
	Name            string
	Info            interface{}
	SocketID        string

	mutex sync.Mutex

	producerTransport mediaengine.Transport
	consumerTransport mediaengine.Transport

	producers map[string]*Producer
	consumers map[string]*Consumer

	audioMuted bool
	videoMuted bool
}

// Producer wraps an engine producer with the application-level stream
// tag the engine itself does not know about.
type Producer struct {
	Engine     mediaengine.Producer
	StreamType mediaengine.StreamType
}

// Consumer wraps an engine consumer with the id of the producer's
// owning participant, needed for notification payloads.
type Consumer struct {
	Engine               mediaengine.Consumer
	ProducerParticipantID string
	StreamType            mediaengine.StreamType
}

// New creates an empty Participant.
func New(id, name string, info interface{}, socketID string) *Participant {
	return &Participant{
		ID:        id,
		Name:      name,
		Info:      info,
		SocketID:  socketID,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
}

// AttachTransport binds a newly created transport to the participant.
// Fails with AlreadyExists if the direction already has one.
func (p *Participant) AttachTransport(direction mediaengine.Direction, t mediaengine.Transport) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch direction {
	case mediaengine.DirectionProducer:
		if p.producerTransport != nil {
			return mediaengine.NewError(mediaengine.ErrAlreadyExists, "producer transport already exists")
		}
		p.producerTransport = t
	case mediaengine.DirectionConsumer:
		if p.consumerTransport != nil {
			return mediaengine.NewError(mediaengine.ErrAlreadyExists, "consumer transport already exists")
		}
		p.consumerTransport = t
	default:
		return mediaengine.NewError(mediaengine.ErrProtocol, "unknown transport direction %q", direction)
	}
	return nil
}

// Transport returns the transport bound to direction, or nil.
func (p *Participant) Transport(direction mediaengine.Direction) mediaengine.Transport {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.transportLocked(direction)
}

func (p *Participant) transportLocked(direction mediaengine.Direction) mediaengine.Transport {
	if direction == mediaengine.DirectionProducer {
		return p.producerTransport
	}
	return p.consumerTransport
}

// ConnectTransport completes DTLS negotiation on the named direction.
// Idempotent: a second call after a success returns nil without
// re-invoking the engine, as long as the transport is already
// connected. The spec asks for idempotence specifically on identical
// dtls parameters; since DtlsParameters is opaque to this package, any
// repeat call while already connected is treated as the identical-retry
// case.
func (p *Participant) ConnectTransport(ctx context.Context, direction mediaengine.Direction, dtls mediaengine.DtlsParameters) error {
	p.mutex.Lock()
	t := p.transportLocked(direction)
	p.mutex.Unlock()

	if t == nil {
		return mediaengine.NewError(mediaengine.ErrNotFound, "%s transport not found", direction)
	}

	if t.State() == mediaengine.TransportStateConnected {
		return nil
	}

	if t.State() != mediaengine.TransportStateNew {
		return mediaengine.NewError(mediaengine.ErrInvalidState, "transport is %s", t.State())
	}

	if err := t.Connect(ctx, dtls); err != nil {
		return mediaengine.Wrap(mediaengine.ErrEngine, err)
	}
	return nil
}

// AddProducer inserts producer into the map. Emits no events itself.
func (p *Participant) AddProducer(id string, producer *Producer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.producers[id] = producer
}

// AddConsumer inserts consumer into the map. Emits no events itself.
func (p *Participant) AddConsumer(id string, consumer *Consumer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.consumers[id] = consumer
}

// Producer returns the producer with the given id, or nil.
func (p *Participant) Producer(id string) *Producer {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.producers[id]
}

// Consumer returns the consumer with the given id, or nil.
func (p *Participant) Consumer(id string) *Consumer {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.consumers[id]
}

// RemoveProducer deletes id from the producer map without closing
// anything; the caller is responsible for closing the engine object.
func (p *Participant) RemoveProducer(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.producers, id)
}

// RemoveConsumer deletes id from the consumer map without closing
// anything; the caller is responsible for closing the engine object.
func (p *Participant) RemoveConsumer(id string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.consumers, id)
}

// Producers returns a snapshot of every live producer id.
func (p *Participant) Producers() map[string]*Producer {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make(map[string]*Producer, len(p.producers))
	for k, v := range p.producers {
		out[k] = v
	}
	return out
}

// ConsumersOf returns the ids of every consumer bound to producerID.
func (p *Participant) ConsumersOf(producerID string) []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []string
	for id, c := range p.consumers {
		if c.Engine.ProducerID() == producerID {
			out = append(out, id)
		}
	}
	return out
}

// AlreadyConsuming reports whether a consumer already exists for
// producerID.
func (p *Participant) AlreadyConsuming(producerID string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, c := range p.consumers {
		if c.Engine.ProducerID() == producerID {
			return true
		}
	}
	return false
}

// MuteAudio pauses every audio producer, sets the flag, and returns the
// affected producer ids.
func (p *Participant) MuteAudio(ctx context.Context) ([]string, error) {
	return p.setMute(ctx, mediaengine.StreamTypeAudio, true)
}

// UnmuteAudio resumes every audio producer, clears the flag, and
// returns the affected producer ids.
func (p *Participant) UnmuteAudio(ctx context.Context) ([]string, error) {
	return p.setMute(ctx, mediaengine.StreamTypeAudio, false)
}

// MuteVideo pauses every video producer, sets the flag, and returns the
// affected producer ids.
func (p *Participant) MuteVideo(ctx context.Context) ([]string, error) {
	return p.setMute(ctx, mediaengine.StreamTypeVideo, true)
}

// UnmuteVideo resumes every video producer, clears the flag, and
// returns the affected producer ids.
func (p *Participant) UnmuteVideo(ctx context.Context) ([]string, error) {
	return p.setMute(ctx, mediaengine.StreamTypeVideo, false)
}

func (p *Participant) setMute(ctx context.Context, kind mediaengine.StreamType, mute bool) ([]string, error) {
	p.mutex.Lock()
	var affected []*Producer
	var ids []string
	for id, pr := range p.producers {
		if pr.StreamType == kind {
			affected = append(affected, pr)
			ids = append(ids, id)
		}
	}
	if kind == mediaengine.StreamTypeAudio {
		p.audioMuted = mute
	} else {
		p.videoMuted = mute
	}
	p.mutex.Unlock()

	for _, pr := range affected {
		var err error
		if mute {
			err = pr.Engine.Pause(ctx)
		} else {
			err = pr.Engine.Resume(ctx)
		}
		if err != nil {
			return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
		}
	}

	return ids, nil
}

// AudioMuted reports the current audio mute flag.
func (p *Participant) AudioMuted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.audioMuted
}

// VideoMuted reports the current video mute flag.
func (p *Participant) VideoMuted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.videoMuted
}

// CloseReport lists everything Close tore down.
type CloseReport struct {
	ClosedProducerIDs []string
	ClosedConsumerIDs []string
}

// Close closes, in order, all consumers, all producers, the consumer
// transport, then the producer transport. Idempotent: calling Close
// again returns an empty report.
func (p *Participant) Close() CloseReport {
	p.mutex.Lock()
	consumers := p.consumers
	producers := p.producers
	consumerTransport := p.consumerTransport
	producerTransport := p.producerTransport
	p.consumers = make(map[string]*Consumer)
	p.producers = make(map[string]*Producer)
	p.consumerTransport = nil
	p.producerTransport = nil
	p.mutex.Unlock()

	var report CloseReport

	for id, c := range consumers {
		c.Engine.Close()
		report.ClosedConsumerIDs = append(report.ClosedConsumerIDs, id)
	}
	for id, pr := range producers {
		pr.Engine.Close()
		report.ClosedProducerIDs = append(report.ClosedProducerIDs, id)
	}
	if consumerTransport != nil {
		consumerTransport.Close()
	}
	if producerTransport != nil {
		producerTransport.Close()
	}

	return report
}
