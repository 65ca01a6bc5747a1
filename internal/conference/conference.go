// Package conference implements the single-logical-owner Conference
// entity: it aggregates the participants sharing one router, enforces
// per-conference invariants and fans out notifications. Grounded on the
// teacher's path/pathManager request-channel idiom, generalized from
// per-RTSP-session lifecycle to per-conference lifecycle.
package conference

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/participant"
)

// Parent is implemented by whatever owns a Conference -- the
// ConferenceRegistry for lifecycle, the SignalingGateway for
// notifications.
type Parent interface {
	logger.Writer
	OnNotification(Notification)
	OnEmpty(conferenceID string)
}

// Conference aggregates the participants sharing one router.
type Conference struct {
	ID        string
	Name      string
	CreatedAt time.Time

	maxParticipants  int
	operationTimeout time.Duration
	transportOptions mediaengine.TransportOptions
	parent           Parent

	worker mediaengine.Worker
	router mediaengine.Router

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tasks  chan func()

	// participants is only ever touched from the run() goroutine.
	participants map[string]*participant.Participant
}

// New creates a Conference bound to the given worker/router and starts
// its owning goroutine. Callers obtain worker/router from
// workerpool.Pool.Acquire.
func New(
	id, name string,
	worker mediaengine.Worker,
	router mediaengine.Router,
	maxParticipants int,
	operationTimeout time.Duration,
	transportOptions mediaengine.TransportOptions,
	parent Parent,
) *Conference {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conference{
		ID:               id,
		Name:             name,
		CreatedAt:        time.Now(),
		maxParticipants:  maxParticipants,
		operationTimeout: operationTimeout,
		transportOptions: transportOptions,
		parent:           parent,
		worker:           worker,
		router:           router,
		ctx:              ctx,
		cancel:           cancel,
		tasks:            make(chan func()),
		participants:     make(map[string]*participant.Participant),
	}

	c.wg.Add(1)
	go c.run()

	// watchWorker is intentionally not tracked by c.wg: it may itself
	// call Close, which waits on c.wg, and a goroutine cannot wait on
	// its own completion.
	go c.watchWorker()

	return c
}

func (c *Conference) run() {
	defer c.wg.Done()
	for {
		select {
		case t := <-c.tasks:
			t()
		case <-c.ctx.Done():
			return
		}
	}
}

// watchWorker force-terminates the conference if its backing worker is
// quarantined by the engine, per §4.1's degraded-worker handling.
func (c *Conference) watchWorker() {
	select {
	case <-c.worker.Closed():
		c.parent.OnNotification(Notification{
			ConferenceID: c.ID,
			Event:        EventConferenceTerminated,
			Targets:      nil,
			Data: ConferenceTerminatedData{
				ConferenceID: c.ID,
				Reason:       "worker quarantined",
			},
		})
		c.Close()
	case <-c.ctx.Done():
	}
}

// do submits fn to the owning goroutine and blocks for its result. It
// is the generalized form of path.go's per-operation request/response
// channel pair: one shape serving every operation instead of one
// channel type per operation.
func do[T any](c *Conference, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	resCh := make(chan result, 1)

	select {
	case c.tasks <- func() {
		v, err := fn()
		resCh <- result{v, err}
	}:
	case <-c.ctx.Done():
		var zero T
		return zero, mediaengine.NewError(mediaengine.ErrEngineUnavailable, "conference %s terminated", c.ID)
	}

	select {
	case r := <-resCh:
		return r.val, r.err
	case <-c.ctx.Done():
		var zero T
		return zero, mediaengine.NewError(mediaengine.ErrEngineUnavailable, "conference %s terminated", c.ID)
	}
}

func (c *Conference) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, c.operationTimeout)
}

func translateTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return mediaengine.NewError(mediaengine.ErrOperationTimeout, "operation deadline exceeded")
	}
	return err
}

// ParticipantCount returns the number of participants currently joined,
// used by ConferenceRegistry.removeIfEmpty.
func (c *Conference) ParticipantCount() int {
	return must(do(c, func() (int, error) {
		return len(c.participants), nil
	}))
}

func must[T any](v T, err error) T {
	_ = err
	return v
}

// Join adds a new participant. pId must be unique within the
// conference.
func (c *Conference) Join(pID, name string, info interface{}, socketID string) (*JoinResult, error) {
	return do(c, func() (*JoinResult, error) {
		if pID == "" {
			return nil, mediaengine.NewError(mediaengine.ErrProtocol, "participantId must not be empty")
		}
		if _, ok := c.participants[pID]; ok {
			return nil, mediaengine.NewError(mediaengine.ErrInvalidState, "DuplicateParticipant")
		}
		if c.maxParticipants > 0 && len(c.participants) >= c.maxParticipants {
			return nil, mediaengine.NewError(mediaengine.ErrCapacityExceeded, "conference %s is full", c.ID)
		}

		p := participant.New(pID, name, info, socketID)
		c.participants[pID] = p

		c.parent.OnNotification(Notification{
			ConferenceID: c.ID,
			Event:        EventParticipantJoined,
			Exclude:      pID,
			Data: ParticipantJoinedData{
				ConferenceID:    c.ID,
				ParticipantID:   pID,
				ParticipantName: name,
			},
		})

		return &JoinResult{RouterRTPCapabilities: c.router.RTPCapabilities()}, nil
	})
}

// CreateTransport creates a producer or consumer transport for pID.
func (c *Conference) CreateTransport(pID string, direction mediaengine.Direction) (mediaengine.TransportDescriptor, error) {
	return do(c, func() (mediaengine.TransportDescriptor, error) {
		p, ok := c.participants[pID]
		if !ok {
			return mediaengine.TransportDescriptor{}, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}

		ctx, cancel := c.opContext()
		defer cancel()

		t, err := c.router.NewTransport(ctx, direction, c.transportOptions)
		if err != nil {
			return mediaengine.TransportDescriptor{}, translateTimeout(mediaengine.Wrap(mediaengine.ErrEngine, err))
		}

		if err := p.AttachTransport(direction, t); err != nil {
			t.Close()
			return mediaengine.TransportDescriptor{}, err
		}

		return t.Descriptor(), nil
	})
}

// ConnectTransport completes DTLS negotiation on pID's direction
// transport.
func (c *Conference) ConnectTransport(pID string, direction mediaengine.Direction, dtls mediaengine.DtlsParameters) error {
	_, err := do(c, func() (struct{}, error) {
		p, ok := c.participants[pID]
		if !ok {
			return struct{}{}, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}

		ctx, cancel := c.opContext()
		defer cancel()

		return struct{}{}, translateTimeout(p.ConnectTransport(ctx, direction, dtls))
	})
	return err
}

// Produce creates a producer on pID's producer transport.
func (c *Conference) Produce(
	pID, transportID string,
	kind mediaengine.Kind,
	rtpParameters mediaengine.RTPParameters,
	streamType mediaengine.StreamType,
) (string, error) {
	return do(c, func() (string, error) {
		p, ok := c.participants[pID]
		if !ok {
			return "", mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}

		t := p.Transport(mediaengine.DirectionProducer)
		if t == nil || t.ID() != transportID {
			return "", mediaengine.NewError(mediaengine.ErrNotFound, "transport %s not found", transportID)
		}
		if t.State() != mediaengine.TransportStateConnected {
			return "", mediaengine.NewError(mediaengine.ErrInvalidState, "transport not connected")
		}

		ctx, cancel := c.opContext()
		defer cancel()

		prod, err := t.Produce(ctx, kind, rtpParameters)
		if err != nil {
			return "", translateTimeout(mediaengine.Wrap(mediaengine.ErrEngine, err))
		}

		p.AddProducer(prod.ID(), &participant.Producer{Engine: prod, StreamType: streamType})

		c.parent.OnNotification(Notification{
			ConferenceID: c.ID,
			Event:        EventNewProducer,
			Exclude:      pID,
			Data: NewProducerData{
				ProducerID:      prod.ID(),
				ParticipantID:   pID,
				ParticipantName: p.Name,
				Kind:            string(kind),
				StreamType:      string(streamType),
			},
		})

		c.watchProducer(pID, prod)

		return prod.ID(), nil
	})
}

// watchProducer closes every bound consumer and emits the close events
// if the engine closes a producer spontaneously.
func (c *Conference) watchProducer(ownerID string, prod mediaengine.Producer) {
	go func() {
		select {
		case <-prod.Closed():
		case <-c.ctx.Done():
			return
		}
		select {
		case c.tasks <- func() { c.closeProducerByID(ownerID, prod.ID()) }:
		case <-c.ctx.Done():
		}
	}()
}

// watchConsumer emits consumerClosed if the engine closes a consumer
// spontaneously (typically because its producer closed from the other
// side).
func (c *Conference) watchConsumer(ownerID, consumerID string, cons mediaengine.Consumer) {
	go func() {
		select {
		case <-cons.Closed():
		case <-c.ctx.Done():
			return
		}
		select {
		case c.tasks <- func() { c.closeConsumerByID(ownerID, consumerID) }:
		case <-c.ctx.Done():
		}
	}()
}

// ConsumeFromParticipant creates a Consumer, paused, for each of
// targetPID's producers compatible with rtpCapabilities.
func (c *Conference) ConsumeFromParticipant(pID, targetPID string, rtpCapabilities mediaengine.RTPCapabilities) ([]ConsumerDescriptor, error) {
	return do(c, func() ([]ConsumerDescriptor, error) {
		if pID == targetPID {
			return nil, mediaengine.NewError(mediaengine.ErrInvalidState, "InvalidTarget")
		}

		p, ok := c.participants[pID]
		if !ok {
			return nil, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}
		target, ok := c.participants[targetPID]
		if !ok {
			return nil, mediaengine.NewError(mediaengine.ErrNotFound, "TargetNotFound")
		}

		ct := p.Transport(mediaengine.DirectionConsumer)
		if ct == nil {
			return nil, mediaengine.NewError(mediaengine.ErrInvalidState, "TransportNotReady")
		}

		var out []ConsumerDescriptor

		for prodID, prod := range target.Producers() {
			if !c.router.CanConsume(prodID, rtpCapabilities) {
				continue
			}
			// A repeat call for a producer already being consumed is not
			// an error: it just contributes nothing new, so a fresh call
			// against a partially-consumed target still succeeds with
			// descriptors for whatever is left.
			if p.AlreadyConsuming(prodID) {
				continue
			}

			ctx, cancel := c.opContext()
			cons, err := ct.Consume(ctx, prod.Engine, rtpCapabilities)
			cancel()
			if err != nil {
				return nil, translateTimeout(mediaengine.Wrap(mediaengine.ErrEngine, err))
			}

			p.AddConsumer(cons.ID(), &participant.Consumer{
				Engine:                cons,
				ProducerParticipantID: targetPID,
				StreamType:            prod.StreamType,
			})
			c.watchConsumer(pID, cons.ID(), cons)

			out = append(out, ConsumerDescriptor{
				ID:                    cons.ID(),
				ProducerID:            prodID,
				Kind:                  cons.Kind(),
				RTPParameters:         cons.RTPParameters(),
				StreamType:            prod.StreamType,
				ProducerParticipantID: targetPID,
			})
		}

		return out, nil
	})
}

// ResumeConsumer unpauses a previously created consumer.
func (c *Conference) ResumeConsumer(pID, consumerID string) error {
	_, err := do(c, func() (struct{}, error) {
		p, ok := c.participants[pID]
		if !ok {
			return struct{}{}, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}
		cons := p.Consumer(consumerID)
		if cons == nil {
			return struct{}{}, mediaengine.NewError(mediaengine.ErrNotFound, "consumer %s not found", consumerID)
		}

		ctx, cancel := c.opContext()
		defer cancel()

		return struct{}{}, translateTimeout(cons.Engine.Resume(ctx))
	})
	return err
}

// CloseProducer closes a producer owned by pID.
func (c *Conference) CloseProducer(pID, producerID string) error {
	_, err := do(c, func() (struct{}, error) {
		if _, ok := c.participants[pID]; !ok {
			return struct{}{}, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}
		return struct{}{}, c.closeProducerByID(pID, producerID)
	})
	return err
}

// closeProducerByID assumes it runs on the owning goroutine.
func (c *Conference) closeProducerByID(pID, producerID string) error {
	p, ok := c.participants[pID]
	if !ok {
		return mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
	}
	prod := p.Producer(producerID)
	if prod == nil {
		return mediaengine.NewError(mediaengine.ErrNotFound, "producer %s not found", producerID)
	}

	// Every consumer bound to this producer closes first.
	for otherID, other := range c.participants {
		for _, consID := range other.ConsumersOf(producerID) {
			cons := other.Consumer(consID)
			other.RemoveConsumer(consID)
			if cons != nil {
				cons.Engine.Close()
			}
			c.parent.OnNotification(Notification{
				ConferenceID: c.ID,
				Event:        EventConsumerClosed,
				Targets:      []string{otherID},
				Data: ConsumerClosedData{
					ConsumerID:    consID,
					ParticipantID: pID,
				},
			})
		}
	}

	p.RemoveProducer(producerID)
	prod.Engine.Close()

	c.parent.OnNotification(Notification{
		ConferenceID: c.ID,
		Event:        EventProducerClosed,
		Data: ProducerClosedData{
			ProducerID:    producerID,
			ParticipantID: pID,
			Kind:          string(prod.Engine.Kind()),
		},
	})

	return nil
}

// CloseConsumer closes a consumer owned by pID.
func (c *Conference) CloseConsumer(pID, consumerID string) error {
	_, err := do(c, func() (struct{}, error) {
		return struct{}{}, c.closeConsumerByID(pID, consumerID)
	})
	return err
}

func (c *Conference) closeConsumerByID(pID, consumerID string) error {
	p, ok := c.participants[pID]
	if !ok {
		return mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
	}
	cons := p.Consumer(consumerID)
	if cons == nil {
		return mediaengine.NewError(mediaengine.ErrNotFound, "consumer %s not found", consumerID)
	}

	p.RemoveConsumer(consumerID)
	cons.Engine.Close()

	c.parent.OnNotification(Notification{
		ConferenceID: c.ID,
		Event:        EventConsumerClosed,
		Targets:      []string{pID},
		Data: ConsumerClosedData{
			ConsumerID:    consumerID,
			ParticipantID: pID,
		},
	})

	return nil
}

// MuteAudio pauses every audio producer of pID.
func (c *Conference) MuteAudio(pID string) ([]string, error) {
	return c.toggleMute(pID, mediaengine.StreamTypeAudio, true, EventAudioMuted)
}

// UnmuteAudio resumes every audio producer of pID.
func (c *Conference) UnmuteAudio(pID string) ([]string, error) {
	return c.toggleMute(pID, mediaengine.StreamTypeAudio, false, EventAudioUnmuted)
}

// MuteVideo pauses every video producer of pID.
func (c *Conference) MuteVideo(pID string) ([]string, error) {
	return c.toggleMute(pID, mediaengine.StreamTypeVideo, true, EventVideoMuted)
}

// UnmuteVideo resumes every video producer of pID.
func (c *Conference) UnmuteVideo(pID string) ([]string, error) {
	return c.toggleMute(pID, mediaengine.StreamTypeVideo, false, EventVideoUnmuted)
}

func (c *Conference) toggleMute(pID string, kind mediaengine.StreamType, mute bool, event EventName) ([]string, error) {
	return do(c, func() ([]string, error) {
		p, ok := c.participants[pID]
		if !ok {
			return nil, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}

		ctx, cancel := c.opContext()
		defer cancel()

		var (
			ids []string
			err error
		)
		switch {
		case kind == mediaengine.StreamTypeAudio && mute:
			ids, err = p.MuteAudio(ctx)
		case kind == mediaengine.StreamTypeAudio && !mute:
			ids, err = p.UnmuteAudio(ctx)
		case kind == mediaengine.StreamTypeVideo && mute:
			ids, err = p.MuteVideo(ctx)
		default:
			ids, err = p.UnmuteVideo(ctx)
		}
		if err != nil {
			return nil, translateTimeout(err)
		}

		c.parent.OnNotification(Notification{
			ConferenceID: c.ID,
			Event:        event,
			Exclude:      pID,
			Data: MuteData{
				ParticipantID: pID,
				ProducerIDs:   ids,
			},
		})

		return ids, nil
	})
}

// GetParticipants lists every currently joined participant.
func (c *Conference) GetParticipants() []ParticipantSummary {
	return must(do(c, func() ([]ParticipantSummary, error) {
		out := make([]ParticipantSummary, 0, len(c.participants))
		for id, p := range c.participants {
			out = append(out, ParticipantSummary{ParticipantID: id, ParticipantName: p.Name})
		}
		return out, nil
	}))
}

// Leave removes pID and closes everything it owned. If this was the
// last participant, the conference notifies its parent so the registry
// can remove and release it.
func (c *Conference) Leave(pID string) (*LeaveReport, error) {
	var becameEmpty bool

	report, err := do(c, func() (*LeaveReport, error) {
		p, ok := c.participants[pID]
		if !ok {
			return nil, mediaengine.NewError(mediaengine.ErrNotFound, "participant %s not found", pID)
		}

		delete(c.participants, pID)
		closeReport := p.Close()

		c.parent.OnNotification(Notification{
			ConferenceID: c.ID,
			Event:        EventParticipantLeft,
			Data: ParticipantLeftData{
				ParticipantID:     pID,
				ClosedProducerIDs: closeReport.ClosedProducerIDs,
				ClosedConsumerIDs: closeReport.ClosedConsumerIDs,
			},
		})

		becameEmpty = len(c.participants) == 0

		return &LeaveReport{
			ClosedProducerIDs: closeReport.ClosedProducerIDs,
			ClosedConsumerIDs: closeReport.ClosedConsumerIDs,
		}, nil
	})

	if becameEmpty {
		c.parent.OnEmpty(c.ID)
	}

	return report, err
}

// NewTransportID generates an id for a transport the engine does not
// itself version (used by test doubles and the pion engine alike).
func NewTransportID() string {
	return uuid.NewString()
}

// Close terminates the conference's owning goroutine and releases its
// router, without waiting for participants to leave individually. Used
// for worker-quarantine termination and process shutdown.
func (c *Conference) Close() {
	c.cancel()
	c.wg.Wait()
	for _, p := range c.participants {
		p.Close()
	}
	c.router.Close()
}
