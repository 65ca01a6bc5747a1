package pionengine

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/riftward/sfucore/internal/mediaengine"
)

// Transport is a per-participant ICE/DTLS/(optionally SCTP) endpoint,
// built from pion/webrtc's standalone ORTC transport objects rather
// than a monolithic PeerConnection, since the signaling protocol
// exchanges these parameters independently.
type Transport struct {
	id        string
	router    *Router
	direction mediaengine.Direction

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	sctp     *webrtc.SCTPTransport

	stateMutex sync.Mutex
	state      mediaengine.TransportState

	producers map[*Producer]struct{}
	consumers map[*Consumer]struct{}
	mutex     sync.Mutex

	closed  chan struct{}
	once    sync.Once
	onClose func()

	connectOnce sync.Once
	connectErr  error
}

func newTransport(
	ctx context.Context,
	router *Router,
	direction mediaengine.Direction,
	opts mediaengine.TransportOptions,
) (*Transport, error) {
	policy := webrtc.ICEGatherPolicyAll

	gatherer, err := router.api.NewICEGatherer(webrtc.ICEGatherOptions{
		ICEGatherPolicy: policy,
	})
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	ice := router.api.NewICETransport(gatherer)
	dtls, err := router.api.NewDTLSTransport(ice, []webrtc.Certificate{router.certificate})
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	t := &Transport{
		id:        newID(),
		router:    router,
		direction: direction,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		producers: make(map[*Producer]struct{}),
		consumers: make(map[*Consumer]struct{}),
		closed:    make(chan struct{}),
		state:     mediaengine.TransportStateNew,
	}

	if opts.EnableSCTP {
		sctp, err := router.api.NewSCTPTransport(dtls)
		if err != nil {
			return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
		}
		t.sctp = sctp
	}

	ice.OnConnectionStateChange(func(state webrtc.ICETransportState) {
		if state == webrtc.ICETransportStateFailed || state == webrtc.ICETransportStateDisconnected {
			t.setState(mediaengine.TransportStateFailed)
		}
	})
	dtls.OnStateChange(func(state webrtc.DTLSTransportState) {
		switch state {
		case webrtc.DTLSTransportStateConnected:
			t.setState(mediaengine.TransportStateConnected)
		case webrtc.DTLSTransportStateFailed, webrtc.DTLSTransportStateClosed:
			t.setState(mediaengine.TransportStateFailed)
		}
	})

	if err := gatherer.Gather(); err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	return t, nil
}

func (t *Transport) setState(s mediaengine.TransportState) {
	t.stateMutex.Lock()
	t.state = s
	t.stateMutex.Unlock()
}

// ID implements mediaengine.Transport.
func (t *Transport) ID() string { return t.id }

// State implements mediaengine.Transport.
func (t *Transport) State() mediaengine.TransportState {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	return t.state
}

// Descriptor implements mediaengine.Transport.
func (t *Transport) Descriptor() mediaengine.TransportDescriptor {
	iceParams, _ := t.gatherer.GetLocalParameters()
	candidates, _ := t.gatherer.GetLocalCandidates()
	dtlsParams, _ := t.dtls.GetLocalParameters()

	iceCandidates := make(mediaengine.IceCandidates, 0, len(candidates))
	for _, c := range candidates {
		iceCandidates = append(iceCandidates, map[string]interface{}{
			"foundation": c.Foundation,
			"priority":   c.Priority,
			"ip":         c.Address,
			"protocol":   c.Protocol.String(),
			"port":       c.Port,
			"type":       c.Typ.String(),
		})
	}

	fingerprints := make([]map[string]interface{}, 0, len(dtlsParams.Fingerprints))
	for _, f := range dtlsParams.Fingerprints {
		fingerprints = append(fingerprints, map[string]interface{}{
			"algorithm": f.Algorithm,
			"value":     f.Value,
		})
	}

	desc := mediaengine.TransportDescriptor{
		ID: t.id,
		IceParameters: mediaengine.IceParameters{
			"usernameFragment": iceParams.UsernameFragment,
			"password":         iceParams.Password,
		},
		IceCandidates: iceCandidates,
		DtlsParameters: mediaengine.DtlsParameters{
			"role":         dtlsParams.Role.String(),
			"fingerprints": fingerprints,
		},
	}

	if t.sctp != nil {
		caps := t.sctp.GetCapabilities()
		desc.SctpParameters = mediaengine.SctpParameters{
			"maxMessageSize": caps.MaxMessageSize,
		}
	}

	return desc
}

// Connect implements mediaengine.Transport: starts ICE in controlled
// role and DTLS with the client's remote parameters. Safe to call more
// than once; only the first call drives the engine.
func (t *Transport) Connect(ctx context.Context, dtls mediaengine.DtlsParameters) error {
	t.connectOnce.Do(func() {
		role := webrtc.ICERoleControlled

		remoteParams := webrtc.ICEParameters{}
		if err := t.ice.Start(t.gatherer, remoteParams, &role); err != nil {
			t.connectErr = err
			return
		}

		fingerprints := parseFingerprints(dtls)
		remoteDTLS := webrtc.DTLSParameters{Fingerprints: fingerprints}

		if err := t.dtls.Start(remoteDTLS); err != nil {
			t.connectErr = err
			return
		}

		if t.sctp != nil {
			if err := t.sctp.Start(webrtc.SCTPCapabilities{}); err != nil {
				t.connectErr = err
				return
			}
		}

		t.setState(mediaengine.TransportStateConnected)
	})
	return t.connectErr
}

// rtpEncodingFromParameters extracts the SSRC and payload type the
// client negotiated for this producer out of its opaque RTPParameters,
// defaulting to zero values (let pion pick up the first packet's own
// headers) if the client omitted them.
func rtpEncodingFromParameters(p mediaengine.RTPParameters) (ssrc webrtc.SSRC, payloadType webrtc.PayloadType) {
	if encodings, ok := p["encodings"].([]interface{}); ok && len(encodings) > 0 {
		if enc, ok := encodings[0].(map[string]interface{}); ok {
			if v, ok := enc["ssrc"].(float64); ok {
				ssrc = webrtc.SSRC(uint32(v))
			}
		}
	}
	if codecs, ok := p["codecs"].([]interface{}); ok && len(codecs) > 0 {
		if codec, ok := codecs[0].(map[string]interface{}); ok {
			if v, ok := codec["payloadType"].(float64); ok {
				payloadType = webrtc.PayloadType(uint8(v))
			}
		}
	}
	return ssrc, payloadType
}

func parseFingerprints(dtls mediaengine.DtlsParameters) []webrtc.DTLSFingerprint {
	raw, ok := dtls["fingerprints"]
	if !ok {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]webrtc.DTLSFingerprint, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		algo, _ := m["algorithm"].(string)
		value, _ := m["value"].(string)
		out = append(out, webrtc.DTLSFingerprint{Algorithm: algo, Value: value})
	}
	return out
}

// Produce implements mediaengine.Transport.
func (t *Transport) Produce(ctx context.Context, kind mediaengine.Kind, rtpParameters mediaengine.RTPParameters) (mediaengine.Producer, error) {
	codecType := webrtc.RTPCodecTypeVideo
	if kind == mediaengine.KindAudio {
		codecType = webrtc.RTPCodecTypeAudio
	}

	receiver, err := t.router.api.NewRTPReceiver(codecType, t.dtls)
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	ssrc, payloadType := rtpEncodingFromParameters(rtpParameters)
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{
			{RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: ssrc, PayloadType: payloadType}},
		},
	})
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	p := newProducer(t, receiver, kind, rtpParameters)

	t.mutex.Lock()
	t.producers[p] = struct{}{}
	t.mutex.Unlock()

	p.onClose = func() {
		t.mutex.Lock()
		delete(t.producers, p)
		t.mutex.Unlock()
	}

	p.start()

	return p, nil
}

// Consume implements mediaengine.Transport.
func (t *Transport) Consume(ctx context.Context, producer mediaengine.Producer, rtpCapabilities mediaengine.RTPCapabilities) (mediaengine.Consumer, error) {
	pr, ok := producer.(*Producer)
	if !ok {
		return nil, mediaengine.NewError(mediaengine.ErrEngine, "producer is not from this engine")
	}

	if !t.router.CanConsume(pr.ID(), rtpCapabilities) {
		return nil, mediaengine.NewError(mediaengine.ErrIncompatibleCodecs, "router cannot consume producer %s", pr.ID())
	}

	track, err := webrtc.NewTrackLocalStaticRTP(pr.receiver.Track().Codec().RTPCodecCapability, "consumer", "sfucore")
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	if err := sender.Send(webrtc.RTPSendParameters{
		RTPParameters: webrtc.RTPParameters{
			Codecs: []webrtc.RTPCodecParameters{pr.receiver.Track().Codec()},
		},
	}); err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	c := newConsumer(t, sender, track, pr)

	t.mutex.Lock()
	t.consumers[c] = struct{}{}
	t.mutex.Unlock()

	c.onClose = func() {
		t.mutex.Lock()
		delete(t.consumers, c)
		t.mutex.Unlock()
	}

	pr.attach(c)

	return c, nil
}

// Closed implements mediaengine.Transport.
func (t *Transport) Closed() <-chan struct{} {
	return t.closed
}

// Close implements mediaengine.Transport.
func (t *Transport) Close() {
	t.once.Do(func() {
		t.mutex.Lock()
		producers := make([]*Producer, 0, len(t.producers))
		for p := range t.producers {
			producers = append(producers, p)
		}
		consumers := make([]*Consumer, 0, len(t.consumers))
		for c := range t.consumers {
			consumers = append(consumers, c)
		}
		t.mutex.Unlock()

		for _, c := range consumers {
			c.Close()
		}
		for _, p := range producers {
			p.Close()
		}

		t.dtls.Stop()
		t.ice.Stop()
		t.setState(mediaengine.TransportStateClosed)
		close(t.closed)

		if t.onClose != nil {
			t.onClose()
		}
	})
}
