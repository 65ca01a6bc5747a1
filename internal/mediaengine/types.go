// Package mediaengine defines the contract the conference core uses to
// talk to the underlying media-routing engine (the native SFU). The
// engine itself -- the component that actually creates routers, WebRTC
// transports, producers and consumers -- is an external collaborator;
// this package only fixes the shape of that collaboration so Conference
// and Participant never depend on a concrete implementation.
package mediaengine

// Direction is the directionality of a Transport.
type Direction string

// Transport directions.
const (
	DirectionProducer Direction = "producer"
	DirectionConsumer Direction = "consumer"
)

// Kind is the media kind of a Producer/Consumer.
type Kind string

// Media kinds.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// StreamType is the application-level tag on a producer.
type StreamType string

// Stream types.
const (
	StreamTypeAudio       StreamType = "audio"
	StreamTypeVideo       StreamType = "video"
	StreamTypeScreenshare StreamType = "screenshare"
)

// TransportState is the lifecycle state of a Transport.
type TransportState string

// Transport states.
const (
	TransportStateNew       TransportState = "new"
	TransportStateConnected TransportState = "connected"
	TransportStateFailed    TransportState = "failed"
	TransportStateClosed    TransportState = "closed"
)

// RTPCapabilities describes the codecs and header extensions a peer can
// send or receive. Its internal shape is opaque to the conference core;
// it is only ever handed to the engine for compatibility checks and to
// clients verbatim.
type RTPCapabilities map[string]interface{}

// RTPParameters describes how a single producer/consumer encodes RTP.
// Opaque to the conference core, same rationale as RTPCapabilities.
type RTPParameters map[string]interface{}

// IceParameters, IceCandidates, DtlsParameters and SctpParameters are
// opaque WebRTC negotiation blobs returned by the engine and forwarded
// to clients verbatim.
type IceParameters map[string]interface{}

// IceCandidates is a list of opaque ICE candidate descriptors.
type IceCandidates []map[string]interface{}

// DtlsParameters is an opaque DTLS fingerprint/role descriptor.
type DtlsParameters map[string]interface{}

// SctpParameters is an opaque SCTP association descriptor, present only
// on transports that negotiate a data channel capability.
type SctpParameters map[string]interface{}

// TransportDescriptor is returned by CreateTransport; it carries
// everything a client needs to complete ICE/DTLS negotiation.
type TransportDescriptor struct {
	ID              string
	IceParameters   IceParameters
	IceCandidates   IceCandidates
	DtlsParameters  DtlsParameters
	SctpParameters  SctpParameters
}
