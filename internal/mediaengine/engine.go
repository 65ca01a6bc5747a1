package mediaengine

import "context"

// Engine creates Workers at startup. It is the single entry point the
// rest of the process uses to reach the media-routing engine.
type Engine interface {
	// NewWorker instantiates a worker backed by this engine, pre-loaded
	// with the given codec preference list.
	NewWorker(ctx context.Context, id string, codecs []CodecParameters) (Worker, error)
}

// CodecParameters mirrors conf.Codec without importing the conf
// package, so mediaengine has no dependency on configuration shapes.
type CodecParameters struct {
	Kind       Kind
	MimeType   string
	ClockRate  uint32
	Channels   uint16
	Parameters map[string]string
	PayloadType uint8
}

// Worker is one media-engine process/thread able to host many routers.
type Worker interface {
	// ID is the stable worker identifier used for tie-breaking in
	// WorkerPool selection.
	ID() string

	// NewRouter creates a router isolated to a single conference.
	NewRouter(ctx context.Context) (Router, error)

	// CPUUsage returns a recent CPU usage sample in [0,1], used by the
	// WorkerPool cost metric.
	CPUUsage() float64

	// RouterCount returns the number of routers currently open on this
	// worker, used by the WorkerPool cost metric.
	RouterCount() int

	// Closed reports whether the engine has quarantined this worker
	// after a fatal error.
	Closed() <-chan struct{}

	// Close releases every router this worker still owns.
	Close()
}

// Router is a per-conference media-routing object.
type Router interface {
	// RTPCapabilities returns the codec/header-extension descriptor
	// advertised to joining participants.
	RTPCapabilities() RTPCapabilities

	// CanConsume reports whether a consumer with the given capabilities
	// can receive producerID's media.
	CanConsume(producerID string, rtpCapabilities RTPCapabilities) bool

	// NewTransport creates a producer or consumer transport on this
	// router.
	NewTransport(ctx context.Context, direction Direction, opts TransportOptions) (Transport, error)

	// Close releases the router and every transport it still owns.
	Close()
}

// TransportOptions mirrors conf.TransportOptions.
type TransportOptions struct {
	EnableUDP                      bool
	EnableTCP                      bool
	PreferUDP                      bool
	EnableSCTP                     bool
	InitialAvailableOutgoingBitrate uint32
	AnnouncedIP                    string
	MinPort                        uint16
	MaxPort                        uint16
}

// Transport is a per-participant ICE/DTLS/SRTP endpoint.
type Transport interface {
	// ID is the engine-assigned transport id.
	ID() string

	// Descriptor returns the negotiation blob handed to the client.
	Descriptor() TransportDescriptor

	// Connect completes DTLS negotiation. Calling Connect again with
	// identical parameters after a first success is a no-op returning
	// nil (idempotence required by the spec).
	Connect(ctx context.Context, dtls DtlsParameters) error

	// State returns the current transport lifecycle state.
	State() TransportState

	// Produce creates a producer on this transport. Only valid on a
	// producer-direction transport in the connected state.
	Produce(ctx context.Context, kind Kind, rtpParameters RTPParameters) (Producer, error)

	// Consume creates a consumer on this transport bound to producer.
	// Only valid on a consumer-direction transport. The returned
	// consumer always starts paused.
	Consume(ctx context.Context, producer Producer, rtpCapabilities RTPCapabilities) (Consumer, error)

	// Closed fires when the engine closes this transport spontaneously
	// (ICE failure, worker fault).
	Closed() <-chan struct{}

	// Close releases the transport and everything built on it.
	Close()
}

// Producer is a server-side object receiving RTP from a producer
// transport.
type Producer interface {
	ID() string
	Kind() Kind
	RTPParameters() RTPParameters
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Paused() bool

	// Closed fires when the engine closes this producer spontaneously.
	Closed() <-chan struct{}
	Close()
}

// Consumer is a server-side object forwarding one producer's RTP to one
// consumer transport.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	RTPParameters() RTPParameters
	Resume(ctx context.Context) error
	Paused() bool

	// Closed fires when the engine closes this consumer spontaneously
	// (typically because its producer closed).
	Closed() <-chan struct{}
	Close()
}
