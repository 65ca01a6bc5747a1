// Package mediaenginetest provides an in-memory mediaengine.Engine for
// tests of workerpool, participant and conference that would otherwise
// need a live pionengine (and therefore real sockets and real RTP).
package mediaenginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/riftward/sfucore/internal/mediaengine"
)

// Engine is a fake mediaengine.Engine backed by plain Go structs.
type Engine struct {
	mutex   sync.Mutex
	workers []*Worker
}

// NewWorker implements mediaengine.Engine.
func (e *Engine) NewWorker(_ context.Context, id string, codecs []mediaengine.CodecParameters) (mediaengine.Worker, error) {
	w := &Worker{id: id, codecs: codecs, closed: make(chan struct{})}
	e.mutex.Lock()
	e.workers = append(e.workers, w)
	e.mutex.Unlock()
	return w, nil
}

// Quarantine force-closes the Closed() channel of the worker with the
// given id, simulating a fatal engine-side error.
func (e *Engine) Quarantine(id string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, w := range e.workers {
		if w.id == id {
			w.quarantine()
			return
		}
	}
}

// Worker is a fake mediaengine.Worker.
type Worker struct {
	id     string
	codecs []mediaengine.CodecParameters

	mutex   sync.Mutex
	routers []*Router
	cpu     atomic.Value // float64

	closeOnce sync.Once
	closed    chan struct{}
}

// CPU sets the value CPUUsage reports.
func (w *Worker) CPU(v float64) { w.cpu.Store(v) }

func (w *Worker) ID() string { return w.id }

func (w *Worker) NewRouter(_ context.Context) (mediaengine.Router, error) {
	r := &Router{codecs: w.codecs}
	w.mutex.Lock()
	w.routers = append(w.routers, r)
	w.mutex.Unlock()
	return r, nil
}

func (w *Worker) CPUUsage() float64 {
	v, _ := w.cpu.Load().(float64)
	return v
}

func (w *Worker) RouterCount() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.routers)
}

func (w *Worker) Closed() <-chan struct{} { return w.closed }

func (w *Worker) quarantine() {
	w.closeOnce.Do(func() { close(w.closed) })
}

func (w *Worker) Close() {
	w.quarantine()
}

// Router is a fake mediaengine.Router.
type Router struct {
	codecs []mediaengine.CodecParameters

	mutex      sync.Mutex
	transports []*Transport
	closed     bool
}

func (r *Router) RTPCapabilities() mediaengine.RTPCapabilities {
	names := make([]string, len(r.codecs))
	for i, c := range r.codecs {
		names[i] = c.MimeType
	}
	return mediaengine.RTPCapabilities{"codecs": names}
}

// CanConsume is true for any non-empty producer id; unlike
// pionengine.Router it ignores rtpCapabilities.
func (r *Router) CanConsume(producerID string, _ mediaengine.RTPCapabilities) bool {
	return producerID != ""
}

func (r *Router) NewTransport(_ context.Context, direction mediaengine.Direction, _ mediaengine.TransportOptions) (mediaengine.Transport, error) {
	t := &Transport{
		id:        uuid.NewString(),
		direction: direction,
		state:     mediaengine.TransportStateNew,
		closed:    make(chan struct{}),
	}
	r.mutex.Lock()
	r.transports = append(r.transports, t)
	r.mutex.Unlock()
	return t, nil
}

func (r *Router) Close() {
	r.mutex.Lock()
	transports := r.transports
	r.closed = true
	r.mutex.Unlock()
	for _, t := range transports {
		t.Close()
	}
}

// Transport is a fake mediaengine.Transport. Produce/Consume never touch
// real RTP; Producer/Consumer here are pure bookkeeping.
type Transport struct {
	id        string
	direction mediaengine.Direction

	mutex sync.Mutex
	state mediaengine.TransportState

	closeOnce sync.Once
	closed    chan struct{}

	// FailConnect, when set, makes Connect return this error instead of
	// transitioning to connected.
	FailConnect error
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Descriptor() mediaengine.TransportDescriptor {
	return mediaengine.TransportDescriptor{
		ID:            t.id,
		IceParameters: mediaengine.IceParameters{"usernameFragment": t.id},
	}
}

func (t *Transport) Connect(_ context.Context, _ mediaengine.DtlsParameters) error {
	if t.FailConnect != nil {
		return t.FailConnect
	}
	t.mutex.Lock()
	t.state = mediaengine.TransportStateConnected
	t.mutex.Unlock()
	return nil
}

func (t *Transport) State() mediaengine.TransportState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

func (t *Transport) Produce(_ context.Context, kind mediaengine.Kind, rtpParameters mediaengine.RTPParameters) (mediaengine.Producer, error) {
	return &Producer{id: uuid.NewString(), kind: kind, rtpParameters: rtpParameters, closed: make(chan struct{})}, nil
}

func (t *Transport) Consume(_ context.Context, producer mediaengine.Producer, _ mediaengine.RTPCapabilities) (mediaengine.Consumer, error) {
	c := &Consumer{
		id:         uuid.NewString(),
		producerID: producer.ID(),
		kind:       producer.Kind(),
		closed:     make(chan struct{}),
	}
	c.paused.Store(true)
	return c, nil
}

func (t *Transport) Closed() <-chan struct{} { return t.closed }

func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.closed) })
}

// Producer is a fake mediaengine.Producer.
type Producer struct {
	id            string
	kind          mediaengine.Kind
	rtpParameters mediaengine.RTPParameters

	paused atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (p *Producer) ID() string                         { return p.id }
func (p *Producer) Kind() mediaengine.Kind              { return p.kind }
func (p *Producer) RTPParameters() mediaengine.RTPParameters { return p.rtpParameters }
func (p *Producer) Pause(context.Context) error         { p.paused.Store(true); return nil }
func (p *Producer) Resume(context.Context) error        { p.paused.Store(false); return nil }
func (p *Producer) Paused() bool                        { return p.paused.Load() }
func (p *Producer) Closed() <-chan struct{}             { return p.closed }
func (p *Producer) Close()                              { p.closeOnce.Do(func() { close(p.closed) }) }

// Consumer is a fake mediaengine.Consumer.
type Consumer struct {
	id         string
	producerID string
	kind       mediaengine.Kind

	paused atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *Consumer) ID() string                         { return c.id }
func (c *Consumer) ProducerID() string                 { return c.producerID }
func (c *Consumer) Kind() mediaengine.Kind              { return c.kind }
func (c *Consumer) RTPParameters() mediaengine.RTPParameters { return nil }
func (c *Consumer) Resume(context.Context) error        { c.paused.Store(false); return nil }
func (c *Consumer) Paused() bool                        { return c.paused.Load() }
func (c *Consumer) Closed() <-chan struct{}             { return c.closed }
func (c *Consumer) Close()                              { c.closeOnce.Do(func() { close(c.closed) }) }
