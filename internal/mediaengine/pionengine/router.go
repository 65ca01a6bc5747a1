package pionengine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/riftward/sfucore/internal/mediaengine"
)

// Router is a per-conference media-routing object. It holds no state
// of its own beyond the codec set it negotiates with and the
// certificate its transports present during DTLS; producers and
// consumers live entirely on their owning Transport.
type Router struct {
	worker      *Worker
	api         *webrtc.API
	codecs      []mediaengine.CodecParameters
	certificate webrtc.Certificate

	mutex      sync.Mutex
	transports map[*Transport]struct{}
	onClose    func()
}

// RTPCapabilities implements mediaengine.Router.
func (r *Router) RTPCapabilities() mediaengine.RTPCapabilities {
	codecs := make([]map[string]interface{}, 0, len(r.codecs))
	for _, c := range r.codecs {
		codecs = append(codecs, map[string]interface{}{
			"kind":        string(c.Kind),
			"mimeType":    c.MimeType,
			"clockRate":   c.ClockRate,
			"channels":    c.Channels,
			"parameters":  c.Parameters,
			"payloadType": c.PayloadType,
		})
	}
	return mediaengine.RTPCapabilities{"codecs": codecs}
}

// CanConsume implements mediaengine.Router. It ignores the producer id
// and checks only that rtpCapabilities carries a "codecs" entry: a
// non-empty []interface{} list, or a list in the router's own
// RTPCapabilities shape. It does not compare the producer's codec with
// that list or with the router's codecs, and Transport.Consume repeats
// this same check rather than a finer one.
func (r *Router) CanConsume(_ string, rtpCapabilities mediaengine.RTPCapabilities) bool {
	codecs, ok := rtpCapabilities["codecs"]
	if !ok {
		return false
	}
	list, ok := codecs.([]interface{})
	if !ok {
		// Also accept the router's own representation, since a caller may
		// round-trip RTPCapabilities() straight back in.
		_, ok2 := codecs.([]map[string]interface{})
		return ok2
	}
	return len(list) > 0
}

// NewTransport implements mediaengine.Router.
func (r *Router) NewTransport(ctx context.Context, direction mediaengine.Direction, opts mediaengine.TransportOptions) (mediaengine.Transport, error) {
	t, err := newTransport(ctx, r, direction, opts)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	if r.transports == nil {
		r.transports = make(map[*Transport]struct{})
	}
	r.transports[t] = struct{}{}
	r.mutex.Unlock()

	t.onClose = func() {
		r.mutex.Lock()
		delete(r.transports, t)
		r.mutex.Unlock()
	}

	return t, nil
}

// Close implements mediaengine.Router.
func (r *Router) Close() {
	r.mutex.Lock()
	transports := make([]*Transport, 0, len(r.transports))
	for t := range r.transports {
		transports = append(transports, t)
	}
	r.mutex.Unlock()

	for _, t := range transports {
		t.Close()
	}

	if r.onClose != nil {
		r.onClose()
	}
}

func newID() string {
	return uuid.NewString()
}
