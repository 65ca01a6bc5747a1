// Package pionengine is a concrete, pion/webrtc-backed implementation
// of the mediaengine contract. It exists so the conference core can be
// exercised and tested end-to-end and so the pion/webrtc dependency
// stack has a real caller; it is a reference backend, not the hardened
// production SFU the coordination core assumes lives behind
// mediaengine.Engine in production.
//
// It uses pion/webrtc's componentized ICE/DTLS/SCTP transport objects
// (the same building blocks pion's own ORTC examples use) rather than
// the monolithic SDP-offer/answer PeerConnection API, because the
// signaling protocol this engine serves exchanges ICE/DTLS parameters
// as independent JSON blobs, mediasoup-style, not as SDP.
package pionengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
)

// Engine creates Workers backed by a shared pion/webrtc media engine
// configuration.
type Engine struct {
	Logger logger.Writer
}

// New creates an Engine.
func New(log logger.Writer) *Engine {
	return &Engine{Logger: log}
}

// NewWorker builds a webrtc.API pre-loaded with codecs and wraps it in
// a Worker.
func (e *Engine) NewWorker(_ context.Context, id string, codecs []mediaengine.CodecParameters) (mediaengine.Worker, error) {
	api, err := buildAPI(codecs, e.Logger)
	if err != nil {
		return nil, err
	}

	return &Worker{
		id:     id,
		api:    api,
		codecs: codecs,
		parent: e.Logger,
		closed: make(chan struct{}),
	}, nil
}

// buildAPI assembles a webrtc.API pre-loaded with codecs. Shared by
// NewWorker and Worker.UpdateCodecs so a configuration reload builds
// the replacement API the exact same way the original was built.
func buildAPI(codecs []mediaengine.CodecParameters, log logger.Writer) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}

	for _, c := range codecs {
		if err := registerCodec(m, c); err != nil {
			return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
		}
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.LoggerFactory = &pionLoggerFactory{parent: log}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

func registerCodec(m *webrtc.MediaEngine, c mediaengine.CodecParameters) error {
	switch c.Kind {
	case mediaengine.KindAudio:
		return m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: fmtpLine(c.Parameters),
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, webrtc.RTPCodecTypeAudio)
	case mediaengine.KindVideo:
		return m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				SDPFmtpLine: fmtpLine(c.Parameters),
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, webrtc.RTPCodecTypeVideo)
	default:
		return fmt.Errorf("unsupported codec kind %q", c.Kind)
	}
}

func fmtpLine(params map[string]string) string {
	out := ""
	first := true
	for k, v := range params {
		if !first {
			out += ";"
		}
		first = false
		out += k + "=" + v
	}
	return out
}

// Worker hosts routers sharing one webrtc.API instance. api/codecs are
// guarded by mutex, not because routers themselves are reassigned --
// once a Router exists it keeps the api/certificate it was built with
// -- but because UpdateCodecs replaces them for routers created from
// this point on, racing against concurrent NewRouter calls.
type Worker struct {
	id     string
	parent logger.Writer

	mutex   sync.Mutex
	api     *webrtc.API
	codecs  []mediaengine.CodecParameters
	routers map[*Router]struct{}

	cpuUsage atomic.Uint64 // bits of a float64, updated by CPUUsage callers' sampler if wired externally

	closed chan struct{}
	once   sync.Once
}

// ID implements mediaengine.Worker.
func (w *Worker) ID() string { return w.id }

// CPUUsage implements mediaengine.Worker. This reference engine runs
// every worker in the same OS process, so there is no real per-worker
// CPU isolation to sample; it always reports 0 and lets the
// WorkerPool's cost metric fall back to router count.
func (w *Worker) CPUUsage() float64 { return 0 }

// RouterCount implements mediaengine.Worker.
func (w *Worker) RouterCount() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.routers)
}

// NewRouter implements mediaengine.Worker.
func (w *Worker) NewRouter(_ context.Context) (mediaengine.Router, error) {
	cert, err := webrtc.GenerateCertificate(nil)
	if err != nil {
		return nil, mediaengine.Wrap(mediaengine.ErrEngine, err)
	}

	w.mutex.Lock()
	r := &Router{
		worker:      w,
		api:         w.api,
		codecs:      w.codecs,
		certificate: cert,
	}
	if w.routers == nil {
		w.routers = make(map[*Router]struct{})
	}
	w.routers[r] = struct{}{}
	w.mutex.Unlock()

	r.onClose = func() {
		w.mutex.Lock()
		delete(w.routers, r)
		w.mutex.Unlock()
	}

	return r, nil
}

// Closed implements mediaengine.Worker.
func (w *Worker) Closed() <-chan struct{} {
	return w.closed
}

// UpdateCodecs rebuilds the webrtc.API new routers are created with.
// Routers (and the transports/producers/consumers built on them)
// already in flight keep using the api they were created with; this
// only takes effect for routers created after it returns, per the
// configuration reload contract.
func (w *Worker) UpdateCodecs(codecs []mediaengine.CodecParameters) error {
	api, err := buildAPI(codecs, w.parent)
	if err != nil {
		return err
	}

	w.mutex.Lock()
	w.api = api
	w.codecs = codecs
	w.mutex.Unlock()

	return nil
}

// Quarantine marks the worker as fatally failed; existing routers keep
// running but no new ones will be created here by WorkerPool.
func (w *Worker) Quarantine() {
	w.once.Do(func() { close(w.closed) })
}

// Close implements mediaengine.Worker.
func (w *Worker) Close() {
	w.mutex.Lock()
	routers := make([]*Router, 0, len(w.routers))
	for r := range w.routers {
		routers = append(routers, r)
	}
	w.mutex.Unlock()

	for _, r := range routers {
		r.Close()
	}

	w.Quarantine()
}

type pionLoggerFactory struct {
	parent logger.Writer
}

func (f *pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{parent: f.parent, scope: scope}
}

type pionLogger struct {
	parent logger.Writer
	scope  string
}

func (l *pionLogger) Trace(msg string)                          {}
func (l *pionLogger) Tracef(format string, args ...interface{}) {}
func (l *pionLogger) Debug(msg string)                          { l.parent.Log(logger.Debug, "[%s] %s", l.scope, msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.parent.Log(logger.Debug, "[%s] "+format, append([]interface{}{l.scope}, args...)...)
}
func (l *pionLogger) Info(msg string) { l.parent.Log(logger.Info, "[%s] %s", l.scope, msg) }
func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.parent.Log(logger.Info, "[%s] "+format, append([]interface{}{l.scope}, args...)...)
}
func (l *pionLogger) Warn(msg string) { l.parent.Log(logger.Warn, "[%s] %s", l.scope, msg) }
func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.parent.Log(logger.Warn, "[%s] "+format, append([]interface{}{l.scope}, args...)...)
}
func (l *pionLogger) Error(msg string) { l.parent.Log(logger.Error, "[%s] %s", l.scope, msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.parent.Log(logger.Error, "[%s] "+format, append([]interface{}{l.scope}, args...)...)
}
