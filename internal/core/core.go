// Package core wires every component of the conference core together:
// configuration, logging, the media engine and its worker pool, the
// conference registry, the signaling gateway and the metrics listener.
// Grounded on the teacher's own core.go: a long-lived struct built
// once by New, torn down in reverse order by Close, with a run loop
// that watches for configuration changes and OS signals.
package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/riftward/sfucore/internal/conf"
	"github.com/riftward/sfucore/internal/confwatcher"
	"github.com/riftward/sfucore/internal/externalcmd"
	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/mediaengine/pionengine"
	"github.com/riftward/sfucore/internal/metrics"
	"github.com/riftward/sfucore/internal/registry"
	"github.com/riftward/sfucore/internal/rlimit"
	"github.com/riftward/sfucore/internal/signaling"
	"github.com/riftward/sfucore/internal/workerpool"
)

var version = "v0.0.0"

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:""`
}

// Core is an instance of the conference core.
type Core struct {
	ctx       context.Context
	ctxCancel func()
	confPath  string
	conf      *conf.Conf

	logger          *logger.Logger
	externalCmdPool *externalcmd.Pool
	engine          *pionengine.Engine
	pool            *workerpool.Pool
	registry        *registry.Registry
	gateway         *signaling.Gateway
	metrics         *metrics.Metrics
	confWatcher     *confwatcher.ConfWatcher

	done chan struct{}
}

// New allocates a Core, parsing args as a CLI invocation.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("sfucore "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is sfucore.yml."
			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		done:      make(chan struct{}),
	}

	c, err := conf.Load(cli.Confpath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}
	p.conf = c

	if err := p.createResources(); err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources()
		return nil, false
	}

	go p.run()

	return p, true
}

// Close stops Core and waits for it to exit.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for Core to exit on its own (e.g. after SIGINT/SIGTERM).
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) createResources() error {
	if err := rlimit.Raise(); err != nil {
		fmt.Printf("WARN: could not raise file descriptor limit: %s\n", err)
	}

	l, err := logger.New(
		logger.Level(p.conf.LogLevel),
		p.conf.LogDestinations,
		p.conf.LogFile,
		"sfucore",
		p.conf.StructuredLogs,
	)
	if err != nil {
		return err
	}
	p.logger = l

	p.Log(logger.Info, "sfucore %s", version)

	p.externalCmdPool = &externalcmd.Pool{}
	p.externalCmdPool.Initialize()

	p.engine = pionengine.New(p)

	codecs := convertCodecs(p.conf.Codecs)

	workerCount := p.conf.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	pool, err := workerpool.New(
		p.ctx,
		p.engine,
		workerCount,
		codecs,
		p.conf.WorkerCostCPUWeight,
		p.conf.WorkerCostRouterWeight,
		p,
	)
	if err != nil {
		return err
	}
	p.pool = pool

	transportOptions := mediaengine.TransportOptions{
		EnableUDP:                       p.conf.TransportOptions.EnableUDP,
		EnableTCP:                       p.conf.TransportOptions.EnableTCP,
		PreferUDP:                       p.conf.TransportOptions.PreferUDP,
		EnableSCTP:                      p.conf.TransportOptions.EnableSCTP,
		InitialAvailableOutgoingBitrate: p.conf.TransportOptions.InitialAvailableOutgoingBitrate,
		AnnouncedIP:                     p.conf.AnnouncedIP,
		MinPort:                         p.conf.RTCMinPort,
		MaxPort:                         p.conf.RTCMaxPort,
	}

	// Gateway and Registry reference each other (Gateway fans out
	// Registry/Conference notifications to sockets; Registry needs
	// Gateway as its notification sink), so Gateway is allocated first
	// and wired into Registry, then Registry is wired back into Gateway
	// before Initialize opens the listener.
	p.gateway = &signaling.Gateway{
		Address:               fmt.Sprintf(":%d", p.conf.Port),
		ServerCert:            p.conf.ServerCert,
		ServerKey:             p.conf.ServerKey,
		ReadTimeout:           p.conf.ReadTimeout,
		MaxMessageSize:        p.conf.MaxMessageSize,
		ExternalCmdPool:       p.externalCmdPool,
		RunOnParticipantJoin:  p.conf.RunOnParticipantJoin,
		RunOnParticipantLeave: p.conf.RunOnParticipantLeave,
		Parent:                p,
	}

	p.registry = registry.New(
		p.pool,
		p.conf.MaxParticipantsPerConference,
		time.Duration(p.conf.OperationTimeout),
		transportOptions,
		p.externalCmdPool,
		p.conf.RunOnConferenceCreate,
		p.conf.RunOnConferenceCreateRestart,
		p.conf.RunOnConferenceEmpty,
		p.gateway,
	)

	p.gateway.Registry = p.registry
	if err := p.gateway.Initialize(); err != nil {
		return err
	}

	p.metrics = &metrics.Metrics{
		Address:        fmt.Sprintf(":%d", p.conf.MetricsPort),
		ServerCert:     p.conf.ServerCert,
		ServerKey:      p.conf.ServerKey,
		ReadTimeout:    p.conf.ReadTimeout,
		MaxMessageSize: p.conf.MaxMessageSize,
		Provider:       combinedProvider{registry: p.registry, gateway: p.gateway},
		Parent:         p,
	}
	if err := p.metrics.Initialize(); err != nil {
		return err
	}

	if p.confPath != "" {
		w, err := confwatcher.New(p.confPath)
		if err != nil {
			p.Log(logger.Warn, "could not start configuration watcher: %s", err)
		} else {
			p.confWatcher = w
		}
	}

	return nil
}

func (p *Core) closeResources() {
	if p.confWatcher != nil {
		p.confWatcher.Close()
	}
	if p.metrics != nil {
		p.metrics.Close()
	}
	if p.gateway != nil {
		p.gateway.Close()
	}
	if p.registry != nil {
		p.registry.Close()
	}
	if p.pool != nil {
		p.pool.Close()
	}
	if p.externalCmdPool != nil {
		p.externalCmdPool.Close()
	}
	if p.logger != nil {
		p.logger.Close()
	}
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, err := conf.Load(p.confPath)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			p.reloadConf(newConf)

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.closeResources()
}

// reloadConf applies the subset of configuration that can change
// without a restart: log level, lifecycle hook commands (participant
// and conference), and the codec list offered to routers created from
// now on. Port, rtcMinPort and rtcMaxPort changes are intentionally not
// picked up here; they require a process restart since they are baked
// into already-open listeners and already-gathered ICE candidates.
func (p *Core) reloadConf(newConf *conf.Conf) {
	p.logger.SetLevel(logger.Level(newConf.LogLevel))

	p.gateway.RunOnParticipantJoin = newConf.RunOnParticipantJoin
	p.gateway.RunOnParticipantLeave = newConf.RunOnParticipantLeave

	p.registry.UpdateHooks(newConf.RunOnConferenceCreate, newConf.RunOnConferenceCreateRestart, newConf.RunOnConferenceEmpty)

	if err := p.pool.UpdateCodecs(convertCodecs(newConf.Codecs)); err != nil {
		p.Log(logger.Error, "could not apply reloaded codec list: %s", err)
	}

	p.conf = newConf
}

// convertCodecs maps conf.Codec entries onto the mediaengine-neutral
// CodecParameters shape, shared by initial worker construction and
// configuration reload so both build the codec list the same way.
func convertCodecs(codecs []conf.Codec) []mediaengine.CodecParameters {
	out := make([]mediaengine.CodecParameters, len(codecs))
	for i, c := range codecs {
		out[i] = mediaengine.CodecParameters{
			Kind:        mediaengine.Kind(c.Kind),
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			Parameters:  c.Parameters,
			PayloadType: c.PayloadType,
		}
	}
	return out
}

type combinedProvider struct {
	registry *registry.Registry
	gateway  *signaling.Gateway
}

func (c combinedProvider) ActiveConferences() int  { return c.registry.ActiveConferences() }
func (c combinedProvider) ActiveParticipants() int { return c.registry.ActiveParticipants() }
func (c combinedProvider) SocketConnections() int  { return c.gateway.SocketConnections() }
func (c combinedProvider) JoinsTotal() uint64      { return c.registry.JoinsTotal() }
func (c combinedProvider) LeavesTotal() uint64     { return c.registry.LeavesTotal() }
