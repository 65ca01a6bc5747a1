// Package metrics exposes the conference core's counters and gauges in
// Prometheus text exposition format, plus a small JSON stats endpoint.
package metrics

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riftward/sfucore/internal/conf"
	"github.com/riftward/sfucore/internal/httpserv"
	"github.com/riftward/sfucore/internal/logger"
)

func sortedKeys(m map[string]string) []string {
	ret := make([]string, len(m))
	i := 0
	for k := range m {
		ret[i] = k
		i++
	}
	sort.Strings(ret)
	return ret
}

func tags(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}

	o := "{"
	first := true
	for _, k := range sortedKeys(m) {
		if first {
			first = false
		} else {
			o += ","
		}
		o += k + "=\"" + m[k] + "\""
	}
	o += "}"
	return o
}

func metric(key string, tags string, value int64) string {
	return key + tags + " " + strconv.FormatInt(value, 10) + "\n"
}

func metricFloat(key string, tags string, value float64) string {
	return key + tags + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"
}

// Provider is implemented by the conference registry and signaling gateway,
// which hold the counters Metrics reports on.
type Provider interface {
	ActiveConferences() int
	ActiveParticipants() int
	SocketConnections() int
	JoinsTotal() uint64
	LeavesTotal() uint64
}

type metricsParent interface {
	logger.Writer
}

// Metrics serves /health, /stats and /metrics over HTTP.
type Metrics struct {
	Address      string
	Encryption   bool
	ServerCert   string
	ServerKey    string
	ReadTimeout  conf.Duration
	MaxMessageSize conf.StringSize
	Provider     Provider
	Parent       metricsParent

	httpServer *httpserv.WrappedServer
	mutex      sync.Mutex
	startTime  time.Time
	ready      atomic.Bool
}

// Initialize starts the HTTP listener.
func (m *Metrics) Initialize() error {
	m.startTime = time.Now()
	m.ready.Store(true)

	router := gin.New()
	router.Use(httpserv.MiddlewareServerHeader)
	router.Use(httpserv.MiddlewareLogger(m))

	router.GET("/health", m.onHealth)
	router.GET("/stats", m.onStats)
	router.GET("/metrics", m.onMetrics)

	var err error
	m.httpServer, err = httpserv.NewWrappedServer(
		"tcp",
		m.Address,
		m.ReadTimeout,
		m.ServerCert,
		m.ServerKey,
		router,
		m)
	if err != nil {
		return err
	}

	m.Log(logger.Info, "listener opened on "+m.Address)

	return nil
}

// Close closes Metrics.
func (m *Metrics) Close() {
	m.ready.Store(false)
	m.Log(logger.Info, "listener is closing")
	m.httpServer.Close()
}

// Log implements logger.Writer.
func (m *Metrics) Log(level logger.Level, format string, args ...interface{}) {
	m.Parent.Log(level, "[metrics] "+format, args...)
}

func (m *Metrics) onHealth(ctx *gin.Context) {
	if !m.ready.Load() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Metrics) onStats(ctx *gin.Context) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ctx.JSON(http.StatusOK, gin.H{
		"activeConferences":   m.Provider.ActiveConferences(),
		"activeParticipants":  m.Provider.ActiveParticipants(),
		"socketConnections":   m.Provider.SocketConnections(),
		"joinsTotal":          m.Provider.JoinsTotal(),
		"leavesTotal":         m.Provider.LeavesTotal(),
		"processUptimeSeconds": time.Since(m.startTime).Seconds(),
		"maxMessageSize":      m.MaxMessageSize.String(),
	})
}

func (m *Metrics) onMetrics(ctx *gin.Context) {
	out := ""

	out += metric("active_conferences", "", int64(m.Provider.ActiveConferences()))
	out += metric("active_participants", "", int64(m.Provider.ActiveParticipants()))
	out += metric("socket_connections", "", int64(m.Provider.SocketConnections()))
	out += metric("joins_total", "", int64(m.Provider.JoinsTotal()))
	out += metric("leaves_total", "", int64(m.Provider.LeavesTotal()))
	out += metricFloat("process_uptime_seconds", "", time.Since(m.startTime).Seconds())

	ctx.Writer.Header().Set("Content-Type", "text/plain; version=0.0.4")
	ctx.Writer.WriteHeader(http.StatusOK)
	io.WriteString(ctx.Writer, out) //nolint:errcheck
}
