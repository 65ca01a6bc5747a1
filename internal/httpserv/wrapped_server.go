// Package httpserv contains HTTP server utilities shared by the signaling
// gateway and the observability surface.
package httpserv

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/riftward/sfucore/internal/conf"
	"github.com/riftward/sfucore/internal/logger"
)

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) {
	return len(p), nil
}

// exit when there's a panic inside the HTTP handler, after logging it.
// https://github.com/golang/go/issues/16542
type exitOnPanicHandler struct {
	http.Handler
	parent logger.Writer
}

func (h exitOnPanicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			h.parent.Log(logger.Error, "panic: %v\n\n%s", err, buf[:n])
			os.Exit(1)
		}
	}()
	h.Handler.ServeHTTP(w, r)
}

// WrappedServer is a wrapper around http.Server that provides:
// - net.Listener allocation and closure
// - TLS allocation
// - exit on panic, logged through the parent
type WrappedServer struct {
	ln    net.Listener
	inner *http.Server
}

// NewWrappedServer allocates a WrappedServer.
func NewWrappedServer(
	network string,
	address string,
	readTimeout conf.Duration,
	serverCert string,
	serverKey string,
	handler http.Handler,
	parent logger.Writer,
) (*WrappedServer, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if serverCert != "" {
		crt, err := tls.LoadX509KeyPair(serverCert, serverKey)
		if err != nil {
			ln.Close() //nolint:errcheck
			return nil, err
		}

		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{crt},
		}
	}

	s := &WrappedServer{
		ln: ln,
		inner: &http.Server{
			Handler:           exitOnPanicHandler{handler, parent},
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: time.Duration(readTimeout),
			ErrorLog:          log.New(&nilWriter{}, "", 0),
		},
	}

	if tlsConfig != nil {
		go s.inner.ServeTLS(s.ln, "", "") //nolint:errcheck
	} else {
		go s.inner.Serve(s.ln) //nolint:errcheck
	}

	return s, nil
}

// Close closes all resources and waits for all routines to return.
func (s *WrappedServer) Close() {
	s.inner.Shutdown(context.Background()) //nolint:errcheck
	s.ln.Close()                           //nolint:errcheck
}
