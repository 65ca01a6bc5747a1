// Package asyncwriter contains an asynchronous, bounded-queue writer used to
// decouple a producer of outgoing work (RTCP feedback)
// from whatever is slow to consume it, dropping work rather than blocking
// the caller once the queue is full.
package asyncwriter

import (
	"fmt"

	"github.com/riftward/sfucore/internal/logger"
)

// Writer runs queued callbacks, one at a time, on its own goroutine.
type Writer struct {
	writeErrLogger logger.Writer
	queue          chan func() error

	// out
	err chan error
}

// New allocates a Writer with the given queue size.
func New(
	queueSize int,
	parent logger.Writer,
) *Writer {
	return &Writer{
		writeErrLogger: logger.NewLimitedLogger(parent),
		queue:          make(chan func() error, queueSize),
		err:            make(chan error),
	}
}

// Start starts the writer routine.
func (w *Writer) Start() {
	go w.run()
}

// Stop stops the writer routine and waits for it to exit.
func (w *Writer) Stop() {
	close(w.queue)
	<-w.err
}

// Error returns a channel that receives the error returned by a failing
// callback, which ends the writer routine. Stop also reads from this
// channel to wait for the routine to exit.
func (w *Writer) Error() chan error {
	return w.err
}

func (w *Writer) run() {
	w.err <- w.runInner()
	close(w.err)
}

func (w *Writer) runInner() error {
	for cb := range w.queue {
		if err := cb(); err != nil {
			return err
		}
	}
	return fmt.Errorf("terminated")
}

// Push appends a callback to the queue. If the queue is full, the callback
// is dropped and a warning is logged.
func (w *Writer) Push(cb func() error) {
	select {
	case w.queue <- cb:
	default:
		w.writeErrLogger.Log(logger.Warn, "write queue is full")
	}
}
