package asyncwriter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/logger"
)

type fakeWriter struct{}

func (fakeWriter) Log(logger.Level, string, ...interface{}) {}

func TestAsyncWriter(t *testing.T) {
	w := New(512, nil)

	w.Start()
	defer w.Stop()

	w.Push(func() error {
		return fmt.Errorf("testerror")
	})

	err := <-w.Error()
	require.EqualError(t, err, "testerror")
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	w := New(1, fakeWriter{})

	w.Start()
	defer w.Stop()

	block := make(chan struct{})
	w.Push(func() error {
		<-block
		return nil
	})

	// the queue has room for one more pending item; everything past that
	// should be dropped rather than block the caller.
	for i := 0; i < 3; i++ {
		w.Push(func() error { return nil })
	}

	close(block)
}
