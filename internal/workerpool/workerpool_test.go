package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/mediaengine/mediaenginetest"
)

type nullLogger struct{}

func (nullLogger) Log(logger.Level, string, ...interface{}) {}

var audioVideoCodecs = []mediaengine.CodecParameters{
	{Kind: mediaengine.KindAudio, MimeType: "audio/opus"},
	{Kind: mediaengine.KindVideo, MimeType: "video/VP8"},
}

func TestAcquirePicksLeastLoadedWorker(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	pool, err := New(context.Background(), engine, 3, audioVideoCodecs, 1, 1, nullLogger{})
	require.NoError(t, err)
	defer pool.Close()

	require.Equal(t, 3, pool.WorkerCount())

	acq, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "worker-0", acq.Worker.ID())

	// Give worker-0 a router, so the next Acquire should prefer worker-1.
	acq2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "worker-1", acq2.Worker.ID())
}

func TestAcquireSkipsQuarantinedWorkers(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	pool, err := New(context.Background(), engine, 2, audioVideoCodecs, 1, 1, nullLogger{})
	require.NoError(t, err)
	defer pool.Close()

	engine.Quarantine("worker-0")

	// watchQuarantine updates the map asynchronously; give it a moment.
	require.Eventually(t, func() bool {
		acq, err := pool.Acquire(context.Background())
		return err == nil && acq.Worker.ID() == "worker-1"
	}, time.Second, time.Millisecond)
}

// TestUpdateCodecsSkipsWorkersWithoutTheCapability covers configuration
// reload against a worker type (mediaenginetest.Worker) that does not
// implement the optional codecUpdater interface: UpdateCodecs must still
// succeed and record the new codec list in the pool,
// rather than failing because no worker could apply it in place.
func TestUpdateCodecsSkipsWorkersWithoutTheCapability(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	pool, err := New(context.Background(), engine, 2, audioVideoCodecs, 1, 1, nullLogger{})
	require.NoError(t, err)
	defer pool.Close()

	newCodecs := []mediaengine.CodecParameters{
		{Kind: mediaengine.KindAudio, MimeType: "audio/PCMU"},
	}
	require.NoError(t, pool.UpdateCodecs(newCodecs))

	pool.mutex.Lock()
	defer pool.mutex.Unlock()
	require.Equal(t, newCodecs, pool.codecs)
}

func TestAcquireFailsWhenEveryWorkerQuarantined(t *testing.T) {
	engine := &mediaenginetest.Engine{}
	pool, err := New(context.Background(), engine, 1, audioVideoCodecs, 1, 1, nullLogger{})
	require.NoError(t, err)
	defer pool.Close()

	engine.Quarantine("worker-0")

	require.Eventually(t, func() bool {
		_, err := pool.Acquire(context.Background())
		return err != nil && mediaengine.KindOf(err) == mediaengine.ErrEngineUnavailable
	}, time.Second, time.Millisecond)
}
