package pionengine

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
)

type nullLogger struct{}

func (nullLogger) Log(logger.Level, string, ...interface{}) {}

var testAudioCodec = []mediaengine.CodecParameters{
	{Kind: mediaengine.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
}

var testVideoCodec = []mediaengine.CodecParameters{
	{Kind: mediaengine.KindVideo, MimeType: "video/VP8", ClockRate: 90000},
}

// TestUpdateCodecsRebuildsAPIForNewRoutersOnly covers configuration
// reload: a router built before UpdateCodecs keeps the api/codec list it
// was created with, a router built after picks up the new list.
func TestUpdateCodecsRebuildsAPIForNewRoutersOnly(t *testing.T) {
	e := New(nullLogger{})
	worker, err := e.NewWorker(context.Background(), "w0", testAudioCodec)
	require.NoError(t, err)
	w := worker.(*Worker)

	before, err := w.NewRouter(context.Background())
	require.NoError(t, err)
	beforeRouter := before.(*Router)

	require.NoError(t, w.UpdateCodecs(testVideoCodec))

	after, err := w.NewRouter(context.Background())
	require.NoError(t, err)
	afterRouter := after.(*Router)

	require.NotSame(t, beforeRouter.api, afterRouter.api)
	require.Equal(t, testAudioCodec, beforeRouter.codecs)
	require.Equal(t, testVideoCodec, afterRouter.codecs)
}

func TestRtpEncodingFromParametersExtractsSsrcAndPayloadType(t *testing.T) {
	params := mediaengine.RTPParameters{
		"encodings": []interface{}{
			map[string]interface{}{"ssrc": float64(12345)},
		},
		"codecs": []interface{}{
			map[string]interface{}{"payloadType": float64(111)},
		},
	}

	ssrc, payloadType := rtpEncodingFromParameters(params)
	require.Equal(t, webrtc.SSRC(12345), ssrc)
	require.Equal(t, webrtc.PayloadType(111), payloadType)
}

func TestRtpEncodingFromParametersDefaultsToZero(t *testing.T) {
	ssrc, payloadType := rtpEncodingFromParameters(mediaengine.RTPParameters{})
	require.Equal(t, webrtc.SSRC(0), ssrc)
	require.Equal(t, webrtc.PayloadType(0), payloadType)
}

func TestParseFingerprintsExtractsAlgorithmAndValue(t *testing.T) {
	dtls := mediaengine.DtlsParameters{
		"fingerprints": []interface{}{
			map[string]interface{}{"algorithm": "sha-256", "value": "AA:BB:CC"},
		},
	}

	fps := parseFingerprints(dtls)
	require.Len(t, fps, 1)
	require.Equal(t, "sha-256", fps[0].Algorithm)
	require.Equal(t, "AA:BB:CC", fps[0].Value)
}

func TestParseFingerprintsMissingKeyReturnsNil(t *testing.T) {
	require.Nil(t, parseFingerprints(mediaengine.DtlsParameters{}))
}
