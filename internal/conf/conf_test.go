package conf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, byts []byte) string {
	tmpf, err := os.CreateTemp(t.TempDir(), "sfucore-")
	require.NoError(t, err)
	defer tmpf.Close()

	_, err = tmpf.Write(byts)
	require.NoError(t, err)

	return tmpf.Name()
}

func TestLoadDefaults(t *testing.T) {
	conf, err := Load(writeTempFile(t, []byte("{}")))
	require.NoError(t, err)
	require.Equal(t, Default().Port, conf.Port)
	require.NotEmpty(t, conf.Codecs)
}

func TestLoadYAML(t *testing.T) {
	path := writeTempFile(t, []byte(`
port: 9000
rtcMinPort: 20000
rtcMaxPort: 20100
maxParticipantsPerConference: 50
codecs:
  - kind: video
    mimeType: video/VP8
    clockRate: 90000
  - kind: audio
    mimeType: audio/opus
    clockRate: 48000
    channels: 2
`))

	conf, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, conf.Port)
	require.Equal(t, uint16(20000), conf.RTCMinPort)
	require.Equal(t, uint16(20100), conf.RTCMaxPort)
	require.Equal(t, 50, conf.MaxParticipantsPerConference)
	require.Len(t, conf.Codecs, 2)
}

func TestEnvironmentOverrides(t *testing.T) {
	os.Setenv("PORT", "8555")
	defer os.Unsetenv("PORT")

	os.Setenv("USE_SSL", "yes")
	defer os.Unsetenv("USE_SSL")

	os.Setenv("RTC_MIN_PORT", "30000")
	defer os.Unsetenv("RTC_MIN_PORT")

	os.Setenv("RTC_MAX_PORT", "30100")
	defer os.Unsetenv("RTC_MAX_PORT")

	os.Setenv("ANNOUNCED_IP", "203.0.113.9")
	defer os.Unsetenv("ANNOUNCED_IP")

	os.Setenv("CONFERENCE_SERVERCERT", "cert.pem")
	defer os.Unsetenv("CONFERENCE_SERVERCERT")

	os.Setenv("CONFERENCE_SERVERKEY", "key.pem")
	defer os.Unsetenv("CONFERENCE_SERVERKEY")

	conf, err := Load(writeTempFile(t, []byte("{}")))
	require.NoError(t, err)
	require.Equal(t, 8555, conf.Port)
	require.True(t, conf.UseTLS)
	require.Equal(t, uint16(30000), conf.RTCMinPort)
	require.Equal(t, uint16(30100), conf.RTCMaxPort)
	require.Equal(t, "203.0.113.9", conf.AnnouncedIP)
	require.Equal(t, "cert.pem", conf.ServerCert)
	require.Equal(t, "key.pem", conf.ServerKey)
}

func TestValidateRejectsMissingVideoCodec(t *testing.T) {
	conf := Default()
	conf.Codecs = []Codec{{Kind: CodecKindAudio, MimeType: "audio/opus", ClockRate: 48000}}
	require.Error(t, conf.Validate())
}

func TestValidateRejectsBadPortRange(t *testing.T) {
	conf := Default()
	conf.RTCMinPort = 20100
	conf.RTCMaxPort = 20000
	require.Error(t, conf.Validate())
}

func TestValidateRejectsTLSWithoutCertificates(t *testing.T) {
	conf := Default()
	conf.UseTLS = true
	require.Error(t, conf.Validate())
}
