package conf

import "fmt"

// CodecKind is the media kind a Codec applies to.
type CodecKind string

// Supported codec kinds.
const (
	CodecKindAudio CodecKind = "audio"
	CodecKindVideo CodecKind = "video"
)

// Codec describes a single entry of the negotiable RTP capability set that
// the conference core advertises to the media engine. Order matters: it is
// the preference order used during codec negotiation.
type Codec struct {
	Kind        CodecKind         `yaml:"kind"`
	MimeType    string            `yaml:"mimeType"`
	ClockRate   uint32            `yaml:"clockRate"`
	Channels    uint16            `yaml:"channels,omitempty"`
	Parameters  map[string]string `yaml:"parameters,omitempty"`
	PayloadType uint8             `yaml:"payloadType,omitempty"`
}

func (c Codec) validate() error {
	if c.Kind != CodecKindAudio && c.Kind != CodecKindVideo {
		return fmt.Errorf("unsupported codec kind: %s", c.Kind)
	}
	if c.MimeType == "" {
		return fmt.Errorf("codec mimeType cannot be empty")
	}
	if c.ClockRate == 0 {
		return fmt.Errorf("codec %s: clockRate cannot be zero", c.MimeType)
	}
	return nil
}

// defaultCodecs mirrors the capability set a pion/webrtc-backed media
// engine advertises: one preferred video codec, one screensharing-friendly
// codec, and Opus for audio.
func defaultCodecs() []Codec {
	return []Codec{
		{
			Kind:        CodecKindVideo,
			MimeType:    "video/VP8",
			ClockRate:   90000,
			PayloadType: 96,
		},
		{
			Kind:        CodecKindVideo,
			MimeType:    "video/H264",
			ClockRate:   90000,
			PayloadType: 102,
			Parameters: map[string]string{
				"packetization-mode":  "1",
				"profile-level-id":    "42e01f",
				"level-asymmetry-allowed": "1",
			},
		},
		{
			Kind:        CodecKindAudio,
			MimeType:    "audio/opus",
			ClockRate:   48000,
			Channels:    2,
			PayloadType: 111,
		},
	}
}
