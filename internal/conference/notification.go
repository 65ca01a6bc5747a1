package conference

// EventName enumerates the server-to-client notification variants a
// Conference can emit. This is the typed replacement for the ad-hoc
// string-keyed publish/subscribe style a hand-rolled event bus would
// otherwise encourage.
type EventName string

// Notification events, named exactly as the wire protocol expects.
const (
	EventParticipantJoined EventName = "participantJoined"
	EventParticipantLeft   EventName = "participantLeft"
	EventNewProducer       EventName = "newProducer"
	EventProducerClosed    EventName = "producerClosed"
	EventConsumerClosed    EventName = "consumerClosed"
	EventAudioMuted        EventName = "audioMuted"
	EventAudioUnmuted      EventName = "audioUnmuted"
	EventVideoMuted        EventName = "videoMuted"
	EventVideoUnmuted      EventName = "videoUnmuted"
	EventConferenceTerminated EventName = "conferenceTerminated"
)

// Notification is emitted by a Conference towards its SignalingGateway.
// Targets nil means "every participant currently in the conference
// except Exclude"; a non-nil Targets delivers only to those ids
// (consumerClosed is always targeted this way, since consumers are
// private to their owning participant).
type Notification struct {
	ConferenceID string
	Event        EventName
	Exclude      string
	Targets      []string
	Data         interface{}
}

// ParticipantJoinedData is the payload of EventParticipantJoined.
type ParticipantJoinedData struct {
	ConferenceID    string `json:"conferenceId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
}

// ParticipantLeftData is the payload of EventParticipantLeft.
type ParticipantLeftData struct {
	ParticipantID     string   `json:"participantId"`
	ClosedProducerIDs []string `json:"closedProducerIds"`
	ClosedConsumerIDs []string `json:"closedConsumerIds"`
}

// NewProducerData is the payload of EventNewProducer.
type NewProducerData struct {
	ProducerID      string `json:"producerId"`
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	Kind            string `json:"kind"`
	StreamType      string `json:"streamType"`
}

// ProducerClosedData is the payload of EventProducerClosed.
type ProducerClosedData struct {
	ProducerID    string `json:"producerId"`
	ParticipantID string `json:"participantId"`
	Kind          string `json:"kind"`
}

// ConsumerClosedData is the payload of EventConsumerClosed.
type ConsumerClosedData struct {
	ConsumerID    string `json:"consumerId"`
	ParticipantID string `json:"participantId"`
}

// MuteData is the payload shared by the four mute/unmute events.
type MuteData struct {
	ParticipantID string   `json:"participantId"`
	ProducerIDs   []string `json:"producerIds"`
}

// ConferenceTerminatedData is the payload of EventConferenceTerminated,
// sent just before force-disconnecting every socket bound to a
// conference whose worker was quarantined.
type ConferenceTerminatedData struct {
	ConferenceID string `json:"conferenceId"`
	Reason       string `json:"reason"`
}
