package signaling

import "encoding/json"

// RequestEnvelope is one client->server frame. ID is an opaque
// correlation token the client attaches to its own request and that
// the gateway echoes back verbatim in the matching ResponseEnvelope.
type RequestEnvelope struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ResponseEnvelope is one server->client reply frame.
type ResponseEnvelope struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// EventEnvelope is one server->client out-of-band notification frame;
// it carries no correlation id since it was not solicited by a
// specific request.
type EventEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func okResponse(id string, data interface{}) ResponseEnvelope {
	return ResponseEnvelope{ID: id, Status: "ok", Data: data}
}

func errResponse(id string, wireErr string) ResponseEnvelope {
	return ResponseEnvelope{ID: id, Status: "error", Error: wireErr}
}

// Request payloads, one struct per event in the protocol table.

type joinConferencePayload struct {
	ConferenceID     string      `json:"conferenceId"`
	ConferenceName   string      `json:"conferenceName"`
	ParticipantID    string      `json:"participantId"`
	ParticipantName  string      `json:"participantName"`
	ParticipantInfo  interface{} `json:"participantInfo"`
}

type transportPayload struct {
	ConferenceID  string `json:"conferenceId"`
	ParticipantID string `json:"participantId"`
	Direction     string `json:"direction"`
}

type connectTransportPayload struct {
	ConferenceID   string                 `json:"conferenceId"`
	ParticipantID  string                 `json:"participantId"`
	Direction      string                 `json:"direction"`
	DtlsParameters map[string]interface{} `json:"dtlsParameters"`
}

type producePayload struct {
	ConferenceID  string                 `json:"conferenceId"`
	ParticipantID string                 `json:"participantId"`
	TransportID   string                 `json:"transportId"`
	Kind          string                 `json:"kind"`
	RTPParameters map[string]interface{} `json:"rtpParameters"`
	StreamType    string                 `json:"streamType"`
}

type consumePayload struct {
	ConferenceID      string                 `json:"conferenceId"`
	ParticipantID     string                 `json:"participantId"`
	TargetParticipantID string               `json:"targetParticipantId"`
	RTPCapabilities   map[string]interface{} `json:"rtpCapabilities"`
}

type consumerActionPayload struct {
	ConferenceID  string `json:"conferenceId"`
	ParticipantID string `json:"participantId"`
	ConsumerID    string `json:"consumerId"`
}

type producerOrConsumerClosePayload struct {
	ConferenceID  string                 `json:"conferenceId"`
	ParticipantID string                 `json:"participantId"`
	ExtraData     map[string]interface{} `json:"extraData"`
}

type participantScopedPayload struct {
	ConferenceID  string `json:"conferenceId"`
	ParticipantID string `json:"participantId"`
}

type conferenceScopedPayload struct {
	ConferenceID string `json:"conferenceId"`
}
