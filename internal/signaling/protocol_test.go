package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOkResponseRoundTrips(t *testing.T) {
	resp := okResponse("req-1", joinConferencePayload{ConferenceID: "room1"})
	require.Equal(t, "req-1", resp.ID)
	require.Equal(t, "ok", resp.Status)
	require.Empty(t, resp.Error)

	byts, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(byts), `"status":"ok"`)
	require.NotContains(t, string(byts), `"error"`)
}

func TestErrResponseOmitsData(t *testing.T) {
	resp := errResponse("req-2", "NotFound")
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "NotFound", resp.Error)

	byts, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(byts), `"error":"NotFound"`)
	require.NotContains(t, string(byts), `"data"`)
}

func TestRequestEnvelopeDecodesRawPayload(t *testing.T) {
	raw := []byte(`{"id":"req-3","event":"joinConference","data":{"conferenceId":"room1","participantId":"alice"}}`)

	var env RequestEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, "joinConference", env.Event)

	var payload joinConferencePayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Equal(t, "room1", payload.ConferenceID)
	require.Equal(t, "alice", payload.ParticipantID)
}
