package signaling

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/riftward/sfucore/internal/conference"
	"github.com/riftward/sfucore/internal/logger"
)

type nullLogger struct{}

func (nullLogger) Log(logger.Level, string, ...interface{}) {}

// TestOnNotificationClosesRoomOnConferenceTerminated covers the
// force-disconnect spec.md §4.1/§7 require when a worker is quarantined:
// every socket subscribed to the terminated conference's room must be
// closed right after the notification is sent, so clients reconnect
// instead of sitting on a dead connection indefinitely.
func TestOnNotificationClosesRoomOnConferenceTerminated(t *testing.T) {
	gin.SetMode(gin.TestMode)

	g := &Gateway{Parent: nullLogger{}}
	g.sockets = make(map[string]*socketState)
	g.rooms = make(map[string]map[string]*socketState)

	router := gin.New()
	router.GET("/ws", g.onWebSocket)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := &http.Server{Handler: router}
	go srv.Serve(ln)
	defer srv.Close()

	client, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer client.Close()

	require.Eventually(t, func() bool {
		g.mutex.Lock()
		defer g.mutex.Unlock()
		return len(g.sockets) == 1
	}, time.Second, time.Millisecond)

	var state *socketState
	g.mutex.Lock()
	for _, s := range g.sockets {
		state = s
	}
	state.conferenceID = "room1"
	state.participantID = "alice"
	g.rooms["room1"] = map[string]*socketState{state.id: state}
	g.mutex.Unlock()

	g.OnNotification(conference.Notification{
		ConferenceID: "room1",
		Event:        conference.EventConferenceTerminated,
		Data:         conference.ConferenceTerminatedData{ConferenceID: "room1", Reason: "worker quarantined"},
	})

	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "conferenceTerminated")

	client.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, _, err = client.ReadMessage()
	require.Error(t, err, "socket must be force-disconnected after conferenceTerminated")

	g.mutex.Lock()
	_, stillRoomed := g.rooms["room1"]
	g.mutex.Unlock()
	require.False(t, stillRoomed, "terminated conference's room must be emptied")
}
