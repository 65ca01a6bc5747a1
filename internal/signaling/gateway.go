// Package signaling implements the SignalingGateway: it receives
// request/response and notification messages on each socket and
// dispatches them to the conference registry. Grounded on
// internal/websocket/serverconn.go (the per-socket duplex transport)
// and the teacher's own WebSocket server wiring.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/riftward/sfucore/internal/conference"
	"github.com/riftward/sfucore/internal/externalcmd"
	"github.com/riftward/sfucore/internal/hooks"
	"github.com/riftward/sfucore/internal/httpserv"
	"github.com/riftward/sfucore/internal/logger"
	"github.com/riftward/sfucore/internal/mediaengine"
	"github.com/riftward/sfucore/internal/registry"
	"github.com/riftward/sfucore/internal/websocket"
	sfconf "github.com/riftward/sfucore/internal/conf"
)

type socketState struct {
	id            string
	conn          *websocket.ServerConn
	mutex         sync.Mutex
	conferenceID  string
	participantID string
	bound         bool
	leaveHook     func()
}

// Gateway is the SignalingGateway: one HTTP listener upgrading to
// WebSocket, one goroutine pair per socket, one room-like subscriber
// set per conference.
type Gateway struct {
	Address         string
	ServerCert      string
	ServerKey       string
	ReadTimeout     sfconf.Duration
	MaxMessageSize  sfconf.StringSize
	Registry        *registry.Registry
	ExternalCmdPool *externalcmd.Pool
	RunOnParticipantJoin  string
	RunOnParticipantLeave string
	Parent          logger.Writer

	httpServer *httpserv.WrappedServer

	mutex   sync.Mutex
	sockets map[string]*socketState
	rooms   map[string]map[string]*socketState
}

// Initialize starts the HTTP/WebSocket listener.
func (g *Gateway) Initialize() error {
	g.sockets = make(map[string]*socketState)
	g.rooms = make(map[string]map[string]*socketState)

	router := gin.New()
	router.Use(httpserv.MiddlewareServerHeader)
	router.Use(httpserv.MiddlewareLogger(g))
	router.GET("/ws", g.onWebSocket)

	var err error
	g.httpServer, err = httpserv.NewWrappedServer(
		"tcp",
		g.Address,
		g.ReadTimeout,
		g.ServerCert,
		g.ServerKey,
		router,
		g)
	if err != nil {
		return err
	}

	g.Log(logger.Info, "signaling listener opened on "+g.Address)

	return nil
}

// Close closes every socket and the listener.
func (g *Gateway) Close() {
	g.mutex.Lock()
	sockets := make([]*socketState, 0, len(g.sockets))
	for _, s := range g.sockets {
		sockets = append(sockets, s)
	}
	g.mutex.Unlock()

	for _, s := range sockets {
		s.conn.Close()
	}

	g.httpServer.Close()
}

// Log implements logger.Writer.
func (g *Gateway) Log(level logger.Level, format string, args ...interface{}) {
	g.Parent.Log(level, "[signaling] "+format, args...)
}

// SocketConnections returns the number of live sockets, for
// Observability.
func (g *Gateway) SocketConnections() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.sockets)
}

func (g *Gateway) onWebSocket(ctx *gin.Context) {
	conn, err := websocket.NewServerConn(ctx.Writer, ctx.Request, int64(g.MaxMessageSize))
	if err != nil {
		return
	}

	state := &socketState{id: uuid.NewString(), conn: conn}

	g.mutex.Lock()
	g.sockets[state.id] = state
	g.mutex.Unlock()

	g.Log(logger.Debug, "socket %s connected from %v", state.id, conn.RemoteAddr())

	g.runSocket(state)

	g.handleDisconnect(state)
}

func (g *Gateway) runSocket(state *socketState) {
	for {
		var req RequestEnvelope
		if err := state.conn.ReadJSON(&req); err != nil {
			return
		}

		resp := g.dispatch(state, req)

		if err := state.conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// handleDisconnect synthesizes a leave against the bound conference, if
// any, identical to an explicit leaveConference but without a reply.
func (g *Gateway) handleDisconnect(state *socketState) {
	g.mutex.Lock()
	delete(g.sockets, state.id)
	g.mutex.Unlock()

	state.mutex.Lock()
	bound := state.bound
	conferenceID := state.conferenceID
	participantID := state.participantID
	state.mutex.Unlock()

	if !bound {
		return
	}

	g.leaveRoom(conferenceID, state)

	if c, ok := g.Registry.Get(conferenceID); ok {
		_, _ = c.Leave(participantID)
		g.Registry.RecordLeave()
	}

	if state.leaveHook != nil {
		state.leaveHook()
	}

	g.Log(logger.Info, "socket %s disconnected, synthesized leave for participant %s", state.id, participantID)
}

func (g *Gateway) joinRoom(conferenceID string, state *socketState) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	set, ok := g.rooms[conferenceID]
	if !ok {
		set = make(map[string]*socketState)
		g.rooms[conferenceID] = set
	}
	set[state.id] = state
}

func (g *Gateway) leaveRoom(conferenceID string, state *socketState) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	set, ok := g.rooms[conferenceID]
	if !ok {
		return
	}
	delete(set, state.id)
	if len(set) == 0 {
		delete(g.rooms, conferenceID)
	}
}

// OnNotification implements registry.Parent: it
// fans a Notification out to every socket subscribed to its
// conference, honoring Exclude/Targets.
func (g *Gateway) OnNotification(n conference.Notification) {
	g.mutex.Lock()
	set := g.rooms[n.ConferenceID]
	recipients := make([]*socketState, 0, len(set))
	for _, s := range set {
		s.mutex.Lock()
		pID := s.participantID
		s.mutex.Unlock()

		if n.Targets != nil {
			if contains(n.Targets, pID) {
				recipients = append(recipients, s)
			}
			continue
		}
		if pID == n.Exclude {
			continue
		}
		recipients = append(recipients, s)
	}
	g.mutex.Unlock()

	env := EventEnvelope{Event: string(n.Event), Data: n.Data}
	for _, s := range recipients {
		_ = s.conn.WriteJSON(env)
	}

	// A terminated conference (worker quarantined) has no server-side
	// state left for these sockets to usefully talk to; force-disconnect
	// them right after the notification so clients re-join on a healthy
	// worker instead of sitting on a dead connection indefinitely.
	if n.Event == conference.EventConferenceTerminated {
		g.closeRoom(n.ConferenceID)
	}
}

// closeRoom removes conferenceID's room and force-disconnects every
// socket that was subscribed to it. Each socket's own read loop
// (runSocket) observes the closed connection and runs handleDisconnect
// as usual.
func (g *Gateway) closeRoom(conferenceID string) {
	g.mutex.Lock()
	set := g.rooms[conferenceID]
	sockets := make([]*socketState, 0, len(set))
	for _, s := range set {
		sockets = append(sockets, s)
	}
	delete(g.rooms, conferenceID)
	g.mutex.Unlock()

	for _, s := range sockets {
		s.conn.Close()
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (g *Gateway) dispatch(state *socketState, req RequestEnvelope) ResponseEnvelope {
	if req.Event == "" {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	if req.Event == "joinConference" {
		return g.handleJoin(state, req)
	}

	state.mutex.Lock()
	bound := state.bound
	boundConferenceID := state.conferenceID
	boundParticipantID := state.participantID
	state.mutex.Unlock()

	if !bound {
		return errResponse(req.ID, string(mediaengine.ErrAuthorization))
	}

	var scoped participantScopedPayload
	if len(req.Data) > 0 {
		_ = json.Unmarshal(req.Data, &scoped)
	}
	if scoped.ConferenceID != boundConferenceID ||
		(scoped.ParticipantID != "" && scoped.ParticipantID != boundParticipantID) {
		return errResponse(req.ID, string(mediaengine.ErrAuthorization))
	}

	c, ok := g.Registry.Get(boundConferenceID)
	if !ok {
		return errResponse(req.ID, string(mediaengine.ErrNotFound))
	}

	switch req.Event {
	case "createTransport":
		return g.handleCreateTransport(req, c, boundParticipantID)
	case "connectTransport":
		return g.handleConnectTransport(req, c, boundParticipantID)
	case "produce":
		return g.handleProduce(req, c, boundParticipantID)
	case "consumeParticipantMedia":
		return g.handleConsume(req, c, boundParticipantID)
	case "unpauseConsumer":
		return g.handleResumeConsumer(req, c, boundParticipantID)
	case "closeProducer":
		return g.handleCloseProducer(req, c, boundParticipantID)
	case "closeConsumer":
		return g.handleCloseConsumer(req, c, boundParticipantID)
	case "muteAudio":
		return g.handleMute(req, c, boundParticipantID, c.MuteAudio, "mutedProducerIds")
	case "unmuteAudio":
		return g.handleMute(req, c, boundParticipantID, c.UnmuteAudio, "unmutedProducerIds")
	case "muteVideo":
		return g.handleMute(req, c, boundParticipantID, c.MuteVideo, "mutedProducerIds")
	case "unmuteVideo":
		return g.handleMute(req, c, boundParticipantID, c.UnmuteVideo, "unmutedProducerIds")
	case "getParticipants":
		return g.handleGetParticipants(req, c)
	case "leaveConference":
		return g.handleLeave(state, req, c, boundParticipantID)
	default:
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}
}

func (g *Gateway) handleJoin(state *socketState, req RequestEnvelope) ResponseEnvelope {
	state.mutex.Lock()
	if state.bound {
		state.mutex.Unlock()
		return errResponse(req.ID, string(mediaengine.ErrAuthorization))
	}
	state.mutex.Unlock()

	var p joinConferencePayload
	if err := json.Unmarshal(req.Data, &p); err != nil || p.ConferenceID == "" || p.ParticipantID == "" {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.Registry.OperationTimeout())
	defer cancel()

	c, err := g.Registry.GetOrCreate(ctx, p.ConferenceID, p.ConferenceName)
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	result, err := c.Join(p.ParticipantID, p.ParticipantName, p.ParticipantInfo, state.id)
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	state.mutex.Lock()
	state.bound = true
	state.conferenceID = p.ConferenceID
	state.participantID = p.ParticipantID
	state.mutex.Unlock()

	g.joinRoom(p.ConferenceID, state)
	g.Registry.RecordJoin()

	state.leaveHook = hooks.OnParticipantJoin(hooks.OnParticipantJoinParams{
		Logger:                g,
		ExternalCmdPool:       g.ExternalCmdPool,
		RunOnParticipantJoin:  g.RunOnParticipantJoin,
		RunOnParticipantLeave: g.RunOnParticipantLeave,
		ConferenceID:          p.ConferenceID,
		ParticipantID:         p.ParticipantID,
	})

	return okResponse(req.ID, gin.H{"routerRtpCapabilities": result.RouterRTPCapabilities})
}

func (g *Gateway) handleCreateTransport(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p transportPayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	desc, err := c.CreateTransport(pID, mediaengine.Direction(p.Direction))
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{
		"id":             desc.ID,
		"iceParameters":  desc.IceParameters,
		"iceCandidates":  desc.IceCandidates,
		"dtlsParameters": desc.DtlsParameters,
		"sctpParameters": desc.SctpParameters,
	})
}

func (g *Gateway) handleConnectTransport(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p connectTransportPayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	if err := c.ConnectTransport(pID, mediaengine.Direction(p.Direction), mediaengine.DtlsParameters(p.DtlsParameters)); err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{})
}

func (g *Gateway) handleProduce(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p producePayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	streamType := mediaengine.StreamType(p.StreamType)
	if streamType == "" {
		streamType = mediaengine.StreamType(p.Kind)
	}

	producerID, err := c.Produce(pID, p.TransportID, mediaengine.Kind(p.Kind), mediaengine.RTPParameters(p.RTPParameters), streamType)
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{"producerId": producerID})
}

func (g *Gateway) handleConsume(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p consumePayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	descriptors, err := c.ConsumeFromParticipant(pID, p.TargetParticipantID, mediaengine.RTPCapabilities(p.RTPCapabilities))
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	out := make([]gin.H, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, gin.H{
			"id":                    d.ID,
			"producerId":            d.ProducerID,
			"kind":                  d.Kind,
			"rtpParameters":         d.RTPParameters,
			"streamType":            d.StreamType,
			"producerParticipantId": d.ProducerParticipantID,
		})
	}

	return okResponse(req.ID, out)
}

func (g *Gateway) handleResumeConsumer(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p consumerActionPayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}

	if err := c.ResumeConsumer(pID, p.ConsumerID); err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{})
}

func (g *Gateway) handleCloseProducer(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p producerOrConsumerClosePayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}
	producerID, _ := p.ExtraData["producerId"].(string)

	if err := c.CloseProducer(pID, producerID); err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{})
}

func (g *Gateway) handleCloseConsumer(req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p producerOrConsumerClosePayload
	if err := json.Unmarshal(req.Data, &p); err != nil {
		return errResponse(req.ID, string(mediaengine.ErrProtocol))
	}
	consumerID, _ := p.ExtraData["consumerId"].(string)

	if err := c.CloseConsumer(pID, consumerID); err != nil {
		return errResponse(req.ID, wireError(err))
	}

	return okResponse(req.ID, gin.H{})
}

func (g *Gateway) handleMute(
	req RequestEnvelope,
	c *conference.Conference,
	pID string,
	action func(string) ([]string, error),
	key string,
) ResponseEnvelope {
	ids, err := action(pID)
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}
	return okResponse(req.ID, gin.H{key: ids})
}

func (g *Gateway) handleGetParticipants(req RequestEnvelope, c *conference.Conference) ResponseEnvelope {
	summaries := c.GetParticipants()
	out := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, gin.H{"participantId": s.ParticipantID, "participantName": s.ParticipantName})
	}
	return okResponse(req.ID, out)
}

func (g *Gateway) handleLeave(state *socketState, req RequestEnvelope, c *conference.Conference, pID string) ResponseEnvelope {
	var p conferenceScopedPayload
	_ = json.Unmarshal(req.Data, &p)

	_, err := c.Leave(pID)
	if err != nil {
		return errResponse(req.ID, wireError(err))
	}

	g.leaveRoom(p.ConferenceID, state)
	g.Registry.RecordLeave()

	state.mutex.Lock()
	state.bound = false
	hook := state.leaveHook
	state.leaveHook = nil
	state.mutex.Unlock()

	if hook != nil {
		hook()
	}

	return okResponse(req.ID, gin.H{})
}

func wireError(err error) string {
	if me, ok := err.(*mediaengine.Error); ok {
		return me.WireError()
	}
	return fmt.Sprintf("%v", err)
}
