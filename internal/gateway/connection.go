package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/groupchat/internal/events"
	"github.com/haasonsaas/groupchat/internal/session"
)

const (
	maxFramePayloadBytes = 1 << 20
	pongWait              = 45 * time.Second
	pingInterval           = 15 * time.Second
	writeWait              = 10 * time.Second
)

// connection is one observer's websocket handler: one goroutine pair (read
// loop + write loop) per spec.md §4.7 "Gateway. One goroutine/task per
// observer connection." Grounded on the teacher's wsSession
// (internal/gateway/ws_control_plane.go) lifecycle, generalised from its
// RPC req/res protocol to this system's event-stream-plus-commands
// protocol.
type connection struct {
	server     *Server
	conn       *websocket.Conn
	observerID string
	sessionID  string
	session    *session.Session
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
}

func (s *Server) serveConnection(w http.ResponseWriter, r *http.Request) {
	subject, err := AuthenticateRequest(s.auth, r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		server:     s,
		conn:       conn,
		observerID: uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan []byte, 64),
		logger:     s.logger.With("observer", subject),
	}
	c.run()
}

func (c *connection) run() {
	defer c.close()

	if err := c.sendBootstrap(); err != nil {
		c.logger.Warn("sending bootstrap frames", "error", err)
		return
	}

	go c.writeLoop()
	c.readLoop()
}

func (c *connection) close() {
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
	if c.session != nil {
		c.session.Queue.CancelAll(c.observerID)
		c.session.Broadcaster.Detach(c.observerID)
		if c.server.metrics != nil {
			c.server.metrics.ObserversConnected.Set(float64(c.session.Broadcaster.ObserverCount()))
		}
	}
}

func (c *connection) sendBootstrap() error {
	team := c.server.team
	names := make([]string, 0, len(team.Participants))
	details := make([]AgentDetail, 0, len(team.Participants))
	for _, p := range team.Participants {
		names = append(names, p.Name)
		details = append(details, AgentDetail{Name: p.Name, Description: p.Description})
	}
	if err := c.writeFrame(NewAgentTeamNamesFrame([]string{team.Name})); err != nil {
		return err
	}
	if err := c.writeFrame(NewAgentDetailsFrame(details)); err != nil {
		return err
	}
	return c.writeFrame(NewParticipantNamesFrame(names))
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(maxFramePayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.countFrame("inbound", "raw")

		if err := validateInboundFrame(raw); err != nil {
			c.sendError("invalid_frame", err.Error())
			continue
		}
		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("invalid_frame", err.Error())
			continue
		}
		if err := c.handleInbound(frame); err != nil {
			c.sendError("request_failed", err.Error())
		}
	}
}

// handleInbound demultiplexes one inbound frame into a groupchat.Manager
// or session.Manager call, matching spec.md §4.7 step 5.
func (c *connection) handleInbound(frame InboundFrame) error {
	switch frame.Type {
	case TypeStartRun, TypeRunStartConfirmed:
		return c.handleStartRun(frame)
	case TypeUserInterrupt:
		if c.session == nil {
			return fmt.Errorf("no session bound")
		}
		c.session.GroupChat.Interrupt(c.ctx)
		return c.writeFrame(NewInterruptAcknowledgedFrame())
	case TypeUserDirectedMessage:
		if c.session == nil {
			return fmt.Errorf("no session bound")
		}
		c.session.Touch()
		return c.session.GroupChat.SendUserDirected(c.ctx, frame.TargetAgent, frame.Content, frame.TrimCount)
	case TypeHumanInputResponse:
		if c.session == nil {
			return fmt.Errorf("no session bound")
		}
		c.session.Touch()
		if !c.session.Queue.Provide(frame.RequestID, frame.UserInput) {
			return fmt.Errorf("unknown or already-resolved request_id %q", frame.RequestID)
		}
		return nil
	case TypeTerminateRequest:
		if c.session == nil {
			return fmt.Errorf("no session bound")
		}
		c.session.GroupChat.Interrupt(c.ctx)
		return nil
	case TypeComponentGenerationRequest:
		// Analysis-watchlist components come from the team's static config
		// at session-build time (cmd/groupchat's buildSession). This frame
		// is accepted and validated but otherwise ignored: no component
		// generation call is made and no reply frame is sent.
		return nil
	default:
		return fmt.Errorf("unhandled frame type %q", frame.Type)
	}
}

func (c *connection) handleStartRun(frame InboundFrame) error {
	if frame.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	c.sessionID = frame.SessionID

	s, created, err := c.server.sessions.GetOrCreate(c.ctx, frame.SessionID, c.server.buildSession)
	if err != nil {
		return fmt.Errorf("binding session: %w", err)
	}
	c.session = s
	s.Touch()

	capacity := session.DefaultQueueCapacity
	s.Broadcaster.Attach(c.observerID, capacity)
	if c.server.metrics != nil {
		c.server.metrics.ObserversConnected.Set(float64(s.Broadcaster.ObserverCount()))
	}

	if err := c.writeFrame(treeUpdatePayload(s.GroupChat.Tree())); err != nil {
		return err
	}

	if created {
		return s.GroupChat.Start(c.ctx, frame.InitialTopic)
	}
	return nil
}

// eventLoop drains this observer's broadcaster queue once bound to a
// session and writes translated frames out. Runs alongside readLoop via
// writeLoop's goroutine below.
func (c *connection) eventLoop() {
	for {
		if c.session == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}
		ev, ok := c.session.Broadcaster.Next(c.ctx, c.observerID)
		if !ok {
			return
		}
		c.dispatchOutbound(ev)
	}
}

func (c *connection) dispatchOutbound(ev events.Event) {
	if chunk, ok := ev.(events.StreamingChunk); ok {
		_ = c.writeFrame(struct {
			outboundEnvelope
			Content       string `json:"content"`
			FullMessageID string `json:"full_message_id"`
		}{newEnvelope("streaming_chunk"), chunk.Content, chunk.FullMessageID})
		return
	}
	frame, ok := translateEvent(ev)
	if !ok {
		return
	}
	if err := c.writeFrame(frame); err != nil {
		c.logger.Warn("writing outbound frame", "error", err)
	}
	switch ev.(type) {
	case events.ToolCallRequest, events.ToolCallExecution:
		_ = c.writeFrame(treeUpdatePayload(c.session.GroupChat.Tree()))
	}
}

func (c *connection) writeLoop() {
	go c.eventLoop()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *connection) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}
	c.countFrame("outbound", frameTypeOf(frame))
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *connection) sendError(code, message string) {
	_ = c.writeFrame(NewErrorFrame(code, message))
}

func (c *connection) countFrame(direction, frameType string) {
	if c.server.metrics != nil {
		c.server.metrics.GatewayFramesTotal.WithLabelValues(direction, frameType).Inc()
	}
}

func frameTypeOf(frame any) string {
	type typed interface{ frameType() string }
	switch v := frame.(type) {
	case AgentTeamNamesFrame:
		return v.Type
	case AgentDetailsFrame:
		return v.Type
	case ParticipantNamesFrame:
		return v.Type
	case AgentMessageFrame:
		return v.Type
	case ToolCallFrame:
		return v.Type
	case ToolExecutionFrame:
		return v.Type
	case TreeUpdateFrame:
		return v.Type
	case StateUpdateFrame:
		return v.Type
	case AnalysisUpdateFrame:
		return v.Type
	case AgentInputRequestFrame:
		return v.Type
	case InterruptAcknowledgedFrame:
		return v.Type
	case StreamEndFrame:
		return v.Type
	case RunTerminationFrame:
		return v.Type
	case ErrorFrame:
		return v.Type
	case typed:
		return v.frameType()
	default:
		return "unknown"
	}
}
