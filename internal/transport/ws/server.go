// Package ws serves controllers over WebSocket. A controller says HELLO,
// takes an agent seat (or watches as a spectator), sends INPUT and CONTROL
// messages, and receives STEP and OBS messages every tick.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/control"
	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/runner"
)

// Session is the running simulation as seen by controllers.
type Session interface {
	Status() runner.Status
	LastObs(agentID string) (protocol.ObsMsg, bool)
}

type Config struct {
	Aggregator   *control.Aggregator
	Session      Session
	TickInterval time.Duration
	// AuthToken, when set, must be presented in HELLO.auth.token.
	AuthToken string
	Logger    logrus.FieldLogger
}

type Server struct {
	agg       *control.Aggregator
	session   Session
	tickMS    int
	authToken string
	log       logrus.FieldLogger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	seats   map[string]*client // agent id -> player
	clients map[*client]struct{}
}

type client struct {
	session string
	agentID string
	role    string
	out     chan []byte
	dropped atomic.Uint64
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		agg:       cfg.Aggregator,
		session:   cfg.Session,
		tickMS:    int(cfg.TickInterval / time.Millisecond),
		authToken: cfg.AuthToken,
		log:       logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		seats:   map[string]*client{},
		clients: map[*client]struct{}{},
	}
}

// Seated returns the agent ids that currently have a player.
func (s *Server) Seated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.agg.AgentIDs() {
		if s.seats[id] != nil {
			out = append(out, id)
		}
	}
	return out
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		log := s.log.WithFields(logrus.Fields{"controller": c.session, "agent": c.agentID, "role": c.role})
		log.Info("controller connected")
		defer func() {
			s.release(c)
			log.WithField("dropped", c.dropped.Load()).Info("controller disconnected")
		}()

		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-done:
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if ack := s.handle(c, msg); ack != nil {
				s.send(c, ack)
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoVersion, "bad protocol_version")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest, err.Error())
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if s.authToken != "" && (hello.Auth == nil || strings.TrimSpace(hello.Auth.Token) != s.authToken) {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrProtoBadRequest, "bad auth token")
		return nil
	}

	c := &client{session: uuid.NewString(), role: hello.Role, out: make(chan []byte, 32)}
	if c.role == "" {
		c.role = protocol.RolePlayer
	}
	if c.role == protocol.RolePlayer {
		id, code := s.claim(c, hello.AgentID)
		if code != "" {
			closeWith(conn, websocket.ClosePolicyViolation, code, "seat "+hello.AgentID)
			return nil
		}
		c.agentID = id
	} else {
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
	}

	st := s.session.Status()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.session,
		AgentID:         c.agentID,
		Role:            c.role,
		Episode:         st.Episode,
		TickIntervalMS:  s.tickMS,
		Scenario:        st.Scenario,
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.release(c)
		return nil
	}
	if c.agentID != "" {
		if obs, ok := s.session.LastObs(c.agentID); ok {
			if err := writeJSON(conn, obs); err != nil {
				s.release(c)
				return nil
			}
		}
	}
	return c
}

// claim seats c on want, or on the first free seat when want is empty.
func (s *Server) claim(c *client, want string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.agg.AgentIDs()
	if want == "" {
		for _, id := range ids {
			if s.seats[id] == nil {
				want = id
				break
			}
		}
		if want == "" {
			return "", protocol.ErrSeatTaken
		}
	}
	known := false
	for _, id := range ids {
		known = known || id == want
	}
	if !known {
		return "", protocol.ErrSeatUnknown
	}
	if s.seats[want] != nil {
		return "", protocol.ErrSeatTaken
	}
	s.seats[want] = c
	s.clients[c] = struct{}{}
	return want, ""
}

func (s *Server) release(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.agentID != "" && s.seats[c.agentID] == c {
		delete(s.seats, c.agentID)
	}
	delete(s.clients, c)
}

// handle processes one inbound message and returns the ACK to send, if any.
func (s *Server) handle(c *client, msg []byte) *protocol.AckMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return reject("", protocol.ErrProtoBadRequest, "bad json")
	}
	if base.ProtocolVersion != protocol.Version {
		return reject(base.Type, protocol.ErrProtoVersion, "bad protocol_version")
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		return reject(base.Type, protocol.ErrProtoBadRequest, err.Error())
	}

	switch base.Type {
	case protocol.TypeInput:
		var in protocol.InputMsg
		if err := json.Unmarshal(msg, &in); err != nil {
			return reject(base.Type, protocol.ErrProtoBadRequest, "bad INPUT")
		}
		return s.handleInput(c, in)

	case protocol.TypeControl:
		var ctl protocol.ControlMsg
		if err := json.Unmarshal(msg, &ctl); err != nil {
			return reject(base.Type, protocol.ErrProtoBadRequest, "bad CONTROL")
		}
		if c.role != protocol.RolePlayer {
			return reject(base.Type, protocol.ErrSpectator, "spectators cannot control")
		}
		switch ctl.Op {
		case protocol.ControlReset:
			s.agg.RequestReset()
		case protocol.ControlClose:
			s.agg.Close()
		default:
			return reject(base.Type, protocol.ErrProtoBadRequest, "unknown op "+ctl.Op)
		}
		s.log.WithFields(logrus.Fields{"controller": c.session, "op": ctl.Op}).Info("control")
		return s.accept(base.Type)

	default:
		return reject(base.Type, protocol.ErrProtoBadRequest, "unsupported type")
	}
}

func (s *Server) handleInput(c *client, in protocol.InputMsg) *protocol.AckMsg {
	if c.role != protocol.RolePlayer {
		return reject(protocol.TypeInput, protocol.ErrSpectator, "spectators cannot act")
	}
	if in.AgentID != "" && in.AgentID != c.agentID {
		return reject(protocol.TypeInput, protocol.ErrSeatUnknown, "not your seat: "+in.AgentID)
	}

	var act actions.Action
	if in.Key != "" {
		b, ok := s.agg.BindingFor(in.Key)
		if !ok || b.Agent != c.agentID {
			return reject(protocol.TypeInput, protocol.ErrBadKey, "key not bound to "+c.agentID)
		}
		act = b.Action
	} else {
		a, err := actions.Parse(in.Action)
		if err != nil {
			return reject(protocol.TypeInput, protocol.ErrBadAction, err.Error())
		}
		act = a
	}

	if err := s.agg.Submit(c.agentID, act); err != nil {
		switch {
		case errors.Is(err, control.ErrAgentDone):
			return reject(protocol.TypeInput, protocol.ErrAgentDone, err.Error())
		case errors.Is(err, control.ErrClosed):
			return reject(protocol.TypeInput, protocol.ErrClosed, err.Error())
		case errors.Is(err, actions.ErrInvalidAction):
			return reject(protocol.TypeInput, protocol.ErrBadAction, err.Error())
		default:
			return reject(protocol.TypeInput, protocol.ErrInternal, err.Error())
		}
	}
	return s.accept(protocol.TypeInput)
}

func (s *Server) accept(ackFor string) *protocol.AckMsg {
	return &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Accepted:        true,
		Tick:            s.session.Status().Tick,
	}
}

func reject(ackFor, code, message string) *protocol.AckMsg {
	return &protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Code:            code,
		Message:         message,
	}
}

// BroadcastReset sends every player its initial observation.
func (s *Server) BroadcastReset(_ string, _ protocol.ScenarioInfo, obs map[string]protocol.ObsMsg) {
	s.broadcastObs(obs)
}

// BroadcastStep sends the STEP summary to every controller and each player
// its own observation.
func (s *Server) BroadcastStep(step protocol.StepMsg, obs map[string]protocol.ObsMsg) {
	b, err := json.Marshal(step)
	if err != nil {
		s.log.WithError(err).Error("marshal STEP")
		return
	}
	s.mu.Lock()
	for c := range s.clients {
		c.push(b)
	}
	s.mu.Unlock()
	s.broadcastObs(obs)
}

func (s *Server) broadcastObs(obs map[string]protocol.ObsMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.seats {
		o, ok := obs[id]
		if !ok {
			continue
		}
		b, err := json.Marshal(o)
		if err != nil {
			s.log.WithError(err).WithField("agent", id).Error("marshal OBS")
			continue
		}
		c.push(b)
	}
}

func (s *Server) send(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.push(b)
}

// push never blocks the tick loop; a slow controller loses messages.
func (c *client) push(b []byte) {
	select {
	case c.out <- b:
	default:
		c.dropped.Add(1)
	}
}

func closeWith(conn *websocket.Conn, code int, errCode, reason string) {
	msg := errCode + ": " + reason
	if len(msg) > 120 {
		msg = msg[:120]
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, msg), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
