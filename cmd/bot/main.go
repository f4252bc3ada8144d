package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		agentID  = flag.String("agent", "", "seat to request (default: first free)")
		token    = flag.String("token", "", "auth token")
		seed     = flag.Int64("seed", 0, "policy seed (0: time based)")
		doneProb = flag.Float64("done_prob", 0.002, "chance per tick of sending done")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("component", "bot")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(hello(*name, *agentID, *token)); err != nil {
		log.Fatalf("send HELLO: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	p := &policy{rng: rand.New(rand.NewSource(*seed)), doneProb: *doneProb}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	var seat string
	var sent, rejected int
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.WithFields(logrus.Fields{"sent": sent, "rejected": rejected}).Infof("disconnected: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			seat = w.AgentID
			log = log.WithField("agent", seat)
			log.WithFields(logrus.Fields{"role": w.Role, "episode": w.Episode, "scenario": w.Scenario.Name, "tick_ms": w.TickIntervalMS}).Info("WELCOME")

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil || obs.AgentID != seat {
				continue
			}
			act, ok := p.next(obs)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(input(act)); err != nil {
				log.Warnf("send INPUT: %v", err)
				return
			}
			sent++

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil || ack.Accepted {
				continue
			}
			rejected++
			log.WithFields(logrus.Fields{"code": ack.Code, "ack_for": ack.AckFor}).Debug(ack.Message)

		case protocol.TypeStep:
			var step protocol.StepMsg
			if err := json.Unmarshal(msg, &step); err != nil {
				continue
			}
			if len(step.Deliveries) > 0 || step.Done["__all__"] {
				log.WithFields(logrus.Fields{"episode": step.Episode, "tick": step.Tick, "reward": step.Rewards[seat], "deliveries": len(step.Deliveries)}).Info("STEP")
			}
		}
	}
}

func hello(name, agentID, token string) protocol.HelloMsg {
	h := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
		Role:            protocol.RolePlayer,
		AgentID:         agentID,
	}
	if token != "" {
		h.Auth = &protocol.HelloAuth{Token: token}
	}
	return h
}

func input(act actions.Action) protocol.InputMsg {
	return protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Action:          act.String(),
	}
}

// policy picks one uniformly random non-done action per observed tick.
type policy struct {
	rng      *rand.Rand
	doneProb float64

	episode string
	tick    int
	seen    bool
}

var moves = []actions.Action{
	actions.TurnLeft, actions.TurnRight, actions.MoveForward,
	actions.Pickup, actions.Drop, actions.Toggle,
}

func (p *policy) next(obs protocol.ObsMsg) (actions.Action, bool) {
	if obs.Self.Done {
		return actions.NoOp, false
	}
	if p.seen && obs.Episode == p.episode && obs.Tick <= p.tick {
		return actions.NoOp, false
	}
	p.seen, p.episode, p.tick = true, obs.Episode, obs.Tick
	if p.rng.Float64() < p.doneProb {
		return actions.Done, true
	}
	return moves[p.rng.Intn(len(moves))], true
}
