package runner

import (
	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/actions"
	"multigrid.ai/internal/sim/world"
)

// StepMessage projects a step result onto the wire.
func StepMessage(episode string, acts map[string]actions.Action, res world.StepResult) protocol.StepMsg {
	msg := protocol.StepMsg{
		Type:            protocol.TypeStep,
		ProtocolVersion: protocol.Version,
		Episode:         episode,
		Tick:            res.Tick,
		Actions:         make(map[string]string, len(acts)),
		Rewards:         res.Rewards,
		Done:            res.Done,
		Info:            make(map[string]protocol.InfoObs, len(res.Info)),
		Digest:          res.Digest,
	}
	for id, a := range acts {
		msg.Actions[id] = a.String()
	}
	for id, in := range res.Info {
		wire := in.ActionInfo.Wire()
		obs := protocol.InfoObs{
			Kind:      wire.Kind,
			Item:      wire.Item,
			Color:     wire.Color,
			OK:        wire.OK,
			StepCount: in.StepCount,
			TimedOut:  in.TimedOut,
		}
		if wire.At != nil {
			obs.At = &[2]int{wire.At.X, wire.At.Y}
		}
		msg.Info[id] = obs
	}
	for _, d := range res.Deliveries {
		msg.Deliveries = append(msg.Deliveries, protocol.DeliveryObs{RelayID: d.RelayID, Item: d.Item, Credited: d.Credited})
	}
	return msg
}

// ScenarioInfo describes the world's current episode layout.
func ScenarioInfo(w *world.World) protocol.ScenarioInfo {
	s := w.Scenario()
	return protocol.ScenarioInfo{
		Name:     s.Name,
		Width:    s.Width,
		Height:   s.Height,
		MaxSteps: w.MaxSteps(),
		Agents:   w.AgentIDs(),
		Mission:  w.Mission(),
		Seed:     w.SeedValue(),
	}
}
