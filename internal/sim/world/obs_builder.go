package world

import (
	"fmt"

	"multigrid.ai/internal/protocol"
	"multigrid.ai/internal/sim/grid"
)

var agentColors = []grid.Color{grid.ColorRed, grid.ColorGreen, grid.ColorBlue, grid.ColorPurple, grid.ColorYellow, grid.ColorGrey}

// AgentColor is the color an agent is drawn and encoded with.
func (w *World) AgentColor(id string) grid.Color {
	for i, aid := range w.order {
		if aid == id {
			return agentColors[i%len(agentColors)]
		}
	}
	return grid.ColorNone
}

// EncodeCells returns the symbolic grid with agents overlaid as
// (agent, color, dir) triples.
func (w *World) EncodeCells() []int {
	raw := w.grid.Encode()
	for _, id := range w.order {
		a := w.agents[id]
		i := (a.Pos.Y*w.grid.Width + a.Pos.X) * 3
		raw[i] = grid.IdxAgent
		raw[i+1] = grid.ColorIndex(w.AgentColor(id))
		raw[i+2] = uint8(a.Dir)
	}
	cells := make([]int, len(raw))
	for i, b := range raw {
		cells[i] = int(b)
	}
	return cells
}

func itemObs(o *grid.Object) *protocol.ItemObs {
	if o == nil {
		return nil
	}
	return &protocol.ItemObs{Kind: o.Kind.String(), Color: o.Color.String()}
}

func (w *World) observeAll() (map[string]protocol.ObsMsg, error) {
	cells := w.EncodeCells()
	out := make(map[string]protocol.ObsMsg, len(w.order))
	for _, id := range w.order {
		obs, err := w.observe(id, cells)
		if err != nil {
			return nil, err
		}
		out[id] = obs
	}
	return out, nil
}

// Observe builds one agent's observation of the current state.
func (w *World) Observe(agentID string) (protocol.ObsMsg, error) {
	if !w.ready {
		return protocol.ObsMsg{}, ErrNotReset
	}
	if w.agents[agentID] == nil {
		return protocol.ObsMsg{}, fmt.Errorf("%q: %w", agentID, ErrUnknownAgent)
	}
	return w.observe(agentID, w.EncodeCells())
}

func (w *World) observe(id string, cells []int) (protocol.ObsMsg, error) {
	a := w.agents[id]
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            w.stepCount,
		AgentID:         id,
		Mission:         w.mission,
		Self: protocol.SelfObs{
			Pos:       [2]int{a.Pos.X, a.Pos.Y},
			Dir:       int(a.Dir),
			Carrying:  itemObs(a.Carrying),
			StepCount: a.StepCount,
			Done:      a.Done,
		},
		Grid: protocol.GridObs{
			Width:    w.grid.Width,
			Height:   w.grid.Height,
			Encoding: protocol.GridEncoding,
			Cells:    cells,
		},
	}
	for _, oid := range w.order {
		if oid == id {
			continue
		}
		o := w.agents[oid]
		obs.Others = append(obs.Others, protocol.AgentObs{
			AgentID:  oid,
			Pos:      [2]int{o.Pos.X, o.Pos.Y},
			Dir:      int(o.Dir),
			Carrying: itemObs(o.Carrying),
			Done:     o.Done,
		})
	}
	if w.cfg.Renderer != nil {
		img, err := w.cfg.Renderer(w, id)
		if err != nil {
			return obs, fmt.Errorf("render %s: %w", id, err)
		}
		obs.Image = img
	}
	return obs, nil
}
