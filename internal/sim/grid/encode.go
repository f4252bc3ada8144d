package grid

// Symbolic cell encoding, one (kind, color, state) triple per cell. Indices
// follow the minigrid convention so policies trained against it read the same
// layout; counters take the next free index.
const (
	IdxUnseen  uint8 = 0
	IdxEmpty   uint8 = 1
	IdxWall    uint8 = 2
	IdxDoor    uint8 = 4
	IdxKey     uint8 = 5
	IdxBall    uint8 = 6
	IdxBox     uint8 = 7
	IdxGoal    uint8 = 8
	IdxAgent   uint8 = 10
	IdxCounter uint8 = 11
)

var kindIdx = map[Kind]uint8{
	KindWall:    IdxWall,
	KindDoor:    IdxDoor,
	KindKey:     IdxKey,
	KindBall:    IdxBall,
	KindBox:     IdxBox,
	KindGoal:    IdxGoal,
	KindCounter: IdxCounter,
}

var colorIdx = map[Color]uint8{
	ColorRed:    0,
	ColorGreen:  1,
	ColorBlue:   2,
	ColorPurple: 3,
	ColorYellow: 4,
	ColorGrey:   5,
}

func ColorIndex(c Color) uint8 { return colorIdx[c] }

// EncodeObject returns the triple for a single cell. For doors the state is
// open/closed/locked (0/1/2); for counters it is the held item's kind index.
func EncodeObject(o *Object) [3]uint8 {
	if o == nil {
		return [3]uint8{IdxEmpty, 0, 0}
	}
	var state uint8
	switch o.Kind {
	case KindDoor:
		state = uint8(o.Door)
	case KindCounter:
		if o.Held != nil {
			state = kindIdx[o.Held.Kind]
		}
	}
	return [3]uint8{kindIdx[o.Kind], colorIdx[o.Color], state}
}

// Encode returns width*height*3 bytes in row-major order.
func (g *Grid) Encode() []uint8 {
	out := make([]uint8, 0, g.Width*g.Height*3)
	for _, o := range g.cells {
		t := EncodeObject(o)
		out = append(out, t[0], t[1], t[2])
	}
	return out
}
