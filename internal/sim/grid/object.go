package grid

import "fmt"

// Kind tags a grid object variant.
type Kind uint8

const (
	KindWall Kind = iota + 1
	KindCounter
	KindDoor
	KindKey
	KindBall
	KindBox
	KindGoal
)

var kindNames = map[Kind]string{
	KindWall:    "wall",
	KindCounter: "counter",
	KindDoor:    "door",
	KindKey:     "key",
	KindBall:    "ball",
	KindBox:     "box",
	KindGoal:    "goal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Capability is the static behavior table entry of a Kind.
type Capability struct {
	BlocksMovement  bool
	CanOverlap      bool
	CanPickup       bool
	CanToggle       bool
	ContainsPayload bool
	SeeBehind       bool
}

var capabilities = map[Kind]Capability{
	KindWall:    {BlocksMovement: true},
	KindCounter: {BlocksMovement: true, ContainsPayload: true, SeeBehind: true},
	KindDoor:    {BlocksMovement: true, CanToggle: true},
	KindKey:     {BlocksMovement: true, CanPickup: true, SeeBehind: true},
	KindBall:    {BlocksMovement: true, CanPickup: true, SeeBehind: true},
	KindBox:     {BlocksMovement: true, CanPickup: true, CanToggle: true, ContainsPayload: true, SeeBehind: true},
	KindGoal:    {CanOverlap: true, SeeBehind: true},
}

func CapabilityOf(k Kind) Capability { return capabilities[k] }

// Portable reports whether objects of this kind can live in a carry slot.
func (k Kind) Portable() bool { return capabilities[k].CanPickup }

type DoorState uint8

const (
	DoorOpen DoorState = iota
	DoorClosed
	DoorLocked
)

func (s DoorState) String() string {
	switch s {
	case DoorOpen:
		return "open"
	case DoorClosed:
		return "closed"
	case DoorLocked:
		return "locked"
	default:
		return fmt.Sprintf("door_state(%d)", uint8(s))
	}
}

// Object is a single grid object. Variant-specific fields are only meaningful
// for their Kind: Door for doors, Owner for goals, Held for counters, Contains
// for boxes.
type Object struct {
	ID    uint64
	Kind  Kind
	Color Color

	Door  DoorState
	Owner string // goal owner agent id; empty means any agent

	Held     *Object
	Contains *Object

	// RelayID tags items that belong to a relay instance.
	RelayID string

	SeeThrough bool // walls only
}

func (o *Object) Capability() Capability {
	if o == nil {
		return Capability{}
	}
	return capabilities[o.Kind]
}

func (o *Object) CanOverlap() bool {
	if o == nil {
		return true
	}
	if o.Kind == KindDoor {
		return o.Door == DoorOpen
	}
	return capabilities[o.Kind].CanOverlap
}

func (o *Object) BlocksMovement() bool { return !o.CanOverlap() }

func (o *Object) CanPickup() bool { return o != nil && capabilities[o.Kind].CanPickup }

func (o *Object) CanToggle() bool { return o != nil && capabilities[o.Kind].CanToggle }

func (o *Object) SeeBehind() bool {
	if o == nil {
		return true
	}
	switch o.Kind {
	case KindDoor:
		return o.Door == DoorOpen
	case KindWall:
		return o.SeeThrough
	}
	return capabilities[o.Kind].SeeBehind
}

// IsGoalFor reports whether reaching this object finishes agentID's episode.
func (o *Object) IsGoalFor(agentID string) bool {
	return o != nil && o.Kind == KindGoal && (o.Owner == "" || o.Owner == agentID)
}

// Put places item on a counter.
func (o *Object) Put(item *Object) error {
	if o == nil || o.Kind != KindCounter {
		return fmt.Errorf("put on %v: %w", o.kindOrNil(), ErrNotCounter)
	}
	if item == nil || !item.CanPickup() {
		return fmt.Errorf("put %v on counter: %w", item.kindOrNil(), ErrNotPortable)
	}
	if o.Held != nil {
		return fmt.Errorf("counter holds %s: %w", o.Held.Kind, ErrOccupied)
	}
	o.Held = item
	return nil
}

// Take removes and returns the counter's item.
func (o *Object) Take() (*Object, error) {
	if o == nil || o.Kind != KindCounter {
		return nil, fmt.Errorf("take from %v: %w", o.kindOrNil(), ErrNotCounter)
	}
	if o.Held == nil {
		return nil, fmt.Errorf("take from counter: %w", ErrEmpty)
	}
	item := o.Held
	o.Held = nil
	return item, nil
}

// ToggleDoor applies a toggle to a door with the given carried item. It returns
// whether the toggle had an effect. A locked door opens only for a key of the
// door's color; closed and open doors flip freely.
func (o *Object) ToggleDoor(carrying *Object) bool {
	if o == nil || o.Kind != KindDoor {
		return false
	}
	switch o.Door {
	case DoorLocked:
		if carrying != nil && carrying.Kind == KindKey && carrying.Color == o.Color {
			o.Door = DoorOpen
			return true
		}
		return false
	case DoorClosed:
		o.Door = DoorOpen
		return true
	default:
		o.Door = DoorClosed
		return true
	}
}

func (o *Object) String() string {
	if o == nil {
		return "none"
	}
	if o.Color == ColorNone {
		return o.Kind.String()
	}
	return o.Color.String() + " " + o.Kind.String()
}

func (o *Object) kindOrNil() string {
	if o == nil {
		return "nil"
	}
	return o.Kind.String()
}

// Clone deep-copies an object including nested payloads.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	c.Held = o.Held.Clone()
	c.Contains = o.Contains.Clone()
	return &c
}

func NewWall() *Object { return &Object{Kind: KindWall, Color: ColorGrey} }

func NewCounter() *Object { return &Object{Kind: KindCounter, Color: ColorPurple} }

func NewDoor(c Color, locked bool) *Object {
	st := DoorClosed
	if locked {
		st = DoorLocked
	}
	return &Object{Kind: KindDoor, Color: c, Door: st}
}

func NewKey(c Color) *Object { return &Object{Kind: KindKey, Color: c} }

func NewBall(c Color) *Object { return &Object{Kind: KindBall, Color: c} }

func NewBox(c Color, contains *Object) *Object {
	return &Object{Kind: KindBox, Color: c, Contains: contains}
}

func NewGoal(owner string, c Color) *Object {
	if c == ColorNone {
		c = ColorGreen
	}
	return &Object{Kind: KindGoal, Color: c, Owner: owner}
}
