package grid

import "fmt"

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Dir is one of four headings. 0 faces +X, then clockwise (y grows downward).
type Dir uint8

const (
	DirRight Dir = iota
	DirDown
	DirLeft
	DirUp
)

var dirVecs = [4]Pos{{X: 1}, {Y: 1}, {X: -1}, {Y: -1}}

func (d Dir) Vec() Pos { return dirVecs[d%4] }

func (d Dir) Left() Dir { return (d + 3) % 4 }

func (d Dir) Right() Dir { return (d + 1) % 4 }

func (d Dir) Valid() bool { return d < 4 }

func (d Dir) String() string {
	switch d {
	case DirRight:
		return "right"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirUp:
		return "up"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

type Color uint8

const (
	ColorNone Color = iota
	ColorRed
	ColorGreen
	ColorBlue
	ColorPurple
	ColorYellow
	ColorGrey
)

var colorNames = map[Color]string{
	ColorNone:   "",
	ColorRed:    "red",
	ColorGreen:  "green",
	ColorBlue:   "blue",
	ColorPurple: "purple",
	ColorYellow: "yellow",
	ColorGrey:   "grey",
}

func (c Color) String() string { return colorNames[c] }

func ParseColor(s string) (Color, bool) {
	for c, name := range colorNames {
		if name == s {
			return c, true
		}
	}
	return ColorNone, false
}
