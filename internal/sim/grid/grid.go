package grid

import (
	"errors"
	"fmt"
)

var (
	ErrOccupied    = errors.New("cell occupied")
	ErrEmpty       = errors.New("cell empty")
	ErrOutOfBounds = errors.New("position out of bounds")
	ErrNotCounter  = errors.New("not a counter")
	ErrNotPortable = errors.New("object not portable")
)

// Grid is a dense width*height array of cells, each holding at most one
// primary object. Agent occupancy is not stored here; the world derives it
// from agent positions.
type Grid struct {
	Width  int
	Height int
	cells  []*Object
}

func New(width, height int) *Grid {
	if width < 1 || height < 1 {
		panic(fmt.Sprintf("grid: invalid size %dx%d", width, height))
	}
	return &Grid{Width: width, Height: height, cells: make([]*Object, width*height)}
}

func (g *Grid) InBounds(p Pos) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.Width && p.Y < g.Height
}

func (g *Grid) idx(p Pos) int { return p.Y*g.Width + p.X }

// Get is a non-mutating lookup. Out-of-bounds positions read as nil.
func (g *Grid) Get(p Pos) *Object {
	if !g.InBounds(p) {
		return nil
	}
	return g.cells[g.idx(p)]
}

// Set overwrites a cell unconditionally. Layout code uses it; runtime code
// uses Place/Retrieve.
func (g *Grid) Set(p Pos, o *Object) {
	if !g.InBounds(p) {
		return
	}
	g.cells[g.idx(p)] = o
}

// Place puts o into an empty cell.
func (g *Grid) Place(p Pos, o *Object) error {
	if !g.InBounds(p) {
		return fmt.Errorf("place %s at %s: %w", o, p, ErrOutOfBounds)
	}
	if cur := g.cells[g.idx(p)]; cur != nil {
		return fmt.Errorf("place %s at %s (holds %s): %w", o, p, cur, ErrOccupied)
	}
	g.cells[g.idx(p)] = o
	return nil
}

// Retrieve detaches and returns the object at p.
func (g *Grid) Retrieve(p Pos) (*Object, error) {
	if !g.InBounds(p) {
		return nil, fmt.Errorf("retrieve at %s: %w", p, ErrOutOfBounds)
	}
	o := g.cells[g.idx(p)]
	if o == nil {
		return nil, fmt.Errorf("retrieve at %s: %w", p, ErrEmpty)
	}
	g.cells[g.idx(p)] = nil
	return o, nil
}

// Each visits every non-empty cell in row-major order.
func (g *Grid) Each(fn func(p Pos, o *Object)) {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if o := g.cells[y*g.Width+x]; o != nil {
				fn(Pos{X: x, Y: y}, o)
			}
		}
	}
}

// HorzWall fills length cells starting at (x,y) going right. A non-positive
// length runs to the right edge. mk defaults to NewWall.
func (g *Grid) HorzWall(x, y, length int, mk func() *Object) {
	if length <= 0 {
		length = g.Width - x
	}
	if mk == nil {
		mk = NewWall
	}
	for i := 0; i < length; i++ {
		g.Set(Pos{X: x + i, Y: y}, mk())
	}
}

// VertWall fills length cells starting at (x,y) going down.
func (g *Grid) VertWall(x, y, length int, mk func() *Object) {
	if length <= 0 {
		length = g.Height - y
	}
	if mk == nil {
		mk = NewWall
	}
	for j := 0; j < length; j++ {
		g.Set(Pos{X: x, Y: y + j}, mk())
	}
}

// WallRect draws the outline of a w*h rectangle with its top-left at (x,y).
func (g *Grid) WallRect(x, y, w, h int) {
	g.HorzWall(x, y, w, nil)
	g.HorzWall(x, y+h-1, w, nil)
	g.VertWall(x, y, h, nil)
	g.VertWall(x+w-1, y, h, nil)
}

// Clone deep-copies the grid.
func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height, cells: make([]*Object, len(g.cells))}
	for i, o := range g.cells {
		c.cells[i] = o.Clone()
	}
	return c
}
