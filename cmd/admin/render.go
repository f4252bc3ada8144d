package main

import (
	"strings"

	"multigrid.ai/internal/persistence/snapshot"
)

var kindGlyph = map[string]byte{
	"wall":    'W',
	"counter": 'C',
	"door":    'D',
	"key":     'K',
	"ball":    'A',
	"box":     'B',
	"goal":    'G',
}

// Indexed by grid direction: right, down, left, up.
var agentGlyph = [4]byte{'>', 'v', '<', '^'}

// renderASCII draws one character per cell. Counters holding an item show
// the item in lower case; open doors are drawn as 'd'.
func renderASCII(snap snapshot.SnapshotV1) string {
	if snap.Width <= 0 || snap.Height <= 0 {
		return ""
	}
	rows := make([][]byte, snap.Height)
	for y := range rows {
		rows[y] = []byte(strings.Repeat(".", snap.Width))
	}
	set := func(x, y int, c byte) {
		if x >= 0 && y >= 0 && x < snap.Width && y < snap.Height {
			rows[y][x] = c
		}
	}
	for _, c := range snap.Cells {
		g, ok := kindGlyph[c.Obj.Kind]
		if !ok {
			g = '?'
		}
		switch {
		case c.Obj.Kind == "counter" && c.Obj.Held != nil:
			if h, ok := kindGlyph[c.Obj.Held.Kind]; ok {
				g = h + ('a' - 'A')
			}
		case c.Obj.Kind == "door" && c.Obj.Door == 0:
			g = 'd'
		}
		set(c.X, c.Y, g)
	}
	for _, a := range snap.Agents {
		set(a.X, a.Y, agentGlyph[a.Dir%4])
	}

	var b strings.Builder
	for _, r := range rows {
		b.Write(r)
		b.WriteByte('\n')
	}
	return b.String()
}
