package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"multigrid.ai/internal/sim/grid"
)

// StateDigest hashes everything that influences future ticks: counters,
// every cell, every agent and every relay. Two worlds with equal digests
// evolve identically under equal actions.
func (w *World) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteI64(h, &tmp, int64(w.stepCount))
	digestWriteI64(h, &tmp, int64(w.maxSteps))
	digestWriteU64(h, &tmp, w.nextObject)
	h.Write([]byte(w.mission))

	if w.grid != nil {
		digestWriteI64(h, &tmp, int64(w.grid.Width))
		digestWriteI64(h, &tmp, int64(w.grid.Height))
		w.grid.Each(func(p grid.Pos, o *grid.Object) {
			digestWriteI64(h, &tmp, int64(p.X))
			digestWriteI64(h, &tmp, int64(p.Y))
			digestObject(h, &tmp, o)
		})
	}

	for _, id := range w.order {
		a := w.agents[id]
		if a == nil {
			continue
		}
		h.Write([]byte(id))
		digestWriteI64(h, &tmp, int64(a.Pos.X))
		digestWriteI64(h, &tmp, int64(a.Pos.Y))
		h.Write([]byte{byte(a.Dir), boolByte(a.Done)})
		digestWriteI64(h, &tmp, int64(a.StepCount))
		digestObject(h, &tmp, a.Carrying)
	}

	if w.relays != nil {
		for _, r := range w.relays.All() {
			h.Write([]byte(r.ID))
			h.Write([]byte{byte(r.State)})
			digestWriteU64(h, &tmp, r.ItemID)
			digestWriteI64(h, &tmp, int64(r.Deliveries))
			digestWriteI64(h, &tmp, int64(r.Lost))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestObject(h hashWriter, tmp *[8]byte, o *grid.Object) {
	if o == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{byte(o.Kind), byte(o.Color), byte(o.Door), boolByte(o.SeeThrough)})
	digestWriteU64(h, tmp, o.ID)
	h.Write([]byte(o.Owner))
	h.Write([]byte{0})
	h.Write([]byte(o.RelayID))
	h.Write([]byte{0})
	digestObject(h, tmp, o.Held)
	digestObject(h, tmp, o.Contains)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
