// Package history stores received states newest-first in a fixed-capacity
// ring. Insertion at the front moves a head index instead of shifting slots.
package history

import (
	"errors"
	"fmt"

	"github.com/OCAP2/smoothsync/pkg/core"
)

// ErrStale is returned by Add for a state that is not newer than the newest
// stored state.
var ErrStale = errors.New("stale state")

// Entry is a stored state plus the sequence number it was stored under.
// Sequence numbers identify entries across ticks even as the ring rotates.
type Entry struct {
	core.SyncState
	Seq uint64
}

// History is a newest-first ring buffer of states. Index 0 is the newest.
// It is not safe for concurrent use.
type History struct {
	slots []Entry
	head  int
	count int
	seq   uint64
}

// New creates a history holding at most capacity states.
func New(capacity int) *History {
	if capacity < 2 {
		capacity = 2
	}
	return &History{slots: make([]Entry, capacity)}
}

// Cap returns the capacity.
func (h *History) Cap() int { return len(h.slots) }

// Len returns the number of stored states.
func (h *History) Len() int { return h.count }

func (h *History) slot(i int) int {
	return (h.head + i) % len(h.slots)
}

// At returns the i-th newest entry. It panics if i is out of range.
func (h *History) At(i int) Entry {
	if i < 0 || i >= h.count {
		panic(fmt.Sprintf("history: index %d out of range [0,%d)", i, h.count))
	}
	return h.slots[h.slot(i)]
}

// Newest returns the newest entry, if any.
func (h *History) Newest() (Entry, bool) {
	if h.count == 0 {
		return Entry{}, false
	}
	return h.slots[h.head], true
}

// IndexOf returns the current index of the entry with sequence number seq.
func (h *History) IndexOf(seq uint64) (int, bool) {
	for i := 0; i < h.count; i++ {
		if h.slots[h.slot(i)].Seq == seq {
			return i, true
		}
	}
	return -1, false
}

// Add stores s as the newest state. A state older than the newest one is
// rejected, as is a state with the same timestamp once two or more states
// are held. When full, the oldest state is evicted.
func (h *History) Add(s core.SyncState) error {
	if newest, ok := h.Newest(); ok {
		if s.Timestamp < newest.Timestamp || (h.count > 1 && s.Timestamp == newest.Timestamp) {
			return fmt.Errorf("%w: %.4f is not after %.4f", ErrStale, s.Timestamp, newest.Timestamp)
		}
	}
	h.pushFront(s)
	return nil
}

// AddTeleport stores s as a teleport at its timestamp-sorted position. The
// first state ever stored is duplicated so an interpolation bracket exists.
func (h *History) AddTeleport(s core.SyncState) {
	s.Teleport = true

	newest, ok := h.Newest()
	if !ok {
		h.pushFront(s)
		h.pushFront(s)
		return
	}
	if s.Timestamp >= newest.Timestamp {
		h.pushFront(s)
		return
	}

	pos := 0
	for pos < h.count && h.At(pos).Timestamp > s.Timestamp {
		pos++
	}
	h.insertAt(pos, s)
}

// Clear drops every stored state.
func (h *History) Clear() {
	clear(h.slots)
	h.head = 0
	h.count = 0
}

// States returns a newest-first copy of the stored states.
func (h *History) States() []core.SyncState {
	out := make([]core.SyncState, h.count)
	for i := range out {
		out[i] = h.slots[h.slot(i)].SyncState
	}
	return out
}

func (h *History) next(s core.SyncState) Entry {
	h.seq++
	return Entry{SyncState: s, Seq: h.seq}
}

func (h *History) pushFront(s core.SyncState) {
	h.head = (h.head - 1 + len(h.slots)) % len(h.slots)
	h.slots[h.head] = h.next(s)
	if h.count < len(h.slots) {
		h.count++
	}
}

// insertAt places s at logical index pos, moving older entries back by one.
func (h *History) insertAt(pos int, s core.SyncState) {
	if pos >= len(h.slots) {
		return
	}
	last := h.count
	if last == len(h.slots) {
		last--
	} else {
		h.count++
	}
	for i := last; i > pos; i-- {
		h.slots[h.slot(i)] = h.slots[h.slot(i-1)]
	}
	h.slots[h.slot(pos)] = h.next(s)
}
