package controller

import (
	"fmt"
	"log/slog"

	"lautenbacher.net/goirac/ir"
	"lautenbacher.net/goirac/store"
)

// Sequencer stores the next recognised frames into the slots COOL, FAN
// and OFF, in that order. The cursor survives mode changes but not a
// restart.
type Sequencer struct {
	store  *store.Store
	report func(string)
	step   int
}

func NewSequencer(st *store.Store, report func(string)) *Sequencer {
	return &Sequencer{store: st, report: report}
}

// Step returns the index of the slot the next frame goes to.
func (q *Sequencer) Step() int {
	return q.step
}

// Slot returns the slot the next frame goes to.
func (q *Sequencer) Slot() store.Slot {
	return store.Slots[q.step]
}

// Offer stores frame in the current slot and advances the cursor. It
// reports true when the third slot has been written; the cursor is back
// at the first slot then. Unrecognised frames are ignored. If the store
// rejects the frame the cursor stays where it is.
func (q *Sequencer) Offer(frame ir.Frame) (bool, error) {
	if !frame.Recognized() {
		slog.Debug("Ignoring unrecognized IR frame", "frame", frame.String(), "overflow", frame.Overflow)
		return false, nil
	}

	slot := q.Slot()
	q.report(fmt.Sprintf("Received IR signal %d. Saving...", q.step+1))
	if err := q.store.Write(slot, frame.Samples); err != nil {
		return false, fmt.Errorf("learn %s: %w", slot, err)
	}
	q.report(fmt.Sprintf("Saved %d values to slot %s @%d", len(frame.Samples), slot, q.store.Layout().Base(slot)))

	q.step++
	if q.step == store.SlotsTotal {
		q.step = 0
		return true, nil
	}
	return false, nil
}
