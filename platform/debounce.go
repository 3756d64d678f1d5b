package platform

import "time"

// Debouncer filters the raw button level. A change only counts once the
// level has been stable for the whole window.
type Debouncer struct {
	window    time.Duration
	primed    bool
	raw       bool
	stable    bool
	changedAt time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Update feeds the current raw level and reports true exactly once per
// press, when the debounced level goes from released to pressed. The
// first level seen is taken as the resting state, so a button held at
// startup does not count as a press.
func (d *Debouncer) Update(level bool, now time.Time) bool {
	if !d.primed {
		d.primed = true
		d.raw, d.stable, d.changedAt = level, level, now
		return false
	}
	if level != d.raw {
		d.raw = level
		d.changedAt = now
		return false
	}
	if d.raw != d.stable && now.Sub(d.changedAt) >= d.window {
		d.stable = d.raw
		return !d.stable
	}
	return false
}

func (d *Debouncer) SetWindow(window time.Duration) {
	d.window = window
}
