package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_ShortGlitchIgnored(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond)
	start := time.Unix(0, 0)

	assert.False(t, d.Update(true, start))
	assert.False(t, d.Update(false, start.Add(10*time.Millisecond)))
	assert.False(t, d.Update(false, start.Add(150*time.Millisecond)))
	assert.False(t, d.Update(true, start.Add(190*time.Millisecond)))
	for ms := 200; ms < 1000; ms += 10 {
		assert.False(t, d.Update(true, start.Add(time.Duration(ms)*time.Millisecond)), "no press at %dms", ms)
	}
}

func TestDebouncer_LongPressTogglesOnce(t *testing.T) {
	d := NewDebouncer(200 * time.Millisecond)
	start := time.Unix(0, 0)

	presses := 0
	d.Update(true, start.Add(-time.Second))
	// held down for one second, polled every 5ms
	for ms := 0; ms <= 1000; ms += 5 {
		if d.Update(false, start.Add(time.Duration(ms)*time.Millisecond)) {
			presses++
		}
	}
	// released for one second
	for ms := 1005; ms <= 2000; ms += 5 {
		if d.Update(true, start.Add(time.Duration(ms)*time.Millisecond)) {
			presses++
		}
	}
	assert.Equal(t, 1, presses)
}

func TestDebouncer_BouncingContact(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	presses := 0
	d.Update(true, at(-100))
	// contact bounces for 20ms, then stays closed
	levels := []bool{false, true, false, true, false}
	for i, l := range levels {
		if d.Update(l, at(i*5)) {
			presses++
		}
	}
	for ms := 25; ms < 300; ms += 5 {
		if d.Update(false, at(ms)) {
			presses++
		}
	}
	assert.Equal(t, 1, presses)

	// second press after release
	for ms := 300; ms < 500; ms += 5 {
		if d.Update(true, at(ms)) {
			presses++
		}
	}
	for ms := 500; ms < 700; ms += 5 {
		if d.Update(false, at(ms)) {
			presses++
		}
	}
	assert.Equal(t, 2, presses)
}

func TestDebouncer_HeldAtStartup(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	start := time.Unix(0, 0)

	for ms := 0; ms < 500; ms += 5 {
		assert.False(t, d.Update(false, start.Add(time.Duration(ms)*time.Millisecond)), "no press at %dms", ms)
	}
	// released and pressed again counts
	presses := 0
	for ms := 500; ms < 1000; ms += 5 {
		level := ms >= 700
		if d.Update(!level, start.Add(time.Duration(ms)*time.Millisecond)) {
			presses++
		}
	}
	assert.Equal(t, 1, presses)
}
