package ir

import (
	"sync"
	"time"
)

// Capture assembles edge timestamps from an IR receiver into frames. The
// platform feeds it from its sampling goroutine via Edge and Flush; the
// control loop consumes frames with Poll and Resume.
//
// After a frame has been completed the capture is in the consumed state:
// further edges are ignored until Resume is called.
type Capture struct {
	mu         sync.Mutex
	timeout    time.Duration
	maxSamples int

	samples   []uint16
	lastEdge  time.Time
	receiving bool
	overflow  bool

	frame     Frame
	ready     bool
	delivered bool
}

func NewCapture(maxSamples int, timeout time.Duration) *Capture {
	return &Capture{
		timeout:    timeout,
		maxSamples: maxSamples,
		samples:    make([]uint16, 0, maxSamples),
	}
}

// Edge records a level change of the receiver output at time at.
func (c *Capture) Edge(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiving && at.Sub(c.lastEdge) > c.timeout {
		c.finish()
	}
	if c.ready {
		return
	}
	if !c.receiving {
		// first edge marks the start of the leading mark
		c.receiving = true
		c.overflow = false
		c.samples = c.samples[:0]
		c.lastEdge = at
		return
	}

	d := at.Sub(c.lastEdge)
	c.lastEdge = at
	if len(c.samples) >= c.maxSamples {
		c.overflow = true
		return
	}
	c.samples = append(c.samples, toMicros(d))
}

// Flush completes the frame in progress once the line has been idle
// for longer than the timeout.
func (c *Capture) Flush(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiving && now.Sub(c.lastEdge) > c.timeout {
		c.finish()
	}
}

func (c *Capture) finish() {
	c.receiving = false
	if len(c.samples) == 0 {
		return
	}
	samples := make([]uint16, len(c.samples))
	copy(samples, c.samples)

	protocol := Unknown
	if !c.overflow {
		protocol = Classify(samples)
	}
	c.frame = Frame{Protocol: protocol, Samples: samples, Overflow: c.overflow}
	c.ready = true
	c.delivered = false
}

// Poll returns the completed frame, if any. It never blocks. A frame is
// returned only once; Resume must be called before the next one can be
// captured.
func (c *Capture) Poll() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready || c.delivered {
		return Frame{}, false
	}
	c.delivered = true
	return c.frame, true
}

// Resume re-arms the receiver and drops any partial frame.
func (c *Capture) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	c.delivered = false
	c.receiving = false
	c.overflow = false
	c.samples = c.samples[:0]
}

// Inject places a complete frame as if it had been received. It reports
// false if the capture still holds an unconsumed frame.
func (c *Capture) Inject(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ready {
		return false
	}
	c.receiving = false
	c.frame = f
	c.ready = true
	c.delivered = false
	return true
}

// Pending reports whether a frame waits to be consumed.
func (c *Capture) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}
