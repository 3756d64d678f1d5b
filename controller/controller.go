// Package controller owns the device state: the mode, the learning
// cursor and the automatic temperature policy. It is driven by a single
// loop and is not safe for concurrent use.
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"lautenbacher.net/goirac/config"
	"lautenbacher.net/goirac/platform"
	"lautenbacher.net/goirac/store"
)

type Mode int

const (
	Automatic Mode = iota
	Learning
)

func (m Mode) String() string {
	if m == Learning {
		return "LEARNING"
	}
	return "AUTO CONTROL"
}

// Reporter is the outbound side of the messaging link.
type Reporter interface {
	// Log publishes a human readable progress line.
	Log(msg string)
	// Status publishes a JSON status document.
	Status(payload []byte)
}

// Discard is a Reporter that drops everything, used when no messaging
// link is configured.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Log(string)    {}
func (discard) Status([]byte) {}

// Devices bundles the hardware the controller drives.
type Devices struct {
	Receiver    platform.Receiver
	Transmitter platform.Transmitter
	Sensor      platform.Sensor
}

type Controller struct {
	store     *store.Store
	devices   Devices
	reporter  Reporter
	sequencer *Sequencer

	mode       Mode
	thresholds config.ThresholdsConfig
	interval   time.Duration
	lastEval   time.Time
	evaluated  bool
}

func New(st *store.Store, devices Devices, reporter Reporter, rc config.RuntimeConfig) *Controller {
	c := &Controller{
		store:      st,
		devices:    devices,
		reporter:   reporter,
		mode:       Automatic,
		thresholds: rc.Thresholds,
		interval:   rc.Control.Interval,
	}
	c.sequencer = NewSequencer(st, c.report)
	return c
}

func (c *Controller) Mode() Mode {
	return c.mode
}

// Sequencer gives access to the learning cursor.
func (c *Controller) Sequencer() *Sequencer {
	return c.sequencer
}

// Apply takes over a reloaded runtime configuration.
func (c *Controller) Apply(rc config.RuntimeConfig) {
	c.thresholds = rc.Thresholds
	c.interval = rc.Control.Interval
	slog.Info("Controller configuration applied",
		"high", c.thresholds.High, "low", c.thresholds.Low, "interval", c.interval)
}

// SetMode switches the mode. The learning cursor is left alone so that
// an interrupted learning session continues where it stopped.
func (c *Controller) SetMode(m Mode) {
	if m == Learning && c.mode != Learning {
		// drop whatever was captured while not learning
		c.devices.Receiver.Resume()
	}
	c.mode = m
	c.report(fmt.Sprintf("Switched to %s Mode", m))
	if m == Learning {
		slog.Info("Waiting for IR signal", "slot", c.sequencer.Slot(), "step", c.sequencer.Step()+1)
	}
}

// ToggleMode is bound to the debounced button.
func (c *Controller) ToggleMode() {
	if c.mode == Learning {
		c.SetMode(Automatic)
	} else {
		c.SetMode(Learning)
	}
}

// HandleCommand dispatches one inbound command token. Unknown tokens
// are ignored.
func (c *Controller) HandleCommand(token string) {
	c.report("Command received: " + token)
	switch token {
	case "cool":
		c.Replay(store.Cool)
	case "fan":
		c.Replay(store.Fan)
	case "off":
		c.Replay(store.Off)
	case "auto":
		c.SetMode(Automatic)
	case "learn":
		c.SetMode(Learning)
	default:
		slog.Debug("Ignoring unrecognized command", "token", token)
	}
}

// Replay sends the learned signal of slot. It blocks for the length of
// the transmission.
func (c *Controller) Replay(slot store.Slot) error {
	if c.mode == Learning {
		// learn a frame captured before the command, the resume below
		// must only drop our own echo
		c.learn()
	}
	samples, err := c.store.Read(slot)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotLearned):
			c.report(fmt.Sprintf("No %s signal learned yet", slot))
		case errors.Is(err, store.ErrCorruptRecord):
			c.report(fmt.Sprintf("Stored %s signal is corrupt, learn it again", slot))
		}
		slog.Error("Replay aborted", "slot", slot, "error", err)
		return fmt.Errorf("replay %s: %w", slot, err)
	}

	c.devices.Transmitter.Transmit(samples)
	// the receiver sees our own transmission
	c.devices.Receiver.Resume()
	c.report(fmt.Sprintf("Sent IR from slot %s @%d", slot, c.store.Layout().Base(slot)))
	return nil
}

// Step runs one iteration of the active mode.
func (c *Controller) Step(now time.Time) {
	if c.mode == Learning {
		c.learn()
		return
	}
	if frame, ok := c.devices.Receiver.Poll(); ok {
		slog.Debug("Discarding IR frame outside learning mode", "frame", frame.String())
		c.devices.Receiver.Resume()
	}
	c.evaluate(now)
}

func (c *Controller) learn() {
	frame, ok := c.devices.Receiver.Poll()
	if !ok {
		return
	}
	defer c.devices.Receiver.Resume()

	done, err := c.sequencer.Offer(frame)
	if err != nil {
		c.report(fmt.Sprintf("Saving IR signal %d failed: %v", c.sequencer.Step()+1, err))
		slog.Error("Learning failed", "slot", c.sequencer.Slot(), "error", err)
		return
	}
	if done {
		c.report("All signals saved. Switching to AUTO.")
		c.mode = Automatic
	}
}

// evaluate runs the temperature policy at most once per interval. The
// first call always runs. It reports whether the policy was evaluated.
func (c *Controller) evaluate(now time.Time) bool {
	if c.evaluated && now.Sub(c.lastEval) < c.interval {
		return false
	}
	c.evaluated = true
	c.lastEval = now

	reading := c.devices.Sensor.Read()
	if !reading.Valid() {
		slog.Warn("sensor read failed")
		c.report("Sensor read failed, skipping this cycle")
		return true
	}

	payload, err := json.Marshal(NewStatus(reading))
	if err != nil {
		slog.Error("Can't encode status", "error", err)
	} else {
		c.reporter.Status(payload)
	}
	c.report(fmt.Sprintf("Temp: %.1fC, Hum: %.1f%%", reading.Temperature, reading.Humidity))

	switch t := reading.Temperature; {
	case t >= c.thresholds.High:
		c.report("Sending COOL signal.")
		c.Replay(store.Cool)
	case t <= c.thresholds.Low:
		c.report("Sending FAN signal.")
		c.Replay(store.Fan)
	}
	return true
}

func (c *Controller) report(msg string) {
	slog.Info(msg)
	c.reporter.Log(msg)
}

// Status is the document published on the status topic.
type Status struct {
	Temp OneDecimal `json:"temp"`
	Hum  OneDecimal `json:"hum"`
}

func NewStatus(r platform.Reading) Status {
	return Status{Temp: OneDecimal(r.Temperature), Hum: OneDecimal(r.Humidity)}
}

// OneDecimal is a float that is encoded with exactly one decimal.
type OneDecimal float64

func (d OneDecimal) MarshalJSON() ([]byte, error) {
	v := float64(d)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("can't encode %v as JSON number", v)
	}
	return []byte(strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)), nil
}
