package platform

import (
	"math"

	"lautenbacher.net/goirac/config"
	"lautenbacher.net/goirac/ir"
)

// Platform abstracts the real hardware from the TUI simulation.
type Platform interface {
	// Start initializes the platform (e.g., opens GPIO, or starts the TUI).
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// Ready is closed once the platform can be used.
	Ready() <-chan bool

	Receiver() Receiver
	Transmitter() Transmitter
	Sensor() Sensor
	Button() Button

	// Commands delivers command tokens typed into the platform itself.
	// The hardware platform has none and returns nil.
	Commands() <-chan string

	// Apply hands a reloaded runtime configuration to the platform.
	Apply(rc config.RuntimeConfig)
}

// Receiver hands out captured IR frames without blocking.
type Receiver interface {
	Poll() (ir.Frame, bool)
	Resume()
}

// Transmitter replays a raw pulse timing sequence. It blocks for the
// duration of the sequence.
type Transmitter interface {
	Transmit(samples []uint16)
}

// Sensor reads temperature and humidity.
type Sensor interface {
	Read() Reading
}

// Button is the raw level of the mode button: true while released
// (pulled up), false while pressed.
type Button interface {
	Level() bool
}

// Reading is one sensor sample. A failed read is reported as NaN.
type Reading struct {
	Temperature float64
	Humidity    float64
}

func FailedReading() Reading {
	return Reading{Temperature: math.NaN(), Humidity: math.NaN()}
}

// Valid reports whether both values could be read.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Temperature) && !math.IsNaN(r.Humidity)
}
