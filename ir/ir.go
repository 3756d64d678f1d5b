// Package ir turns infrared transmissions into raw pulse timing
// sequences and back. A sequence alternates mark (carrier on) and space
// (carrier off) durations in microseconds, always starting with a mark.
package ir

import (
	"fmt"
	"math"
	"time"
)

const (
	// Carrier38kHz is the carrier used for replay; nearly every AC remote uses it.
	Carrier38kHz = 38000
	// DefaultCaptureTimeout is the idle gap that ends a frame.
	DefaultCaptureTimeout = 15 * time.Millisecond
	// DefaultMaxSamples sizes the capture buffer.
	DefaultMaxSamples = 1024
)

// Protocol is the family a captured frame was recognised as.
type Protocol int

const (
	Unknown Protocol = iota
	NEC
	Samsung
	Sony
	PulseDistance
)

func (p Protocol) String() string {
	switch p {
	case NEC:
		return "NEC"
	case Samsung:
		return "SAMSUNG"
	case Sony:
		return "SONY"
	case PulseDistance:
		return "PULSE_DISTANCE"
	default:
		return "UNKNOWN"
	}
}

// Frame is one decoded transmission.
type Frame struct {
	Protocol Protocol
	Samples  []uint16
	// Overflow is set when the transmission was longer than the capture
	// buffer; the samples are then cut off and the frame is Unknown.
	Overflow bool
}

// Recognized reports whether the frame may be learned.
func (f Frame) Recognized() bool {
	return f.Protocol != Unknown
}

func (f Frame) String() string {
	if addr, cmd, ok := DecodeNEC(f.Samples); ok && f.Protocol == NEC {
		return fmt.Sprintf("%s addr=0x%02X cmd=0x%02X (%d samples)", f.Protocol, addr, cmd, len(f.Samples))
	}
	return fmt.Sprintf("%s (%d samples)", f.Protocol, len(f.Samples))
}

// Duration is the real time a sequence takes to send.
func Duration(samples []uint16) time.Duration {
	var sum time.Duration
	for _, s := range samples {
		sum += time.Duration(s) * time.Microsecond
	}
	return sum
}

func toMicros(d time.Duration) uint16 {
	us := d.Microseconds()
	if us > math.MaxUint16 {
		return math.MaxUint16
	}
	if us < 0 {
		return 0
	}
	return uint16(us)
}
