package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
)

// Slot identifies one of the three fixed storage locations.
type Slot int

const (
	Cool Slot = iota
	Fan
	Off
)

// SlotsTotal is the number of slots in the region.
const SlotsTotal = 3

// DefaultSlotSpan is the byte distance between two slot bases. Three
// slots of 400 bytes give a 1200 byte region, the EEPROM size of the
// ESP32 build.
const DefaultSlotSpan = 400

// headerSize is the u16 length prefix of every record.
const headerSize = 2

var Slots = [SlotsTotal]Slot{Cool, Fan, Off}

func (s Slot) String() string {
	switch s {
	case Cool:
		return "COOL"
	case Fan:
		return "FAN"
	case Off:
		return "OFF"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

func (s Slot) valid() bool {
	return s >= Cool && s <= Off
}

var (
	ErrUnknownSlot      = errors.New("unknown slot")
	ErrEmptySignal      = errors.New("signal has no samples")
	ErrCapacityExceeded = errors.New("signal exceeds slot capacity")
	ErrNotLearned       = errors.New("slot has not been learned")
	ErrCorruptRecord    = errors.New("corrupt slot record")
)

// Layout describes where the slots live inside the region.
type Layout struct {
	SlotSpan int
}

func DefaultLayout() Layout {
	return Layout{SlotSpan: DefaultSlotSpan}
}

// Base returns the byte offset of slot.
func (l Layout) Base(slot Slot) int64 {
	return int64(slot) * int64(l.SlotSpan)
}

// Capacity returns the maximum number of samples one slot can hold.
func (l Layout) Capacity() int {
	return (l.SlotSpan - headerSize) / 2
}

// Size returns the size of the whole region in bytes.
func (l Layout) Size() int {
	return SlotsTotal * l.SlotSpan
}

// Store encodes and decodes pulse timing records. A record is a big
// endian u16 sample count followed by that many big endian u16 samples.
// The count is authoritative: bytes left over from a longer previous
// record are never read.
type Store struct {
	medium Medium
	layout Layout
}

func New(medium Medium, layout Layout) *Store {
	return &Store{
		medium: medium,
		layout: layout,
	}
}

func (s *Store) Layout() Layout {
	return s.layout
}

// Write replaces the record of slot and commits it to the medium before
// returning. Oversized signals are rejected as a whole, nothing is
// written in that case.
func (s *Store) Write(slot Slot, samples []uint16) error {
	if !slot.valid() {
		return fmt.Errorf("write %s: %w", slot, ErrUnknownSlot)
	}
	if len(samples) == 0 {
		return fmt.Errorf("write %s: %w", slot, ErrEmptySignal)
	}
	if capacity := s.layout.Capacity(); len(samples) > capacity {
		return fmt.Errorf("write %s: %d samples, capacity %d: %w", slot, len(samples), capacity, ErrCapacityExceeded)
	}

	buf := make([]byte, headerSize+2*len(samples))
	binary.BigEndian.PutUint16(buf, uint16(len(samples)))
	for i, v := range samples {
		binary.BigEndian.PutUint16(buf[headerSize+2*i:], v)
	}

	if _, err := s.medium.WriteAt(buf, s.layout.Base(slot)); err != nil {
		return fmt.Errorf("write %s: %w", slot, err)
	}
	if err := s.medium.Sync(); err != nil {
		return fmt.Errorf("commit %s: %w", slot, err)
	}
	slog.Debug("Signal record written", "slot", slot, "samples", len(samples), "offset", s.layout.Base(slot))
	return nil
}

// Read decodes the record of slot.
func (s *Store) Read(slot Slot) ([]uint16, error) {
	length, err := s.length(slot)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 2*length)
	if _, err := s.medium.ReadAt(buf, s.layout.Base(slot)+headerSize); err != nil {
		return nil, fmt.Errorf("read %s: %w", slot, err)
	}
	samples := make([]uint16, length)
	for i := range samples {
		samples[i] = binary.BigEndian.Uint16(buf[2*i:])
	}
	return samples, nil
}

// Learned reports whether slot holds a readable record.
func (s *Store) Learned(slot Slot) bool {
	_, err := s.length(slot)
	return err == nil
}

func (s *Store) length(slot Slot) (int, error) {
	if !slot.valid() {
		return 0, fmt.Errorf("read %s: %w", slot, ErrUnknownSlot)
	}
	var hdr [headerSize]byte
	if _, err := s.medium.ReadAt(hdr[:], s.layout.Base(slot)); err != nil {
		return 0, fmt.Errorf("read %s: %w", slot, err)
	}
	length := int(binary.BigEndian.Uint16(hdr[:]))
	switch {
	case length == 0:
		return 0, fmt.Errorf("read %s: %w", slot, ErrNotLearned)
	case length > s.layout.Capacity():
		return 0, fmt.Errorf("read %s: length %d, capacity %d: %w", slot, length, s.layout.Capacity(), ErrCorruptRecord)
	}
	return length, nil
}
