package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() (*Store, *MemMedium) {
	layout := DefaultLayout()
	medium := NewMemMedium(layout.Size())
	return New(medium, layout), medium
}

func TestLayout(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, int64(0), l.Base(Cool))
	assert.Equal(t, int64(400), l.Base(Fan))
	assert.Equal(t, int64(800), l.Base(Off))
	assert.Equal(t, 199, l.Capacity())
	assert.Equal(t, 1200, l.Size())
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s, _ := newMemStore()

	for _, n := range []int{1, 2, 67, 199} {
		samples := make([]uint16, n)
		for i := range samples {
			samples[i] = uint16(i*331 + 7)
		}
		for _, slot := range Slots {
			require.NoError(t, s.Write(slot, samples))
			got, err := s.Read(slot)
			require.NoError(t, err)
			assert.Equal(t, samples, got, "slot %s with %d samples", slot, n)
		}
	}
}

func TestWrite_ByteLayout(t *testing.T) {
	s, medium := newMemStore()

	require.NoError(t, s.Write(Fan, []uint16{0x1234, 0xABCD, 9000}))

	data := medium.Bytes()
	assert.Equal(t, []byte{0x00, 0x03, 0x12, 0x34, 0xAB, 0xCD, 0x23, 0x28}, data[400:408])
	// neighbours untouched
	assert.Equal(t, make([]byte, 400), data[0:400])
	assert.Equal(t, make([]byte, 400), data[800:1200])
	assert.Equal(t, 1, medium.syncs, "write must commit")
}

func TestWrite_ShorterRecordLeavesStaleTail(t *testing.T) {
	s, medium := newMemStore()

	require.NoError(t, s.Write(Cool, []uint16{1, 2, 3, 4}))
	require.NoError(t, s.Write(Cool, []uint16{9}))

	data := medium.Bytes()
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x09, 0x00, 0x03, 0x00, 0x04}, data[0:8])

	got, err := s.Read(Cool)
	require.NoError(t, err)
	assert.Equal(t, []uint16{9}, got)
}

func TestWrite_CapacityExceeded(t *testing.T) {
	s, medium := newMemStore()
	before := medium.Bytes()

	err := s.Write(Cool, make([]uint16, 200))
	assert.True(t, errors.Is(err, ErrCapacityExceeded), "got %v", err)
	assert.Equal(t, before, medium.Bytes(), "nothing may be written on overflow")
	assert.Equal(t, 0, medium.syncs)
}

func TestWrite_Rejects(t *testing.T) {
	s, _ := newMemStore()

	assert.ErrorIs(t, s.Write(Cool, nil), ErrEmptySignal)
	assert.ErrorIs(t, s.Write(Slot(3), []uint16{1}), ErrUnknownSlot)
	assert.ErrorIs(t, s.Write(Slot(-1), []uint16{1}), ErrUnknownSlot)
}

func TestRead_NotLearned(t *testing.T) {
	s, _ := newMemStore()

	_, err := s.Read(Off)
	assert.ErrorIs(t, err, ErrNotLearned)
	assert.False(t, s.Learned(Off))

	require.NoError(t, s.Write(Off, []uint16{560}))
	assert.True(t, s.Learned(Off))
}

func TestRead_CorruptRecord(t *testing.T) {
	s, medium := newMemStore()

	// erased EEPROM reads back as 0xFF
	_, err := medium.WriteAt([]byte{0xFF, 0xFF}, 800)
	require.NoError(t, err)
	_, err = s.Read(Off)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	// one more than capacity
	_, err = medium.WriteAt([]byte{0x00, 200}, 0)
	require.NoError(t, err)
	_, err = s.Read(Cool)
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.False(t, s.Learned(Cool))
}

func TestRead_Idempotent(t *testing.T) {
	s, _ := newMemStore()
	samples := []uint16{9000, 4500, 560, 560, 560, 1690, 560}
	require.NoError(t, s.Write(Cool, samples))

	first, err := s.Read(Cool)
	require.NoError(t, err)
	second, err := s.Read(Cool)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFileMedium_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.bin")
	layout := DefaultLayout()

	m, err := OpenFileMedium(path, layout.Size())
	require.NoError(t, err)
	s := New(m, layout)
	_, err = s.Read(Cool)
	assert.ErrorIs(t, err, ErrNotLearned, "fresh file must read as not learned")
	require.NoError(t, s.Write(Cool, []uint16{3400, 1750, 430, 1300}))
	require.NoError(t, m.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), info.Size())

	m, err = OpenFileMedium(path, layout.Size())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	got, err := New(m, layout).Read(Cool)
	require.NoError(t, err)
	assert.Equal(t, []uint16{3400, 1750, 430, 1300}, got)
}

func TestSlot_String(t *testing.T) {
	assert.Equal(t, "COOL", Cool.String())
	assert.Equal(t, "FAN", Fan.String())
	assert.Equal(t, "OFF", Off.String())
	assert.Equal(t, "Slot(7)", Slot(7).String())
}
