package store

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Medium is the persistent byte region the signal records live in. On
// the target it is a fixed size file standing in for the EEPROM of the
// microcontroller version. Sync must not return before the bytes are
// durable.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}

// FileMedium is a fixed size file. A freshly created file is zero
// filled, which the codec reads back as "not learned".
type FileMedium struct {
	f    *os.File
	size int64
}

// OpenFileMedium opens (or creates) path and makes sure it is exactly
// size bytes long.
func OpenFileMedium(path string, size int) (*FileMedium, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open signal store %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat signal store %s: %w", path, err)
	}
	if info.Size() != int64(size) {
		// Truncate extends with zeros, or cuts off a region from an older layout.
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size signal store %s to %d bytes: %w", path, size, err)
		}
	}
	return &FileMedium{f: f, size: int64(size)}, nil
}

func (m *FileMedium) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > m.size {
		return 0, io.ErrUnexpectedEOF
	}
	return m.f.ReadAt(p, off)
}

func (m *FileMedium) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > m.size {
		return 0, io.ErrShortWrite
	}
	return m.f.WriteAt(p, off)
}

func (m *FileMedium) Sync() error {
	return m.f.Sync()
}

func (m *FileMedium) Close() error {
	return m.f.Close()
}

// MemMedium keeps the region in memory. Used by the simulation platform
// and in tests.
type MemMedium struct {
	mu    sync.Mutex
	data  []byte
	syncs int
}

func NewMemMedium(size int) *MemMedium {
	return &MemMedium{data: make([]byte, size)}
}

func (m *MemMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(p, m.data[off:]), nil
}

func (m *MemMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}

func (m *MemMedium) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return nil
}

// Bytes returns a copy of the whole region.
func (m *MemMedium) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]byte, len(m.data))
	copy(ret, m.data)
	return ret
}
