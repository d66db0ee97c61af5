package remote

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation. It is the reference
// backend for tests and for benchmarking the cache machinery itself
// without a storage round trip. Thread-safe.
type MemoryStore struct {
	mu        sync.RWMutex
	lines     []byte
	capacity  uint32
	lineBytes int
}

var _ BulkReader = (*MemoryStore)(nil)

// NewMemoryStore creates a store of capacity lines of lineBytes each.
// Contents start zeroed.
func NewMemoryStore(capacity uint32, lineBytes int) *MemoryStore {
	return &MemoryStore{
		lines:     make([]byte, int(capacity)*lineBytes),
		capacity:  capacity,
		lineBytes: lineBytes,
	}
}

// Capacity returns the total number of lines.
func (m *MemoryStore) Capacity() uint32 { return m.capacity }

// LineBytes returns the byte length of one line.
func (m *MemoryStore) LineBytes() int { return m.lineBytes }

// ReadLine reads the line at index into dst.
func (m *MemoryStore) ReadLine(_ context.Context, index uint32, dst []byte) error {
	if err := CheckIndex(m, index); err != nil {
		return err
	}
	if err := CheckLine(m, dst); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	off := int(index) * m.lineBytes
	copy(dst, m.lines[off:off+m.lineBytes])
	return nil
}

// WriteLine writes line at index.
func (m *MemoryStore) WriteLine(_ context.Context, index uint32, line []byte) error {
	if err := CheckIndex(m, index); err != nil {
		return err
	}
	if err := CheckLine(m, line); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	off := int(index) * m.lineBytes
	copy(m.lines[off:off+m.lineBytes], line)
	return nil
}

// BulkRead implements BulkReader.
func (m *MemoryStore) BulkRead(ctx context.Context, indices []uint32, dst []byte) error {
	if err := CheckBatch(m, indices, dst); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := CheckIndex(m, idx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for j, idx := range indices {
		src := int(idx) * m.lineBytes
		copy(dst[j*m.lineBytes:(j+1)*m.lineBytes], m.lines[src:src+m.lineBytes])
	}
	return nil
}
