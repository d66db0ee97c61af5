package remote

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/softcache/internal/mmap"
)

// LocalStore is a file-backed Store: one flat file of capacity*lineBytes
// bytes. Writes go through the file descriptor; reads go through a lazily
// established read-only memory mapping for zero-copy random access.
//
// On unix the mapping is shared, so population writes remain visible to
// later reads. On platforms using the in-memory mmap fallback, finish
// populating the store before the first read.
type LocalStore struct {
	mu        sync.Mutex
	f         *os.File
	m         *mmap.Mapping
	path      string
	capacity  uint32
	lineBytes int
}

var _ BulkReader = (*LocalStore)(nil)

// Create creates (or truncates) the line file at path and preallocates
// capacity lines of lineBytes each.
func Create(path string, capacity uint32, lineBytes int) (*LocalStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(capacity) * int64(lineBytes)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &LocalStore{f: f, path: path, capacity: capacity, lineBytes: lineBytes}, nil
}

// Open opens an existing line file. The capacity is derived from the file
// size, which must be a whole number of lines.
func Open(path string, lineBytes int) (*LocalStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if lineBytes <= 0 || fi.Size()%int64(lineBytes) != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("remote: file size %d is not a whole number of %d-byte lines", fi.Size(), lineBytes)
	}
	return &LocalStore{
		f:         f,
		path:      path,
		capacity:  uint32(fi.Size() / int64(lineBytes)),
		lineBytes: lineBytes,
	}, nil
}

// Capacity returns the total number of lines.
func (s *LocalStore) Capacity() uint32 { return s.capacity }

// LineBytes returns the byte length of one line.
func (s *LocalStore) LineBytes() int { return s.lineBytes }

// WriteLine writes line at index through the file descriptor.
func (s *LocalStore) WriteLine(_ context.Context, index uint32, line []byte) error {
	if err := CheckIndex(s, index); err != nil {
		return err
	}
	if err := CheckLine(s, line); err != nil {
		return err
	}
	_, err := s.f.WriteAt(line, int64(index)*int64(s.lineBytes))
	return err
}

// mapping establishes the read mapping on first use.
func (s *LocalStore) mapping() (*mmap.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m != nil {
		return s.m, nil
	}
	m, err := mmap.Open(s.path)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)
	s.m = m
	return m, nil
}

// ReadLine reads the line at index into dst.
func (s *LocalStore) ReadLine(_ context.Context, index uint32, dst []byte) error {
	if err := CheckIndex(s, index); err != nil {
		return err
	}
	if err := CheckLine(s, dst); err != nil {
		return err
	}
	m, err := s.mapping()
	if err != nil {
		return err
	}
	off := int(index) * s.lineBytes
	copy(dst, m.Bytes()[off:off+s.lineBytes])
	return nil
}

// BulkRead implements BulkReader.
func (s *LocalStore) BulkRead(ctx context.Context, indices []uint32, dst []byte) error {
	if err := CheckBatch(s, indices, dst); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := CheckIndex(s, idx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.mapping()
	if err != nil {
		return err
	}

	data := m.Bytes()
	for j, idx := range indices {
		src := int(idx) * s.lineBytes
		copy(dst[j*s.lineBytes:(j+1)*s.lineBytes], data[src:src+s.lineBytes])
	}
	return nil
}

// Close releases the mapping and the file descriptor.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.m != nil {
		if err := s.m.Close(); err != nil {
			firstErr = err
		}
		s.m = nil
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.f = nil
	}
	return firstErr
}
