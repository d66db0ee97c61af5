// Package remote abstracts the backing store that holds the full set of
// cacheable lines. A store is an addressable array of fixed-length byte
// lines; only a small subset of it is ever resident in the local cache
// table, and the cache reaches it exclusively through indexed transfers.
//
// Point writes (WriteLine) exist for host-side population. The fetch
// pipeline itself requires the BulkReader capability: one call that moves
// a whole batch of lines, selected by an index list, into one contiguous
// destination. Stores that cannot provide this are rejected before the
// first pipeline iteration.
package remote

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a line index is outside [0, Capacity).
	ErrOutOfRange = errors.New("remote: line index out of range")
	// ErrLineSize is returned when a buffer length does not match the
	// store's line size.
	ErrLineSize = errors.New("remote: buffer length does not match line size")
	// ErrBatchSize is returned when a bulk destination does not hold
	// exactly len(indices) lines.
	ErrBatchSize = errors.New("remote: bulk destination length does not match batch")
)

// Store is an addressable backing store of fixed-length lines.
//
// Implementations must treat a whole-batch transfer as all-or-nothing at
// the API level: an error means no completed transfer is reported, and the
// destination contents are unspecified.
type Store interface {
	// Capacity returns the total number of lines the store holds.
	Capacity() uint32

	// LineBytes returns the byte length of one line.
	LineBytes() int

	// ReadLine reads the line at index into dst (len LineBytes).
	ReadLine(ctx context.Context, index uint32, dst []byte) error

	// WriteLine writes line (len LineBytes) at index. Used for host-side
	// population; not part of the fetch hot path.
	WriteLine(ctx context.Context, index uint32, line []byte) error
}

// BulkReader is the optional bulk-transfer capability. BulkRead moves
// len(indices) lines into dst as one contiguous batch: the line at
// indices[j] lands at dst[j*LineBytes : (j+1)*LineBytes].
//
// Indices may repeat. dst must be exactly len(indices)*LineBytes long.
type BulkReader interface {
	BulkRead(ctx context.Context, indices []uint32, dst []byte) error
}

// CheckIndex validates a line index against a store's capacity.
func CheckIndex(s Store, index uint32) error {
	if index >= s.Capacity() {
		return fmt.Errorf("%w: %d >= %d", ErrOutOfRange, index, s.Capacity())
	}
	return nil
}

// CheckLine validates a single-line buffer length.
func CheckLine(s Store, buf []byte) error {
	if len(buf) != s.LineBytes() {
		return fmt.Errorf("%w: got %d, want %d", ErrLineSize, len(buf), s.LineBytes())
	}
	return nil
}

// CheckBatch validates a bulk destination buffer length.
func CheckBatch(s Store, indices []uint32, dst []byte) error {
	if len(dst) != len(indices)*s.LineBytes() {
		return fmt.Errorf("%w: got %d bytes for %d lines of %d bytes",
			ErrBatchSize, len(dst), len(indices), s.LineBytes())
	}
	return nil
}
