// Package record defines the fixed-length record model shared by the cache,
// the bulk gather/scatter kernels and the remote store backends.
//
// A record (cache line) is a contiguous slice of L elements of a single
// declared element type. Stores move records as raw bytes; the conversions
// here are zero-copy reinterpretations so that a batch fetched from a
// byte-oriented backend can be scattered into a typed table without an
// intermediate copy per element.
package record

import (
	"fmt"
	"unsafe"
)

// Element constrains the element types a cache line can hold.
type Element interface {
	~int32 | ~uint32 | ~float32 | ~float64
}

// Size returns the byte width of a single element of type E.
func Size[E Element]() int {
	var e E
	return int(unsafe.Sizeof(e))
}

// Bytes returns a byte view of s without copying. The view aliases s and
// is valid only while s is reachable; writes through either alias are
// visible through the other.
func Bytes[E Element](s []E) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*Size[E]())
}

// Slice reinterprets b as a slice of E without copying. The length of b
// must be a multiple of the element size.
func Slice[E Element](b []byte) ([]E, error) {
	if len(b) == 0 {
		return nil, nil
	}
	size := Size[E]()
	if len(b)%size != 0 {
		return nil, fmt.Errorf("record: byte length %d is not a multiple of element size %d", len(b), size)
	}
	return unsafe.Slice((*E)(unsafe.Pointer(&b[0])), len(b)/size), nil
}

// Fill sets every element of line to v.
func Fill[E Element](line []E, v E) {
	for i := range line {
		line[i] = v
	}
}
