package softcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/softcache/record"
)

// Compression selects the codec used for resident-set snapshots.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

const snapshotMagic = uint32(0x53434348) // "SCCH"

type snapshotHeader struct {
	Magic       uint32
	Version     uint16
	Compression uint8
	_           uint8
	Slots       uint32
	LineSize    uint32
	ElemBytes   uint32
}

const snapshotVersion = 1

// SaveSnapshot writes the resident set to w. The payload is the raw
// element bytes behind a fixed header, optionally compressed.
func (c *Cache[E]) SaveSnapshot(ctx context.Context, w io.Writer, comp Compression) error {
	if err := c.runnable(); err != nil {
		return err
	}

	hdr := snapshotHeader{
		Magic:       snapshotMagic,
		Version:     snapshotVersion,
		Compression: uint8(comp),
		Slots:       uint32(c.residentCapacity),
		LineSize:    uint32(c.lineSize),
		ElemBytes:   uint32(record.Size[E]()),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		c.opts.logger.WithName(c.name).LogSnapshot(ctx, "save", comp.String(), err)
		return err
	}

	err := c.writePayload(w, comp)
	c.opts.logger.WithName(c.name).LogSnapshot(ctx, "save", comp.String(), err)
	return err
}

func (c *Cache[E]) writePayload(w io.Writer, comp Compression) error {
	payload := record.Bytes(c.resident)

	switch comp {
	case CompressionNone:
		_, err := w.Write(payload)
		return err
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		if _, err := lw.Write(payload); err != nil {
			lw.Close()
			return err
		}
		return lw.Close()
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, comp)
	}
}

// LoadSnapshot replaces the resident set with a snapshot read from r. The
// snapshot's shape must match the cache exactly.
func (c *Cache[E]) LoadSnapshot(ctx context.Context, r io.Reader) error {
	if err := c.runnable(); err != nil {
		return err
	}

	err := c.readSnapshot(r)
	c.opts.logger.WithName(c.name).LogSnapshot(ctx, "load", "", err)
	return err
}

func (c *Cache[E]) readSnapshot(r io.Reader) error {
	var hdr snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if hdr.Magic != snapshotMagic {
		return fmt.Errorf("%w: not a snapshot", ErrInvalidConfig)
	}
	if hdr.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", ErrInvalidConfig, hdr.Version)
	}
	if int(hdr.Slots) != c.residentCapacity || int(hdr.LineSize) != c.lineSize || int(hdr.ElemBytes) != record.Size[E]() {
		return fmt.Errorf("%w: snapshot shape %dx%dx%d does not match cache %dx%dx%d",
			ErrInvalidConfig, hdr.Slots, hdr.LineSize, hdr.ElemBytes,
			c.residentCapacity, c.lineSize, record.Size[E]())
	}

	var payload io.Reader
	switch Compression(hdr.Compression) {
	case CompressionNone:
		payload = r
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		payload = zr
	case CompressionLZ4:
		payload = lz4.NewReader(r)
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidConfig, hdr.Compression)
	}

	_, err := io.ReadFull(payload, record.Bytes(c.resident))
	return err
}
