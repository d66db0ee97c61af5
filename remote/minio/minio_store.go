// Package minio implements a remote.Store backed by MinIO or any
// S3-compatible object store reachable through the MinIO client.
//
// Layout matches the s3 package: one object per line under
// <prefix>/lines/<index>.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/softcache/remote"
)

// DefaultConcurrency bounds in-flight GetObject calls during a bulk read.
const DefaultConcurrency = 16

// Options configures a Store.
type Options struct {
	// Concurrency bounds parallel GetObject calls in BulkRead.
	Concurrency int
}

// Store implements remote.Store on MinIO.
type Store struct {
	client      *minio.Client
	bucket      string
	prefix      string
	capacity    uint32
	lineBytes   int
	concurrency int
}

var _ remote.BulkReader = (*Store)(nil)

// NewStore creates a store of capacity lines of lineBytes each, keyed
// under rootPrefix in bucket.
func NewStore(client *minio.Client, bucket, rootPrefix string, capacity uint32, lineBytes int, optFns ...func(*Options)) *Store {
	opts := Options{Concurrency: DefaultConcurrency}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Store{
		client:      client,
		bucket:      bucket,
		prefix:      rootPrefix,
		capacity:    capacity,
		lineBytes:   lineBytes,
		concurrency: opts.Concurrency,
	}
}

func (s *Store) key(index uint32) string {
	return path.Join(s.prefix, "lines", fmt.Sprintf("%08d", index))
}

// Capacity returns the total number of lines.
func (s *Store) Capacity() uint32 { return s.capacity }

// LineBytes returns the byte length of one line.
func (s *Store) LineBytes() int { return s.lineBytes }

// WriteLine uploads line as the object for index.
func (s *Store) WriteLine(ctx context.Context, index uint32, line []byte) error {
	if err := remote.CheckIndex(s, index); err != nil {
		return err
	}
	if err := remote.CheckLine(s, line); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, s.key(index),
		bytes.NewReader(line), int64(len(line)), minio.PutObjectOptions{})
	return err
}

// ReadLine downloads the object for index into dst.
func (s *Store) ReadLine(ctx context.Context, index uint32, dst []byte) error {
	if err := remote.CheckIndex(s, index); err != nil {
		return err
	}
	if err := remote.CheckLine(s, dst); err != nil {
		return err
	}
	return s.getLine(ctx, index, dst)
}

func (s *Store) getLine(ctx context.Context, index uint32, dst []byte) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(index), minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio: get line %d: %w", index, err)
	}
	defer func() { _ = obj.Close() }()

	if _, err := io.ReadFull(obj, dst); err != nil {
		return fmt.Errorf("minio: line %d short read: %w", index, err)
	}
	return nil
}

// BulkRead implements remote.BulkReader with bounded fan-out.
func (s *Store) BulkRead(ctx context.Context, indices []uint32, dst []byte) error {
	if err := remote.CheckBatch(s, indices, dst); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := remote.CheckIndex(s, idx); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for j, idx := range indices {
		out := dst[j*s.lineBytes : (j+1)*s.lineBytes]
		g.Go(func() error {
			return s.getLine(ctx, idx, out)
		})
	}
	return g.Wait()
}
