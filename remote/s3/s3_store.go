// Package s3 implements a remote.Store backed by Amazon S3 (or any
// S3-compatible endpoint reachable through the AWS SDK).
//
// Each line is one object under <prefix>/lines/<index>. S3 has no native
// multi-key read, so BulkRead fans the batch out as bounded-concurrency
// GetObject calls; the batch still fails as a whole on the first error.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/softcache/remote"
)

// DefaultConcurrency bounds the number of in-flight GetObject calls
// during a bulk read.
const DefaultConcurrency = 16

// Client is the subset of the S3 API the store uses. *s3.Client
// satisfies it; tests substitute a mock.
type Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures a Store.
type Options struct {
	// Concurrency bounds parallel GetObject calls in BulkRead.
	Concurrency int
}

// Store implements remote.Store on S3.
type Store struct {
	client      Client
	uploader    *manager.Uploader
	bucket      string
	prefix      string
	capacity    uint32
	lineBytes   int
	concurrency int
}

var _ remote.BulkReader = (*Store)(nil)

// NewStore creates a store of capacity lines of lineBytes each, keyed
// under rootPrefix in bucket.
func NewStore(client Client, bucket, rootPrefix string, capacity uint32, lineBytes int, optFns ...func(*Options)) *Store {
	opts := Options{Concurrency: DefaultConcurrency}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Store{
		client:      client,
		uploader:    manager.NewUploader(client),
		bucket:      bucket,
		prefix:      rootPrefix,
		capacity:    capacity,
		lineBytes:   lineBytes,
		concurrency: opts.Concurrency,
	}
}

// NewFromConfig creates a store using the default AWS configuration chain
// (environment, shared config, instance metadata).
func NewFromConfig(ctx context.Context, bucket, rootPrefix string, capacity uint32, lineBytes int, optFns ...func(*Options)) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, rootPrefix, capacity, lineBytes, optFns...), nil
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

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(index)),
		Body:   bytes.NewReader(line),
	})
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
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(index)),
	})
	if err != nil {
		return fmt.Errorf("s3: get line %d: %w", index, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.ReadFull(resp.Body, dst); err != nil {
		return fmt.Errorf("s3: line %d short read: %w", index, err)
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
