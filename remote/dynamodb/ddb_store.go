// Package dynamodb implements a remote.Store backed by DynamoDB.
//
// Unlike plain object stores, DynamoDB has a native bulk indexed read
// (BatchGetItem), which maps directly onto the cache's batched fetch:
// one call (per 100-key chunk) moves a whole index-selected batch.
//
// Table schema (one item per line):
//   - Partition key: pk (string)  - the store name
//   - Sort key:      idx (number) - the line index
//   - Attribute:     line (binary)
//
// Create with:
//
//	aws dynamodb create-table \
//	  --table-name softcache-lines \
//	  --attribute-definitions AttributeName=pk,AttributeType=S AttributeName=idx,AttributeType=N \
//	  --key-schema AttributeName=pk,KeyType=HASH AttributeName=idx,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// Line size is limited by the DynamoDB item-size cap (400 KB).
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/softcache/remote"
)

const (
	// batchGetLimit is the DynamoDB cap on keys per BatchGetItem call.
	batchGetLimit = 100

	// DefaultConcurrency bounds parallel BatchGetItem chunks.
	DefaultConcurrency = 8

	// unprocessedRetries caps re-requests of keys DynamoDB returned as
	// unprocessed before the batch is failed.
	unprocessedRetries = 5
)

// ErrIncompleteBatch is returned when DynamoDB repeatedly declines to
// return requested keys.
var ErrIncompleteBatch = errors.New("dynamodb: bulk read left keys unprocessed")

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
}

// Options configures a Store.
type Options struct {
	// Concurrency bounds parallel BatchGetItem chunks in BulkRead.
	Concurrency int
}

// Store implements remote.Store on a DynamoDB table.
type Store struct {
	client      Client
	table       string
	name        string
	capacity    uint32
	lineBytes   int
	concurrency int
}

var _ remote.BulkReader = (*Store)(nil)

// NewStore creates a store of capacity lines of lineBytes each. name is
// the partition-key value so that several stores can share one table.
func NewStore(client Client, table, name string, capacity uint32, lineBytes int, optFns ...func(*Options)) *Store {
	opts := Options{Concurrency: DefaultConcurrency}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Store{
		client:      client,
		table:       table,
		name:        name,
		capacity:    capacity,
		lineBytes:   lineBytes,
		concurrency: opts.Concurrency,
	}
}

// Capacity returns the total number of lines.
func (s *Store) Capacity() uint32 { return s.capacity }

// LineBytes returns the byte length of one line.
func (s *Store) LineBytes() int { return s.lineBytes }

func (s *Store) lineKey(index uint32) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk":  &types.AttributeValueMemberS{Value: s.name},
		"idx": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(index), 10)},
	}
}

// WriteLine stores line as the item for index.
func (s *Store) WriteLine(ctx context.Context, index uint32, line []byte) error {
	if err := remote.CheckIndex(s, index); err != nil {
		return err
	}
	if err := remote.CheckLine(s, line); err != nil {
		return err
	}

	item := s.lineKey(index)
	item["line"] = &types.AttributeValueMemberB{Value: line}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

// ReadLine fetches the item for index into dst.
func (s *Store) ReadLine(ctx context.Context, index uint32, dst []byte) error {
	if err := remote.CheckIndex(s, index); err != nil {
		return err
	}
	if err := remote.CheckLine(s, dst); err != nil {
		return err
	}

	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.lineKey(index),
	})
	if err != nil {
		return fmt.Errorf("dynamodb: get line %d: %w", index, err)
	}

	line, err := lineAttr(resp.Item, s.lineBytes)
	if err != nil {
		return fmt.Errorf("dynamodb: line %d: %w", index, err)
	}
	copy(dst, line)
	return nil
}

// BulkRead implements remote.BulkReader via chunked BatchGetItem calls.
// Duplicate indices are deduplicated on the wire (BatchGetItem rejects
// duplicate keys) and fanned back out into every batch position.
func (s *Store) BulkRead(ctx context.Context, indices []uint32, dst []byte) error {
	if err := remote.CheckBatch(s, indices, dst); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := remote.CheckIndex(s, idx); err != nil {
			return err
		}
	}

	unique := make([]uint32, 0, len(indices))
	seen := make(map[uint32]struct{}, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; !ok {
			seen[idx] = struct{}{}
			unique = append(unique, idx)
		}
	}

	var mu sync.Mutex
	lines := make(map[uint32][]byte, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(unique); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]
		g.Go(func() error {
			return s.fetchChunk(gctx, chunk, &mu, lines)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for j, idx := range indices {
		line, ok := lines[idx]
		if !ok {
			return fmt.Errorf("%w: index %d", ErrIncompleteBatch, idx)
		}
		copy(dst[j*s.lineBytes:(j+1)*s.lineBytes], line)
	}
	return nil
}

// fetchChunk issues BatchGetItem for up to 100 keys, re-requesting
// unprocessed keys until done or the retry budget runs out.
func (s *Store) fetchChunk(ctx context.Context, chunk []uint32, mu *sync.Mutex, lines map[uint32][]byte) error {
	keys := make([]map[string]types.AttributeValue, len(chunk))
	for i, idx := range chunk {
		keys[i] = s.lineKey(idx)
	}

	for attempt := 0; len(keys) > 0; attempt++ {
		if attempt > unprocessedRetries {
			return fmt.Errorf("%w: %d keys after %d attempts", ErrIncompleteBatch, len(keys), attempt)
		}

		resp, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				s.table: {Keys: keys},
			},
		})
		if err != nil {
			return fmt.Errorf("dynamodb: batch get: %w", err)
		}

		for _, item := range resp.Responses[s.table] {
			idx, err := indexAttr(item)
			if err != nil {
				return err
			}
			line, err := lineAttr(item, s.lineBytes)
			if err != nil {
				return fmt.Errorf("dynamodb: line %d: %w", idx, err)
			}
			mu.Lock()
			lines[idx] = line
			mu.Unlock()
		}

		keys = nil
		if ua, ok := resp.UnprocessedKeys[s.table]; ok {
			keys = ua.Keys
		}
	}
	return nil
}

func indexAttr(item map[string]types.AttributeValue) (uint32, error) {
	n, ok := item["idx"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("dynamodb: item missing numeric idx attribute")
	}
	v, err := strconv.ParseUint(n.Value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("dynamodb: bad idx attribute %q: %w", n.Value, err)
	}
	return uint32(v), nil
}

func lineAttr(item map[string]types.AttributeValue, lineBytes int) ([]byte, error) {
	b, ok := item["line"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("missing binary line attribute")
	}
	if len(b.Value) != lineBytes {
		return nil, fmt.Errorf("stored line has %d bytes, want %d", len(b.Value), lineBytes)
	}
	return b.Value, nil
}
