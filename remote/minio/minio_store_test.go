package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/softcache/remote"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-softcache"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "cache-test/", 16, 8)

	line := make([]byte, 8)
	for i := range line {
		line[i] = 0xC3
	}
	require.NoError(t, store.WriteLine(ctx, 3, line))

	got := make([]byte, 8)
	require.NoError(t, store.ReadLine(ctx, 3, got))
	assert.Equal(t, line, got)

	require.NoError(t, store.WriteLine(ctx, 9, line))
	dst := make([]byte, 3*8)
	require.NoError(t, store.BulkRead(ctx, []uint32{3, 9, 3}, dst))
	for j := 0; j < 3; j++ {
		assert.Equal(t, line, dst[j*8:(j+1)*8])
	}
}

func TestMinioStoreValidation(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds: credentials.NewStaticV4("x", "y", ""),
	})
	require.NoError(t, err)

	store := NewStore(client, "b", "p", 10, 4)
	ctx := context.Background()

	// Validation happens before any network call.
	assert.ErrorIs(t, store.WriteLine(ctx, 10, make([]byte, 4)), remote.ErrOutOfRange)
	assert.ErrorIs(t, store.ReadLine(ctx, 0, make([]byte, 3)), remote.ErrLineSize)
	assert.ErrorIs(t, store.BulkRead(ctx, []uint32{0}, make([]byte, 3)), remote.ErrBatchSize)
}
