package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/softcache/remote"
)

// MockS3Client mocks the Client interface.
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateMultipartUploadOutput), args.Error(1)
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.UploadPartOutput), args.Error(1)
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CompleteMultipartUploadOutput), args.Error(1)
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.AbortMultipartUploadOutput), args.Error(1)
}

func getOutput(line []byte) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(line)),
		ContentLength: aws.Int64(int64(len(line))),
	}
}

func TestStoreWriteLine(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "cache", 100, 4)

	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "cache/lines/00000007"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	err := store.WriteLine(context.Background(), 7, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestStoreReadLine(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "cache", 100, 4)

	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "cache/lines/00000042"
	})).Return(getOutput([]byte{9, 9, 9, 9}), nil).Once()

	dst := make([]byte, 4)
	require.NoError(t, store.ReadLine(context.Background(), 42, dst))
	assert.Equal(t, []byte{9, 9, 9, 9}, dst)
	mockClient.AssertExpectations(t)
}

func TestStoreBulkRead(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "cache", 100, 2)

	// Index 3 is fetched twice; each call needs its own body reader.
	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "cache/lines/00000003"
	})).Return(getOutput([]byte{3, 3}), nil).Once()
	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "cache/lines/00000003"
	})).Return(getOutput([]byte{3, 3}), nil).Once()
	mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return *input.Key == "cache/lines/00000008"
	})).Return(getOutput([]byte{8, 8}), nil).Once()

	dst := make([]byte, 6)
	require.NoError(t, store.BulkRead(context.Background(), []uint32{3, 8, 3}, dst))
	assert.Equal(t, []byte{3, 3, 8, 8, 3, 3}, dst)
}

func TestStoreValidation(t *testing.T) {
	store := NewStore(new(MockS3Client), "b", "p", 10, 4)
	ctx := context.Background()

	assert.ErrorIs(t, store.WriteLine(ctx, 10, make([]byte, 4)), remote.ErrOutOfRange)
	assert.ErrorIs(t, store.ReadLine(ctx, 0, make([]byte, 3)), remote.ErrLineSize)
	assert.ErrorIs(t, store.BulkRead(ctx, []uint32{0, 11}, make([]byte, 8)), remote.ErrOutOfRange)
	assert.ErrorIs(t, store.BulkRead(ctx, []uint32{0}, make([]byte, 5)), remote.ErrBatchSize)
}
