package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/syncbridge/backend/internal/infrastructure/config"
)

type fakeS3 struct {
	puts      []*s3.PutObjectInput
	bodies    [][]byte
	putErr    error
	headErr   error
	createErr error
	created   bool
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = true
	return &s3.CreateBucketOutput{}, nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
}

func TestS3ExportArchive_Archive(t *testing.T) {
	client := &fakeS3{}
	archive := NewS3ExportArchiveWithClient(client, "sync-exports", "/reports/", WithClock(fixedClock), WithLogger(zaptest.NewLogger(t)))
	tenantID := uuid.New()

	key, err := archive.Archive(context.Background(), &tenantID, "sync-records-failed.csv", "text/csv", []byte("id\n1\n"))
	require.NoError(t, err)

	assert.Equal(t, "reports/"+tenantID.String()+"/2026/03/09/sync-records-failed.csv", key)
	require.Len(t, client.puts, 1)
	assert.Equal(t, "sync-exports", aws.ToString(client.puts[0].Bucket))
	assert.Equal(t, "text/csv", aws.ToString(client.puts[0].ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(client.puts[0].ContentLength))
	assert.Equal(t, []byte("id\n1\n"), client.bodies[0])
}

func TestS3ExportArchive_ObjectKey(t *testing.T) {
	archive := NewS3ExportArchiveWithClient(&fakeS3{}, "b", "", WithClock(fixedClock))

	assert.Equal(t, "exports/all/2026/03/09/x.xlsx", archive.ObjectKey(nil, "x.xlsx"))
	assert.Equal(t, "exports/all/2026/03/09/passwd", archive.ObjectKey(nil, "../../etc/passwd"), "file names cannot escape the prefix")
}

func TestS3ExportArchive_ArchiveErrors(t *testing.T) {
	archive := NewS3ExportArchiveWithClient(&fakeS3{putErr: errors.New("access denied")}, "b", "")

	_, err := archive.Archive(context.Background(), nil, "", "text/csv", nil)
	assert.ErrorContains(t, err, "file name is required")

	_, err = archive.Archive(context.Background(), nil, "a.csv", "text/csv", []byte("x"))
	assert.ErrorContains(t, err, "access denied")
}

func TestS3ExportArchive_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		client := &fakeS3{}
		require.NoError(t, NewS3ExportArchiveWithClient(client, "b", "").EnsureBucket(context.Background()))
		assert.False(t, client.created)
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		client := &fakeS3{headErr: &types.NotFound{}}
		require.NoError(t, NewS3ExportArchiveWithClient(client, "b", "").EnsureBucket(context.Background()))
		assert.True(t, client.created)
	})

	t.Run("creation race is ignored", func(t *testing.T) {
		client := &fakeS3{headErr: &types.NoSuchBucket{}, createErr: &types.BucketAlreadyOwnedByYou{}}
		assert.NoError(t, NewS3ExportArchiveWithClient(client, "b", "").EnsureBucket(context.Background()))
	})

	t.Run("other errors surface", func(t *testing.T) {
		client := &fakeS3{headErr: errors.New("forbidden")}
		assert.ErrorContains(t, NewS3ExportArchiveWithClient(client, "b", "").EnsureBucket(context.Background()), "forbidden")
	})
}

func TestS3ExportArchive_DownloadURLRequiresPresigner(t *testing.T) {
	_, err := NewS3ExportArchiveWithClient(&fakeS3{}, "b", "").DownloadURL(context.Background(), "k", 0)
	assert.Error(t, err)
}

func TestNewS3ExportArchive(t *testing.T) {
	_, err := NewS3ExportArchive(context.Background(), config.S3Config{})
	assert.ErrorContains(t, err, "bucket is required")

	archive, err := NewS3ExportArchive(context.Background(), config.S3Config{
		Bucket:          "sync-exports",
		Endpoint:        "localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "sync-exports", archive.Bucket())

	url, err := archive.DownloadURL(context.Background(), "exports/all/a.csv", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "https://localhost:9000/sync-exports/exports/all/a.csv")
	assert.Contains(t, url, "X-Amz-Expires=60")
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.local", normalizeEndpoint("s3.local"))
	assert.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000"))
}
