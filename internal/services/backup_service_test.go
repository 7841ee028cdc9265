package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	listed  []types.Object
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: map[string][]byte{}}
}

func (m *memoryBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryBucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &s3.ListObjectsV2Output{Contents: m.listed}, nil
}

func (m *memoryBucket) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func TestBackupRunUploadsSnapshot(t *testing.T) {
	l := setupLedger(t)
	l.customer(t, "Ravi")
	bucket := newMemoryBucket()
	svc := NewBackupService(l.transfer, bucket, BackupOptions{Bucket: "ledger"})
	require.True(t, svc.Enabled())

	obj, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "snapshots/ledger_"))
	assert.True(t, strings.HasSuffix(obj.Key, ".json"))
	assert.False(t, svc.LastBackup().IsZero())

	data := bucket.objects[obj.Key]
	require.NotEmpty(t, data)
	assert.Equal(t, int64(len(data)), obj.Size)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Customers, 1)
	assert.Equal(t, "Ravi", snap.Customers[0].Name)
}

func TestBackupListNewestFirst(t *testing.T) {
	bucket := newMemoryBucket()
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	bucket.listed = []types.Object{
		{Key: aws.String("snapshots/a.json"), Size: aws.Int64(512), LastModified: &older},
		{Key: aws.String("snapshots/b.json"), Size: aws.Int64(2048), LastModified: &newer},
	}
	svc := NewBackupService(nil, bucket, BackupOptions{Bucket: "ledger", Prefix: "snapshots/"})

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "snapshots/b.json", list[0].Key)
	assert.Equal(t, "2.0 KB", list[0].SizeHuman)
	assert.Equal(t, "512 B", list[1].SizeHuman)
}

func TestBackupDisabledWithoutClient(t *testing.T) {
	svc := NewBackupService(nil, nil, BackupOptions{Bucket: "ledger"})
	assert.False(t, svc.Enabled())

	_, err := svc.Run(context.Background())
	assert.Error(t, err)
	_, err = svc.List(context.Background())
	assert.Error(t, err)

	// no scheduler without a client
	svc.Start()
	svc.Stop()

	var nilSvc *BackupService
	assert.False(t, nilSvc.Enabled())
}

func TestBackupSchedulerRunsImmediately(t *testing.T) {
	l := setupLedger(t)
	bucket := newMemoryBucket()
	svc := NewBackupService(l.transfer, bucket, BackupOptions{Bucket: "ledger", Interval: time.Hour})

	svc.Start()
	require.Eventually(t, func() bool { return len(bucket.keys()) == 1 }, 2*time.Second, 10*time.Millisecond)
	svc.Stop()
	svc.Stop()
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", formatBytes(0))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
}
