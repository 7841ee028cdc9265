package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"ledger-backend/internal/timeutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectStore is the subset of the S3 API used for backups.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// BackupOptions mirrors the backup section of the config.
type BackupOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Interval  time.Duration
}

// BackupObject describes one uploaded snapshot.
type BackupObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	LastModified time.Time `json:"last_modified"`
}

// BackupService uploads JSON snapshots of every store to S3-compatible
// object storage.
type BackupService struct {
	Transfer *TransferService
	client   ObjectStore
	opts     BackupOptions

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
	last   time.Time
}

// NewS3Client builds an S3 client for the configured endpoint.
func NewS3Client(ctx context.Context, opts BackupOptions) (*s3.Client, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("backup credentials not configured")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object storage client: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	}), nil
}

func NewBackupService(transfer *TransferService, client ObjectStore, opts BackupOptions) *BackupService {
	if opts.Prefix == "" {
		opts.Prefix = "snapshots/"
	}
	return &BackupService{Transfer: transfer, client: client, opts: opts}
}

// Enabled reports whether an object store is configured.
func (s *BackupService) Enabled() bool {
	return s != nil && s.client != nil && s.opts.Bucket != ""
}

// LastBackup returns the time of the last successful upload.
func (s *BackupService) LastBackup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run takes a snapshot of all stores and uploads it. It returns the object key.
func (s *BackupService) Run(ctx context.Context) (*BackupObject, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("backups not configured")
	}
	snap, err := s.Transfer.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := timeutil.Now()
	key := fmt.Sprintf("%sledger_%s_%s.json", s.opts.Prefix, now.Format("20060102_150405"), uuid.NewString()[:8])
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}

	s.mu.Lock()
	s.last = now
	s.mu.Unlock()

	size := int64(len(data))
	log.Printf("[Backup] Success: %s (%s)", key, formatBytes(size))
	return &BackupObject{Key: key, Size: size, SizeHuman: formatBytes(size), LastModified: now}, nil
}

// List returns the uploaded snapshots, newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupObject, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("backups not configured")
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.opts.Bucket),
		Prefix: aws.String(s.opts.Prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket: %w", err)
	}

	backups := []BackupObject{}
	for _, obj := range out.Contents {
		b := BackupObject{Key: aws.ToString(obj.Key)}
		if obj.Size != nil {
			b.Size = *obj.Size
		}
		b.SizeHuman = formatBytes(b.Size)
		if obj.LastModified != nil {
			b.LastModified = *obj.LastModified
		}
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].LastModified.After(backups[j].LastModified)
	})
	return backups, nil
}

// Start runs a backup immediately and then on every interval until Stop.
func (s *BackupService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil || !s.Enabled() || s.opts.Interval <= 0 {
		return
	}
	s.ticker = time.NewTicker(s.opts.Interval)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(ticker *time.Ticker, stop, done chan struct{}) {
		defer close(done)
		log.Println("[Backup] Starting automatic backup scheduler")
		s.runScheduled()
		for {
			select {
			case <-ticker.C:
				s.runScheduled()
			case <-stop:
				log.Println("[Backup] Scheduler stopped")
				return
			}
		}
	}(s.ticker, s.stop, s.done)

	log.Printf("[Backup] Scheduler started (interval: %v)", s.opts.Interval)
}

// Stop halts the scheduler and waits for an in-flight backup to finish.
func (s *BackupService) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	done := s.done
	s.ticker = nil
	s.mu.Unlock()
	<-done
}

func (s *BackupService) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		log.Printf("[Backup] %v", err)
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
