package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectSink archives each chunk's items as one JSON object in S3-compatible
// storage. The object key is derived from job and chunk, so re-processing a
// chunk overwrites the previous object.
type ObjectSink struct {
	client *s3.Client
	bucket string
	prefix string
}

// ObjectConfig holds configuration for S3-compatible object storage.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	Prefix    string // Key prefix inside the bucket, default "sync-batches"
}

// NewObjectSink creates a new S3-backed item sink.
func NewObjectSink(cfg *ObjectConfig) (*ObjectSink, error) {
	endpoint := normalizeEndpoint(cfg.Endpoint)

	region := cfg.Region
	if region == "" {
		region = "us-east-1" // Default region for S3-compatible services
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("%s://%s", scheme, endpoint))
			o.UsePathStyle = true // Path-style for S3-compatible services
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "sync-batches"
	}

	return &ObjectSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// normalizeEndpoint removes protocol prefix and path from endpoint
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return strings.TrimSuffix(endpoint, "/")
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *ObjectSink) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// batchObject is the JSON layout of one archived chunk batch.
type batchObject struct {
	ScopeType  string        `json:"scope_type"`
	ScopeID    string        `json:"scope_id"`
	JobID      string        `json:"job_id"`
	ChunkIndex int           `json:"chunk_index"`
	ItemCount  int           `json:"item_count"`
	Items      []interface{} `json:"items"`
}

// Persist uploads the batch as a single JSON object.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - batch: items and identifiers for one processed chunk.
// Returns:
//   - error: non-nil if marshaling or the upload fails.
func (s *ObjectSink) Persist(ctx context.Context, batch Batch) error {
	obj := batchObject{
		ScopeType:  batch.ScopeType,
		ScopeID:    batch.ScopeID,
		JobID:      batch.JobID,
		ChunkIndex: batch.ChunkIndex,
		ItemCount:  len(batch.Items),
		Items:      make([]interface{}, 0, len(batch.Items)),
	}
	for _, item := range batch.Items {
		obj.Items = append(obj.Items, map[string]interface{}{
			"external_id": item.ExternalID,
			"sourced_at":  item.SourcedAt,
			"payload":     item.Payload,
		})
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	key := s.BatchKey(batch)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload batch %s: %w", key, err)
	}
	return nil
}

// BatchKey returns the deterministic object key for a batch.
func (s *ObjectSink) BatchKey(batch Batch) string {
	return fmt.Sprintf("%s/%s/%s/%s/chunk-%05d.json",
		s.prefix, batch.ScopeType, batch.ScopeID, batch.JobID, batch.ChunkIndex)
}
