// Package storage persists attachment blobs in S3. Postgres keeps only
// the attachment metadata and the object key.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3API is the slice of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// AttachmentStore stores attachment blobs under
// attachments/<userID>/<emailID>/<uuid>-<filename>.
type AttachmentStore struct {
	client s3API
	bucket string
}

// NewAttachmentStore creates a store against a real S3 bucket. An empty
// profile uses the default credential chain (IAM role on ECS).
func NewAttachmentStore(ctx context.Context, bucket, region, profile string) (*AttachmentStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &AttachmentStore{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewAttachmentStoreWithClient wires a caller-provided S3 client.
func NewAttachmentStoreWithClient(client s3API, bucket string) *AttachmentStore {
	return &AttachmentStore{client: client, bucket: bucket}
}

// sanitizeFilename keeps the base name and replaces characters S3 keys
// handle poorly.
func sanitizeFilename(name string) string {
	name = path.Base(name)
	replacer := strings.NewReplacer(" ", "_", "#", "_", "?", "_", "%", "_", "\\", "_")
	name = replacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "attachment"
	}
	return name
}

// Save uploads a blob and returns the object key.
func (s *AttachmentStore) Save(ctx context.Context, userID, emailID, filename, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("attachments/%s/%s/%s-%s", userID, emailID, uuid.New().String(), sanitizeFilename(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading attachment to S3: %w", err)
	}
	return key, nil
}

// Open reads a stored blob back.
func (s *AttachmentStore) Open(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching attachment from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes a stored blob.
func (s *AttachmentStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting attachment from S3: %w", err)
	}
	return nil
}
