package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// S3Backend implements a storage backend over Amazon S3 or compatible
// services. Listing follows continuation tokens internally so callers never
// see partial pages.
type S3Backend struct {
	client *s3.S3
	bucket string
	log    *slog.Logger
}

// NewS3Backend creates an S3 storage backend. When an endpoint is configured
// (MinIO and other S3-compatible stores) path-style addressing is forced.
func NewS3Backend(cfg S3Config, log *slog.Logger) (*S3Backend, error) {
	awsCfg := aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Info("S3 backend initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region))

	return &S3Backend{
		client: s3.New(sess),
		bucket: cfg.Bucket,
		log:    log,
	}, nil
}

// Load reads the full object at path. Returns interfaces.ErrObjectNotFound
// for missing keys.
func (b *S3Backend) Load(ctx context.Context, path string) ([]byte, error) {
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			b.log.Debug("S3 object not found", slog.String("key", path))
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// LoadStream opens the object at path for sequential reading. Closing the
// returned body early releases the underlying connection.
func (b *S3Backend) LoadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

// ListObjects returns every object under prefix, following continuation
// tokens until the listing is exhausted. Zero-byte directory markers are
// filtered out.
func (b *S3Backend) ListObjects(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	var objects []interfaces.ObjectInfo
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		}

		resp, err := b.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}

		for _, obj := range resp.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix || len(key) > 0 && key[len(key)-1] == '/' {
				continue
			}
			objects = append(objects, interfaces.ObjectInfo{
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}

		if !aws.BoolValue(resp.IsTruncated) {
			break
		}
		continuationToken = resp.NextContinuationToken
	}

	return objects, nil
}

// ListWithDirectories returns one hierarchy level under prefix using the
// given delimiter, paginated internally.
func (b *S3Backend) ListWithDirectories(ctx context.Context, prefix, delimiter string) (interfaces.ListResult, error) {
	var result interfaces.ListResult
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String(delimiter),
			ContinuationToken: continuationToken,
		}

		resp, err := b.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return interfaces.ListResult{}, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}

		for _, obj := range resp.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix || len(key) > 0 && key[len(key)-1] == '/' {
				continue
			}
			result.Objects = append(result.Objects, interfaces.ObjectInfo{
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		for _, cp := range resp.CommonPrefixes {
			result.CommonPrefixes = append(result.CommonPrefixes, aws.StringValue(cp.Prefix))
		}

		if !aws.BoolValue(resp.IsTruncated) {
			break
		}
		continuationToken = resp.NextContinuationToken
	}

	return result, nil
}

// Exists reports whether an object exists at path.
func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object %q: %w", path, err)
	}
	return true, nil
}

// GetMetadata returns object metadata, or interfaces.ErrObjectNotFound.
func (b *S3Backend) GetMetadata(ctx context.Context, path string) (*interfaces.ObjectMetadata, error) {
	resp, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to head object %q: %w", path, err)
	}

	contentType := aws.StringValue(resp.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &interfaces.ObjectMetadata{
		Size:         aws.Int64Value(resp.ContentLength),
		LastModified: aws.TimeValue(resp.LastModified),
		ContentType:  contentType,
	}, nil
}

// GeneratePresignedURL returns a time-limited download URL for path. There is
// no retry; failures propagate to the caller.
func (b *S3Backend) GeneratePresignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	req, _ := b.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	req.SetContext(ctx)

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL for %q: %w", path, err)
	}
	return url, nil
}

// Save uploads content at path. Not called on HAL read paths.
func (b *S3Backend) Save(ctx context.Context, path string, content []byte, contentType string) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q: %w", path, err)
	}
	b.log.Debug("S3 upload complete", slog.String("key", path), slog.Int("size", len(content)))
	return nil
}

// Delete removes the object at path.
func (b *S3Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %q: %w", path, err)
	}
	return nil
}

// Name returns a unique identifier for this backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucket)
}

// Bucket returns the configured bucket name.
func (b *S3Backend) Bucket() string {
	return b.bucket
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
