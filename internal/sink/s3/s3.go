// Package s3 implements a Sink that uploads artifacts to an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/shineum/ebouqets/internal/objstore"
	"github.com/shineum/ebouqets/internal/packager"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

var errPutFailed = errors.New("put object failed")

// Sink uploads artifacts under a bucket prefix.
type Sink struct {
	client objstore.PutObjectAPI
	loc    objstore.Location
}

// New creates an S3 Sink for an `s3://bucket/prefix` URL.
func New(ctx context.Context, rawURL string, cfg objstore.Config) (*Sink, error) {
	loc, err := objstore.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client, err := objstore.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{client: client, loc: loc}, nil
}

// NewWithClient creates an S3 Sink with a custom client, used for testing.
func NewWithClient(client objstore.PutObjectAPI, loc objstore.Location) *Sink {
	return &Sink{client: client, loc: loc}
}

// Write uploads the artifact to prefix/filename. Transient failures are
// retried with exponential backoff; missing buckets and permission errors
// are returned immediately.
func (s *Sink) Write(ctx context.Context, art *packager.Artifact) (string, error) {
	key := s.loc.Key(art.Filename)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying S3 upload",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			if err := sleepWithContext(ctx, backoffDelay(attempt)); err != nil {
				return "", fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
			Bucket:        aws.String(s.loc.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(art.Data),
			ContentType:   aws.String(art.ContentType),
			ContentLength: aws.Int64(int64(len(art.Data))),
		})
		if err == nil {
			return "s3://" + s.loc.Bucket + "/" + key, nil
		}

		lastErr = objstore.WrapError(err, errPutFailed)
		slog.Warn("S3 API error",
			"attempt", attempt,
			"key", key,
			"error", err,
		)
		if !objstore.Retryable(lastErr) {
			return "", lastErr
		}
	}

	return "", fmt.Errorf("S3 upload failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "s3"
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
