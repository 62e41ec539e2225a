package s3

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/shineum/ebouqets/internal/objstore"
	"github.com/shineum/ebouqets/internal/packager"
	"github.com/shineum/ebouqets/internal/sink"
)

// mockS3Client implements objstore.PutObjectAPI for testing.
type mockS3Client struct {
	putFn     func(ctx context.Context, params *awss3.PutObjectInput) (*awss3.PutObjectOutput, error)
	callCount int
	lastInput *awss3.PutObjectInput
	lastBody  []byte
}

func (m *mockS3Client) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	m.callCount++
	m.lastInput = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.lastBody = body
	if m.putFn != nil {
		return m.putFn(ctx, params)
	}
	return &awss3.PutObjectOutput{}, nil
}

var testArtifact = &packager.Artifact{
	Filename:    packager.DefaultArchiveName,
	ContentType: packager.ContentTypeZIP,
	Data:        []byte("PK\x03\x04"),
	Entries:     []string{"a_x_com.eml", "b_x_com.eml"},
}

func TestName(t *testing.T) {
	t.Parallel()
	s := NewWithClient(&mockS3Client{}, objstore.Location{Bucket: "b"})
	if got := s.Name(); got != "s3" {
		t.Errorf("Name(): got %q, want %q", got, "s3")
	}
}

func TestWrite_Uploads(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{}
	s := NewWithClient(mock, objstore.Location{Bucket: "outbox", Prefix: "2026/feb"})

	loc, err := s.Write(context.Background(), testArtifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != "s3://outbox/2026/feb/ebouqets-emails.zip" {
		t.Errorf("location: got %q", loc)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
	in := mock.lastInput
	if *in.Bucket != "outbox" || *in.Key != "2026/feb/ebouqets-emails.zip" {
		t.Errorf("target: got %s/%s", *in.Bucket, *in.Key)
	}
	if *in.ContentType != packager.ContentTypeZIP {
		t.Errorf("ContentType: got %q", *in.ContentType)
	}
	if *in.ContentLength != 4 {
		t.Errorf("ContentLength: got %d, want 4", *in.ContentLength)
	}
	if string(mock.lastBody) != string(testArtifact.Data) {
		t.Errorf("body: got %q", mock.lastBody)
	}
}

func TestWrite_RetryOnError(t *testing.T) {
	t.Parallel()

	callCount := 0
	mock := &mockS3Client{
		putFn: func(context.Context, *awss3.PutObjectInput) (*awss3.PutObjectOutput, error) {
			callCount++
			if callCount == 1 {
				return nil, &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce request rate"}
			}
			return &awss3.PutObjectOutput{}, nil
		},
	}
	s := NewWithClient(mock, objstore.Location{Bucket: "outbox"})

	if _, err := s.Write(context.Background(), testArtifact); err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if callCount != 2 {
		t.Errorf("call count: got %d, want 2", callCount)
	}
}

func TestWrite_AccessDeniedNotRetried(t *testing.T) {
	t.Parallel()

	mock := &mockS3Client{
		putFn: func(context.Context, *awss3.PutObjectInput) (*awss3.PutObjectOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}
	s := NewWithClient(mock, objstore.Location{Bucket: "outbox"})

	_, err := s.Write(context.Background(), testArtifact)
	if !errors.Is(err, objstore.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestWrite_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockS3Client{
		putFn: func(context.Context, *awss3.PutObjectInput) (*awss3.PutObjectOutput, error) {
			cancel()
			return nil, errors.New("connection reset")
		},
	}
	s := NewWithClient(mock, objstore.Location{Bucket: "outbox"})

	_, err := s.Write(ctx, testArtifact)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), "https://bucket/prefix", objstore.Config{}); !errors.Is(err, objstore.ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// Verify Sink implements sink.Sink interface
func TestSinkInterface(t *testing.T) {
	t.Parallel()
	var _ sink.Sink = NewWithClient(&mockS3Client{}, objstore.Location{})
}
