package bouquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/shineum/ebouqets/internal/objstore"
)

// maxAssetSize caps a single fetched asset.
const maxAssetSize = 16 << 20

// ErrAssetNotFound is returned when a locator names no asset.
var ErrAssetNotFound = errors.New("asset not found")

// ErrAssetTooLarge is returned for assets over the size limit.
var ErrAssetTooLarge = errors.New("asset too large")

// Loader fetches the raw bytes behind a locator such as "/rose.png".
type Loader interface {
	Load(ctx context.Context, locator string) ([]byte, error)
}

// NewLoader picks a loader for base by scheme: "http(s)://" fetches over
// HTTP, "s3://bucket/prefix" reads from S3 and anything else is a directory.
// The S3 client is built lazily from cfg.
func NewLoader(ctx context.Context, base string, cfg objstore.Config) (Loader, error) {
	switch {
	case strings.HasPrefix(base, "http://"), strings.HasPrefix(base, "https://"):
		return NewHTTPLoader(base, nil), nil
	case strings.HasPrefix(base, "s3://"):
		loc, err := objstore.ParseURL(base)
		if err != nil {
			return nil, err
		}
		client, err := objstore.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Loader(client, loc), nil
	default:
		return NewFileLoader(base), nil
	}
}

// FileLoader reads assets from a directory.
type FileLoader struct {
	root string
}

// NewFileLoader creates a FileLoader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{root: dir}
}

// Load reads root/locator. Locators cannot escape the root.
func (l *FileLoader) Load(_ context.Context, locator string) ([]byte, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(locator, "/"))
	data, err := os.ReadFile(filepath.Join(l.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", locator, err)
	}
	return data, nil
}

// HTTPLoader fetches assets relative to a base URL.
type HTTPLoader struct {
	base   string
	client *http.Client
}

// NewHTTPLoader creates an HTTPLoader. A nil client gets a 30s timeout.
func NewHTTPLoader(base string, client *http.Client) *HTTPLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPLoader{base: strings.TrimRight(base, "/"), client: client}
}

// Load issues a GET for base+locator.
func (l *HTTPLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	url := l.base + "/" + strings.TrimLeft(locator, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", locator, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, locator)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", locator, resp.StatusCode)
	}

	return readAsset(resp.Body, locator, maxAssetSize)
}

// S3Loader reads assets from a bucket prefix.
type S3Loader struct {
	client objstore.GetObjectAPI
	loc    objstore.Location
}

// NewS3Loader creates an S3Loader. client is usually an *s3.Client.
func NewS3Loader(client objstore.GetObjectAPI, loc objstore.Location) *S3Loader {
	return &S3Loader{client: client, loc: loc}
}

// Load fetches prefix/locator.
func (l *S3Loader) Load(ctx context.Context, locator string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.loc.Bucket),
		Key:    aws.String(l.loc.Key(locator)),
	})
	if err != nil {
		err = objstore.WrapError(err, errors.New("get object failed"))
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %v", ErrAssetNotFound, locator, err)
		}
		return nil, err
	}
	defer out.Body.Close()

	return readAsset(out.Body, locator, maxAssetSize)
}

// readAsset reads at most limit bytes. A longer body is an error, never a
// truncated asset.
func readAsset(r io.Reader, locator string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", locator, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrAssetTooLarge, locator, limit)
	}
	return data, nil
}

// CachingLoader memoizes successful loads and collapses concurrent loads of
// the same locator into one call. Failures are not cached.
type CachingLoader struct {
	next  Loader
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewCachingLoader wraps next.
func NewCachingLoader(next Loader) *CachingLoader {
	return &CachingLoader{next: next, cache: make(map[string][]byte)}
}

// Load returns the cached bytes for locator or loads them once.
func (c *CachingLoader) Load(ctx context.Context, locator string) ([]byte, error) {
	c.mu.RLock()
	data, ok := c.cache[locator]
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := c.group.Do(locator, func() (any, error) {
		data, err := c.next.Load(ctx, locator)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[locator] = data
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
