package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("not found")

// Store abstracts the blob service: objects are addressed by bucket and path.
// PublicURL must be deterministic so a stored URL can be parsed back into a
// bucket/path pair for cleanup.
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Remove(ctx context.Context, bucket, path string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Exists(ctx context.Context, bucket, path string) (bool, error)
	PublicURL(bucket, path string) string
	SignedURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error)
}

// ParseURL splits a public URL produced by PublicURL back into bucket and path.
// Handles both the local form <base>/<bucket>/<path> and the S3 virtual-host
// form https://<bucket>.s3.<region>.amazonaws.com/<path>.
func ParseURL(rawURL string) (bucket, path string, err error) {
	stripped := rawURL
	if i := strings.Index(stripped, "://"); i >= 0 {
		stripped = stripped[i+3:]
	}
	host, rest, ok := strings.Cut(stripped, "/")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("unparseable object url %q", rawURL)
	}
	if strings.Contains(host, ".s3.") {
		// virtual-host style: bucket is the first host label
		return strings.SplitN(host, ".", 2)[0], rest, nil
	}
	bucket, path, ok = strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", "", fmt.Errorf("unparseable object url %q", rawURL)
	}
	return bucket, path, nil
}
