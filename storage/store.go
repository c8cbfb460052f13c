// Package storage keeps picked images and mirrored results in an object
// store and hands out references and download links for them.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	// Put stores r under key and returns a reference URI for the object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Open opens the object stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	// Owns reports whether ref points into this store and returns its key.
	Owns(ref string) (key string, ok bool)
}

// DefaultPresignExpiry matches the expiry used for gallery and result links.
const DefaultPresignExpiry = time.Hour

// bucketRef builds "<scheme>://<bucket>/<key>".
func bucketRef(scheme, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, strings.TrimPrefix(key, "/"))
}

// parseBucketRef splits a reference built by bucketRef.
func parseBucketRef(ref, scheme, bucket string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != scheme || u.Host != bucket {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", false
	}
	return key, true
}

func applyPrefix(prefix, key string) string {
	p := normalizePrefix(prefix)
	k := strings.TrimPrefix(key, "/")
	if p == "" {
		return k
	}
	return p + "/" + k
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}
