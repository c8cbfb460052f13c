package picker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/inference"
	"github.com/raushankrgupta/virtual-tryon/storage"
)

// Resolver turns local references into image bytes.
type Resolver struct {
	Stores []storage.ObjectStore
	Client *http.Client

	// MaxBytes caps the resolved size; zero means MaxImageSize.
	MaxBytes int64
}

// NewResolver creates a Resolver that looks references up in stores
// before falling back to the filesystem or HTTP.
func NewResolver(stores ...storage.ObjectStore) *Resolver {
	return &Resolver{Stores: stores, Client: NewBrowserClient()}
}

// Resolve reads the content behind ref. Supported references are object
// store URIs, http(s) URLs, file:// URIs and plain paths.
func (r *Resolver) Resolve(ctx context.Context, ref string) (inference.Blob, error) {
	if ref == "" {
		return inference.Blob{}, fmt.Errorf("empty reference")
	}

	for _, store := range r.Stores {
		if store == nil {
			continue
		}
		if key, ok := store.Owns(ref); ok {
			rc, err := store.Open(ctx, key)
			if err != nil {
				return inference.Blob{}, err
			}
			defer rc.Close()
			data, err := readLimited(rc, r.MaxBytes)
			if err != nil {
				return inference.Blob{}, fmt.Errorf("failed to read %s: %w", ref, err)
			}
			return newBlob(path.Base(key), data), nil
		}
	}

	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			data, err := fetch(ctx, r.Client, ref, r.MaxBytes)
			if err != nil {
				return inference.Blob{}, fmt.Errorf("failed to fetch %s: %w", ref, err)
			}
			return newBlob(path.Base(u.Path), data), nil
		case "file":
			return readFile(filepath.FromSlash(u.Path), r.MaxBytes)
		case "s3", "minio":
			return inference.Blob{}, fmt.Errorf("no configured store for %s", ref)
		}
	}
	return readFile(ref, r.MaxBytes)
}

func readFile(p string, limit int64) (inference.Blob, error) {
	f, err := os.Open(p)
	if err != nil {
		return inference.Blob{}, fmt.Errorf("failed to read %s: %w", p, err)
	}
	defer f.Close()
	data, err := readLimited(f, limit)
	if err != nil {
		return inference.Blob{}, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return newBlob(filepath.Base(p), data), nil
}

func newBlob(name string, data []byte) inference.Blob {
	if name == "" || name == "." || name == "/" || strings.ContainsAny(name, "?#") {
		name = "image"
	}
	return inference.Blob{Name: name, ContentType: http.DetectContentType(data), Data: data}
}
