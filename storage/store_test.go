package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestApplyPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "selections/a.jpg", want: "selections/a.jpg"},
		{name: "simple prefix", prefix: "tryon", key: "selections/a.jpg", want: "tryon/selections/a.jpg"},
		{name: "prefix trailing slash", prefix: "tryon/", key: "selections/a.jpg", want: "tryon/selections/a.jpg"},
		{name: "prefix and key slashes", prefix: "/tryon/", key: "/selections/a.jpg", want: "tryon/selections/a.jpg"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := applyPrefix(tt.prefix, tt.key); got != tt.want {
				t.Fatalf("applyPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestParseBucketRef(t *testing.T) {
	ref := bucketRef("s3", "fitly", "results/run-1.jpg")
	if ref != "s3://fitly/results/run-1.jpg" {
		t.Fatalf("unexpected ref %q", ref)
	}
	key, ok := parseBucketRef(ref, "s3", "fitly")
	if !ok || key != "results/run-1.jpg" {
		t.Fatalf("parseBucketRef = %q, %v", key, ok)
	}
	if _, ok := parseBucketRef(ref, "s3", "other"); ok {
		t.Fatal("expected foreign bucket to be rejected")
	}
	if _, ok := parseBucketRef(ref, "minio", "fitly"); ok {
		t.Fatal("expected foreign scheme to be rejected")
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8080/files/")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "selections/subject.jpg", strings.NewReader("jpeg-bytes"), 10, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ref, "file://") {
		t.Fatalf("expected file reference, got %q", ref)
	}

	key, ok := store.Owns(ref)
	if !ok || key != "selections/subject.jpg" {
		t.Fatalf("Owns(%q) = %q, %v", ref, key, ok)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected content %q", data)
	}

	link, err := store.PresignGet(ctx, key, DefaultPresignExpiry)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if link != "http://localhost:8080/files/selections/subject.jpg" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Put(context.Background(), "../outside.jpg", strings.NewReader("x"), 1, "image/jpeg"); err == nil {
		t.Fatal("expected error for key escaping the store")
	}
	outside := "file://" + filepath.ToSlash(filepath.Join(t.TempDir(), "a.jpg"))
	if _, ok := store.Owns(outside); ok {
		t.Fatal("expected reference outside the store to be rejected")
	}
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, errors.New("connection reset")
	}
	n := copy(p, strings.Repeat("x", r.n))
	r.n -= n
	return n, nil
}

func TestLocalStorePutRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, err = store.Put(context.Background(), "results/partial.png", &failingReader{n: 8}, 64, "image/png")
	if err == nil {
		t.Fatal("expected error from a failing body")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "results", "partial.png")); !os.IsNotExist(statErr) {
		t.Fatalf("partial file left behind: %v", statErr)
	}
}
