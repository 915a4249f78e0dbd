package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryBlobStore keeps blobs in a map and hands out URLs under a base.
// Every DownloadURL call is recorded so callers can inspect probe order.
type MemoryBlobStore struct {
	mu      sync.Mutex
	baseURL string
	blobs   map[string][]byte
	probes  []string
}

// NewMemoryBlobStore creates an empty MemoryBlobStore.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string][]byte),
	}
}

func (b *MemoryBlobStore) DownloadURL(ctx context.Context, path string) (string, error) {
	key := strings.Trim(path, "/")

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes = append(b.probes, key)

	if err := ctx.Err(); err != nil {
		return "", wrapContext("download_url", path, err)
	}
	if _, ok := b.blobs[key]; !ok {
		return "", NewError(CodeNotFound, "download_url", path, nil)
	}
	return b.baseURL + "/" + key, nil
}

func (b *MemoryBlobStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return wrapContext("put", path, err)
	}
	key := strings.Trim(path, "/")
	if key == "" {
		return NewError(CodeInvalid, "put", path, nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Probes returns the paths passed to DownloadURL, in call order.
func (b *MemoryBlobStore) Probes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.probes...)
}

// ResetProbes clears the recorded probes.
func (b *MemoryBlobStore) ResetProbes() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes = nil
}

var _ BlobStore = (*MemoryBlobStore)(nil)
