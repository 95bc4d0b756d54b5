package inmemory

import (
	"context"
	"sync"

	"github.com/sharedcode/profiles"
)

type blobStore struct {
	mu    sync.RWMutex
	blobs map[string]map[string][]byte
}

// NewBlobStore returns a BlobStore keeping a copy of every blob in memory.
func NewBlobStore() profiles.BlobStore {
	return &blobStore{
		blobs: make(map[string]map[string][]byte),
	}
}

func (b *blobStore) Get(ctx context.Context, storeName string, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ba, ok := b.blobs[storeName][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), ba...), true, nil
}

func (b *blobStore) Put(ctx context.Context, storeName string, key string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.blobs[storeName]
	if !ok {
		s = make(map[string][]byte)
		b.blobs[storeName] = s
	}
	s[key] = append([]byte(nil), blob...)
	return nil
}

func (b *blobStore) Remove(ctx context.Context, storeName string, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs[storeName], key)
	return nil
}
