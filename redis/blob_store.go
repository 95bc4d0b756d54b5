package redis

import (
	"context"
	"fmt"

	"github.com/sharedcode/profiles"
)

type blobStore struct {
	client *Client
}

// NewBlobStore returns a BlobStore keeping every blob in Redis without expiry.
func NewBlobStore(client *Client) profiles.BlobStore {
	return &blobStore{client: client}
}

func formatBlobKey(storeName, key string) string {
	return fmt.Sprintf("B%s:%s", storeName, key)
}

func (b *blobStore) Get(ctx context.Context, storeName string, key string) ([]byte, bool, error) {
	conn, err := b.client.getConnection()
	if err != nil {
		return nil, false, err
	}
	ba, err := conn.Client.Get(ctx, formatBlobKey(storeName, key)).Bytes()
	if keyNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	return ba, true, nil
}

func (b *blobStore) Put(ctx context.Context, storeName string, key string, blob []byte) error {
	conn, err := b.client.getConnection()
	if err != nil {
		return err
	}
	if err := conn.Client.Set(ctx, formatBlobKey(storeName, key), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed for key %s: %w", key, err)
	}
	return nil
}

func (b *blobStore) Remove(ctx context.Context, storeName string, key string) error {
	return b.client.Delete(ctx, []string{formatBlobKey(storeName, key)})
}
