// Package fs provides a BlobStore keeping one file per profile on a local or mounted file system.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "log/slog"

	"github.com/sharedcode/profiles"
)

// Profiles are private to the service account.
const (
	folderPermission os.FileMode = 0o700
	filePermission   os.FileMode = 0o600
)

type blobStore struct {
	basePath   string
	fileIO     FileIO
	toFilePath ToFilePathFunc
}

// NewBlobStore returns a BlobStore rooted at basePath. A nil fileIO defaults to NewDefaultFileIO.
func NewBlobStore(basePath string, fileIO FileIO) profiles.BlobStore {
	if fileIO == nil {
		fileIO = NewDefaultFileIO()
	}
	return &blobStore{
		basePath:   basePath,
		fileIO:     fileIO,
		toFilePath: ToFilePath,
	}
}

func (b *blobStore) path(storeName, key string) (string, string, error) {
	if storeName == "" || storeName == "." || storeName == ".." {
		return "", "", fmt.Errorf("invalid store name %q", storeName)
	}
	folder, fn := b.toFilePath(b.basePath, storeName, key)
	return folder, fmt.Sprintf("%s%c%s", folder, os.PathSeparator, fn), nil
}

func (b *blobStore) Get(ctx context.Context, storeName string, key string) ([]byte, bool, error) {
	_, fn, err := b.path(storeName, key)
	if err != nil {
		return nil, false, err
	}
	ba, err := b.fileIO.ReadFile(fn)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ba, true, nil
}

// Put writes blob to a temporary file then renames it over the key's file, so readers never
// see a partial write.
func (b *blobStore) Put(ctx context.Context, storeName string, key string, blob []byte) error {
	folder, fn, err := b.path(storeName, key)
	if err != nil {
		return err
	}
	if !b.fileIO.Exists(folder) {
		if err := b.fileIO.MkdirAll(folder, folderPermission); err != nil {
			return err
		}
	}
	tmp := fmt.Sprintf("%s.%s.tmp", fn, profiles.NewUUID().String())
	if err := b.fileIO.WriteFile(tmp, blob, filePermission); err != nil {
		return err
	}
	if err := b.fileIO.Rename(tmp, fn); err != nil {
		if rerr := b.fileIO.Remove(tmp); rerr != nil {
			log.Warn("failed to remove temporary profile file", "file", tmp, "error", rerr)
		}
		return err
	}
	return nil
}

func (b *blobStore) Remove(ctx context.Context, storeName string, key string) error {
	_, fn, err := b.path(storeName, key)
	if err != nil {
		return err
	}
	// Do nothing if file already not existent.
	if !b.fileIO.Exists(fn) {
		return nil
	}
	return b.fileIO.Remove(fn)
}
