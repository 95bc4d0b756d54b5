package fs

import (
	"errors"
	"os"
)

// FileIO is the file system API the blob store writes through. Defaults to "os" file I/O functions.
type FileIO interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	Rename(oldName, newName string) error
	Exists(path string) bool

	// Directory API.
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
}

type defaultFileIO struct{}

// NewDefaultFileIO returns a FileIO calling the "os" package.
func NewDefaultFileIO() FileIO {
	return defaultFileIO{}
}

func (defaultFileIO) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (defaultFileIO) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (defaultFileIO) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFileIO) Rename(oldName, newName string) error {
	return os.Rename(oldName, newName)
}

func (defaultFileIO) Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func (defaultFileIO) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (defaultFileIO) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
