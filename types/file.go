package types

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AdvisedExtensions lists the file extensions offered by the picker.
// The list is advisory: submission never rejects other extensions.
var AdvisedExtensions = []string{".dcm", ".rvg"}

// FileHandle is a user-selected file that can be uploaded.
// Name is the base name sent as the multipart filename.
type FileHandle interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// LocalFile is a FileHandle backed by a path on disk.
type LocalFile struct {
	Path string
}

// Name returns the base name of the path.
func (f LocalFile) Name() string { return filepath.Base(f.Path) }

// Open opens the file for reading.
func (f LocalFile) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

// MemoryFile is a FileHandle backed by an in-memory buffer.
type MemoryFile struct {
	Filename string
	Data     []byte
}

// Name returns the configured filename.
func (f MemoryFile) Name() string { return f.Filename }

// Open returns a reader over the buffer.
func (f MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}

// HasAdvisedExtension reports whether name ends in one of AdvisedExtensions.
// Comparison is case-insensitive.
func HasAdvisedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range AdvisedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

var (
	_ FileHandle = LocalFile{}
	_ FileHandle = MemoryFile{}
)
