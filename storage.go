package attachcrypto

import (
	"io"
	"os"
	"path/filepath"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// Storage is the minimal filesystem capability the file-producing
// entry points need: open a relative path for reading, create one for
// writing (truncating any existing content), and remove one. Any
// absfs.FileSystem, the same pluggable abstraction the teacher's
// EncryptFS wraps, can be adapted into a Storage with NewStorage, so the
// engine never imports os directly.
type Storage interface {
	FileOpener
	CreateForWrite(relPath string) (io.WriteCloser, error)
	Remove(relPath string) error
}

// absfsStorage adapts any absfs.FileSystem into Storage.
type absfsStorage struct {
	fs absfs.FileSystem
}

// NewStorage wraps fs (an absfs.FileSystem) as an attachcrypto Storage.
func NewStorage(fs absfs.FileSystem) Storage {
	return &absfsStorage{fs: fs}
}

func (s *absfsStorage) OpenRead(relPath string) (io.ReadCloser, error) {
	return s.fs.Open(relPath)
}

func (s *absfsStorage) CreateForWrite(relPath string) (io.WriteCloser, error) {
	if dir := filepath.Dir(relPath); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
			return nil, err
		}
	}
	return s.fs.OpenFile(relPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (s *absfsStorage) Remove(relPath string) error {
	return s.fs.Remove(relPath)
}

// newMemStorage returns an in-memory Storage backed by github.com/absfs/memfs,
// the default for an Engine built without WithStorage — convenient for
// tests and for in-memory-only calls that never touch a disk path.
func newMemStorage() Storage {
	fs, err := memfs.NewFS()
	if err != nil {
		panic(err)
	}
	return NewStorage(fs)
}
