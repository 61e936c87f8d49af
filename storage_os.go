package attachcrypto

import (
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// osFS is a minimal absfs.FileSystem rooted at a real directory,
// generalized from the teacher's example `simpleFS` type into a
// reusable package type. It backs the CLI (cmd/attachcrypto) for real
// file access; tests use memfs instead.
type osFS struct {
	root string
}

// NewOSStorage returns a Storage rooted at dir on the real filesystem.
func NewOSStorage(dir string) Storage {
	return NewStorage(&osFS{root: dir})
}

func (fs *osFS) join(name string) string {
	return filepath.Join(fs.root, name)
}

func (fs *osFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	path := fs.join(name)
	if flag&(os.O_CREATE|os.O_WRONLY|os.O_RDWR) != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, flag, perm)
}

func (fs *osFS) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(fs.join(name), perm)
}

func (fs *osFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(fs.join(name), perm)
}

func (fs *osFS) Remove(name string) error {
	return os.Remove(fs.join(name))
}

func (fs *osFS) RemoveAll(path string) error {
	return os.RemoveAll(fs.join(path))
}

func (fs *osFS) Rename(oldpath, newpath string) error {
	return os.Rename(fs.join(oldpath), fs.join(newpath))
}

func (fs *osFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(fs.join(name))
}

func (fs *osFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(fs.join(name), mode)
}

func (fs *osFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(fs.join(name), atime, mtime)
}

func (fs *osFS) Chown(name string, uid, gid int) error {
	return os.Chown(fs.join(name), uid, gid)
}

func (fs *osFS) Separator() uint8 {
	return os.PathSeparator
}

func (fs *osFS) ListSeparator() uint8 {
	return os.PathListSeparator
}

func (fs *osFS) Chdir(dir string) error {
	return nil
}

func (fs *osFS) Getwd() (string, error) {
	return fs.root, nil
}

func (fs *osFS) TempDir() string {
	return os.TempDir()
}

func (fs *osFS) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *osFS) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (fs *osFS) Truncate(name string, size int64) error {
	return os.Truncate(fs.join(name), size)
}
