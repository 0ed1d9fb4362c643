package fsops

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/afero"
)

// FsDeleter implements Deleter on top of an afero filesystem.
// With afero.NewOsFs() every call is the matching os package call.
type FsDeleter struct {
	Fs afero.Fs
}

// NewOSDeleter returns a Deleter for the real filesystem
func NewOSDeleter() FsDeleter {
	return FsDeleter{Fs: afero.NewOsFs()}
}

func (d FsDeleter) Remove(path string) error {
	return d.Fs.Remove(path)
}

func (d FsDeleter) RemoveAll(path string) error {
	// os.RemoveAll reports success for a missing path; surface it like
	// Remove does so a vanished entry is noticed either way
	if _, err := Lstat(d.Fs, path); err != nil {
		return err
	}
	return d.Fs.RemoveAll(path)
}

// Lstat stats path without following a final symlink when fs supports it
func Lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if ls, ok := fs.(afero.Lstater); ok {
		info, _, err := ls.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

// IsEmptyDir reports whether dir has no entries. Only the first name is read.
func IsEmptyDir(fs afero.Fs, dir string) (bool, error) {
	f, err := fs.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
