// Package scan lists the immediate children of the working directory, one
// entry at a time. A Scanner is forward-only and cannot be restarted; a fresh
// listing needs a fresh Open.
package scan

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"leave/internal/fsops"
	"leave/internal/leaveerr"
)

// readBatch bounds how many names are pulled from the directory per read
const readBatch = 64

// Kind is the file kind of an entry, determined without following symlinks
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// KindOf classifies a file mode
func KindOf(mode os.FileMode) Kind {
	switch {
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDir
	case mode.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}

// Entry is one child of the scanned directory
type Entry struct {
	Name string
	Path string // Absolute
	Kind Kind
	Size int64
}

// Scanner yields the entries of a single directory
type Scanner struct {
	fs      afero.Fs
	dir     string
	f       afero.File
	pending []string
	readErr error // Reported once pending is drained
	done    bool
}

// Open starts a listing of dir. Failing to open the directory is fatal for
// the run since no entries can be produced at all.
func Open(fs afero.Fs, dir string) (*Scanner, error) {
	dir = filepath.Clean(dir)
	f, err := fs.Open(dir)
	if err != nil {
		return nil, leaveerr.New(leaveerr.KindDirectoryList, dir, err, "Can't list contents of "+dir)
	}
	return &Scanner{fs: fs, dir: dir, f: f}, nil
}

// Next returns the next entry, or io.EOF once the listing is exhausted.
// An EntryRead error concerns only that entry: the returned Entry still
// carries its Name and Path, and the caller may keep calling Next.
func (s *Scanner) Next() (Entry, error) {
	for len(s.pending) == 0 {
		if s.readErr != nil {
			err := s.readErr
			s.readErr = nil
			return Entry{Path: s.dir}, leaveerr.New(leaveerr.KindEntryRead, s.dir, err,
				"Can't read directory entry")
		}
		if s.done {
			return Entry{}, io.EOF
		}
		names, err := s.f.Readdirnames(readBatch)
		s.pending = names
		if errors.Is(err, io.EOF) {
			s.done = true
			continue
		}
		if err != nil {
			// A failed read leaves the directory offset undefined, so
			// nothing further can be listed reliably.
			s.done = true
			s.readErr = err
		}
	}

	name := s.pending[0]
	s.pending = s.pending[1:]

	entry := Entry{Name: name, Path: filepath.Join(s.dir, name)}
	info, err := fsops.Lstat(s.fs, entry.Path)
	if err != nil {
		return entry, leaveerr.New(leaveerr.KindEntryRead, entry.Path, err, "Can't get type of "+entry.Path)
	}
	entry.Kind = KindOf(info.Mode())
	if entry.Kind == KindFile {
		entry.Size = info.Size()
	}
	return entry, nil
}

// Close releases the directory handle
func (s *Scanner) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.done = true
	s.pending = nil
	s.readErr = nil
	return err
}

// Dir returns the directory being listed
func (s *Scanner) Dir() string {
	return s.dir
}
