package disk

import (
	"os"

	"github.com/spf13/afero"
)

// PathStats contains usage statistics about a directory tree
type PathStats struct {
	UsedBytes int64 // Total bytes used by regular files in this tree
	FileCount int64 // Total number of regular files
	DirCount  int64 // Directories, including the root
	Other     int64 // Symlinks and special files, which use no counted bytes
}

// ScanTree walks path without following symlinks and computes usage
// statistics. Unreadable parts of the tree are skipped, so the result is a
// lower bound.
func ScanTree(fs afero.Fs, path string) (PathStats, error) {
	var stats PathStats

	err := afero.Walk(fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil // Skip errors
		}

		switch mode := info.Mode(); {
		case mode.IsRegular():
			stats.UsedBytes += info.Size()
			stats.FileCount++
		case mode.IsDir():
			stats.DirCount++
		default:
			stats.Other++
		}
		return nil
	})
	if err != nil {
		return PathStats{}, err
	}

	return stats, nil
}
