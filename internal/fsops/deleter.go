package fsops

// Deleter abstracts filesystem delete operations
// Enables mocking in tests to prove dry-run never deletes
type Deleter interface {
	// Remove deletes a file, a symlink (never its target) or an empty directory
	Remove(path string) error
	// RemoveAll deletes path and everything below it
	RemoveAll(path string) error
}
