package fsops

import "os"

// OSDeleter implements Deleter using real os package calls
type OSDeleter struct{}

// Remove deletes a file or an empty directory. It never recurses.
func (OSDeleter) Remove(path string) error {
	return os.Remove(path)
}
