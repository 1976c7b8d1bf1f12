package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Prune deletes every entry of dir except the names in keep (compared
// case-insensitively). It returns the removed paths. Removal keeps going after
// a failure; the failures are joined into the returned error.
func Prune(dir string, keep ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Op: "read", Path: dir, Err: err}
	}

	var removed []string
	var errs []error
	for _, e := range entries {
		if kept(e.Name(), keep) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, &Error{Op: "remove", Path: path, Err: err})
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

func kept(name string, keep []string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range keep {
		if strings.ToLower(strings.TrimSpace(k)) == name {
			return true
		}
	}
	return false
}
