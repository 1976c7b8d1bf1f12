// Package localfs holds the file operations shared by staging and packaging:
// walking trees, copying files and tool folders, and listing release output.
package localfs

import (
	"path/filepath"
	"strings"
)

// IsHidden reports whether the base name of path starts with a dot.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName reports whether name starts with a dot.
// Special entries "." and ".." are not considered hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
