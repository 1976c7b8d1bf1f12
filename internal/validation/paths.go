// Package validation guards file names and paths that come from outside the
// project: bundle URLs and zip entry names.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for names that would escape their directory.
var ErrUnsafePath = errors.New("unsafe path")

// ValidateFilename validates a bare file name (not a path).
//
// Returns an error if the filename:
//   - Is empty, "." or ".."
//   - Contains path separators (/ or \)
//   - Contains null bytes
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("%w: filename contains null byte: %q", ErrUnsafePath, filename)
	}
	if strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: filename cannot contain path separators: %s", ErrUnsafePath, filename)
	}
	// "foo..bar.zip" is fine; only the bare dot names are rejected.
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: filename cannot be %q", ErrUnsafePath, filename)
	}
	return nil
}

// ResolveInDirectory joins the slash- or backslash-separated relative name
// under baseDir and verifies the result stays inside it. Absolute names and
// names with a volume are rejected.
//
// Example:
//
//	ResolveInDirectory("/tmp/out", "../../etc/passwd") // error: escapes base dir
//	ResolveInDirectory("/tmp/out", "bin/firmware.bin") // "/tmp/out/bin/firmware.bin"
func ResolveInDirectory(baseDir, name string) (string, error) {
	if baseDir == "" {
		return "", fmt.Errorf("base directory cannot be empty")
	}
	if name == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	base := filepath.Clean(baseDir)
	target := filepath.Join(base, filepath.FromSlash(name))
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes %s", ErrUnsafePath, name, baseDir)
	}
	return target, nil
}
