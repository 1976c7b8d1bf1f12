package localfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst, preserving permission bits and mtime.
// The parent directory of dst must exist.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return nil
}

// CopyInto copies src into dir, keeping its base name, and returns the
// destination path.
func CopyInto(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := CopyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// CopyTree recursively copies the directory src to dst, hidden entries
// included, and returns the number of files copied. Symlinks are skipped.
func CopyTree(src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", src)
	}

	copied := 0
	err = Walk(src, WalkOptions{IncludeHidden: true}, func(entry FileEntry) error {
		rel, err := filepath.Rel(src, entry.Path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir {
			return os.MkdirAll(target, 0755)
		}
		if !entry.Mode.IsRegular() {
			return nil
		}
		if err := CopyFile(entry.Path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return copied, nil
}

// SameContent reports whether dst exists with content identical to src.
func SameContent(src, dst string) bool {
	if src == dst {
		return true
	}
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil || si.Size() != di.Size() {
		return false
	}
	a, err := os.ReadFile(src)
	if err != nil {
		return false
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// IsRegularFile reports whether path names an existing regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
