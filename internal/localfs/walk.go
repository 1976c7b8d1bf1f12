package localfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string      // Full path to the file
	Name    string      // Base name of the file
	Size    int64       // Size in bytes (0 for directories)
	IsDir   bool        // True if this is a directory
	ModTime time.Time   // Last modification time
	Mode    fs.FileMode // File mode/permissions
}

// ListOptions configures the behavior of ListDirectory.
type ListOptions struct {
	// IncludeHidden includes hidden files (starting with .) in results.
	IncludeHidden bool
	// Pattern keeps only names matching this glob; empty keeps everything.
	Pattern string
}

// WalkOptions configures the behavior of Walk.
type WalkOptions struct {
	// IncludeHidden includes hidden files and directories in the walk.
	IncludeHidden bool

	// SkipHiddenDirs skips descending into hidden directories entirely.
	// Only meaningful when IncludeHidden is false.
	SkipHiddenDirs bool
}

// ListDirectory returns the entries of a directory sorted by name.
func ListDirectory(path string, opts ListOptions) ([]FileEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}
		if opts.Pattern != "" {
			if ok, _ := filepath.Match(opts.Pattern, name); !ok {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, newEntry(filepath.Join(path, name), info))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// WalkFunc is the callback signature for Walk.
// Return filepath.SkipDir to skip a directory, or any other error to stop walking.
type WalkFunc func(entry FileEntry) error

// Walk traverses a directory tree depth-first, directories before their
// contents. Unlike filepath.WalkDir, access errors stop the walk: a
// half-copied tool folder is worse than a failed release.
func Walk(root string, opts WalkOptions, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != root && !opts.IncludeHidden && IsHiddenName(d.Name()) {
			if d.IsDir() && opts.SkipHiddenDirs {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(newEntry(path, info))
	})
}

// WalkFiles is Walk restricted to non-directory entries.
func WalkFiles(root string, opts WalkOptions, fn WalkFunc) error {
	return Walk(root, opts, func(entry FileEntry) error {
		if entry.IsDir {
			return nil
		}
		return fn(entry)
	})
}

func newEntry(path string, info fs.FileInfo) FileEntry {
	entry := FileEntry{
		Path:    path,
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Mode:    info.Mode(),
	}
	if !entry.IsDir {
		entry.Size = info.Size()
	}
	return entry
}
