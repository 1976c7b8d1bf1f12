// Package archive builds and unpacks the zip files a release is made of:
// the template bundle that seeds each release and the final release archive.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/rescale/fwrelease/internal/progress"
	"github.com/rescale/fwrelease/internal/validation"
)

// Error is an archive I/O failure tied to the path that caused it.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnsafePath is returned when a zip entry would extract outside the
// destination directory.
var ErrUnsafePath = errors.New("zip entry escapes destination")

// CreateOptions controls Create.
type CreateOptions struct {
	// Exclude holds glob patterns matched against file base names.
	Exclude []string
	// Reporter receives byte progress; nil means no reporting.
	Reporter progress.Reporter
}

// Create zips the contents of sourceDir into outputPath. Entry names are
// relative to sourceDir and use forward slashes, so the archive unpacks the
// same way on every platform. A partial output file is removed on failure.
func Create(sourceDir, outputPath string, opts CreateOptions) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return &Error{Op: "stat", Path: sourceDir, Err: err}
	}
	if !info.IsDir() {
		return &Error{Op: "zip", Path: sourceDir, Err: errors.New("source path is not a directory")}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return &Error{Op: "mkdir", Path: filepath.Dir(outputPath), Err: err}
	}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}
	total, err := treeSize(sourceDir, opts.Exclude)
	if err != nil {
		return &Error{Op: "walk", Path: sourceDir, Err: err}
	}
	reporter.Start(total, "Zipping "+filepath.Base(outputPath))

	if err := writeZip(sourceDir, outputPath, opts.Exclude, reporter); err != nil {
		os.Remove(outputPath)
		reporter.Error(err)
		return err
	}
	reporter.Finish()
	return nil
}

func writeZip(sourceDir, outputPath string, exclude []string, reporter progress.Reporter) (err error) {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return &Error{Op: "create", Path: outputPath, Err: err}
	}
	defer func() {
		if cerr := outFile.Close(); cerr != nil && err == nil {
			err = &Error{Op: "close", Path: outputPath, Err: cerr}
		}
	}()

	zw := zip.NewWriter(outFile)
	var written int64

	walkErr := filepath.Walk(sourceDir, func(filePath string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if filePath == sourceDir {
			return nil
		}
		if !fileInfo.IsDir() && !included(fileInfo.Name(), exclude) {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, filePath)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		header, err := zip.FileInfoHeader(fileInfo)
		if err != nil {
			return fmt.Errorf("failed to create zip header for %s: %w", filePath, err)
		}
		header.Name = filepath.ToSlash(relPath)
		if fileInfo.IsDir() {
			header.Name += "/"
			_, err := zw.CreateHeader(header)
			return err
		}
		if !fileInfo.Mode().IsRegular() {
			return nil
		}
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to write zip header for %s: %w", filePath, err)
		}
		file, err := os.Open(filePath)
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		pr := progress.NewProgressReader(file, written, reporter)
		if _, err := io.Copy(w, pr); err != nil {
			return fmt.Errorf("failed to write %s: %w", filePath, err)
		}
		written = pr.Current()
		return nil
	})
	if walkErr != nil {
		zw.Close()
		return &Error{Op: "zip", Path: sourceDir, Err: walkErr}
	}
	if err := zw.Close(); err != nil {
		return &Error{Op: "finalize", Path: outputPath, Err: err}
	}
	return nil
}

// Extract unpacks zipPath into destDir, creating it if needed.
func Extract(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return &Error{Op: "open", Path: zipPath, Err: err}
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return &Error{Op: "mkdir", Path: destDir, Err: err}
	}
	for _, f := range r.File {
		if err := extractFile(f, destDir); err != nil {
			return &Error{Op: "extract", Path: zipPath, Err: err}
		}
	}
	return nil
}

func extractFile(f *zip.File, destDir string) error {
	target, err := safeJoin(destDir, f.Name)
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}
	return nil
}

// safeJoin resolves a zip entry name under destDir, rejecting absolute names
// and names that climb out with "..".
func safeJoin(destDir, name string) (string, error) {
	target, err := validation.ResolveInDirectory(destDir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	return target, nil
}

// List returns the entry names of a zip file.
func List(zipPath string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, &Error{Op: "open", Path: zipPath, Err: err}
	}
	defer r.Close()
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// Validate checks that zipPath exists, is non-empty and has a readable
// central directory.
func Validate(zipPath string) error {
	info, err := os.Stat(zipPath)
	if err != nil {
		return &Error{Op: "stat", Path: zipPath, Err: err}
	}
	if info.Size() == 0 {
		return &Error{Op: "validate", Path: zipPath, Err: errors.New("archive is empty")}
	}
	_, err = List(zipPath)
	return err
}

func treeSize(dir string, exclude []string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && included(info.Name(), exclude) {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// included reports whether a file name survives the exclude patterns.
func included(name string, exclude []string) bool {
	for _, pattern := range exclude {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return false
		}
	}
	return true
}
