// Package diskspace checks free space before a release archive is written.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// DefaultSafetyMargin leaves 10% headroom over the estimated archive size.
const DefaultSafetyMargin = 1.1

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// CheckAvailableSpace returns an InsufficientSpaceError when the filesystem
// holding targetPath has less than requiredBytes*safetyMargin free.
// targetPath itself may not exist yet; its parent directory must.
// When free space cannot be determined the check passes.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}
	return check(targetPath, requiredBytes, safetyMargin, available)
}

func check(targetPath string, requiredBytes int64, safetyMargin float64, available int64) error {
	if safetyMargin < 1 {
		safetyMargin = 1
	}
	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}
