// Package notify shows desktop notifications when a release finishes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/rescale/fwrelease/internal/logging"
)

const appTitle = "fwrelease"

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	mu      sync.RWMutex

	// send and alert are replaced in tests.
	send  func(title, message string) error
	alert func(title, message string) error
}

// NewNotifier creates a notifier. A disabled notifier never touches the
// desktop, which keeps headless CI builds quiet.
func NewNotifier(enabled bool, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		logger:  logger,
		enabled: enabled,
		// beeep.Notify is cross-platform:
		// - Windows: Uses toast notifications
		// - macOS: Uses NSUserNotificationCenter
		// - Linux: Uses D-Bus notifications
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// ReleaseReady announces a packaged release archive.
func (n *Notifier) ReleaseReady(tag, archivePath string) {
	if !n.IsEnabled() {
		return
	}

	title := "Firmware Release Ready"
	message := fmt.Sprintf("v%s packaged to:\n%s", truncate(tag, 40), shortenPath(archivePath))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("tag", tag).Msg("Failed to send release notification")
	}
}

// Published announces an archive uploaded to shared storage.
func (n *Notifier) Published(tag, location string) {
	if !n.IsEnabled() {
		return
	}

	title := "Firmware Release Published"
	message := fmt.Sprintf("v%s uploaded to:\n%s", truncate(tag, 40), truncate(location, 100))

	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("tag", tag).Msg("Failed to send publish notification")
	}
}

// ReleaseFailed raises an alert for a failed post-build step.
func (n *Notifier) ReleaseFailed(tag string, cause error) {
	if !n.IsEnabled() || cause == nil {
		return
	}

	title := appTitle + ": release failed"
	message := fmt.Sprintf("v%s:\n%s", truncate(tag, 40), truncate(cause.Error(), 100))

	// Alert is more prominent on some platforms; fall back to a plain notification.
	if err := n.alert(title, message); err != nil {
		if err := n.send(title, message); err != nil {
			n.logger.Error().Err(err).Str("tag", tag).Msg("Failed to send failure notification")
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	// Show drive/root + ... + env folder + archive name
	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
