package uploader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/localfs"
)

const esptoolFolder = "tool-esptoolpy"

// Esptool ships the whole esptool package with the release so the flashing
// script does not depend on a PlatformIO install.
type Esptool struct{}

func (Esptool) Name() string { return "esptool" }

func (Esptool) Rewrite(rc RewriteContext, cmd string) (string, error) {
	uploader := rc.lookup("UPLOADER")
	if !strings.Contains(strings.ToLower(uploader), esptoolFolder) {
		rc.logger().Debugf("UPLOADER %q is not inside %s; command left as is", uploader, esptoolFolder)
		return cmd, nil
	}

	folder := dirOf(uploader)
	if !isDir(folder) {
		return "", fmt.Errorf("esptool folder %s (from UPLOADER) not found", folder)
	}
	dest := filepath.Join(rc.BinDir, esptoolFolder)
	n, err := localfs.CopyTree(filepath.FromSlash(strings.ReplaceAll(folder, `\`, "/")), dest)
	if err != nil {
		return "", err
	}
	rc.logger().Debugf("Copied %d files from %s", n, folder)

	// The staged copy is superseded by the one inside the tool folder.
	if err := os.Remove(filepath.Join(rc.BinDir, "esptool.py")); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to remove staged esptool.py: %w", err)
	}

	return strings.ReplaceAll(cmd, "esptool.py", `"`+esptoolFolder+`/esptool.py"`), nil
}
