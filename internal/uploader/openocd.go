package uploader

import (
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/localfs"
	"github.com/rescale/fwrelease/internal/util/cmdquote"
)

const (
	openocdFolder = "tool-openocd"
	openocdBinary = `"tool-openocd/bin/openocd"`
)

// OpenOCD ships the openocd package with the release, points the command at
// the bundled binary and scripts, and quotes option values so paths with
// spaces survive the batch interpreter.
type OpenOCD struct{}

func (OpenOCD) Name() string { return "openocd" }

func (OpenOCD) Rewrite(rc RewriteContext, cmd string) (string, error) {
	cmd = replaceCommandName(cmd)

	if root := rc.openocdRoot(); root != "" {
		dest := filepath.Join(rc.BinDir, openocdFolder)
		n, err := localfs.CopyTree(filepath.FromSlash(strings.ReplaceAll(root, `\`, "/")), dest)
		if err != nil {
			return "", err
		}
		rc.logger().Debugf("Copied %d files from %s", n, root)
		cmd = replaceFolder(cmd, root, openocdFolder)
	} else {
		rc.logger().Warnf("openocd package folder not found in UPLOADER or PATH; the release will need openocd installed")
	}

	// STM32 programmers flash the .elf directly when one is available.
	if elf := rc.elfPath(); elf != "" {
		if _, err := localfs.CopyInto(elf, rc.OutDir); err != nil {
			return "", err
		}
		cmd = strings.ReplaceAll(cmd, "firmware.bin", "../firmware.elf")
	}

	return cmdquote.QuoteOptions(cmd,
		[2]string{"-c", "--command"},
		[2]string{"-f", "--file"},
		[2]string{"-s", "--search"},
	), nil
}

// replaceCommandName points the leading openocd invocation at the bundled binary.
func replaceCommandName(cmd string) string {
	trimmed := strings.TrimLeft(cmd, " ")
	first, rest, _ := strings.Cut(trimmed, " ")
	name := strings.ToLower(baseOf(strings.Trim(first, `"'`)))
	name = strings.TrimSuffix(name, ".exe")
	if name != "openocd" {
		return cmd
	}
	if rest == "" {
		return openocdBinary
	}
	return openocdBinary + " " + rest
}

// openocdRoot finds the installed openocd package: UPLOADER when it is a
// path, otherwise the first PATH entry mentioning openocd. The package root
// is the nearest ancestor whose name mentions openocd.
func (rc RewriteContext) openocdRoot() string {
	var candidates []string
	if uploader := rc.lookup("UPLOADER"); strings.ContainsAny(uploader, `/\`) {
		candidates = append(candidates, dirOf(uploader))
	}
	for _, entry := range rc.pathList() {
		if strings.Contains(strings.ToLower(entry), "openocd") {
			candidates = append(candidates, entry)
		}
	}

	for _, c := range candidates {
		for dir := strings.TrimRight(c, `/\`); dir != ""; dir = dirOf(dir) {
			if strings.Contains(strings.ToLower(baseOf(dir)), "openocd") {
				if isDir(dir) {
					return dir
				}
				break
			}
		}
	}
	return ""
}

// elfPath returns the linked image when PROGPATH (or PROG_PATH) names an
// existing .elf file.
func (rc RewriteContext) elfPath() string {
	for _, key := range []string{"PROGPATH", "PROG_PATH"} {
		if !rc.View.Has(key) {
			continue
		}
		path := rc.lookup(key)
		if !strings.EqualFold(filepath.Ext(path), ".elf") {
			continue
		}
		for _, candidate := range []string{path, strings.ReplaceAll(path, `\`, "/")} {
			if localfs.IsRegularFile(candidate) {
				return candidate
			}
		}
	}
	return ""
}
