// Package uploader rewrites a resolved upload command so it runs from inside
// an unpacked release bundle instead of the build machine's toolchain.
//
// The set of adapters is closed: Select picks esptool, openocd or the
// generic pass-through from the build environment.
package uploader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/logging"
	"github.com/rescale/fwrelease/internal/template"
)

// Adapter rewrites one upload command.
type Adapter interface {
	Name() string
	Rewrite(rc RewriteContext, cmd string) (string, error)
}

// RewriteContext is what an adapter may read and where it may write.
type RewriteContext struct {
	View envview.View
	// Resolver expands keys such as UPLOADER and PROGPATH. It must not stage.
	Resolver *template.Resolver
	// OutDir is the release directory holding the launcher scripts.
	OutDir string
	// BinDir is OutDir/bin, the working directory of the upload command.
	BinDir string
	Logger *logging.Logger
}

// Select picks the adapter for the build environment: esptool when
// UPLOAD_PROTOCOL mentions esptool, openocd when UPLOADER is openocd,
// generic otherwise.
func Select(view envview.View) Adapter {
	protocol := strings.ToLower(envview.GetString(view, "UPLOAD_PROTOCOL", ""))
	if strings.Contains(protocol, "esptool") {
		return Esptool{}
	}
	if strings.EqualFold(strings.TrimSpace(envview.GetString(view, "UPLOADER", "")), "openocd") {
		return OpenOCD{}
	}
	return Generic{}
}

// Generic leaves the command untouched.
type Generic struct{}

func (Generic) Name() string                                         { return "generic" }
func (Generic) Rewrite(_ RewriteContext, cmd string) (string, error) { return cmd, nil }

// lookup expands key through the resolver, falling back to the raw literal.
func (rc RewriteContext) lookup(key string) string {
	if rc.Resolver != nil {
		if res, err := rc.Resolver.ResolveKey(key); err == nil {
			return strings.Trim(strings.TrimSpace(res.Value), `"'`)
		}
	}
	return strings.Trim(strings.TrimSpace(envview.GetString(rc.View, key, "")), `"'`)
}

func (rc RewriteContext) logger() *logging.Logger {
	if rc.Logger == nil {
		return logging.Nop()
	}
	return rc.Logger
}

// pathList returns the entries of the host PATH as seen by the build.
func (rc RewriteContext) pathList() []string {
	v, ok := rc.View.Get("ENV.PATH")
	if !ok {
		return nil
	}
	if v.Kind == envview.KindList {
		var out []string
		for _, item := range v.List {
			if item.Kind == envview.KindLiteral && item.Literal != "" {
				out = append(out, item.Literal)
			}
		}
		return out
	}
	return splitPathList(v.Literal)
}

// splitPathList splits a PATH value. Windows hosts separate with ';' and
// their entries contain ':' after the drive letter, so ';' wins when present.
func splitPathList(s string) []string {
	var parts []string
	if strings.Contains(s, ";") {
		parts = strings.Split(s, ";")
	} else {
		parts = filepath.SplitList(s)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dirOf returns everything before the last slash of either style.
func dirOf(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[:i]
	}
	return ""
}

func baseOf(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func isDir(path string) bool {
	for _, candidate := range []string{path, strings.ReplaceAll(path, `\`, "/")} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// replaceFolder swaps every spelling of folder in cmd for repl.
func replaceFolder(cmd, folder, repl string) string {
	if folder == "" {
		return cmd
	}
	for _, spelling := range []string{
		folder,
		strings.ReplaceAll(folder, `\`, "/"),
		strings.ReplaceAll(folder, "/", `\`),
	} {
		cmd = strings.ReplaceAll(cmd, spelling, repl)
	}
	return cmd
}
