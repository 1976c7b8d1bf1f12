// fwrelease - firmware versioning and release packaging for PlatformIO builds
package main

import (
	"os"

	"github.com/rescale/fwrelease/internal/cli"
	"github.com/rescale/fwrelease/internal/version"
)

// Version information, overridden via -ldflags at release time
var (
	Version   = "v0.3.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
