package constants

import (
	"time"
)

// Ledger files, relative to the project directory
const (
	// DefaultLedgerFile - current firmware record
	DefaultLedgerFile = "scripts/firmwareInfo.json"

	// DefaultLedgerBackupFile - record replaced by the last commit
	DefaultLedgerBackupFile = "scripts/backup_firmwareInfo.json"
)

// Release layout
const (
	// DefaultReleaseDir - root of all release output, relative to the project directory
	DefaultReleaseDir = ".pio/release"

	// BinDirName - folder inside a release bundle holding binaries and tools
	BinDirName = "bin"

	// DigestFileName - MD5 of the firmware image, written into bin/
	DigestFileName = "firmware.md5"

	// BatchScriptName / ShellScriptName - generated upload launchers
	BatchScriptName = "fmw_upload.bat"
	ShellScriptName = "fmw_upload.sh"

	// UnknownToolchainEnv - release folder used when the build env has no name
	UnknownToolchainEnv = "unknown"

	// DefaultProjectName - archive prefix when the repository name is unknown
	DefaultProjectName = "firmware"
)

// DefaultBundleCandidates - template bundle locations tried in order,
// relative to the project directory
var DefaultBundleCandidates = []string{
	"../usbUpdateInfo.zip",
	"usbUpdateInfo.zip",
	"scripts/usbUpdateInfo.zip",
}

// Firmware info library
const (
	// DefaultMacroPrefix - prefix of generated preprocessor definitions
	DefaultMacroPrefix = "FIRMWARE"

	// DefaultFirmwareInfoDir - where firmware_info.h/.c are generated
	DefaultFirmwareInfoDir = "lib/firmware_info"
)

// Template resolution
const (
	// ResolverMaxDepth - recursion bound for nested references
	ResolverMaxDepth = 32
)

// Config and logging
const (
	// ConfigFileName - optional INI file in the project directory
	ConfigFileName = "fwrelease.ini"

	// LogMaxSizeMB / LogMaxBackups / LogMaxAgeDays - rotating log file limits
	LogMaxSizeMB  = 10
	LogMaxBackups = 5
	LogMaxAgeDays = 30
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient HTTP errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// HTTP transport timeouts
const (
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 60 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
)

// Operation timeouts
const (
	// BundleDownloadTimeout - fetching a template bundle over HTTP
	BundleDownloadTimeout = 5 * time.Minute

	// PublishTimeout - uploading one release archive
	PublishTimeout = 30 * time.Minute

	// VCSCommandTimeout - a single git invocation
	VCSCommandTimeout = 15 * time.Second
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar updates (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// MPBRefreshRate - refresh rate of multi-bar upload progress
	MPBRefreshRate = 300 * time.Millisecond
)
