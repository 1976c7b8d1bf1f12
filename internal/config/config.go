// Package config loads the optional per-project settings file for fwrelease.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/rescale/fwrelease/internal/constants"
)

// Config is the content of fwrelease.ini. Every section is optional.
//
// INI format:
//
//	[ledger]
//	file = scripts/firmwareInfo.json
//	backup_file = scripts/backup_firmwareInfo.json
//
//	[release]
//	dir = .pio/release
//	bundle = https://example.com/usbUpdateInfo.zip
//	project_name = sensor-node
//	exclude = *.map, *.lst
//	notify = false
//
//	[firmware_info]
//	enabled = true
//	prefix = FIRMWARE
//	dir = lib/firmware_info
//
//	[resolver]
//	strict = false
//	max_depth = 32
//	denylist = UPLOAD_PORT
//
//	[publish]
//	target = s3
//	s3_bucket = firmware-releases
//	s3_prefix = sensor-node/
//	s3_region = eu-west-1
//
//	[network]
//	proxy_mode = system
//
//	[log]
//	level = info
//	file = .pio/fwrelease.log
type Config struct {
	Ledger       LedgerConfig
	Release      ReleaseConfig
	FirmwareInfo FirmwareInfoConfig
	Resolver     ResolverConfig
	Publish      PublishConfig
	Network      NetworkConfig
	Log          LogConfig
}

// LedgerConfig locates the version ledger files, relative to the project directory.
type LedgerConfig struct {
	File       string `ini:"file"`
	BackupFile string `ini:"backup_file"`
}

// ReleaseConfig controls packaging.
type ReleaseConfig struct {
	// Dir is the release root, relative to the project directory.
	Dir string `ini:"dir"`

	// Bundle is a template zip path or an http(s) URL. Empty means the
	// default candidate locations are searched.
	Bundle string `ini:"bundle"`

	// ProjectName overrides the repository name in archive file names.
	ProjectName string `ini:"project_name"`

	// Exclude holds glob patterns of files left out of the archive.
	Exclude []string `ini:"exclude"`

	// Notify shows a desktop notification when the archive is ready.
	Notify bool `ini:"notify"`
}

// FirmwareInfoConfig controls the generated firmware info library.
type FirmwareInfoConfig struct {
	Enabled bool   `ini:"enabled"`
	Prefix  string `ini:"prefix"`
	Dir     string `ini:"dir"`
}

// ResolverConfig tunes template resolution.
type ResolverConfig struct {
	// Strict turns unresolved references into errors.
	Strict bool `ini:"strict"`

	// MaxDepth bounds reference recursion.
	MaxDepth int `ini:"max_depth"`

	// Denylist holds keys that always resolve to the empty string.
	Denylist []string `ini:"denylist"`
}

// Publish targets
const (
	PublishNone  = "none"
	PublishS3    = "s3"
	PublishAzure = "azure"
	PublishHTTP  = "http"
)

// PublishConfig selects where release archives are uploaded.
type PublishConfig struct {
	Target string `ini:"target"`

	S3Bucket   string `ini:"s3_bucket"`
	S3Prefix   string `ini:"s3_prefix"`
	S3Region   string `ini:"s3_region"`
	S3Endpoint string `ini:"s3_endpoint"`

	// AzureSASURL is a container URL carrying a SAS token. When empty the
	// FWRELEASE_AZURE_SAS_URL environment variable is used.
	AzureSASURL string `ini:"azure_sas_url"`

	// HTTPURL receives the archive with a PUT to HTTPURL/<archive name>.
	HTTPURL string `ini:"http_url"`
	// HTTPTokenEnv names the environment variable holding the bearer token.
	HTTPTokenEnv string `ini:"http_token_env"`
}

// Proxy modes
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// NetworkConfig configures outbound HTTP for bundle downloads and publishing.
type NetworkConfig struct {
	ProxyMode     string `ini:"proxy_mode"`
	ProxyHost     string `ini:"proxy_host"`
	ProxyPort     int    `ini:"proxy_port"`
	ProxyUser     string `ini:"proxy_user"`
	ProxyPassword string `ini:"proxy_password"`
	// NoProxy is a comma-separated bypass list in NO_PROXY syntax.
	NoProxy      string `ini:"no_proxy"`
	DisableHTTP2 bool   `ini:"disable_http2"`
}

// LogConfig configures console verbosity and the optional log file.
type LogConfig struct {
	Level      string `ini:"level"`
	File       string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxBackups int    `ini:"max_backups"`
	MaxAgeDays int    `ini:"max_age_days"`
}

// Validation errors
var (
	ErrUnknownPublishTarget = errors.New("publish target must be one of none, s3, azure, http")
	ErrMissingS3Bucket      = errors.New("s3_bucket is required when target = s3")
	ErrMissingHTTPURL       = errors.New("http_url is required when target = http")
	ErrInvalidHTTPURL       = errors.New("http_url must be an absolute http(s) URL")
	ErrUnknownProxyMode     = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost     = errors.New("proxy_host is required for basic and ntlm proxy modes")
	ErrInvalidMaxDepth      = errors.New("max_depth must be between 1 and 1024")
)

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Ledger: LedgerConfig{
			File:       constants.DefaultLedgerFile,
			BackupFile: constants.DefaultLedgerBackupFile,
		},
		Release: ReleaseConfig{
			Dir: constants.DefaultReleaseDir,
		},
		FirmwareInfo: FirmwareInfoConfig{
			Enabled: true,
			Prefix:  constants.DefaultMacroPrefix,
			Dir:     constants.DefaultFirmwareInfoDir,
		},
		Resolver: ResolverConfig{
			MaxDepth: constants.ResolverMaxDepth,
			Denylist: []string{"UPLOAD_PORT"},
		},
		Publish: PublishConfig{
			Target:       PublishNone,
			HTTPTokenEnv: "FWRELEASE_PUBLISH_TOKEN",
		},
		Network: NetworkConfig{
			ProxyMode: ProxyModeSystem,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  constants.LogMaxSizeMB,
			MaxBackups: constants.LogMaxBackups,
			MaxAgeDays: constants.LogMaxAgeDays,
		},
	}
}

// PathFor returns the settings file location inside projectDir.
func PathFor(projectDir string) string {
	return filepath.Join(projectDir, constants.ConfigFileName)
}

// Load reads the settings file at path.
// If the file doesn't exist, returns the defaults and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := New()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	ledger := iniFile.Section("ledger")
	cfg.Ledger.File = ledger.Key("file").MustString(cfg.Ledger.File)
	cfg.Ledger.BackupFile = ledger.Key("backup_file").MustString(cfg.Ledger.BackupFile)

	release := iniFile.Section("release")
	cfg.Release.Dir = release.Key("dir").MustString(cfg.Release.Dir)
	cfg.Release.Bundle = release.Key("bundle").String()
	cfg.Release.ProjectName = release.Key("project_name").String()
	cfg.Release.Exclude = splitList(release.Key("exclude").String())
	cfg.Release.Notify = release.Key("notify").MustBool(false)

	info := iniFile.Section("firmware_info")
	cfg.FirmwareInfo.Enabled = info.Key("enabled").MustBool(true)
	cfg.FirmwareInfo.Prefix = info.Key("prefix").MustString(cfg.FirmwareInfo.Prefix)
	cfg.FirmwareInfo.Dir = info.Key("dir").MustString(cfg.FirmwareInfo.Dir)

	resolver := iniFile.Section("resolver")
	cfg.Resolver.Strict = resolver.Key("strict").MustBool(false)
	cfg.Resolver.MaxDepth = resolver.Key("max_depth").MustInt(cfg.Resolver.MaxDepth)
	if resolver.HasKey("denylist") {
		cfg.Resolver.Denylist = mergeList(cfg.Resolver.Denylist, splitList(resolver.Key("denylist").String()))
	}

	publish := iniFile.Section("publish")
	cfg.Publish.Target = strings.ToLower(publish.Key("target").MustString(cfg.Publish.Target))
	cfg.Publish.S3Bucket = publish.Key("s3_bucket").String()
	cfg.Publish.S3Prefix = publish.Key("s3_prefix").String()
	cfg.Publish.S3Region = publish.Key("s3_region").String()
	cfg.Publish.S3Endpoint = publish.Key("s3_endpoint").String()
	cfg.Publish.AzureSASURL = publish.Key("azure_sas_url").String()
	cfg.Publish.HTTPURL = publish.Key("http_url").String()
	cfg.Publish.HTTPTokenEnv = publish.Key("http_token_env").MustString(cfg.Publish.HTTPTokenEnv)

	network := iniFile.Section("network")
	cfg.Network.ProxyMode = strings.ToLower(network.Key("proxy_mode").MustString(cfg.Network.ProxyMode))
	cfg.Network.ProxyHost = network.Key("proxy_host").String()
	cfg.Network.ProxyPort = network.Key("proxy_port").MustInt(0)
	cfg.Network.ProxyUser = network.Key("proxy_user").String()
	cfg.Network.ProxyPassword = network.Key("proxy_password").String()
	cfg.Network.NoProxy = network.Key("no_proxy").String()
	cfg.Network.DisableHTTP2 = network.Key("disable_http2").MustBool(false)

	logSection := iniFile.Section("log")
	cfg.Log.Level = logSection.Key("level").MustString(cfg.Log.Level)
	cfg.Log.File = logSection.Key("file").String()
	cfg.Log.MaxSizeMB = logSection.Key("max_size_mb").MustInt(cfg.Log.MaxSizeMB)
	cfg.Log.MaxBackups = logSection.Key("max_backups").MustInt(cfg.Log.MaxBackups)
	cfg.Log.MaxAgeDays = logSection.Key("max_age_days").MustInt(cfg.Log.MaxAgeDays)

	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name   string
		values [][2]string
	}{
		{"ledger", [][2]string{
			{"file", cfg.Ledger.File},
			{"backup_file", cfg.Ledger.BackupFile},
		}},
		{"release", [][2]string{
			{"dir", cfg.Release.Dir},
			{"bundle", cfg.Release.Bundle},
			{"project_name", cfg.Release.ProjectName},
			{"exclude", strings.Join(cfg.Release.Exclude, ", ")},
			{"notify", fmt.Sprintf("%t", cfg.Release.Notify)},
		}},
		{"firmware_info", [][2]string{
			{"enabled", fmt.Sprintf("%t", cfg.FirmwareInfo.Enabled)},
			{"prefix", cfg.FirmwareInfo.Prefix},
			{"dir", cfg.FirmwareInfo.Dir},
		}},
		{"resolver", [][2]string{
			{"strict", fmt.Sprintf("%t", cfg.Resolver.Strict)},
			{"max_depth", fmt.Sprintf("%d", cfg.Resolver.MaxDepth)},
			{"denylist", strings.Join(cfg.Resolver.Denylist, ", ")},
		}},
		{"publish", [][2]string{
			{"target", cfg.Publish.Target},
			{"s3_bucket", cfg.Publish.S3Bucket},
			{"s3_prefix", cfg.Publish.S3Prefix},
			{"s3_region", cfg.Publish.S3Region},
			{"s3_endpoint", cfg.Publish.S3Endpoint},
			{"azure_sas_url", cfg.Publish.AzureSASURL},
			{"http_url", cfg.Publish.HTTPURL},
			{"http_token_env", cfg.Publish.HTTPTokenEnv},
		}},
		{"network", [][2]string{
			{"proxy_mode", cfg.Network.ProxyMode},
			{"proxy_host", cfg.Network.ProxyHost},
			{"proxy_port", fmt.Sprintf("%d", cfg.Network.ProxyPort)},
			{"proxy_user", cfg.Network.ProxyUser},
			{"no_proxy", cfg.Network.NoProxy},
			{"disable_http2", fmt.Sprintf("%t", cfg.Network.DisableHTTP2)},
		}},
		{"log", [][2]string{
			{"level", cfg.Log.Level},
			{"file", cfg.Log.File},
			{"max_size_mb", fmt.Sprintf("%d", cfg.Log.MaxSizeMB)},
			{"max_backups", fmt.Sprintf("%d", cfg.Log.MaxBackups)},
			{"max_age_days", fmt.Sprintf("%d", cfg.Log.MaxAgeDays)},
		}},
	}
	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.values {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// The proxy password is never persisted.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail late, during
// publication or the first HTTP request.
func (cfg *Config) Validate() error {
	if cfg.Resolver.MaxDepth < 1 || cfg.Resolver.MaxDepth > 1024 {
		return ErrInvalidMaxDepth
	}

	switch cfg.Publish.Target {
	case "", PublishNone, PublishAzure:
	case PublishS3:
		if strings.TrimSpace(cfg.Publish.S3Bucket) == "" {
			return ErrMissingS3Bucket
		}
	case PublishHTTP:
		if strings.TrimSpace(cfg.Publish.HTTPURL) == "" {
			return ErrMissingHTTPURL
		}
		u, err := url.Parse(cfg.Publish.HTTPURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidHTTPURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPublishTarget, cfg.Publish.Target)
	}

	switch cfg.Network.ProxyMode {
	case "", ProxyModeNone, ProxyModeSystem:
	case ProxyModeBasic, ProxyModeNTLM:
		if strings.TrimSpace(cfg.Network.ProxyHost) == "" {
			return ErrMissingProxyHost
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProxyMode, cfg.Network.ProxyMode)
	}
	return nil
}

// IsRemoteBundle reports whether the configured bundle is fetched over HTTP.
func (r ReleaseConfig) IsRemoteBundle() bool {
	lower := strings.ToLower(r.Bundle)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// mergeList appends the entries of extra missing from base.
func mergeList(base, extra []string) []string {
	out := append([]string{}, base...)
	for _, e := range extra {
		found := false
		for _, b := range out {
			if b == e {
				found = true
				break
			}
		}
		if !found {
			out = append(out, e)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
