package models

import (
	"strings"
	"time"
)

// BuildDateLayout is the UTC layout used for FirmwareRecord.BuildDate
// (e.g. "19-Oct-2026-14:05").
const BuildDateLayout = "02-Jan-2006-15:04"

// FirmwareRecord is the versioned metadata persisted in the firmware ledger.
// Field order here is the on-disk key order.
// NOTE: JSON keys keep the historical firmwareInfo.json names so existing
// ledgers load unchanged.
type FirmwareRecord struct {
	Version       Version `json:"Version"`
	Description   string  `json:"Description"`
	Board         string  `json:"Board"`
	ToolchainEnv  string  `json:"PIOENV"`
	BuildDate     string  `json:"Date"`
	GitProject    string  `json:"GIT_Project"`
	GitVersion    string  `json:"GIT_Version"`
	GitBranch     string  `json:"GIT_Branch"`
	GitCommit     string  `json:"GIT_Commit"`
	GitOrigin     string  `json:"GIT_Origin"`
	ContentDigest string  `json:"elf_sha256,omitempty"`
}

// NewFirmwareRecord returns a record at DefaultVersion stamped with now.
func NewFirmwareRecord(now time.Time) *FirmwareRecord {
	return &FirmwareRecord{
		Version:   DefaultVersion,
		BuildDate: FormatBuildDate(now),
	}
}

// FormatBuildDate renders t in UTC using BuildDateLayout.
func FormatBuildDate(t time.Time) string {
	return t.UTC().Format(BuildDateLayout)
}

// Clone returns a copy that can be modified independently.
func (r *FirmwareRecord) Clone() *FirmwareRecord {
	c := *r
	return &c
}

// FullTag is the human-readable release tag: the version followed by the
// toolchain env, description and commit, each appended with "-" only when
// it is non-blank after trimming.
func (r *FirmwareRecord) FullTag() string {
	var b strings.Builder
	b.WriteString(r.Version.String())
	for _, part := range []string{
		r.ToolchainEnv,
		r.Description,
		strings.ReplaceAll(r.GitCommit, "'", ""),
	} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteString("-")
		b.WriteString(part)
	}
	return b.String()
}

// NumericVersion is the version read as a base-10 number (1.2.9 -> 129).
func (r *FirmwareRecord) NumericVersion() int {
	return r.Version.Number()
}

// BoardSymbol is the board id made safe for use in C identifiers.
func (r *FirmwareRecord) BoardSymbol() string {
	return strings.ReplaceAll(strings.TrimSpace(r.Board), "-", "_")
}

// NormalizeToolchainEnv converts a host environment name ("esp32-dev") into
// the form stored in the ledger ("ESP32_DEV").
func NormalizeToolchainEnv(env string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(env), "-", "_"))
}
