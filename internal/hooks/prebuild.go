package hooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/firmwareinfo"
	"github.com/rescale/fwrelease/internal/ledger"
)

// PreBuildOptions mirror the build invocation.
type PreBuildOptions struct {
	// AssumeYes skips the confirmation prompt.
	AssumeYes bool
	// Clean is set for `pio run -t clean`.
	Clean bool
	// Targets are the command-line targets of the build.
	Targets []string
}

// PreBuildResult reports what the pre-build pass did.
type PreBuildResult struct {
	Skipped bool
	Reason  string

	Proposal ledger.Proposal
	Macros   []firmwareinfo.Macro
	Flags    []string
}

// skipTargets are words that mark a build target as not producing firmware.
// PlatformIO passes them as "__idedata" and "__debug", so any target
// containing one matches.
var skipTargets = []string{"idedata", "debug"}

func skipReason(opts PreBuildOptions) string {
	if opts.Clean {
		return "clean build"
	}
	for _, t := range opts.Targets {
		target := strings.ToLower(strings.TrimSpace(t))
		for _, skip := range skipTargets {
			if strings.Contains(target, skip) {
				return "target " + skip
			}
		}
	}
	return ""
}

// PreBuild bumps the ledger when sources changed and exposes the record to
// the firmware as build flags and a generated library. When view is an
// envview.FlagSink the flags are appended to it.
func PreBuild(ctx context.Context, d Deps, view envview.View, opts PreBuildOptions) (*PreBuildResult, error) {
	d.defaults()

	if reason := skipReason(opts); reason != "" {
		d.Logger.Debugf("Skipping firmware info update: %s", reason)
		return &PreBuildResult{Skipped: true, Reason: reason}, nil
	}
	if !opts.AssumeYes && !confirm(d.In, d.Out, "Update firmware info?") {
		d.Logger.Infof("Firmware info left unchanged")
		return &PreBuildResult{Skipped: true, Reason: "declined"}, nil
	}

	l := Ledger(d, view)
	current, err := l.LoadOrInit(ctx)
	if err != nil {
		return nil, err
	}

	proposal := l.ProposeNext(ctx, current, d.VCS.PendingChangedFiles(ctx))
	l.CompareWithTag(proposal.Record)
	if err := l.Commit(proposal.Record); err != nil {
		return nil, fmt.Errorf("failed to commit firmware ledger: %w", err)
	}
	PrintSummary(d.Out, proposal.Record)

	res := &PreBuildResult{Proposal: proposal}
	info := d.Config.FirmwareInfo
	if !info.Enabled {
		return res, nil
	}

	res.Macros = firmwareinfo.Macros(proposal.Record, info.Prefix, d.Now())
	res.Flags = firmwareinfo.BuildFlags(res.Macros)
	if sink, ok := view.(envview.FlagSink); ok {
		firmwareinfo.Apply(sink, res.Macros)
	}
	dir := d.abs(info.Dir)
	if err := firmwareinfo.Write(dir, res.Macros); err != nil {
		return nil, err
	}
	d.Logger.Debugf("Wrote firmware info library to %s", dir)
	return res, nil
}
