// Package vcs reads source-control provenance for a firmware build.
//
// Every query fails soft: when git is missing, the directory is not a
// repository, or the branch has no commits, the result is empty and the
// failure is logged at debug level. A release must never fail because
// provenance is unavailable.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/rescale/fwrelease/internal/constants"
	"github.com/rescale/fwrelease/internal/logging"
)

// Provider answers provenance queries.
type Provider interface {
	ProjectName(ctx context.Context) string
	LatestTagVersion(ctx context.Context) string
	CurrentBranch(ctx context.Context) string
	CurrentCommitShort(ctx context.Context) string
	RemoteOriginURL(ctx context.Context) string
	PendingChangedFiles(ctx context.Context) []string
}

// Info is a snapshot of all provenance fields.
type Info struct {
	Project string
	Tag     string
	Branch  string
	Commit  string
	Origin  string
}

// Snapshot queries every field of p.
func Snapshot(ctx context.Context, p Provider) Info {
	return Info{
		Project: p.ProjectName(ctx),
		Tag:     p.LatestTagVersion(ctx),
		Branch:  p.CurrentBranch(ctx),
		Commit:  p.CurrentCommitShort(ctx),
		Origin:  p.RemoteOriginURL(ctx),
	}
}

// Runner executes a git subcommand in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// ExecRunner runs the git binary found on PATH.
func ExecRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Git is a Provider backed by the git CLI.
type Git struct {
	Dir    string
	Run    Runner
	Logger *logging.Logger
}

// NewGit returns a Git provider for the repository containing dir.
func NewGit(dir string, logger *logging.Logger) *Git {
	return &Git{Dir: dir, Run: ExecRunner, Logger: logger}
}

func (g *Git) output(ctx context.Context, args ...string) (string, bool) {
	run := g.Run
	if run == nil {
		run = ExecRunner
	}
	ctx, cancel := context.WithTimeout(ctx, constants.VCSCommandTimeout)
	defer cancel()
	out, err := run(ctx, g.Dir, args...)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Debugf("VCS unavailable: %v", err)
		}
		return "", false
	}
	return strings.TrimSpace(out), true
}

// hasCommits is false for a fresh repository and when git cannot run.
func (g *Git) hasCommits(ctx context.Context) bool {
	out, ok := g.output(ctx, "status", "-u", "no", "--no-renames", "--ignored", "no")
	if !ok {
		return false
	}
	return !strings.Contains(out, "No commits yet")
}

// ProjectName is the base name of the repository top-level directory.
func (g *Git) ProjectName(ctx context.Context) string {
	out, ok := g.output(ctx, "rev-parse", "--show-toplevel")
	if !ok || out == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(out, `\`, "/"))
}

// LatestTagVersion is the most recent tag reachable from HEAD, or "" when the
// repository has no tags.
func (g *Git) LatestTagVersion(ctx context.Context) string {
	if !g.hasCommits(ctx) {
		return ""
	}
	tags, ok := g.output(ctx, "tag", "-l")
	if !ok || len(tags) <= 1 {
		return ""
	}
	tag, _ := g.output(ctx, "describe", "--tags", "--abbrev=0")
	return tag
}

// CurrentBranch is the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context) string {
	if !g.hasCommits(ctx) {
		return ""
	}
	out, _ := g.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return out
}

// CurrentCommitShort is the abbreviated hash of HEAD.
func (g *Git) CurrentCommitShort(ctx context.Context) string {
	if !g.hasCommits(ctx) {
		return ""
	}
	out, _ := g.output(ctx, "log", "--pretty=format:%h", "-n", "1")
	return strings.ReplaceAll(out, "'", "")
}

// RemoteOriginURL is the fetch URL of the "origin" remote.
func (g *Git) RemoteOriginURL(ctx context.Context) string {
	if !g.hasCommits(ctx) {
		return ""
	}
	out, _ := g.output(ctx, "config", "--get", "remote.origin.url")
	return out
}

// PendingChangedFiles lists modified and untracked files, respecting
// .gitignore. Paths are relative to Dir.
func (g *Git) PendingChangedFiles(ctx context.Context) []string {
	out, ok := g.output(ctx, "ls-files", "-m", "--others", "--exclude-standard")
	if !ok || out == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// Static is a Provider with fixed answers.
type Static struct {
	Info
	Changed []string
}

func (s Static) ProjectName(context.Context) string           { return s.Project }
func (s Static) LatestTagVersion(context.Context) string      { return s.Tag }
func (s Static) CurrentBranch(context.Context) string         { return s.Branch }
func (s Static) CurrentCommitShort(context.Context) string    { return s.Commit }
func (s Static) RemoteOriginURL(context.Context) string       { return s.Origin }
func (s Static) PendingChangedFiles(context.Context) []string { return s.Changed }
