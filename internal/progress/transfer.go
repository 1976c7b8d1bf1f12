package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rescale/fwrelease/internal/constants"
)

// TransferUI renders upload progress for release archives using mpb.
// When stderr is not a terminal the bars are discarded and one line is
// printed per transfer instead.
type TransferUI struct {
	progress   *mpb.Progress
	isTerminal bool
	out        io.Writer
}

// TransferBar tracks one archive upload.
type TransferBar struct {
	ui        *TransferUI
	bar       *mpb.Bar
	path      string
	dest      string
	size      int64
	startTime time.Time
}

// NewTransferUI creates a transfer UI on stderr.
func NewTransferUI() *TransferUI {
	isTerminal := IsTerminal()

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(constants.MPBRefreshRate),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &TransferUI{progress: p, isTerminal: isTerminal, out: os.Stderr}
}

// AddBar starts a bar for uploading localPath (size bytes) to dest.
func (u *TransferUI) AddBar(localPath, dest string, size int64) *TransferBar {
	tb := &TransferBar{
		ui:        u,
		path:      localPath,
		dest:      dest,
		size:      size,
		startTime: time.Now(),
	}

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Uploading %s (%.1f MiB) → %s\n", truncatePath(localPath, 2), float64(size)/(1024*1024), dest)
		return tb
	}

	label := fmt.Sprintf("%s → %s", truncatePath(localPath, 2), dest)
	tb.bar = u.progress.New(size,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
	return tb
}

// ProxyReader wraps r so reads advance the bar.
func (b *TransferBar) ProxyReader(r io.Reader) io.Reader {
	if b.bar == nil {
		return r
	}
	return b.bar.ProxyReader(r)
}

// SetCurrent moves the bar to n bytes, for SDKs that report progress by callback.
func (b *TransferBar) SetCurrent(n int64) {
	if b.bar != nil {
		b.bar.SetCurrent(n)
	}
}

// Complete marks the transfer finished and prints a summary line.
func (b *TransferBar) Complete(location string, err error) {
	elapsed := time.Since(b.startTime)

	var msg string
	if err == nil {
		if b.bar != nil {
			b.bar.SetCurrent(b.size)
			b.bar.SetTotal(b.size, true)
		}
		msg = fmt.Sprintf("✓ %s → %s (%.1f MiB, %s)\n",
			truncatePath(b.path, 2), location, float64(b.size)/(1024*1024), elapsed.Round(time.Second))
	} else {
		if b.bar != nil {
			b.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s → %s: %v\n", truncatePath(b.path, 2), b.dest, err)
	}

	if b.ui.isTerminal {
		_, _ = b.ui.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(b.ui.out, msg)
	}
}

// Wait blocks until all bars complete.
func (u *TransferUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that prints above the bars.
func (u *TransferUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// truncatePath keeps the last maxComponents elements of a path.
// Example: truncatePath("/a/b/c/d/file.zip", 2) → "…/d/file.zip"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	return "…/" + strings.Join(parts[len(parts)-maxComponents:], "/")
}
