package hooks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rescale/fwrelease/internal/config"
	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/ledger"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/vcs"
)

var buildTime = time.Date(2026, 10, 19, 14, 5, 0, 0, time.UTC)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeLedger(t *testing.T, dir string, rec *models.FirmwareRecord) {
	t.Helper()
	data, err := ledger.Encode(rec)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "scripts", "firmwareInfo.json"), string(data))
}

func readLedger(t *testing.T, path string) *models.FirmwareRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := ledger.Decode(data, path)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

// testProject lays out a built esp32 project.
func testProject(t *testing.T) (string, *envview.MapView) {
	t.Helper()
	dir := t.TempDir()
	build := filepath.Join(dir, ".pio", "build", "esp32")
	writeFile(t, filepath.Join(build, "firmware.elf"), "elf-bytes")
	writeFile(t, filepath.Join(build, "firmware.bin"), "firmware-bytes")
	writeFile(t, filepath.Join(dir, "tools", "flasher"), "#!/bin/sh\n")

	view := envview.NewMapView(nil)
	view.SetString("PIOENV", "esp32")
	view.SetString("BOARD", "esp32dev")
	view.SetString("BUILD_DIR", build)
	view.SetString("PROG_PATH", "$BUILD_DIR/firmware.elf")
	view.SetString("UPLOADER", filepath.Join(dir, "tools", "flasher"))
	view.SetString("UPLOADCMD", "$UPLOADER --port $UPLOAD_PORT write_flash 0x10000 $SOURCE")
	return dir, view
}

func testDeps(dir string, changed ...string) Deps {
	return Deps{
		ProjectDir: dir,
		Config:     config.New(),
		VCS: vcs.Static{
			Info:    vcs.Info{Project: "blinky", Branch: "main", Commit: "abc1234"},
			Changed: changed,
		},
		Now: func() time.Time { return buildTime },
	}
}

func TestSkipReason(t *testing.T) {
	tests := []struct {
		name string
		opts PreBuildOptions
		want string
	}{
		{"plain build", PreBuildOptions{Targets: []string{"buildprog"}}, ""},
		{"clean", PreBuildOptions{Clean: true}, "clean build"},
		{"idedata", PreBuildOptions{Targets: []string{"idedata"}}, "target idedata"},
		{"debug", PreBuildOptions{Targets: []string{"buildprog", "Debug"}}, "target debug"},
		{"platformio idedata", PreBuildOptions{Targets: []string{"__idedata"}}, "target idedata"},
		{"platformio debug", PreBuildOptions{Targets: []string{"buildprog", "__debug"}}, "target debug"},
		{"upload", PreBuildOptions{Targets: []string{"upload", "checkprogsize"}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := skipReason(tt.opts); got != tt.want {
				t.Errorf("skipReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"Yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.answer), &out, "Update firmware info?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.answer, got, tt.want)
		}
		if !strings.Contains(out.String(), "Update firmware info? [y/n]") {
			t.Errorf("prompt not written: %q", out.String())
		}
	}
	if confirm(nil, &bytes.Buffer{}, "?") {
		t.Error("confirm without input should decline")
	}
}

func TestPreBuild_Declined(t *testing.T) {
	dir, view := testProject(t)
	d := testDeps(dir, "src/main.cpp")
	d.In = strings.NewReader("n\n")

	res, err := PreBuild(context.Background(), d, view, PreBuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || res.Reason != "declined" {
		t.Errorf("result = %+v, want declined", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "scripts", "firmwareInfo.json")); !os.IsNotExist(err) {
		t.Error("declined pre-build must not write the ledger")
	}
}

func TestPreBuild_Skipped(t *testing.T) {
	dir, view := testProject(t)
	res, err := PreBuild(context.Background(), testDeps(dir), view, PreBuildOptions{AssumeYes: true, Targets: []string{"idedata"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("idedata target should skip")
	}
}

func TestPreBuild_BumpsVersion(t *testing.T) {
	dir, view := testProject(t)
	writeLedger(t, dir, &models.FirmwareRecord{Version: models.Version{1, 0, 0}, BuildDate: "01-Jan-2026-00:00"})

	var out bytes.Buffer
	d := testDeps(dir, "src/main.cpp", "scripts/firmwareInfo.json")
	d.Out = &out

	res, err := PreBuild(context.Background(), d, view, PreBuildOptions{AssumeYes: true})
	if err != nil {
		t.Fatalf("PreBuild: %v", err)
	}
	if res.Proposal.Outcome != ledger.OutcomeBumped {
		t.Errorf("Outcome = %s, want bumped", res.Proposal.Outcome)
	}

	current := readLedger(t, filepath.Join(dir, "scripts", "firmwareInfo.json"))
	if current.Version != (models.Version{1, 0, 1}) {
		t.Errorf("ledger version = %s, want 1.0.1", current.Version)
	}
	if current.BuildDate != "19-Oct-2026-14:05" || current.GitCommit != "abc1234" || current.ToolchainEnv != "ESP32" {
		t.Errorf("ledger not refreshed: %+v", current)
	}
	backup := readLedger(t, filepath.Join(dir, "scripts", "backup_firmwareInfo.json"))
	if backup.Version != (models.Version{1, 0, 0}) {
		t.Errorf("backup version = %s, want 1.0.0", backup.Version)
	}

	if !strings.Contains(out.String(), "Firmware Version-Name     = 1.0.1-ESP32-abc1234") {
		t.Errorf("summary missing tag:\n%s", out.String())
	}

	wantFlag := `-D FIRMWARE_VERSION="1.0.1-ESP32-abc1234"`
	flags := view.BuildFlags()
	if len(flags) == 0 || flags[0] != wantFlag {
		t.Errorf("first flag = %v, want %s", flags, wantFlag)
	}
	if diff := cmp.Diff(res.Flags, flags); diff != "" {
		t.Errorf("flags on the view differ from the result (-result +view):\n%s", diff)
	}
	for _, name := range []string{"firmware_info.h", "firmware_info.c"} {
		if _, err := os.Stat(filepath.Join(dir, "lib", "firmware_info", name)); err != nil {
			t.Errorf("%s not generated: %v", name, err)
		}
	}
}

func TestPreBuild_NoChangesKeepsVersion(t *testing.T) {
	dir, view := testProject(t)
	writeLedger(t, dir, &models.FirmwareRecord{Version: models.Version{1, 2, 9}})

	d := testDeps(dir, ".pio/build/esp32/firmware.bin")
	d.Config.FirmwareInfo.Enabled = false
	res, err := PreBuild(context.Background(), d, view, PreBuildOptions{AssumeYes: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Proposal.Outcome != ledger.OutcomeNoChanges {
		t.Errorf("Outcome = %s, want no-changes", res.Proposal.Outcome)
	}
	if res.Proposal.Record.Version != (models.Version{1, 2, 9}) {
		t.Errorf("version = %s, want 1.2.9", res.Proposal.Record.Version)
	}
	if len(view.BuildFlags()) != 0 {
		t.Error("disabled firmware info should not add flags")
	}
}

func TestPostBuild(t *testing.T) {
	dir, view := testProject(t)
	writeLedger(t, dir, &models.FirmwareRecord{Version: models.Version{1, 0, 1}, BuildDate: "19-Oct-2026-14:05"})

	res, err := PostBuild(context.Background(), testDeps(dir), view, PostBuildOptions{})
	if err != nil {
		t.Fatalf("PostBuild: %v", err)
	}
	wantZip := filepath.Join(dir, ".pio", "release", "esp32", "blinky_v1.0.1-ESP32-abc1234.zip")
	if res.Release.ArchivePath != wantZip {
		t.Errorf("ArchivePath = %s, want %s", res.Release.ArchivePath, wantZip)
	}
	if !res.LedgerUpdated {
		t.Error("first post-build should record the ELF digest")
	}

	sum := sha256.Sum256([]byte("elf-bytes"))
	rec := readLedger(t, filepath.Join(dir, "scripts", "firmwareInfo.json"))
	if rec.ContentDigest != hex.EncodeToString(sum[:]) {
		t.Errorf("ContentDigest = %s", rec.ContentDigest)
	}
	if rec.BuildDate != "19-Oct-2026-14:05" {
		t.Errorf("post-build must keep the pre-build date, got %s", rec.BuildDate)
	}

	again, err := PostBuild(context.Background(), testDeps(dir), view, PostBuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if again.LedgerUpdated {
		t.Error("an unchanged build should not rewrite the ledger")
	}
}

func TestPostBuild_FailureLeavesLedger(t *testing.T) {
	dir, view := testProject(t)
	writeLedger(t, dir, &models.FirmwareRecord{Version: models.Version{1, 0, 1}})
	path := filepath.Join(dir, "scripts", "firmwareInfo.json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	view.Set("UPLOADCMD", envview.Literal("$UPLOADER write_flash"))
	build := envview.GetString(view, "BUILD_DIR", "")
	os.Remove(filepath.Join(build, "firmware.bin"))
	view.SetString("PROG_PATH", filepath.Join(build, "missing.elf"))

	if _, err := PostBuild(context.Background(), testDeps(dir), view, PostBuildOptions{}); err == nil {
		t.Fatal("expected packaging to fail without a firmware image")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("a failed post-build must leave the ledger untouched")
	}
	if _, err := os.Stat(filepath.Join(dir, "scripts", "backup_firmwareInfo.json")); !os.IsNotExist(err) {
		t.Error("a failed post-build must not rotate the backup")
	}
}

type fakePublisher struct {
	got      string
	location string
	err      error
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Publish(ctx context.Context, archivePath string) (string, error) {
	f.got = archivePath
	return f.location, f.err
}

func TestPostBuild_Publish(t *testing.T) {
	dir, view := testProject(t)
	pub := &fakePublisher{location: "s3://firmware/esp32/blinky.zip"}
	d := testDeps(dir)
	d.Publisher = pub

	res, err := PostBuild(context.Background(), d, view, PostBuildOptions{Publish: true})
	if err != nil {
		t.Fatalf("PostBuild: %v", err)
	}
	if pub.got != res.Release.ArchivePath {
		t.Errorf("published %s, want %s", pub.got, res.Release.ArchivePath)
	}
	if res.Location != pub.location {
		t.Errorf("Location = %s", res.Location)
	}
}

func TestPostBuild_PublishFailure(t *testing.T) {
	dir, view := testProject(t)
	d := testDeps(dir)
	d.Publisher = &fakePublisher{err: errors.New("503 service unavailable")}

	res, err := PostBuild(context.Background(), d, view, PostBuildOptions{Publish: true})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if res == nil || res.Release == nil {
		t.Fatal("the packaged release should still be reported")
	}
	if _, statErr := os.Stat(res.Release.ArchivePath); statErr != nil {
		t.Errorf("archive should remain after a failed publish: %v", statErr)
	}
}
