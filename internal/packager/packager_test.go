package packager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rescale/fwrelease/internal/envview"
	fwhttp "github.com/rescale/fwrelease/internal/http"
	"github.com/rescale/fwrelease/internal/models"
	"github.com/rescale/fwrelease/internal/util/archive"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// testProject lays out a built project and returns its dir and build view.
func testProject(t *testing.T) (string, *envview.MapView) {
	t.Helper()
	dir := t.TempDir()
	build := filepath.Join(dir, ".pio", "build", "esp32")
	writeFile(t, filepath.Join(build, "firmware.elf"), "elf-bytes")
	writeFile(t, filepath.Join(build, "firmware.bin"), "firmware-bytes")
	writeFile(t, filepath.Join(dir, "tools", "flasher"), "#!/bin/sh\n")
	writeFile(t, filepath.Join(dir, "scripts", "firmwareInfo.json"), `{"Version":"1.0.1"}`)

	bundleSrc := filepath.Join(t.TempDir(), "bundle")
	writeFile(t, filepath.Join(bundleSrc, "README.txt"), "flash me")
	if err := archive.Create(bundleSrc, filepath.Join(dir, "usbUpdateInfo.zip"), archive.CreateOptions{}); err != nil {
		t.Fatal(err)
	}

	view := envview.NewMapView(nil)
	view.SetString("PIOENV", "esp32")
	view.SetString("BUILD_DIR", build)
	view.SetString("PROG_PATH", "$BUILD_DIR/firmware.elf")
	view.SetString("UPLOADER", filepath.Join(dir, "tools", "flasher"))
	view.SetString("UPLOAD_PORT", "/dev/ttyUSB0")
	view.SetString("UPLOADCMD", "$UPLOADER --chip esp32 --port $UPLOAD_PORT write_flash 0x10000 $SOURCE")
	return dir, view
}

func testRecord() *models.FirmwareRecord {
	return &models.FirmwareRecord{
		Version:      models.Version{1, 0, 1},
		ToolchainEnv: "esp32",
		GitProject:   "blinky",
		GitCommit:    "abc1234",
	}
}

func TestPackage(t *testing.T) {
	dir, view := testProject(t)
	stale := filepath.Join(dir, ".pio", "release", "esp32", "blinky_v1.0.0-esp32-0000000.zip")
	writeFile(t, stale, "old")

	p := New(Options{ProjectDir: dir})
	rel, err := p.Package(context.Background(), testRecord(), view)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	wantPath := filepath.Join(dir, ".pio", "release", "esp32", "blinky_v1.0.1-esp32-abc1234.zip")
	if rel.ArchivePath != wantPath {
		t.Errorf("ArchivePath = %s, want %s", rel.ArchivePath, wantPath)
	}
	if rel.Adapter != "generic" {
		t.Errorf("Adapter = %s, want generic", rel.Adapter)
	}
	if want := "flasher --chip esp32 --port write_flash 0x10000 firmware.bin"; rel.Command != want {
		t.Errorf("Command = %q, want %q", rel.Command, want)
	}

	sum := md5.Sum([]byte("firmware-bytes"))
	if want := Capitalize(hex.EncodeToString(sum[:])); rel.Digest != want {
		t.Errorf("Digest = %s, want %s", rel.Digest, want)
	}

	names, err := archive.List(rel.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	entries := make(map[string]bool)
	for _, n := range names {
		entries[n] = true
	}
	for _, want := range []string{
		"README.txt",
		"fmw_upload.bat",
		"fmw_upload.sh",
		"bin/firmware.md5",
		"bin/firmware.bin",
		"bin/firmware.elf",
		"bin/flasher",
		"bin/firmwareInfo.json",
	} {
		if !entries[want] {
			t.Errorf("archive is missing %s (have %v)", want, names)
		}
	}

	if _, err := os.Stat(p.OutputDir(rel.Tag)); !os.IsNotExist(err) {
		t.Error("release working directory should be removed")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("older archive should be pruned")
	}
	if diff := cmp.Diff([]string{stale}, rel.Pruned); diff != "" {
		t.Errorf("Pruned mismatch (-want +got):\n%s", diff)
	}
}

func TestPackage_LaunchersCarryCommand(t *testing.T) {
	dir, view := testProject(t)
	p := New(Options{ProjectDir: dir})
	rel, err := p.Package(context.Background(), testRecord(), view)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	extracted := t.TempDir()
	if err := archive.Extract(rel.ArchivePath, extracted); err != nil {
		t.Fatal(err)
	}

	bat, err := os.ReadFile(filepath.Join(extracted, "fmw_upload.bat"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bat), "\r\n") {
		t.Error("batch launcher should use CRLF line endings")
	}
	if got, ok := ExtractCommand(string(bat)); !ok || got != "flasher --chip esp32 write_flash 0x10000 firmware.bin" {
		t.Errorf("batch command = %q, %v", got, ok)
	}

	sh, err := os.ReadFile(filepath.Join(extracted, "fmw_upload.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(sh), "#!/bin/sh\n") {
		t.Error("shell launcher should start with a shebang")
	}
	if !strings.Contains(string(sh), "Uploading Firmware 1.0.1-esp32-abc1234") {
		t.Error("shell launcher should name the release tag")
	}
	if got, ok := ExtractCommand(string(sh)); !ok || got != "flasher --chip esp32 write_flash 0x10000 firmware.bin" {
		t.Errorf("shell command = %q, %v", got, ok)
	}
}

func TestPackage_MissingFirmware(t *testing.T) {
	dir, view := testProject(t)
	build := envview.GetString(view, "BUILD_DIR", "")
	os.Remove(filepath.Join(build, "firmware.bin"))
	os.Remove(filepath.Join(build, "firmware.elf"))
	view.SetString("UPLOADCMD", "$UPLOADER write_flash 0x10000")

	_, err := New(Options{ProjectDir: dir}).Package(context.Background(), testRecord(), view)
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestPackage_MissingConfiguredBundle(t *testing.T) {
	dir, view := testProject(t)
	p := New(Options{ProjectDir: dir, Bundle: "templates/missing.zip"})
	_, err := p.Package(context.Background(), testRecord(), view)
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("expected ErrMissingArtifact, got %v", err)
	}
}

func TestPackage_NoBundle(t *testing.T) {
	dir, view := testProject(t)
	os.Remove(filepath.Join(dir, "usbUpdateInfo.zip"))

	rel, err := New(Options{ProjectDir: dir}).Package(context.Background(), testRecord(), view)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	names, err := archive.List(rel.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if n == "README.txt" {
			t.Error("bundle content present without a bundle")
		}
	}
}

func TestPackage_RemoteBundle(t *testing.T) {
	dir, view := testProject(t)
	bundle, err := os.ReadFile(filepath.Join(dir, "usbUpdateInfo.zip"))
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(filepath.Join(dir, "usbUpdateInfo.zip"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bundle)
	}))
	defer srv.Close()

	client := fwhttp.NewRetryableClient(srv.Client(), nil)
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond

	p := New(Options{ProjectDir: dir, Bundle: srv.URL + "/templates/usbUpdateInfo.zip", HTTPClient: client})
	rel, err := p.Package(context.Background(), testRecord(), view)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	names, err := archive.List(rel.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		found = found || n == "README.txt"
	}
	if !found {
		t.Errorf("remote bundle content missing from %v", names)
	}
	if _, err := os.Stat(filepath.Join(dir, ".pio", "release", ".bundle", "usbUpdateInfo.zip")); err != nil {
		t.Errorf("downloaded bundle not cached: %v", err)
	}
}

func TestLauncherCommand(t *testing.T) {
	tests := []struct {
		name        string
		cmd         string
		interpreter string
		want        string
	}{
		{
			name:        "port removed",
			cmd:         "flasher --port  write_flash firmware.bin",
			interpreter: "%PYTHON_DIR%",
			want:        "flasher write_flash firmware.bin",
		},
		{
			name:        "interpreter replaced",
			cmd:         `"C:\Users\dev\.platformio\penv\Scripts\python.exe" "tool-esptoolpy/esptool.py" --chip esp32`,
			interpreter: "%PYTHON_DIR%",
			want:        `%PYTHON_DIR% "tool-esptoolpy/esptool.py" --chip esp32`,
		},
		{
			name:        "shell interpreter",
			cmd:         "python3 tool-esptoolpy/esptool.py --port $UPLOAD_PORT write_flash",
			interpreter: `"$PYTHON"`,
			want:        `"$PYTHON" tool-esptoolpy/esptool.py write_flash`,
		},
		{
			name:        "newlines collapsed",
			cmd:         "flasher\r\n--chip esp32",
			interpreter: "%PYTHON_DIR%",
			want:        "flasher --chip esp32",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := launcherCommand(tt.cmd, tt.interpreter); got != tt.want {
				t.Errorf("launcherCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCommand(t *testing.T) {
	if _, ok := ExtractCommand("@echo off\r\npause\r\n"); ok {
		t.Error("expected no command in a script without markers")
	}
	script := "# begin pio upload command\nflasher write\n# end pio upload command\n"
	if got, ok := ExtractCommand(script); !ok || got != "flasher write" {
		t.Errorf("ExtractCommand() = %q, %v", got, ok)
	}
}

func TestCapitalize(t *testing.T) {
	tests := map[string]string{
		"":                                 "",
		"d41d8cd98f00b204e9800998ecf8427e": "D41d8cd98f00b204e9800998ecf8427e",
		"ABC":                              "Abc",
	}
	for in, want := range tests {
		if got := Capitalize(in); got != want {
			t.Errorf("Capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArchiveName(t *testing.T) {
	rec := testRecord()
	if got := New(Options{ProjectName: "bootloader"}).ArchiveName(rec); got != "bootloader_v1.0.1-esp32-abc1234.zip" {
		t.Errorf("ArchiveName() = %s", got)
	}
	rec.GitProject = ""
	if got := New(Options{}).ArchiveName(rec); got != "firmware_v1.0.1-esp32-abc1234.zip" {
		t.Errorf("ArchiveName() = %s", got)
	}
}
