package archive

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreateAndExtract(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "v1.0.1")
	writeTree(t, src, map[string]string{
		"fmw_upload.bat":      "@echo off",
		"bin/firmware.bin":    "\x00\x01\x02",
		"bin/firmware.md5":    "D41d8cd98f00b204e9800998ecf8427e",
		"bin/firmware.map":    "map",
		"bin/tool/esptool.py": "print()",
		"drivers/readme.txt":  "drivers",
	})

	zipPath := filepath.Join(tmp, "release", "ESP32", "demo_v1.0.1.zip")
	if err := Create(src, zipPath, CreateOptions{Exclude: []string{"*.map"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Validate(zipPath); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	names, err := List(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, n := range names {
		if n[len(n)-1] != '/' {
			files = append(files, n)
		}
	}
	sort.Strings(files)
	want := []string{
		"bin/firmware.bin",
		"bin/firmware.md5",
		"bin/tool/esptool.py",
		"drivers/readme.txt",
		"fmw_upload.bat",
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	out := filepath.Join(tmp, "out")
	if err := Extract(zipPath, out); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "bin", "tool", "esptool.py"))
	if err != nil || string(data) != "print()" {
		t.Errorf("extracted content = %q, %v", data, err)
	}
}

func TestCreateMissingSource(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "x.zip")
	err := Create(filepath.Join(tmp, "missing"), zipPath, CreateOptions{})
	var archiveErr *Error
	if !errors.As(err, &archiveErr) {
		t.Fatalf("error = %v, want *archive.Error", err)
	}
	if archiveErr.Path != filepath.Join(tmp, "missing") {
		t.Errorf("error path = %q", archiveErr.Path)
	}
	if _, err := os.Stat(zipPath); !os.IsNotExist(err) {
		t.Error("no archive should be left behind")
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "evil.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escaped.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("nope")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := Extract(zipPath, filepath.Join(tmp, "dest")); err == nil {
		t.Fatal("expected an error for an entry outside the destination")
	}
	if _, err := os.Stat(filepath.Join(tmp, "escaped.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped the destination")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"demo_v1.0.0.zip": "old",
		"demo_v1.0.1.zip": "new",
		"leftover/bin/x":  "x",
		"DEMO_v0.9.9.zip": "older",
	})

	removed, err := Prune(dir, "Demo_V1.0.1.zip")
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("removed %v, expected 3 entries", removed)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "demo_v1.0.1.zip" {
		t.Errorf("remaining entries = %v", entries)
	}
}

func TestSafeJoin(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dest")
	tests := []struct {
		name string
		ok   bool
	}{
		{"bin/firmware.bin", true},
		{"a/../b.txt", true},
		{"../escaped.txt", false},
		{`..\escaped.txt`, false},
		{"/etc/passwd", false},
		{"a/../../x", false},
	}
	for _, tt := range tests {
		_, err := safeJoin(dest, tt.name)
		if tt.ok && err != nil {
			t.Errorf("safeJoin(%q) unexpected error: %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsafePath) {
			t.Errorf("safeJoin(%q) error = %v, want ErrUnsafePath", tt.name, err)
		}
	}
}
