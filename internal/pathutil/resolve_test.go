package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveAbsolutePath(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	project := filepath.Join(base, "project")
	if err := os.MkdirAll(project, 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"existing", project, project},
		{"missing tail", filepath.Join(project, ".pio", "release"), filepath.Join(project, ".pio", "release")},
		{"dot segments", filepath.Join(project, "..", "project"), project},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveAbsolutePath(tt.in)
			if err != nil {
				t.Fatalf("ResolveAbsolutePath(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveAbsolutePath(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveAbsolutePath_Symlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	base, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	real := filepath.Join(base, "real")
	if err := os.MkdirAll(real, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "not-yet"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(real, "not-yet"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestResolveAbsolutePath_Empty(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ResolveAbsolutePath("")
	if err != nil {
		t.Fatal(err)
	}
	if got != wd {
		t.Errorf("got %s, want %s", got, wd)
	}
}

func TestResolveAbsolutePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ResolveAbsolutePath("~")
	if err != nil {
		t.Fatal(err)
	}
	want, err := filepath.EvalSymlinks(home)
	if err != nil {
		want = home
	}
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}
