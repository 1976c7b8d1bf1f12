package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rescale/fwrelease/internal/config"
)

// TestConfigPath tests the config path command
func TestConfigPath(t *testing.T) {
	cmd := newConfigPathCmd()
	if cmd.Use != "path" {
		t.Errorf("Expected Use='path', got '%s'", cmd.Use)
	}

	dir := t.TempDir()
	stdout, stderr, err := execute(t, "", "--project-dir", dir, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if want := config.PathFor(dir) + "\n"; stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if !strings.Contains(stderr, "defaults apply") {
		t.Errorf("stderr = %q, want a note about the missing file", stderr)
	}
}

// TestConfigPath_Override tests that --config wins over the project directory
func TestConfigPath_Override(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.ini")
	stdout, _, err := execute(t, "", "--config", custom, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(stdout) != custom {
		t.Errorf("stdout = %q, want %q", stdout, custom)
	}
}

// TestConfigInit tests writing the defaults and the --force guard
func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := config.PathFor(dir)

	if _, _, err := execute(t, "", "--project-dir", dir, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Release.Dir != config.New().Release.Dir {
		t.Errorf("Release.Dir = %q, want the default", cfg.Release.Dir)
	}

	if err := os.WriteFile(path, []byte("[release]\ndir = custom\n"), 0644); err != nil {
		t.Fatal(err)
	}
	stdout, _, err := execute(t, "", "--project-dir", dir, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, "already exists") {
		t.Errorf("stdout = %q, want an 'already exists' notice", stdout)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "custom") {
		t.Error("config init overwrote the file without --force")
	}

	if _, _, err := execute(t, "", "--project-dir", dir, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
	data, _ = os.ReadFile(path)
	if strings.Contains(string(data), "custom") {
		t.Error("config init --force kept the old file")
	}
}

// TestConfigShow tests the config show command
func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	content := `[publish]
target = azure
azure_sas_url = https://acct.blob.core.windows.net/fw?sv=2024&sig=secret
`
	if err := os.WriteFile(config.PathFor(dir), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "", "--project-dir", dir, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(stdout, "Publish target:     azure") {
		t.Errorf("output missing publish target:\n%s", stdout)
	}
	if strings.Contains(stdout, "secret") {
		t.Errorf("output leaks the SAS signature:\n%s", stdout)
	}
}

// TestInvalidConfig tests that hook commands refuse invalid settings
func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.PathFor(dir), []byte("[publish]\ntarget = ftp\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, "", "--project-dir", dir, "tag")
	if err == nil {
		t.Fatal("expected an error for an unknown publish target")
	}
	if !strings.Contains(err.Error(), "invalid settings") {
		t.Errorf("err = %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(from FWRELEASE_AZURE_SAS_URL)"},
		{"https://a.blob.core.windows.net/c?sig=x", "https://a.blob.core.windows.net/c?***"},
		{"https://a.blob.core.windows.net/c", "https://a.blob.core.windows.net/c"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
