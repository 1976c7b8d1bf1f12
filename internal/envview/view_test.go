package envview

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDump(t *testing.T) {
	dump := []byte(`{
  "UPLOADCMD": "\"$PYTHONEXE\" \"$UPLOADER\" $UPLOADERFLAGS $SOURCE",
  "UPLOADERFLAGS": ["--chip", "esp32", "--baud", 460800],
  "PIOENV": "esp32dev",
  "VERBOSE": false,
  "ENV": {"PATH": "/usr/bin;/opt/tool-openocd/bin"},
  "FLASH_EXTRA": {"call": "_get_flash_extra", "args": ["__env__"], "result": "0x1000 bootloader.bin"}
}`)
	view, err := Parse(dump)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantKeys := []string{"ENV.PATH", "FLASH_EXTRA", "PIOENV", "UPLOADCMD", "UPLOADERFLAGS", "VERBOSE"}
	if diff := cmp.Diff(wantKeys, view.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	flags, ok := view.Get("UPLOADERFLAGS")
	if !ok || flags.Kind != KindList {
		t.Fatalf("UPLOADERFLAGS = %+v, want list", flags)
	}
	if diff := cmp.Diff(Strings("--chip", "esp32", "--baud", "460800"), flags); diff != "" {
		t.Errorf("UPLOADERFLAGS mismatch (-want +got):\n%s", diff)
	}

	if got := GetString(view, "VERBOSE", ""); got != "false" {
		t.Errorf("VERBOSE = %q, want false", got)
	}
	if got := GetString(view, "ENV.PATH", ""); got != "/usr/bin;/opt/tool-openocd/bin" {
		t.Errorf("ENV.PATH = %q", got)
	}

	call, _ := view.Get("FLASH_EXTRA")
	if call.Kind != KindCallable || call.Call.Name != "_get_flash_extra" || !call.Call.PassesEnv() {
		t.Fatalf("FLASH_EXTRA = %+v, want callable passing env", call)
	}
	out, err := view.Invoke(call.Call)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "0x1000 bootloader.bin" {
		t.Errorf("Invoke = %q", out)
	}
}

func TestParseRejectsBadCall(t *testing.T) {
	if _, err := Parse([]byte(`{"X": {"call": 3}}`)); err == nil {
		t.Fatal("expected error for non-string call name")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	content := "BOARD: nucleo_f401re\nUPLOADER: openocd\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	view, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetString(view, "UPLOADER", ""); got != "openocd" {
		t.Errorf("UPLOADER = %q", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing dump")
	}
}

func TestInvoke(t *testing.T) {
	view := NewMapView(map[string]Value{
		"ALIAS": Callable("real"),
	})
	var gotEnv View
	view.RegisterFunc("real", func(env View) (string, error) {
		gotEnv = env
		return "ok", nil
	})

	if out, err := view.Invoke(CallableRef{Name: "real"}); err != nil || out != "ok" {
		t.Fatalf("Invoke(real) = %q, %v", out, err)
	}
	if gotEnv != nil {
		t.Error("no-arg call should not receive the environment")
	}

	if _, err := view.Invoke(CallableRef{Name: "real", Args: []string{EnvArgSentinel}}); err != nil {
		t.Fatal(err)
	}
	if gotEnv != View(view) {
		t.Error("__env__ call should receive the view")
	}

	if out, err := view.Invoke(CallableRef{Name: "ALIAS"}); err != nil || out != "ok" {
		t.Errorf("Invoke(ALIAS) = %q, %v", out, err)
	}

	_, err := view.Invoke(CallableRef{Name: "nope"})
	if !errors.Is(err, ErrUnknownCallable) {
		t.Errorf("Invoke(nope) error = %v, want ErrUnknownCallable", err)
	}
}

func TestBuildFlags(t *testing.T) {
	view := NewMapView(nil)
	view.AppendBuildFlag("-D A=1")
	view.AppendBuildFlag("-D B=2")
	flags := view.BuildFlags()
	flags[0] = "mutated"
	if diff := cmp.Diff([]string{"-D A=1", "-D B=2"}, view.BuildFlags()); diff != "" {
		t.Errorf("BuildFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestLayered(t *testing.T) {
	prog := NewMapView(map[string]Value{"PIOENV": Literal("esp32")})
	project := NewMapView(map[string]Value{
		"PIOENV":    Literal("shadowed"),
		"BUILD_DIR": Literal(".pio/build/esp32"),
	})
	project.RegisterFunc("board", func(View) (string, error) { return "esp32dev", nil })
	view := Layered{prog, nil, project}

	if got := GetString(view, "PIOENV", ""); got != "esp32" {
		t.Errorf("PIOENV = %q, want the first layer's value", got)
	}
	if got := GetString(view, "BUILD_DIR", ""); got != ".pio/build/esp32" {
		t.Errorf("BUILD_DIR = %q, want the fallback layer's value", got)
	}
	if view.Has("UPLOADCMD") {
		t.Error("Has(UPLOADCMD) should be false")
	}
	if out, err := view.Invoke(CallableRef{Name: "board"}); err != nil || out != "esp32dev" {
		t.Errorf("Invoke(board) = %q, %v", out, err)
	}
	if _, err := view.Invoke(CallableRef{Name: "nope"}); !errors.Is(err, ErrUnknownCallable) {
		t.Errorf("Invoke(nope) error = %v, want ErrUnknownCallable", err)
	}
}
