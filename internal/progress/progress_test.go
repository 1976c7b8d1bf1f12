package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type recordingReporter struct {
	NoOpProgress
	updates []int64
}

func (r *recordingReporter) Update(current int64) {
	r.updates = append(r.updates, current)
}

func TestProgressReader(t *testing.T) {
	rep := &recordingReporter{}
	pr := NewProgressReader(strings.NewReader("0123456789"), 100, rep)

	buf := make([]byte, 4)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	if pr.Current() != 110 {
		t.Errorf("Current() = %d, expected 110", pr.Current())
	}
	if len(rep.updates) == 0 || rep.updates[len(rep.updates)-1] != 110 {
		t.Errorf("last update = %v, expected 110", rep.updates)
	}
}

func TestCLIProgressWritesToOutput(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIProgress(&out)
	p.Start(10, "zipping")
	p.Update(10)
	p.Finish()
	if !strings.Contains(out.String(), "zipping") {
		t.Errorf("expected description in output, got %q", out.String())
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"file.zip", "file.zip"},
		{"a/file.zip", "file.zip"},
		{"/release/ESP32/demo_v1.0.1.zip", "…/ESP32/demo_v1.0.1.zip"},
	}
	for _, tt := range tests {
		if got := truncatePath(tt.path, 2); got != tt.expected {
			t.Errorf("truncatePath(%q) = %q, expected %q", tt.path, got, tt.expected)
		}
	}
}
