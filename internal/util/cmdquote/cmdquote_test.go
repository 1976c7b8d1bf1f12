package cmdquote

import "testing"

func TestQuoteOption(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		short, long string
		expected    string
	}{
		{
			name:     "short flag at start",
			input:    "-f firstfile -s /some/dir -x",
			short:    "-f",
			long:     "--file",
			expected: `-f "firstfile" -s /some/dir -x`,
		},
		{
			name:     "long flag",
			input:    "openocd --file board.cfg --command init",
			short:    "-f",
			long:     "--file",
			expected: `openocd --file "board.cfg" --command init`,
		},
		{
			name:     "value runs to end",
			input:    "openocd -c program firmware.bin verify reset",
			short:    "-c",
			long:     "--command",
			expected: `openocd -c "program firmware.bin verify reset"`,
		},
		{
			name:     "repeated flag",
			input:    "openocd -f a.cfg -f b.cfg",
			short:    "-f",
			long:     "--file",
			expected: `openocd -f "a.cfg" -f "b.cfg"`,
		},
		{
			name:     "already quoted",
			input:    `openocd -c "init; reset" -f x.cfg`,
			short:    "-c",
			long:     "--command",
			expected: `openocd -c "init; reset" -f x.cfg`,
		},
		{
			name:     "flag without value",
			input:    "openocd -c -f x.cfg",
			short:    "-c",
			long:     "--command",
			expected: "openocd -c -f x.cfg",
		},
		{
			name:     "flag at end",
			input:    "openocd -c",
			short:    "-c",
			long:     "--command",
			expected: "openocd -c",
		},
		{
			name:     "not a delimited flag",
			input:    "tool-openocd/bin/openocd-c x",
			short:    "-c",
			long:     "--command",
			expected: "tool-openocd/bin/openocd-c x",
		},
		{
			name:     "extra spaces before value",
			input:    "openocd -c  init -f x.cfg",
			short:    "-c",
			long:     "--command",
			expected: `openocd -c  "init" -f x.cfg`,
		},
		{
			name:     "extra spaces before next flag",
			input:    "openocd -c   -f x.cfg",
			short:    "-c",
			long:     "--command",
			expected: "openocd -c   -f x.cfg",
		},
		{
			name:     "trailing space before next flag",
			input:    "x -s /dir  -d2",
			short:    "-s",
			long:     "--search",
			expected: `x -s "/dir"  -d2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := QuoteOption(tt.input, tt.short, tt.long)
			if result != tt.expected {
				t.Errorf("QuoteOption(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
			again := QuoteOption(result, tt.short, tt.long)
			if again != result {
				t.Errorf("QuoteOption not idempotent: %q -> %q", result, again)
			}
		})
	}
}

func TestQuoteOptions(t *testing.T) {
	input := "-f firstfile -s /some/dir -x"
	expected := `-f "firstfile" -s "/some/dir" -x`
	pairs := [][2]string{{"-c", "--command"}, {"-f", "--file"}, {"-s", "--search"}}

	result := QuoteOptions(input, pairs...)
	if result != expected {
		t.Fatalf("QuoteOptions = %q, expected %q", result, expected)
	}
	if again := QuoteOptions(result, pairs...); again != expected {
		t.Errorf("QuoteOptions not idempotent: %q", again)
	}

	openocd := `"tool-openocd/bin/openocd" -c init -f target/stm32.cfg`
	want := `"tool-openocd/bin/openocd" -c "init" -f "target/stm32.cfg"`
	if got := QuoteOptions(openocd, pairs...); got != want {
		t.Errorf("QuoteOptions(openocd) = %q, expected %q", got, want)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"double spaces", "esptool.py  --port  --baud 460800", "esptool.py --port --baud 460800"},
		{"tabs", "a\t\tb", "a b"},
		{"line endings", "a\r\nb\rc\nd", "a b c d"},
		{"zero width", "write​_flash", "write_flash"},
		{"trim", "  cmd  ", "cmd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Normalize(tt.input); result != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRemoveArg(t *testing.T) {
	result := RemoveArg("esptool.py --chip esp32 --port write_flash --port", "--port")
	if result != "esptool.py --chip esp32 write_flash" {
		t.Errorf("RemoveArg = %q", result)
	}
	if result := RemoveArg("a --portable b", "--port"); result != "a --portable b" {
		t.Errorf("RemoveArg removed a partial match: %q", result)
	}
}
