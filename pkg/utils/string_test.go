package utils

import "testing"

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short string untouched", input: "hello", max: 10, want: "hello"},
		{name: "exact length", input: "hello", max: 5, want: "hello"},
		{name: "cut", input: "hello world", max: 5, want: "hello"},
		{name: "cut leaves trailing space", input: "hello world", max: 6, want: "hello"},
		{name: "multibyte", input: "日本語テキスト", max: 3, want: "日本語"},
		{name: "no limit", input: "hello", max: 0, want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateRunes(tt.input, tt.max); got != tt.want {
				t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}

func TestCleanText_Idempotent(t *testing.T) {
	inputs := []string{"  a   b\n\tc  ", "word word word word", "x"}

	for _, in := range inputs {
		once := CleanText(in, 9)
		twice := CleanText(once, 9)

		if once != twice {
			t.Errorf("CleanText not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestBuildHeaders(t *testing.T) {
	h := BuildHeaders(map[string]string{"X-Test": "1"})

	if h.Get("User-Agent") != DefaultUserAgent {
		t.Errorf("Expected default user agent, got %s", h.Get("User-Agent"))
	}

	if h.Get("X-Test") != "1" {
		t.Errorf("Expected custom header, got %s", h.Get("X-Test"))
	}
}
