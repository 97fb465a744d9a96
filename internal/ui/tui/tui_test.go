package tui

import "testing"

func TestTruncateText(t *testing.T) {
	tests := map[string]struct {
		text  string
		width int
		want  string
	}{
		"fits":       {text: "WebHome", width: 10, want: "WebHome"},
		"truncated":  {text: "VeryLongPageName", width: 8, want: "VeryL..."},
		"tiny width": {text: "WebHome", width: 2, want: "We"},
		"zero width": {text: "WebHome", width: 0, want: ""},
		"multibyte":  {text: "Café Menü", width: 6, want: "Caf..."},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := truncateText(tt.text, tt.width); got != tt.want {
				t.Errorf("truncateText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}
