package sanitize

import "testing"

func TestContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text passes through", "hello world", "hello world"},
		{"strips script tag", "hi <script>alert(1)</script>", "hi "},
		{"strips bold tag", "<b>bold</b> text", "bold text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Content(tt.input); got != tt.want {
				t.Errorf("Content(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
