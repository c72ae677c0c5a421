package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNameSanitizer_Sanitize(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Alice", "Alice"},
		{"japanese", "山田 太郎", "山田 太郎"},
		{"tags removed", "<b>Bob</b>", "Bob"},
		{"script removed", "<script>alert(1)</script>Eve", "Eve"},
		{"ampersand kept", "Tom & Jerry", "Tom & Jerry"},
		{"whitespace collapsed", "  Ann \n\t Lee  ", "Ann Lee"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNameSanitizer_Truncates(t *testing.T) {
	s := NewNameSanitizer()
	got := s.Sanitize(strings.Repeat("あ", MaxDisplayNameLength+20))
	if n := utf8.RuneCountInString(got); n != MaxDisplayNameLength {
		t.Errorf("length = %d, want %d", n, MaxDisplayNameLength)
	}
}
