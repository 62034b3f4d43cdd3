package filename

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContentDisposition(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty", header: "", want: ""},
		{name: "no filename", header: "inline", want: ""},
		{name: "plain quoted", header: `attachment; filename="report.pdf"`, want: "report.pdf"},
		{name: "plain unquoted", header: "attachment; filename=report.pdf; size=10", want: "report.pdf"},
		{name: "single quotes", header: "attachment; filename='notes.txt'", want: "notes.txt"},
		{name: "extended utf8", header: "attachment; filename*=UTF-8''%E2%82%AC%20rates.txt", want: "€ rates.txt"},
		{name: "extended with language", header: "attachment; filename*=utf-8'en'na%C3%AFve.txt", want: "naïve.txt"},
		{
			name:   "extended wins over plain",
			header: `attachment; filename="fallback.txt"; filename*=UTF-8''preferred.txt`,
			want:   "preferred.txt",
		},
		{
			name:   "bad escape falls back to plain",
			header: `attachment; filename="plain.txt"; filename*=UTF-8''bad%ZZ.txt`,
			want:   "plain.txt",
		},
		{name: "bad escape without plain", header: "attachment; filename*=UTF-8''bad%ZZ", want: ""},
		{name: "case insensitive", header: `ATTACHMENT; FILENAME="Upper.TXT"`, want: "Upper.TXT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromContentDisposition(tt.header))
		})
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://example.com/a.zip", want: "a.zip"},
		{url: "https://example.com/dir/file%20name.tar.gz?x=1#frag", want: "file name.tar.gz"},
		{url: "https://example.com/dir/", want: "dir"},
		{url: "https://example.com/%E2%82%AC.txt", want: "€.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FromURL(tt.url))
		})
	}
}

func TestFromURL_Fallback(t *testing.T) {
	for _, raw := range []string{"https://example.com", "https://example.com/", "://bad"} {
		assert.True(t, strings.HasPrefix(FromURL(raw), "download_"), "FromURL(%q) should synthesize a name", raw)
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "a.zip", Resolve("https://example.com/a.zip", ""))
	assert.Equal(t, "b.bin", Resolve("https://example.com/a.zip", `attachment; filename="b.bin"`))
	assert.Equal(t, "_etc_passwd", Resolve("https://example.com/a.zip", `attachment; filename="/etc/passwd"`))
	assert.Equal(t, "_evil.sh", Resolve("https://example.com/a.zip", `attachment; filename="../evil.sh"`))
	assert.Equal(t, "a_b.txt", Resolve("https://example.com/a%2Fb.txt", ""))
	assert.True(t, strings.HasPrefix(Resolve("https://example.com/", ""), "download_"))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain.txt", want: "plain.txt"},
		{in: `a<b>c:d"e/f\g|h?i*j.txt`, want: "a_b_c_d_e_f_g_h_i_j.txt"},
		{in: "tab\there\x00.txt", want: "tab_here_.txt"},
		{in: "...hidden", want: "hidden"},
		{in: "trailing...", want: "trailing"},
		{in: "  spaced.txt  ", want: "spaced.txt"},
		{in: " .dot", want: "dot"},
		{in: "CON", want: "_CON"},
		{in: "lpt1", want: "_lpt1"},
		{in: "COM1.txt", want: "COM1.txt"},
		{in: "nul", want: "_nul"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_EmptyFallsBack(t *testing.T) {
	for _, in := range []string{"", "...", "   ", " . . "} {
		assert.True(t, strings.HasPrefix(Sanitize(in), "download_"), "Sanitize(%q)", in)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	got := Sanitize(strings.Repeat("a", 300) + ".txt")
	assert.Len(t, got, MaxLength)

	// multi-byte runes are never split
	got = Sanitize(strings.Repeat("é", 200))
	assert.LessOrEqual(t, len(got), MaxLength)
	assert.Equal(t, strings.Repeat("é", 127), got)
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"plain.txt",
		" .dot",
		"CON",
		"...",
		`a<b>c:"d`,
		"CON" + strings.Repeat(" ", 300) + "x",
		strings.Repeat("b", 254) + " .x",
		strings.Repeat("é", 200),
		"\x01\x02",
		"name(1).zip",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		if strings.HasPrefix(once, "download_") {
			continue
		}

		assert.Equal(t, once, Sanitize(once), "Sanitize not idempotent for %q", in)
	}
}
