package filename

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the longest name, in bytes, Sanitize produces.
const MaxLength = 255

var (
	illegalChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	reservedNames = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])$`)

	extendedParam = regexp.MustCompile(`(?i)(?:^|[;\s])filename\*\s*=\s*([^;]+)`)
	plainParam    = regexp.MustCompile(`(?i)(?:^|[;\s])filename\s*=\s*["']?([^"';]+)["']?`)
)

// Resolve picks a sanitized filename for rawURL, preferring the name carried
// by contentDisposition. It never returns an empty string.
func Resolve(rawURL, contentDisposition string) string {
	if name := FromContentDisposition(contentDisposition); name != "" {
		return Sanitize(name)
	}

	return Sanitize(FromURL(rawURL))
}

// FromContentDisposition extracts the unsanitized filename from a
// Content-Disposition value, or "" when the header carries none.
func FromContentDisposition(header string) string {
	if header == "" {
		return ""
	}

	if m := extendedParam.FindStringSubmatch(header); m != nil {
		if name, err := decodeExtended(m[1]); err == nil && name != "" {
			return name
		}
	}

	if m := plainParam.FindStringSubmatch(header); m != nil {
		return strings.TrimSpace(m[1])
	}

	return ""
}

// decodeExtended decodes an RFC 5987 value such as UTF-8''na%C3%AFve.txt.
func decodeExtended(value string) (string, error) {
	value = strings.Trim(strings.TrimSpace(value), `"`)

	// charset'language'percent-encoded
	if parts := strings.SplitN(value, "'", 3); len(parts) == 3 {
		value = parts[2]
	}

	return url.PathUnescape(value)
}

// FromURL returns the decoded last path segment of rawURL, or a synthesized
// name when there is none.
func FromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback()
	}

	segment := path.Base(u.EscapedPath())
	if segment == "." || segment == "/" || segment == "" {
		return fallback()
	}

	name, err := url.PathUnescape(segment)
	if err != nil || name == "" {
		return fallback()
	}

	return name
}

// Sanitize makes name safe on common filesystems. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	name = illegalChars.ReplaceAllString(name, "_")
	name = trimEdges(name)
	name = trimEdges(truncate(name, MaxLength))

	if reservedNames.MatchString(name) {
		name = "_" + name
	}

	if name == "" {
		return fallback()
	}

	return name
}

func trimEdges(name string) string {
	return strings.TrimFunc(name, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

func fallback() string {
	return fmt.Sprintf("download_%d", time.Now().UnixMilli())
}
