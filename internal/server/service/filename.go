package service

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	maxFilenameLen = 255
	maxExtLen      = 16
)

// SanitizeFilename reduces a client-supplied file name to a flat, ASCII-only
// token made of letters, digits, '.', '-' and '_'. Directory components are
// dropped, accented letters lose their accents, and every other character
// becomes '_'. An empty result means the name cannot be used.
func SanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before taking the base name.
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	underscore := false
	for _, r := range norm.NFKD.String(name) {
		switch {
		case r > unicode.MaxASCII:
			continue
		case isSafeFilenameRune(r):
			b.WriteRune(r)
			underscore = r == '_'
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}

	return truncateFilename(strings.Trim(b.String(), "._"), maxFilenameLen)
}

func isSafeFilenameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '.' || r == '-' || r == '_'
}

// truncateFilename limits an ASCII name to max bytes, keeping an extension of
// up to maxExtLen bytes. Longer extensions are cut like the rest of the name.
func truncateFilename(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > maxExtLen || len(ext) >= max {
		return name[:max]
	}
	return name[:max-len(ext)] + ext
}
