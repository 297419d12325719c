package validation

import (
	"regexp"
	"strings"
	"unicode"
)

// SanitizeOptions controls SanitizeInput.
type SanitizeOptions struct {
	AllowHTML     bool
	AllowNewlines bool
	// MaxLength is in characters; zero means no limit.
	MaxLength    int
	PreserveCase bool
}

// DefaultSanitizeOptions is used for chat messages.
func DefaultSanitizeOptions() SanitizeOptions {
	return SanitizeOptions{AllowNewlines: true, MaxLength: MaxMessageLength, PreserveCase: true}
}

var (
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
	danglingTag    = regexp.MustCompile(`<[^>]*$`)
	newlineRun     = regexp.MustCompile(`\n{3,}`)
	newlineSpacing = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	anyNewline     = regexp.MustCompile(`\s*\n\s*`)
	blankRun       = regexp.MustCompile(`[ \t]+`)
)

// SanitizeInput trims, truncates to MaxLength, strips markup, collapses
// whitespace and optionally lowercases. Newline runs keep at most one blank
// line; when newlines are not allowed they become single spaces.
func SanitizeInput(input string, opts SanitizeOptions) string {
	s := strings.TrimSpace(input)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	if opts.MaxLength > 0 {
		if r := []rune(s); len(r) > opts.MaxLength {
			s = string(r[:opts.MaxLength])
		}
	}

	if !opts.AllowHTML {
		s = htmlTag.ReplaceAllString(s, "")
		s = danglingTag.ReplaceAllString(s, "")
	}

	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)

	if opts.AllowNewlines {
		s = newlineSpacing.ReplaceAllString(s, "\n")
		s = newlineRun.ReplaceAllString(s, "\n\n")
	} else {
		s = anyNewline.ReplaceAllString(s, " ")
	}
	s = blankRun.ReplaceAllString(s, " ")

	if !opts.PreserveCase {
		s = strings.ToLower(s)
	}
	return strings.TrimSpace(s)
}
