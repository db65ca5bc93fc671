package services

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/khotaikhoan/storefront/internal/repositories"
)

var descriptionPolicy = bluemonday.UGCPolicy()

// cleanText trims, drops control characters and collapses runs of spaces while keeping line
// breaks. Angle brackets and ampersands are stored as typed; clients escape on render.
func cleanText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if r == '\t' {
				return ' '
			}
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// sanitizeMarkup is for product copy the storefront renders as HTML.
func sanitizeMarkup(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(descriptionPolicy.Sanitize(trimmed))
}

// validID reports whether value is a ULID.
func validID(value string) bool {
	_, err := ulid.ParseStrict(strings.TrimSpace(value))
	return err == nil
}

func newULID() string {
	return ulid.Make().String()
}

func isRepoNotFound(err error) bool {
	return repositories.IsNotFound(err)
}

func isRepoConflict(err error) bool {
	return repositories.IsConflict(err)
}

func isRepoUnavailable(err error) bool {
	return repositories.IsUnavailable(err)
}
