// Package sanitize bounds what is sent to the summarization upstream: it
// strips low-information lines (bibliography entries, captions, links,
// author lists) from academic text and caps the length. The cap exists to
// contain upstream cost and latency, not for correctness.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxContentChars is the hard cap applied after filtering.
	MaxContentChars = 3500
	// MinEligibleChars is the minimum of non-whitespace characters a
	// summarizable text must keep after all processing.
	MinEligibleChars = 50

	// If filtering leaves fewer characters than this, the filter likely ate
	// a legitimate short section and the original content is used instead.
	minFilteredChars = 100
	// Lines containing '@' below this length are treated as author/email
	// lines.
	maxAuthorLineChars = 80
)

// ErrContentTooShort rejects input that is empty or below the eligibility
// threshold before or after sanitization.
var ErrContentTooShort = errors.New("content too short to summarize")

var (
	// Numbered bibliography entries: "[12] Smith..." or "3. Smith...".
	refEntryRe = regexp.MustCompile(`^\s*(\[\d+\]|\d+\.)\s*[A-Z]`)
	// Figure/Table captions: "Figure 2:", "Fig. 3", "Table 1".
	captionRe = regexp.MustCompile(`(?i)^\s*(figure|fig\.?|table)\s*\d`)
	// URL and DOI tokens.
	linkRe = regexp.MustCompile(`(?i)https?://|www\.|doi\.org|\bdoi:|\b10\.\d{4,9}/`)
)

// Clean filters and bounds raw section content. The returned text is what may
// be sent upstream; ErrContentTooShort means the request must be rejected
// without any upstream call.
func Clean(content string) (string, error) {
	filtered := filterLines(content)

	src := content
	if utf8.RuneCountInString(filtered) >= minFilteredChars {
		src = filtered
	}

	src = truncate(src, MaxContentChars)

	if countNonSpace(src) < MinEligibleChars {
		return "", ErrContentTooShort
	}
	return src, nil
}

func filterLines(content string) string {
	lines := strings.Split(content, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if refEntryRe.MatchString(trimmed) {
			continue
		}
		if captionRe.MatchString(trimmed) {
			continue
		}
		if linkRe.MatchString(trimmed) {
			continue
		}
		if strings.Contains(trimmed, "@") && utf8.RuneCountInString(trimmed) < maxAuthorLineChars {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
