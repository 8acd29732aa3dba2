package source

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	MaxTitleLength   = 500
	MaxExcerptLength = 1000

	ellipsis = "..."
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	truncatedSuffix = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)
	fallbackLayouts = []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		time.RFC3339Nano,
		time.RFC822Z,
		time.RFC822,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
)

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(tagPattern.ReplaceAllString(s, " "))
	}
	return collapseSpace(doc.Text())
}

// StripTruncationMarker removes the "[+N chars]" suffix NewsAPI appends to
// shortened content.
func StripTruncationMarker(s string) string {
	return truncatedSuffix.ReplaceAllString(s, "")
}

// Truncate shortens s to at most max runes, ending in an ellipsis when cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := max - utf8.RuneCountInString(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " ") + ellipsis
}

// Excerpt cleans an HTML or plain-text snippet and caps it at MaxExcerptLength.
func Excerpt(s string) string {
	return Truncate(StripHTML(s), MaxExcerptLength)
}

// parseDate tries the date layouts seen in the wild for RSS pubDate fields.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
