package source

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world & friends", StripHTML("<p>Hello <b>world</b> &amp; friends</p>"))
	assert.Equal(t, "plain text", StripHTML("  plain \n text "))
	assert.Equal(t, "", StripHTML(""))
}

func TestStripTruncationMarker(t *testing.T) {
	assert.Equal(t, "The launch went well.", StripTruncationMarker("The launch went well. [+2345 chars]"))
	assert.Equal(t, "No marker here", StripTruncationMarker("No marker here"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))

	long := strings.Repeat("a", 1200)
	out := Truncate(long, MaxExcerptLength)
	assert.Equal(t, MaxExcerptLength, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "..."))

	multibyte := strings.Repeat("日", 20)
	out = Truncate(multibyte, 10)
	assert.Equal(t, 10, utf8.RuneCountInString(out))
	assert.True(t, utf8.ValidString(out))
}

func TestExcerpt(t *testing.T) {
	html := "<div>" + strings.Repeat("word ", 400) + "</div>"
	out := Excerpt(html)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxExcerptLength)
	assert.NotContains(t, out, "<div>")
}

func TestParseDate(t *testing.T) {
	got, ok := parseDate("Mon, 02 Jan 2006 15:04:05 -0700")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC), got)

	_, ok = parseDate("not a date")
	assert.False(t, ok)
}
