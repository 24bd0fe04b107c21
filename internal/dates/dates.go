// Package dates normalizes the heterogeneous date strings LiveJournal themes
// render. Parsing is a fixed list of literal layout attempts; anything that
// matches none of them passes through unchanged so callers can divert it
// instead of aborting.
package dates

import (
	"regexp"
	"strings"
	"time"
)

// Canonical is the output layout for every successfully normalized date.
const Canonical = "2006-01-02 15:04:05"

// layouts are tried in order. They mirror the formats observed across
// journal themes: abbreviated month with period, full month name, day before
// month, and numeric slash date, all with 12-hour time and meridiem.
var layouts = []string{
	"Jan. 2, 2006 at 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"2 January 2006 at 3:04 PM",
	"1/2/2006 3:04 PM",
}

// strictCommentLayout is the only layout the export-side comment reparse
// accepts. Narrower than the layouts above; see ReparseComment.
const strictCommentLayout = "Jan. 2, 2006 3:04 PM"

var ordinalRe = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)

var nonDigitRe = regexp.MustCompile(`[^\d]`)

// Normalize converts raw to the canonical "YYYY-MM-DD HH:MM:SS" form,
// zeroing seconds. On failure it returns raw unchanged; it never errors.
// Callers detect non-normalization by checking the result against the input
// or the canonical shape.
func Normalize(raw string) string {
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return zeroSeconds(t).Format(Canonical)
	}
	return raw
}

// StripZone removes a trailing "(UTC)" zone marker, if present.
func StripZone(s string) string {
	if strings.Contains(s, "(UTC)") {
		return strings.TrimSpace(strings.ReplaceAll(s, "(UTC)", ""))
	}
	return s
}

// StripOrdinals removes st/nd/rd/th suffixes from day numbers
// ("June 1st, 2014" -> "June 1, 2014").
func StripOrdinals(s string) string {
	return ordinalRe.ReplaceAllString(s, "$1")
}

// ReparseComment re-derives a canonical timestamp from a comment's date the
// way the exporter requires: the day part is reshuffled and zero-padded,
// then parsed against the single abbreviated-month layout. Returns ok=false
// when the input doesn't fit that shape, including inputs Normalize already
// accepted; the comment-side parse is narrower than the post-side one and
// the mismatch is preserved behavior.
func ReparseComment(raw string) (string, bool) {
	cleaned, ok := cleanDate(raw)
	if !ok {
		return raw, false
	}
	t, err := time.Parse(strictCommentLayout, cleaned)
	if err != nil {
		return raw, false
	}
	return zeroSeconds(t).Format(Canonical), true
}

// Year extracts the calendar year from a canonical timestamp.
func Year(canonical string) (int, bool) {
	t, err := time.Parse(Canonical, canonical)
	if err != nil {
		return 0, false
	}
	return t.Year(), true
}

// cleanDate rewrites "Mon. D<suffix>, rest" into "Mon. DD, rest": the day
// loses any ordinal suffix and gains a leading zero. Inputs without the
// "month day, rest" shape (canonical timestamps included) do not fit.
func cleanDate(s string) (string, bool) {
	datePart, timePart, found := strings.Cut(s, ", ")
	if !found {
		return "", false
	}
	month, dayWithSuffix, found := strings.Cut(datePart, " ")
	if !found {
		return "", false
	}
	day := nonDigitRe.ReplaceAllString(dayWithSuffix, "")
	if day == "" {
		return "", false
	}
	if len(day) == 1 {
		day = "0" + day
	}
	return month + " " + day + ", " + timePart, true
}

func zeroSeconds(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
