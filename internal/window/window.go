// Package window implements the review acceptance time window: the minimum
// timestamp a review must be newer than for the current run, and the two
// validity checks used to filter fetched reviews against it.
//
// All thresholds and comparisons are whole seconds since epoch, not
// milliseconds. Persisted thresholds from earlier runs assume seconds, so
// the unit is a hard contract.
package window

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateFormat is the short date layout used across configs, stats metadata
// and upload paths.
const DateFormat = "2006-01-02"

// DefaultDaysBack is the lookback applied when a run does not configure one.
const DefaultDaysBack = 7

// DateFrom returns the formatted default "scrape reviews from" date.
// monthsBack takes precedence over daysBack when positive; daysBack falls
// back to DefaultDaysBack when non-positive.
func DateFrom(daysBack, monthsBack int) string {
	return DateFromAt(time.Now(), daysBack, monthsBack)
}

// DateFromAt is DateFrom against an explicit clock.
func DateFromAt(now time.Time, daysBack, monthsBack int) string {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	past := startOfDay(startOfDay(now).AddDate(0, 0, -daysBack))
	if monthsBack > 0 {
		past = startOfDay(startOfDay(now).AddDate(0, -monthsBack, 0))
	}
	return past.Format(DateFormat)
}

// Threshold computes the minimum acceptance timestamp for a run:
// start of the current day minus the configured offset, in unix seconds.
func Threshold(daysBack, monthsBack int) int64 {
	return ThresholdAt(time.Now(), daysBack, monthsBack)
}

// ThresholdAt is Threshold against an explicit clock.
func ThresholdAt(now time.Time, daysBack, monthsBack int) int64 {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	past := startOfDay(now).AddDate(0, 0, -daysBack)
	if monthsBack > 0 {
		past = startOfDay(now).AddDate(0, -monthsBack, 0)
	}
	return startOfDay(past).Unix()
}

// MinimumTimestamp parses a date string into unix seconds. The short
// DateFormat is tried first, then ISO-8601 (RFC 3339). Floor semantics:
// the result never rounds up past the parsed instant.
func MinimumTimestamp(dateString string) (int64, error) {
	if t, err := time.ParseInLocation(DateFormat, dateString, time.Local); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse(time.RFC3339, dateString)
	if err != nil {
		return 0, eris.Wrapf(err, "window: parse date %q", dateString)
	}
	return t.Unix(), nil
}

// DateString renders t in the short DateFormat.
func DateString(t time.Time) string {
	return t.Format(DateFormat)
}

// ReviewDateValidStrict reports whether the review day lies strictly after
// the minimum timestamp. This is the full-timestamp comparison needed to
// distinguish already-scraped reviews from new ones: a review dated exactly
// on the threshold day is treated as already seen. Unparseable or empty
// input is never valid.
//
// Callers filtering individual fetched reviews (the run loop) use this
// variant.
func ReviewDateValidStrict(reviewDateISO string, minimum int64) bool {
	t, ok := parseReviewDate(reviewDateISO)
	if !ok {
		return false
	}
	return startOfDay(t).Unix()-minimum > 0
}

// ReviewDateValid is the inclusive (>=) variant of the check: a review dated
// exactly on the threshold day still counts. Listing-level prefilters that
// decide whether a product page is worth opening at all rely on the
// inclusive boundary; read ReviewDateValidStrict before picking this one.
func ReviewDateValid(reviewDate time.Time, minimum int64) bool {
	if reviewDate.IsZero() {
		return false
	}
	return startOfDay(reviewDate).Unix()-minimum >= 0
}

// ReviewDateValidString is ReviewDateValid for raw date strings, accepting
// the same formats as MinimumTimestamp. Unparseable input is never valid.
func ReviewDateValidString(reviewDate string, minimum int64) bool {
	t, ok := parseReviewDate(reviewDate)
	if !ok {
		return false
	}
	return ReviewDateValid(t, minimum)
}

// parseReviewDate accepts the same formats as MinimumTimestamp: full ISO-8601
// timestamps and bare dates. Retailers emit both.
func parseReviewDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(DateFormat, s, time.Local); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
