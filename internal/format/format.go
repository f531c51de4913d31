// Package format renders the outbound text block posted to the destination.
package format

import (
	"fmt"
	"time"
)

// TimestampLayout is sortable and always rendered in UTC.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Timestamp renders t in TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Render builds the post content. A non-empty translation wins over the
// media-only line; with neither it returns "" and callers should not post.
func Render(username string, ts time.Time, original, translated string, hasMedia bool) string {
	stamp := Timestamp(ts)
	switch {
	case translated != "":
		return fmt.Sprintf("**%s** at %s:\n%s\n\n*(original: %s)*", username, stamp, translated, original)
	case hasMedia:
		return fmt.Sprintf("**%s** at %s sent image(s).", username, stamp)
	default:
		return ""
	}
}
