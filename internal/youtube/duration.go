package youtube

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration buckets as the platform defines them.
const (
	DurationShort  = "short"  // < 4 min
	DurationMedium = "medium" // 4–20 min
	DurationLong   = "long"   // >= 20 min
	DurationAll    = "all"
)

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts the platform's ISO-8601 duration string (e.g.
// "PT1H2M3S") to seconds. Malformed input parses to 0.
func parseISODuration(s string) int {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	days, _ := strconv.Atoi(m[1])
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds, _ := strconv.Atoi(m[4])
	return days*86400 + hours*3600 + minutes*60 + seconds
}

// formatDuration renders seconds as H:MM:SS, or M:SS under an hour.
func formatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// durationMatches reports whether a video of durSec seconds falls in bucket.
func durationMatches(durSec int, bucket string) bool {
	const (
		shortMax = 4 * 60
		longMin  = 20 * 60
	)
	switch bucket {
	case DurationShort:
		return durSec < shortMax
	case DurationMedium:
		return durSec >= shortMax && durSec < longMin
	case DurationLong:
		return durSec >= longMin
	default:
		return true
	}
}

// viewsPerHour is the trending signal: views divided by the video's age in
// hours, floored at one hour so fresh uploads don't divide by zero.
func viewsPerHour(views int64, publishedAt, now time.Time) float64 {
	hours := now.Sub(publishedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(views) / hours
}

// platformDuration maps the request bucket to the search endpoint's
// videoDuration parameter.
func platformDuration(bucket string) string {
	switch bucket {
	case DurationShort, DurationMedium, DurationLong:
		return bucket
	default:
		return "any"
	}
}

// chunk splits items into groups of at most size.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}

func join(items []string) string {
	return strings.Join(items, ",")
}
