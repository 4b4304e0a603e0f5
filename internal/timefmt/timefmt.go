// Package timefmt converts between the timestamp representations used on the
// wire: nanosecond epoch strings from Grafana, RFC3339-ish strings, and the
// ClickHouse DateTime64 text form.
package timefmt

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the DateTime64 text form ClickHouse accepts and returns:
// space-separated, six fractional digits, no zone suffix.
const Layout = "2006-01-02 15:04:05.000000"

var stepRegex = regexp.MustCompile(`^(\d+)([smhd])$`)

// ToDateTime64 converts an inbound timestamp string into the DateTime64 text
// form. Pure-digit strings longer than 13 characters are nanosecond epochs;
// the first 13 digits are kept as a millisecond epoch. Anything else is
// treated as a date-like string.
func ToDateTime64(ts string) string {
	if len(ts) > 13 && isDigits(ts) {
		ms, err := strconv.ParseInt(ts[:13], 10, 64)
		if err == nil {
			return time.UnixMilli(ms).UTC().Format(Layout)
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC().Format(Layout)
	}

	// Already close to the DateTime64 form. Strip the zone designator,
	// swap T for a space and pad the fractional part to six digits.
	clean := strings.TrimSuffix(strings.Replace(ts, "T", " ", 1), "Z")
	if dot := strings.LastIndex(clean, "."); dot >= 0 {
		frac := clean[dot+1:]
		if len(frac) < 6 {
			clean += strings.Repeat("0", 6-len(frac))
		}
	} else if len(clean) == len("2006-01-02 15:04:05") {
		clean += ".000000"
	}
	return clean
}

// FromDateTime64 parses a DateTime64 string returned by ClickHouse and
// produces a nanosecond epoch. Precision below the millisecond is dropped,
// so the round trip through ToDateTime64 is lossy but stable.
func FromDateTime64(ts string) int64 {
	t, err := time.Parse("2006-01-02 15:04:05.999999999", ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, strings.Replace(ts, " ", "T", 1)+"Z")
		if err != nil {
			return 0
		}
	}
	return t.UnixMilli() * int64(time.Millisecond)
}

// ParseStep parses a step string such as "30s", "5m", "1h" or "2d". Unparseable
// input falls back to def.
func ParseStep(step string, def time.Duration) time.Duration {
	m := stepRegex.FindStringSubmatch(step)
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return def
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second
	case "m":
		return time.Duration(n) * time.Minute
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	}
	return def
}

// Now returns the current time in the DateTime64 text form.
func Now() string {
	return time.Now().UTC().Format(Layout)
}

// HoursAgo returns the time n hours before now in the DateTime64 text form.
func HoursAgo(n int) string {
	return time.Now().Add(-time.Duration(n) * time.Hour).UTC().Format(Layout)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
