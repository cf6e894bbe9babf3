package splits

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as HH:MM:SS.mmm, truncated to milliseconds. This
// is the split file representation.
func FormatDuration(d time.Duration) string {
	return formatParts(d, false, "")
}

// FormatShort renders d for display, dropping leading zero hour and minute
// fields: SS.mmm, MM:SS.mmm or HH:MM:SS.mmm.
func FormatShort(d time.Duration) string {
	return formatParts(d, true, "")
}

// FormatDiff renders a signed comparison, always prefixed with + or -.
func FormatDiff(d time.Duration) string {
	if d < 0 {
		return formatParts(-d, true, "-")
	}
	return formatParts(d, true, "+")
}

func formatParts(d time.Duration, shorten bool, prefix string) string {
	if d < 0 {
		prefix = "-"
		d = -d
	}
	ms := d.Milliseconds()
	hours := ms / int64(time.Hour/time.Millisecond)
	ms -= hours * int64(time.Hour/time.Millisecond)
	minutes := ms / int64(time.Minute/time.Millisecond)
	ms -= minutes * int64(time.Minute/time.Millisecond)
	seconds := ms / int64(time.Second/time.Millisecond)
	ms -= seconds * int64(time.Second/time.Millisecond)

	if shorten && hours == 0 {
		if minutes == 0 {
			return fmt.Sprintf("%s%02d.%03d", prefix, seconds, ms)
		}
		return fmt.Sprintf("%s%02d:%02d.%03d", prefix, minutes, seconds, ms)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%03d", prefix, hours, minutes, seconds, ms)
}

// ParseDuration parses HH:MM:SS.mmm and the shorter MM:SS.mmm and SS.mmm
// forms. The fraction may have one to nine digits and is truncated to
// milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	secPart := parts[len(parts)-1]
	whole, frac, hasFrac := strings.Cut(secPart, ".")
	seconds, err := parseField(whole, s)
	if err != nil {
		return 0, err
	}
	if len(parts) > 1 && seconds >= 60 {
		return 0, fmt.Errorf("invalid duration %q: seconds must be below 60", s)
	}
	total := time.Duration(seconds) * time.Second

	if hasFrac {
		if frac == "" || len(frac) > 9 {
			return 0, fmt.Errorf("invalid duration %q: bad fraction", s)
		}
		n, err := parseField(frac, s)
		if err != nil {
			return 0, err
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		total += time.Duration(n).Truncate(time.Millisecond)
	}

	if len(parts) >= 2 {
		minutes, err := parseField(parts[len(parts)-2], s)
		if err != nil {
			return 0, err
		}
		if len(parts) == 3 && minutes >= 60 {
			return 0, fmt.Errorf("invalid duration %q: minutes must be below 60", s)
		}
		total += time.Duration(minutes) * time.Minute
	}
	if len(parts) == 3 {
		hours, err := parseField(parts[0], s)
		if err != nil {
			return 0, err
		}
		total += time.Duration(hours) * time.Hour
	}
	return total, nil
}

func parseField(field, whole string) (int64, error) {
	if field == "" {
		return 0, fmt.Errorf("invalid duration %q", whole)
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid duration %q", whole)
		}
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", whole, err)
	}
	return n, nil
}
