package normalizer

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical rendering of record dates.
const DateLayout = "2006-01-02"

// ParseLatinDate reads DD/MM/YYYY. On any mismatch it returns the calendar
// date of now and ok=false; callers surface that as a row warning.
func ParseLatinDate(text string, now time.Time) (time.Time, bool) {
	parts := strings.Split(datePart(text), "/")
	if len(parts) != 3 {
		return today(now), false
	}
	t, ok := buildDate(parts[2], parts[1], parts[0])
	if !ok {
		return today(now), false
	}
	return t, true
}

// ParseFlexibleDate accepts DD/MM/YYYY, DD-MM-YYYY, DD.MM.YYYY and the
// year-first forms YYYY-MM-DD and YYYY/MM/DD. A four digit first segment
// means year-first. Time suffixes ("2024-03-01T10:00:00Z",
// "01/03/2024 10:00") are ignored.
func ParseFlexibleDate(text string, now time.Time) (time.Time, bool) {
	s := datePart(text)
	sep := ""
	for _, candidate := range []string{"/", "-", "."} {
		if strings.Count(s, candidate) == 2 {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return today(now), false
	}

	parts := strings.Split(s, sep)
	var (
		t  time.Time
		ok bool
	)
	if len(strings.TrimSpace(parts[0])) == 4 {
		t, ok = buildDate(parts[0], parts[1], parts[2])
	} else {
		t, ok = buildDate(parts[2], parts[1], parts[0])
	}
	if !ok {
		return today(now), false
	}
	return t, true
}

// datePart drops a trailing time component.
func datePart(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}
	return s
}

// buildDate rejects impossible calendar dates instead of letting time.Date
// roll 31/02 over into March.
func buildDate(yearText, monthText, dayText string) (time.Time, bool) {
	year, err := strconv.Atoi(strings.TrimSpace(yearText))
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(monthText))
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(dayText))
	if err != nil {
		return time.Time{}, false
	}

	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || year > 9999 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
