package tracking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockPattern = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):([0-5][0-9])\s?(AM|PM)$`)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses a 12-hour clock value such as "8:00 AM", "08:30pm" or
// "12:00 PM". Values are ordered by their true time of day, so "9:00 AM"
// sorts before "10:00 AM" and "12:15 AM" before "1:00 AM".
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid clock value %q, expected h:mm AM/PM", s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	hour %= 12
	if strings.EqualFold(m[3], "PM") {
		hour += 12
	}
	return Clock(hour*60 + minute), nil
}

// String renders the canonical form, e.g. "8:05 PM".
func (c Clock) String() string {
	hour, minute := int(c)/60, int(c)%60
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, suffix)
}

// On returns the wall-clock instant of c on the given day, so it stays
// correct on days a zone shifts its offset.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, day.Location())
}
