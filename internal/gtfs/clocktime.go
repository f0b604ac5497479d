package gtfs

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDaySeconds parses HH:MM:SS (or HH:MM) possibly with hours >= 24.
func ParseDaySeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time of day")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	vals := [3]int{}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = v
	}
	if vals[0] > MaxDaySeconds/3600 || vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// FormatDaySeconds renders seconds as zero-padded HH:MM:SS. Hours are not
// wrapped, so 91800 renders as "25:30:00".
func FormatDaySeconds(v int) string {
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v%3600)/60, v%60)
}
