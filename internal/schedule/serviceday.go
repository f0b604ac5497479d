package schedule

import (
	"fmt"
	"time"
)

// ServiceDay is the operating date an instant belongs to, together with the
// instant expressed as seconds since that date's midnight.
type ServiceDay struct {
	Date    string // YYYY-MM-DD
	Elapsed int    // may exceed 86400 before the rollover hour
}

// ResolveServiceDay maps t to its service day. Before changeHour the instant
// belongs to the previous calendar date and its elapsed seconds continue past
// 24:00, matching how post-midnight departure times are stored.
//
// Only t's local calendar fields are used; t is never converted to UTC.
func ResolveServiceDay(t time.Time, changeHour int) ServiceDay {
	y, m, d := t.Date()
	hour := t.Hour()
	if hour < changeHour {
		// Arithmetic on bare calendar fields so DST transitions cannot shift the date.
		y, m, d = time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC).Date()
		hour += 24
	}
	return ServiceDay{
		Date:    fmt.Sprintf("%04d-%02d-%02d", y, int(m), d),
		Elapsed: hour*3600 + t.Minute()*60 + t.Second(),
	}
}
