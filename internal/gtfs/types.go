package gtfs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultDateChangeHour is the rollover hour used when a dataset does not set one.
const DefaultDateChangeHour = 4

// Dataset is the precomputed signage document produced upstream from one or
// more GTFS feeds.
type Dataset struct {
	DateChangeHour *int                    `json:"date_change_hour,omitempty"`
	Calendar       map[string][]ServiceRef `json:"calendar"`
	DepartureInfo  map[string][]Departure  `json:"departure_info"`
	GTFSIDs        []string                `json:"gtfs_id,omitempty"`
	StationName    string                  `json:"station_name,omitempty"`
	StationNameEn  string                  `json:"station_name_en,omitempty"`
}

// ChangeHour returns the service-day rollover hour, falling back to
// DefaultDateChangeHour when unset or outside 0-23.
func (d *Dataset) ChangeHour() int {
	if d == nil || d.DateChangeHour == nil {
		return DefaultDateChangeHour
	}
	h := *d.DateChangeHour
	if h < 0 || h > 23 {
		return DefaultDateChangeHour
	}
	return h
}

// ServiceRef identifies one operator's service pattern.
type ServiceRef struct {
	GTFSID    string `json:"gtfs_id"`
	ServiceID string `json:"service_id"`
}

// Departure is one scheduled departure from a platform.
type Departure struct {
	GTFSID         string     `json:"gtfs_id"`
	ServiceID      string     `json:"service_id"`
	DepartureTime  DaySeconds `json:"departure_time"`
	RouteName      string     `json:"route_name"`
	RouteNameEn    string     `json:"route_name_en"`
	RouteColor     string     `json:"route_color"`
	RouteTextColor string     `json:"route_text_color"`
	Headsign       string     `json:"headsign"`
	HeadsignEn     string     `json:"headsign_en"`
}

// Service returns the (gtfs_id, service_id) pair the departure runs under.
func (d Departure) Service() ServiceRef {
	return ServiceRef{GTFSID: d.GTFSID, ServiceID: d.ServiceID}
}

// DaySeconds is a time of day in seconds since midnight of the service day.
// Values past 86400 are trips running after midnight.
type DaySeconds int

// MaxDaySeconds is the largest accepted departure_time, seven days.
const MaxDaySeconds = 7 * 86400

// UnmarshalJSON accepts either a number of seconds or an "HH:MM:SS" string.
func (s *DaySeconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("departure_time is null")
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		sec, err := ParseDaySeconds(str)
		if err != nil {
			return err
		}
		*s = DaySeconds(sec)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("departure_time: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("departure_time: negative value %v", f)
	}
	if f > MaxDaySeconds {
		return fmt.Errorf("departure_time: %v exceeds %d seconds", f, MaxDaySeconds)
	}
	*s = DaySeconds(int(f))
	return nil
}

// String formats the value as HH:MM:SS without wrapping hours at 24.
func (s DaySeconds) String() string { return FormatDaySeconds(int(s)) }
