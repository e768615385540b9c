package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeRange is an inclusive hour-of-day window within one day.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Day is the service window for one weekday.
type Day struct {
	// Label is the human-readable hours shown to riders, e.g. "10:00 - 22:00".
	Label  string      `json:"label"`
	Ranges []TimeRange `json:"ranges"`
}

// Weekly maps time.Weekday (0 = Sunday) to that day's service window.
type Weekly struct {
	days map[time.Weekday]Day
	loc  *time.Location
}

const (
	sorryAllBusy   = "Thank you SO much for your interest! All cars are currently full, please check again shortly."
	sorryClosedFmt = "Thank you SO much for your interest! Cars are available today from %s. Please try again later."
)

// New creates a weekly schedule. Days without an entry are treated as
// round-the-clock service.
func New(days map[time.Weekday]Day, loc *time.Location) *Weekly {
	if loc == nil {
		loc = time.Local
	}
	return &Weekly{days: days, loc: loc}
}

// Parse builds a schedule from a JSON object keyed by weekday number
// ({"0":{"label":...,"ranges":[{"start":10,"end":22}]},...}), the
// SERVICE_HOURS_FILE format.
func Parse(data []byte, loc *time.Location) (*Weekly, error) {
	var raw map[time.Weekday]Day
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return New(raw, loc), nil
}

// IsOutOfSchedule reports whether now falls outside the current day's
// service window. The hour is rounded up: a request at 22:15 counts as 23:00.
func (w *Weekly) IsOutOfSchedule(now time.Time) bool {
	now = now.In(w.loc)
	day, ok := w.days[now.Weekday()]
	if !ok || len(day.Ranges) == 0 {
		return false
	}
	hour := now.Hour()
	if now.Minute() > 0 {
		hour++
	}
	if hour >= 24 {
		hour -= 24
	}
	for _, r := range day.Ranges {
		if hour >= r.Start && hour <= r.End {
			return false
		}
	}
	return true
}

// Label returns the human-readable hours for now's weekday.
func (w *Weekly) Label(now time.Time) string {
	return w.days[now.In(w.loc).Weekday()].Label
}

// SorryMessage selects the apology copy for a pickup that found no cars:
// schedule-aware when the request is outside service hours, generic otherwise.
func (w *Weekly) SorryMessage(now time.Time) string {
	if w.IsOutOfSchedule(now) {
		return fmt.Sprintf(sorryClosedFmt, w.Label(now))
	}
	return sorryAllBusy
}
