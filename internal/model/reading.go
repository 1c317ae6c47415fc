package model

import (
	"strconv"
	"time"
)

// ReadingTimeLayout is the civil-time layout stored in the "time" field.
const ReadingTimeLayout = "01-02 15:04:05"

// PeriodLayout names a period file (calendar year-month).
const PeriodLayout = "2006-01"

// Reading is one balance observation for both meters.
type Reading struct {
	Time  string  `json:"time"`
	Light float64 `json:"lt_Balance"`
	AC    float64 `json:"ac_Balance"`

	// At is the full instant the reading was taken; not persisted.
	At time.Time `json:"-"`
}

// NewReading stamps a reading with t rendered in loc.
func NewReading(t time.Time, loc *time.Location, light, ac float64) Reading {
	if loc != nil {
		t = t.In(loc)
	}
	return Reading{
		Time:  t.Format(ReadingTimeLayout),
		Light: light,
		AC:    ac,
		At:    t,
	}
}

// Period returns the year-month key the reading belongs to.
func (r Reading) Period() string {
	return r.At.Format(PeriodLayout)
}

// FormatBalance renders a balance the way it is shown in reports: shortest
// decimal form, always with a fractional part ("5.0", "99.5").
func FormatBalance(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}
