package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used by the remote tables.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate  = invalid("invalid date")
	ErrInvalidDates = invalid("end date must not be before start date")
)

// Date is a calendar day stored in UTC. It marshals as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "YYYY-MM-DD" or a full RFC3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d), nil
}

// EnsureDates fails when either date is unparseable or when end is
// strictly earlier than start. Equal dates are a valid one-day season.
func EnsureDates(start, end string) error {
	s, err := ParseDate(start)
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if e.Before(s.Time) {
		return ErrInvalidDates
	}
	return nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// DaysUntil returns the inclusive number of days from d to end.
func (d Date) DaysUntil(end Date) int {
	if d.IsZero() || end.IsZero() || end.Before(d.Time) {
		return 0
	}
	return int(end.Sub(d.Time).Hours()/24) + 1
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
