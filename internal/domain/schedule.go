package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// ClockTime is a wall-clock time of day, stored as minutes after midnight.
type ClockTime int

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS"; seconds are dropped.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return NewClockTime(h, m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// On returns the instant of c on the given calendar date in loc.
func (c ClockTime) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, int(c)/60, int(c)%60, 0, 0, loc)
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t, time.UTC), nil
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Bounds returns [midnight, next midnight) of d in loc.
func (d Date) Bounds(loc *time.Location) Interval {
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)}
}

type DayHours struct {
	Weekday     time.Weekday `json:"weekday"`
	IsOpen      bool         `json:"is_open"`
	Start       ClockTime    `json:"start"`
	BreakStart  ClockTime    `json:"break_start"`
	BreakEnd    ClockTime    `json:"break_end"`
	BreakActive bool         `json:"break_active"`
	End         ClockTime    `json:"end"`
}

// Windows returns the working intervals of the day, split around an active break.
func (h DayHours) Windows(d Date, loc *time.Location) []Interval {
	if !h.IsOpen || h.End <= h.Start {
		return nil
	}
	day := Interval{Start: h.Start.On(d, loc), End: h.End.On(d, loc)}
	if !h.BreakActive || h.BreakEnd <= h.BreakStart {
		return []Interval{day}
	}
	brk := Interval{Start: h.BreakStart.On(d, loc), End: h.BreakEnd.On(d, loc)}
	return Subtract([]Interval{day}, []Interval{brk})
}

// ScheduleConfig is a read-only snapshot of a business's booking configuration.
type ScheduleConfig struct {
	BusinessID           string     `json:"business_id"`
	Timezone             string     `json:"timezone"`
	Days                 []DayHours `json:"days"`
	CancellationMinHours int        `json:"cancellation_min_hours"`
}

func (c ScheduleConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}
	return loc, nil
}

// Day returns the hours configured for wd; an unconfigured weekday is closed.
func (c ScheduleConfig) Day(wd time.Weekday) DayHours {
	for _, h := range c.Days {
		if h.Weekday == wd {
			return h
		}
	}
	return DayHours{Weekday: wd}
}

// WorkingWindows returns the configured working intervals for date, in the business time zone.
func (c ScheduleConfig) WorkingWindows(d Date) ([]Interval, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return c.Day(d.Weekday()).Windows(d, loc), nil
}

type Service struct {
	bun.BaseModel `bun:"table:services"`

	ID                string `bun:"id,pk" json:"id"`
	BusinessID        string `bun:"business_id,notnull" json:"business_id"`
	Name              string `bun:"name,notnull" json:"name"`
	DurationMinutes   int    `bun:"duration_minutes,notnull" json:"duration_minutes"`
	MinAdvanceMinutes int    `bun:"min_advance_minutes,notnull" json:"min_advance_minutes"`
	Active            bool   `bun:"active,notnull" json:"active"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Professional struct {
	bun.BaseModel `bun:"table:professionals"`

	ID         string `bun:"id,pk" json:"id"`
	BusinessID string `bun:"business_id,notnull" json:"business_id"`
	Name       string `bun:"name,notnull" json:"name"`
	Active     bool   `bun:"active,notnull" json:"active"`
}
