package domain

import (
	"errors"
	"iter"
	"time"
)

type RecurrenceFrequency string

const (
	RecurrenceNone    RecurrenceFrequency = "none"
	RecurrenceDaily   RecurrenceFrequency = "daily"
	RecurrenceWeekly  RecurrenceFrequency = "weekly"
	RecurrenceMonthly RecurrenceFrequency = "monthly"
)

func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

type RecurrenceRule struct {
	Frequency RecurrenceFrequency
	Count     int
}

func (r RecurrenceRule) Validate() error {
	if !r.Frequency.Valid() {
		return errors.New("unsupported recurrence frequency")
	}
	if r.Count < 1 {
		return errors.New("occurrence count must be at least 1")
	}
	return nil
}

// Occurrences is the number of instances Expand yields for the rule.
func (r RecurrenceRule) Occurrences() int {
	if r.Frequency == RecurrenceNone || r.Frequency == "" {
		return 1
	}
	if r.Count < 1 {
		return 0
	}
	return r.Count
}

// Expand yields the start of every instance of rule, beginning with base itself.
//
// Arithmetic is done on the wall clock of base.Location(), so the local time of day is kept
// across DST changes. Monthly instances keep the day of month and clamp to the last day of
// shorter months. Expand imposes no upper bound on rule.Count; callers are expected to clamp
// it before expanding.
func Expand(base time.Time, rule RecurrenceRule) iter.Seq[time.Time] {
	n := rule.Occurrences()
	return func(yield func(time.Time) bool) {
		for k := 0; k < n; k++ {
			if !yield(occurrence(base, rule.Frequency, k)) {
				return
			}
		}
	}
}

// ExpandAll collects Expand into a slice.
func ExpandAll(base time.Time, rule RecurrenceRule) []time.Time {
	out := make([]time.Time, 0, rule.Occurrences())
	for t := range Expand(base, rule) {
		out = append(out, t)
	}
	return out
}

func occurrence(base time.Time, freq RecurrenceFrequency, k int) time.Time {
	if k == 0 {
		return base
	}
	switch freq {
	case RecurrenceDaily:
		return base.AddDate(0, 0, k)
	case RecurrenceWeekly:
		return base.AddDate(0, 0, 7*k)
	case RecurrenceMonthly:
		return addMonthsClamped(base, k)
	default:
		return base
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	loc := t.Location()
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, loc)
	day := t.Day()
	if last := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), loc); day > last {
		day = last
	}
	return time.Date(
		firstOfTarget.Year(),
		firstOfTarget.Month(),
		day,
		t.Hour(),
		t.Minute(),
		t.Second(),
		t.Nanosecond(),
		loc,
	)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
