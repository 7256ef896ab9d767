package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Overlaps reports whether i and o share any instant. Back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Subtract removes every busy interval from each free interval and returns what remains,
// ordered by start.
func Subtract(free []Interval, busy []Interval) []Interval {
	if len(free) == 0 {
		return nil
	}

	sorted := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if !b.Empty() {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := make([]Interval, 0, len(free))
	for _, f := range free {
		cursor := f.Start
		for _, b := range sorted {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Start.Before(f.End) {
				break
			}
			if b.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
			if !cursor.Before(f.End) {
				break
			}
		}
		if cursor.Before(f.End) {
			out = append(out, Interval{Start: cursor, End: f.End})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
