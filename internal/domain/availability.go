package domain

// OpenIntervals returns the working intervals of date left after subtracting every
// appointment that still occupies time. Appointments of other days are ignored naturally,
// since they cannot intersect the day's windows.
func OpenIntervals(cfg ScheduleConfig, d Date, appts []Appointment) ([]Interval, error) {
	windows, err := cfg.WorkingWindows(d)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []Interval{}, nil
	}

	busy := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Occupies() {
			continue
		}
		busy = append(busy, a.Interval())
	}

	out := Subtract(windows, busy)
	if out == nil {
		out = []Interval{}
	}
	return out, nil
}

// FitsWorkingHours reports whether iv lies inside a single working window of its day.
func FitsWorkingHours(cfg ScheduleConfig, iv Interval) (bool, error) {
	loc, err := cfg.Location()
	if err != nil {
		return false, err
	}
	windows, err := cfg.WorkingWindows(DateOf(iv.Start, loc))
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if w.Contains(iv) {
			return true, nil
		}
	}
	return false, nil
}
