package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrPolicyViolation = errors.New("booking policy violation")

type PolicyKind string

const (
	PolicyAdvanceTime        PolicyKind = "advance_time"
	PolicyCancellationWindow PolicyKind = "cancellation_window"
	PolicyBusinessHours      PolicyKind = "business_hours"
)

type PolicyViolation struct {
	Kind     PolicyKind
	Required time.Duration
	Actual   time.Duration
}

func (e *PolicyViolation) Error() string {
	switch e.Kind {
	case PolicyAdvanceTime:
		return fmt.Sprintf("appointments must be booked at least %s in advance", formatLead(e.Required))
	case PolicyCancellationWindow:
		return fmt.Sprintf("appointments can only be cancelled at least %s before they start", formatLead(e.Required))
	case PolicyBusinessHours:
		return "the requested time is outside business hours"
	default:
		return string(e.Kind)
	}
}

func (e *PolicyViolation) Is(target error) bool {
	return target == ErrPolicyViolation
}

// ValidateAdvance fails with an advance_time violation when start is less than
// minAdvanceMinutes after now. A start in the past always fails.
func ValidateAdvance(start time.Time, minAdvanceMinutes int, now time.Time) error {
	required := time.Duration(minAdvanceMinutes) * time.Minute
	lead := start.Sub(now)
	if lead < required || lead < 0 {
		return &PolicyViolation{Kind: PolicyAdvanceTime, Required: required, Actual: lead}
	}
	return nil
}

// ValidateCancellation fails with a cancellation_window violation when start is less than
// cancellationMinHours after now.
func ValidateCancellation(start time.Time, cancellationMinHours int, now time.Time) error {
	required := time.Duration(cancellationMinHours) * time.Hour
	lead := start.Sub(now)
	if lead < required {
		return &PolicyViolation{Kind: PolicyCancellationWindow, Required: required, Actual: lead}
	}
	return nil
}

// ValidateBusinessHours fails with a business_hours violation when iv does not fit in one
// working window of its day.
func ValidateBusinessHours(cfg ScheduleConfig, iv Interval) error {
	ok, err := FitsWorkingHours(cfg, iv)
	if err != nil {
		return err
	}
	if !ok {
		return &PolicyViolation{Kind: PolicyBusinessHours}
	}
	return nil
}

func formatLead(d time.Duration) string {
	switch {
	case d <= 0:
		return "0 minutes"
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
}
