package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// InitialStatus reports whether s is an acceptable status for a new appointment.
func InitialStatus(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reachable reports whether an appointment created with status from can be in status to
// after zero or more legal transitions.
func Reachable(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if Reachable(next, to) {
			return true
		}
	}
	return false
}

// Transition validates a status change. A repeated request for the current non-terminal
// status is a no-op so retries are safe; changed is false in that case.
func Transition(from, to Status) (changed bool, err error) {
	if !to.Valid() {
		return false, &TransitionError{From: from, To: to}
	}
	if from.Terminal() {
		return false, &TransitionError{From: from, To: to}
	}
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, &TransitionError{From: from, To: to}
	}
	return true, nil
}
