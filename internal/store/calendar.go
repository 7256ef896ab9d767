package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

// LockKey names a timeline guarded against concurrent check-then-write booking paths.
type LockKey string

func ProfessionalKey(professionalID string) LockKey {
	return LockKey("professional:" + professionalID)
}

func ResourceKey(resourceID string) LockKey {
	return LockKey("resource:" + resourceID)
}

// BookingKeys returns the keys that must be held to book or cancel on the professional's
// and resource's timelines, sorted so every writer acquires them in the same order.
func BookingKeys(professionalID, resourceID string) []LockKey {
	keys := []LockKey{ProfessionalKey(professionalID)}
	if resourceID != "" {
		keys = append(keys, ResourceKey(resourceID))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

type StatusChange struct {
	ID     uuid.UUID
	From   domain.Status
	To     domain.Status
	At     time.Time
	Actor  domain.Actor
	Reason string
}

// SchedulingTx is the view of appointment storage available while the booking keys are held.
// Everything written through it commits or rolls back together.
type SchedulingTx interface {
	ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListForResource(ctx context.Context, resourceID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error)
	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	SaveAppointments(ctx context.Context, batch []domain.Appointment) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, change StatusChange) (domain.Appointment, error)
}
