package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

type AppointmentFilter struct {
	ProfessionalID    string
	ResourceID        string
	ClientID          string
	WindowStart       time.Time
	WindowEnd         time.Time
	Statuses          []domain.Status
	RecurrenceGroupID uuid.UUID
	ForcedOnly        bool
	Limit             int
}

type AppointmentRepository interface {
	// InSchedulingTransaction runs fn while holding every key, inside one transaction.
	InSchedulingTransaction(ctx context.Context, keys []LockKey, fn func(ctx context.Context, tx SchedulingTx) error) error

	Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
}
