package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Occupies reports whether an appointment in this status blocks the professional's time.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

// Actor identifies who initiated a change. Client-initiated cancellations are policy gated.
type Actor string

const (
	ActorClient Actor = "client"
	ActorStaff  Actor = "staff"
)

func (a Actor) Valid() bool {
	return a == ActorClient || a == ActorStaff
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID  `bun:"id,pk,type:uuid"`
	ProfessionalID     string     `bun:"professional_id,notnull"`
	ServiceID          string     `bun:"service_id,notnull"`
	ResourceID         string     `bun:"resource_id,nullzero"`
	ClientID           string     `bun:"client_id,nullzero"`
	StartTime          time.Time  `bun:"start_time,notnull"`
	EndTime            time.Time  `bun:"end_time,notnull"`
	Status             Status     `bun:"status,notnull"`
	RecurrenceGroupID  uuid.UUID  `bun:"recurrence_group_id,type:uuid,nullzero"`
	RecurrenceIndex    int        `bun:"recurrence_index,notnull,default:0"`
	ForcedOverlap      bool       `bun:"forced_overlap,notnull,default:false"`
	Notes              string     `bun:"notes"`
	ColorTag           string     `bun:"color_tag,nullzero"`
	CancelledAt        *time.Time `bun:"cancelled_at"`
	CancelledBy        Actor      `bun:"cancelled_by,nullzero"`
	CancellationReason string     `bun:"cancellation_reason,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull"`
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
