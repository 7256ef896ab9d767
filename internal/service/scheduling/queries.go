package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// OpenIntervals returns the professional's free working intervals on date, in order.
// It reads without locking.
func (s *Service) OpenIntervals(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error) {
	professionalID, err := required("professional_id", professionalID)
	if err != nil {
		return nil, err
	}

	_, cfg, loc, err := s.professionalContext(ctx, professionalID)
	if err != nil {
		return nil, err
	}

	day := date.Bounds(loc)
	appts, err := s.appts.ListForProfessional(ctx, professionalID, day.Start, day.End)
	if err != nil {
		return nil, wrapStoreErr("list appointments", err)
	}
	return domain.OpenIntervals(cfg, date, appts)
}

type PreviewRequest struct {
	ProfessionalID  string
	ResourceID      string
	Start           time.Time
	DurationMinutes int
	// ServiceID supplies the duration when DurationMinutes is zero.
	ServiceID string
}

// PreviewConflicts reports what a booking at req.Start would overlap, without locking or
// writing anything. The answer can be stale by the time a booking is requested.
func (s *Service) PreviewConflicts(ctx context.Context, req PreviewRequest) ([]domain.Overlap, error) {
	professionalID, err := required("professional_id", req.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if req.Start.IsZero() {
		return nil, validationError("start_time is required")
	}

	var d time.Duration
	switch {
	case req.DurationMinutes < 0:
		return nil, validationError("duration_minutes must be positive")
	case req.DurationMinutes > 0:
		d = time.Duration(req.DurationMinutes) * time.Minute
		if d > s.maxDuration {
			return nil, validationError("duration too long")
		}
	case req.ServiceID != "":
		prof, err := s.catalog.Professional(ctx, professionalID)
		if err != nil {
			return nil, wrapStoreErr("load professional", err)
		}
		svc, err := s.resolveService(ctx, req.ServiceID, prof)
		if err != nil {
			return nil, err
		}
		if d, err = s.resolveDuration(svc, 0); err != nil {
			return nil, err
		}
	default:
		return nil, validationError("duration_minutes or service_id is required")
	}

	candidate := domain.NewInterval(req.Start.UTC(), d)
	existing, err := s.appts.ListForProfessional(ctx, professionalID, candidate.Start, candidate.End)
	if err != nil {
		return nil, wrapStoreErr("list appointments", err)
	}
	if req.ResourceID != "" {
		onResource, err := s.appts.List(ctx, store.AppointmentFilter{
			ResourceID:  req.ResourceID,
			WindowStart: candidate.Start,
			WindowEnd:   candidate.End,
		})
		if err != nil {
			return nil, wrapStoreErr("list appointments", err)
		}
		existing = append(existing, onResource...)
	}

	overlaps := domain.FindOverlaps(existing, professionalID, req.ResourceID, candidate)
	if overlaps == nil {
		overlaps = []domain.Overlap{}
	}
	return overlaps, nil
}

func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, wrapStoreErr("get appointment", err)
	}
	return a, nil
}

// ListAppointments serves the collaborators that read appointments (invoicing,
// notifications, forced-overlap audits). At least one scope field is required.
func (s *Service) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	if filter.ProfessionalID == "" && filter.ResourceID == "" && filter.ClientID == "" && filter.RecurrenceGroupID == uuid.Nil {
		return nil, validationError("professional_id, resource_id, client_id or recurrence_group_id is required")
	}
	if !filter.WindowStart.IsZero() && !filter.WindowEnd.IsZero() && !filter.WindowEnd.After(filter.WindowStart) {
		return nil, validationError("window_end must be after window_start")
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, validationError("unknown status")
		}
	}
	switch {
	case filter.Limit < 0:
		return nil, validationError("limit must not be negative")
	case filter.Limit == 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	filter.WindowStart = filter.WindowStart.UTC()
	filter.WindowEnd = filter.WindowEnd.UTC()

	appts, err := s.appts.List(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr("list appointments", err)
	}
	return appts, nil
}
