package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type CancellationRequest struct {
	AppointmentID uuid.UUID
	Actor         domain.Actor
	Reason        string
}

// RequestCancellation cancels an appointment under the same locks a booking of its
// professional and resource would take. Clients are held to the business's cancellation
// window; staff are not.
func (s *Service) RequestCancellation(ctx context.Context, req CancellationRequest) (appt domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.request_cancellation")
	span.SetAttributes(
		attribute.String("agenda.appointment_id", req.AppointmentID.String()),
		attribute.String("agenda.actor", string(req.Actor)),
	)
	started := time.Now()
	defer func() {
		s.metrics.ObserveLatency("request_cancellation", time.Since(started).Seconds())
		finishSpan(span, err)
	}()

	log := s.log.With(
		slog.String("op", "request_cancellation"),
		slog.String("appointment_id", req.AppointmentID.String()),
		slog.String("actor", string(req.Actor)),
	)

	appt, err = s.cancel(ctx, req)
	if err != nil {
		s.lifecycleRejected(ctx, log, err)
		s.metrics.ObserveCancellation(string(req.Actor), outcomeOf(err))
		return domain.Appointment{}, err
	}

	s.metrics.ObserveCancellation(string(req.Actor), "cancelled")
	log.InfoContext(ctx, "appointment cancelled", slog.String("professional_id", appt.ProfessionalID))
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, req CancellationRequest) (domain.Appointment, error) {
	if req.AppointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !req.Actor.Valid() {
		return domain.Appointment{}, validationError("actor must be client or staff")
	}

	current, err := s.appts.Get(ctx, req.AppointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	var cfg domain.ScheduleConfig
	if req.Actor == domain.ActorClient {
		_, cfg, _, err = s.professionalContext(ctx, current.ProfessionalID)
		if err != nil {
			return domain.Appointment{}, err
		}
	}

	var out domain.Appointment
	keys := store.BookingKeys(current.ProfessionalID, current.ResourceID)
	err = s.appts.InSchedulingTransaction(ctx, keys, func(ctx context.Context, tx store.SchedulingTx) error {
		a, err := tx.Get(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return &domain.TransitionError{From: a.Status, To: domain.StatusCancelled}
		}

		now := s.clock.Now()
		if req.Actor == domain.ActorClient {
			if err := domain.ValidateCancellation(a.StartTime, cfg.CancellationMinHours, now); err != nil {
				return err
			}
		}

		out, err = tx.UpdateStatus(ctx, store.StatusChange{
			ID:     a.ID,
			From:   a.Status,
			To:     domain.StatusCancelled,
			At:     now,
			Actor:  req.Actor,
			Reason: strings.TrimSpace(req.Reason),
		})
		return err
	})
	if err != nil {
		return domain.Appointment{}, wrapStoreErr("cancel appointment", err)
	}
	return out, nil
}

// Transition moves an appointment to target on behalf of staff. Asking for the status it
// already has is a no-op and returns it unchanged.
func (s *Service) Transition(ctx context.Context, appointmentID uuid.UUID, target domain.Status) (appt domain.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.transition")
	span.SetAttributes(
		attribute.String("agenda.appointment_id", appointmentID.String()),
		attribute.String("agenda.target", string(target)),
	)
	defer func() { finishSpan(span, err) }()

	log := s.log.With(
		slog.String("op", "transition"),
		slog.String("appointment_id", appointmentID.String()),
		slog.String("target", string(target)),
	)

	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !target.Valid() {
		return domain.Appointment{}, validationError("unknown status")
	}

	current, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, err
	}

	changed := false
	keys := store.BookingKeys(current.ProfessionalID, current.ResourceID)
	err = s.appts.InSchedulingTransaction(ctx, keys, func(ctx context.Context, tx store.SchedulingTx) error {
		a, err := tx.Get(ctx, appointmentID)
		if err != nil {
			return err
		}
		changed, err = domain.Transition(a.Status, target)
		if err != nil {
			return err
		}
		if !changed {
			appt = a
			return nil
		}

		appt, err = tx.UpdateStatus(ctx, store.StatusChange{
			ID:    a.ID,
			From:  a.Status,
			To:    target,
			At:    s.clock.Now(),
			Actor: domain.ActorStaff,
		})
		return err
	})
	if err != nil {
		err = wrapStoreErr("transition appointment", err)
		s.lifecycleRejected(ctx, log, err)
		return domain.Appointment{}, err
	}

	if changed {
		log.InfoContext(ctx, "appointment status changed", slog.String("status", string(appt.Status)))
	}
	return appt, nil
}

type RescheduleRequest struct {
	AppointmentID uuid.UUID
	NewStart      time.Time
	Actor         domain.Actor
	ForceOverlap  bool
	Reason        string
}

// RescheduleResult holds the cancelled original and the booking that replaces it. When the
// new slot conflicts and force-fit is off, nothing changes and Booking lists the overlaps.
type RescheduleResult struct {
	Cancelled domain.Appointment
	Booking   BookingResult
}

// Reschedule cancels an appointment and books its replacement at NewStart in one locked
// transaction. The replacement keeps the original's service, resource, client, status,
// notes, color tag and length.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (res RescheduleResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.reschedule")
	span.SetAttributes(
		attribute.String("agenda.appointment_id", req.AppointmentID.String()),
		attribute.String("agenda.actor", string(req.Actor)),
	)
	started := time.Now()
	defer func() {
		s.metrics.ObserveLatency("reschedule", time.Since(started).Seconds())
		finishSpan(span, err)
	}()

	log := s.log.With(
		slog.String("op", "reschedule"),
		slog.String("appointment_id", req.AppointmentID.String()),
		slog.String("actor", string(req.Actor)),
	)

	res, err = s.reschedule(ctx, req)
	if err != nil {
		s.lifecycleRejected(ctx, log, err)
		return RescheduleResult{}, err
	}

	if !res.Booking.Created() {
		log.InfoContext(ctx, "reschedule aborted on conflicts", slog.Any("overlapping_ids", res.Booking.Conflicts.AppointmentIDs()))
		return res, nil
	}
	s.metrics.ObserveCancellation(string(req.Actor), "rescheduled")
	forced := len(res.Booking.Conflicts.Entries)
	s.metrics.ObserveBooking("rescheduled", len(res.Booking.Appointments), forced)
	log.InfoContext(ctx, "appointment rescheduled",
		slog.String("replacement_id", res.Booking.Appointments[0].ID.String()),
		slog.Bool("forced_overlap", forced > 0),
	)
	return res, nil
}

func (s *Service) reschedule(ctx context.Context, req RescheduleRequest) (RescheduleResult, error) {
	if req.AppointmentID == uuid.Nil {
		return RescheduleResult{}, validationError("appointment_id is required")
	}
	if req.NewStart.IsZero() {
		return RescheduleResult{}, validationError("new start_time is required")
	}
	if !req.Actor.Valid() {
		return RescheduleResult{}, validationError("actor must be client or staff")
	}

	current, err := s.appts.Get(ctx, req.AppointmentID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if current.Status.Terminal() {
		return RescheduleResult{}, &domain.TransitionError{From: current.Status, To: domain.StatusCancelled}
	}

	prof, cfg, _, err := s.professionalContext(ctx, current.ProfessionalID)
	if err != nil {
		return RescheduleResult{}, err
	}
	svc, err := s.catalog.Service(ctx, current.ServiceID)
	if err != nil {
		return RescheduleResult{}, wrapStoreErr("load service", err)
	}

	target := domain.NewInterval(req.NewStart.UTC(), current.Duration())
	if req.Actor == domain.ActorClient {
		now := s.clock.Now()
		if err := domain.ValidateCancellation(current.StartTime, cfg.CancellationMinHours, now); err != nil {
			return RescheduleResult{}, err
		}
		if err := domain.ValidateAdvance(target.Start, svc.MinAdvanceMinutes, now); err != nil {
			return RescheduleResult{}, err
		}
	}
	if s.enforceBusinessHours {
		if err := domain.ValidateBusinessHours(cfg, target); err != nil {
			return RescheduleResult{}, err
		}
	}

	replacementID, err := uuid.NewV7()
	if err != nil {
		return RescheduleResult{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "rescheduled"
	}

	var res RescheduleResult
	keys := store.BookingKeys(prof.ID, current.ResourceID)
	err = s.appts.InSchedulingTransaction(ctx, keys, func(ctx context.Context, tx store.SchedulingTx) error {
		res = RescheduleResult{}

		old, err := tx.Get(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if old.Status.Terminal() {
			return &domain.TransitionError{From: old.Status, To: domain.StatusCancelled}
		}

		existing, err := tx.ListForProfessional(ctx, old.ProfessionalID, target.Start, target.End)
		if err != nil {
			return err
		}
		if old.ResourceID != "" {
			onResource, err := tx.ListForResource(ctx, old.ResourceID, target.Start, target.End)
			if err != nil {
				return err
			}
			existing = append(existing, onResource...)
		}
		others := existing[:0]
		for _, a := range existing {
			if a.ID != old.ID {
				others = append(others, a)
			}
		}

		res.Booking.Conflicts.Add(0, target, domain.FindOverlaps(others, old.ProfessionalID, old.ResourceID, target))
		if !res.Booking.Conflicts.Empty() && !req.ForceOverlap {
			return nil
		}

		res.Cancelled, err = tx.UpdateStatus(ctx, store.StatusChange{
			ID:     old.ID,
			From:   old.Status,
			To:     domain.StatusCancelled,
			At:     s.clock.Now(),
			Actor:  req.Actor,
			Reason: reason,
		})
		if err != nil {
			return err
		}

		saved, err := tx.SaveAppointments(ctx, []domain.Appointment{{
			ID:                replacementID,
			ProfessionalID:    old.ProfessionalID,
			ServiceID:         old.ServiceID,
			ResourceID:        old.ResourceID,
			ClientID:          old.ClientID,
			StartTime:         target.Start,
			EndTime:           target.End,
			Status:            old.Status,
			RecurrenceGroupID: old.RecurrenceGroupID,
			RecurrenceIndex:   old.RecurrenceIndex,
			ForcedOverlap:     !res.Booking.Conflicts.Empty(),
			Notes:             old.Notes,
			ColorTag:          old.ColorTag,
		}})
		if err != nil {
			return err
		}
		res.Booking.Appointments = saved
		return nil
	})
	if err != nil {
		return RescheduleResult{}, wrapStoreErr("reschedule appointment", err)
	}
	return res, nil
}

func (s *Service) lifecycleRejected(ctx context.Context, log *slog.Logger, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		log.WarnContext(ctx, "invalid request", slog.String("reason", vErr.Error()))
	case errors.Is(err, domain.ErrPolicyViolation):
		s.policyRejected(ctx, log, err)
	case errors.Is(err, domain.ErrInvalidTransition):
		log.InfoContext(ctx, "transition rejected", slog.String("reason", err.Error()))
	case errors.Is(err, store.ErrNotFound):
		log.WarnContext(ctx, "appointment not found")
	default:
		log.ErrorContext(ctx, "lifecycle operation failed", slog.Any("err", err))
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

// wrapStoreErr adds context to infrastructure failures and passes domain outcomes through.
func wrapStoreErr(op string, err error) error {
	var pErr *store.PersistenceError
	if errors.As(err, &pErr) {
		return fmt.Errorf("scheduling: %s: %w", op, err)
	}
	return err
}
