package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"agenda/backend/internal/api/agendav1"
	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store"
)

type SchedulingServer struct {
	agendav1.UnimplementedSchedulingServiceServer

	svc schedulingService
	log *slog.Logger
}

type schedulingService interface {
	RequestBooking(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error)
	RequestCancellation(ctx context.Context, req scheduling.CancellationRequest) (domain.Appointment, error)
	Transition(ctx context.Context, appointmentID uuid.UUID, target domain.Status) (domain.Appointment, error)
	Reschedule(ctx context.Context, req scheduling.RescheduleRequest) (scheduling.RescheduleResult, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	OpenIntervals(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error)
	PreviewConflicts(ctx context.Context, req scheduling.PreviewRequest) ([]domain.Overlap, error)
}

func NewSchedulingServer(svc schedulingService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) RequestBooking(ctx context.Context, req *agendav1.RequestBookingRequest) (*agendav1.RequestBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "RequestBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_start"), slog.String("professional_id", req.ProfessionalId))
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}

	in := scheduling.BookingRequest{
		ProfessionalID:  req.ProfessionalId,
		ServiceID:       req.ServiceId,
		ResourceID:      req.ResourceId,
		ClientID:        req.ClientId,
		Start:           req.StartTime.AsTime(),
		DurationMinutes: int(req.DurationMinutes),
		ForceOverlap:    req.ForceOverlap,
		InitialStatus:   domain.Status(req.InitialStatus),
		Notes:           req.Notes,
		ColorTag:        req.ColorTag,
		IdempotencyKey:  idempotencyKey(ctx),
	}
	if req.Recurrence != nil {
		in.Recurrence = domain.RecurrenceRule{
			Frequency: domain.RecurrenceFrequency(req.Recurrence.Frequency),
			Count:     int(req.Recurrence.Count),
		}
	}
	if p, ok := PrincipalFromContext(ctx); ok && p.Role == domain.ActorClient && in.ForceOverlap {
		log.Warn("permission denied", slog.String("reason", "client_force_overlap"), slog.String("subject", p.Subject))
		return nil, status.Error(codes.PermissionDenied, "only staff can force an overlapping booking")
	}

	res, err := s.svc.RequestBooking(ctx, in)
	if err != nil {
		return nil, s.statusFromError(log, "booking request failed", err, slog.String("professional_id", req.ProfessionalId))
	}

	if !res.Created() {
		log.Info(
			"booking conflict",
			slog.String("professional_id", req.ProfessionalId),
			slog.Time("start_time", in.Start),
			slog.Int("conflicting_instances", len(res.Conflicts.Entries)),
		)
	}
	return toAPIBookingResult(res), nil
}

func (s *SchedulingServer) RequestCancellation(ctx context.Context, req *agendav1.RequestCancellationRequest) (*agendav1.RequestCancellationResponse, error) {
	log := s.log.With(slog.String("rpc", "RequestCancellation"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	actor, err := resolveActor(ctx, req.Actor)
	if err != nil {
		log.Warn("actor rejected", slog.Any("err", err), slog.String("appointment_id", id.String()))
		return nil, err
	}

	appt, err := s.svc.RequestCancellation(ctx, scheduling.CancellationRequest{
		AppointmentID: id,
		Actor:         actor,
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, s.statusFromError(log, "cancellation failed", err, slog.String("appointment_id", id.String()))
	}
	return &agendav1.RequestCancellationResponse{Appointment: toAPIAppointment(appt)}, nil
}

func (s *SchedulingServer) TransitionAppointment(ctx context.Context, req *agendav1.TransitionAppointmentRequest) (*agendav1.TransitionAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "TransitionAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	if p, ok := PrincipalFromContext(ctx); ok && p.Role != domain.ActorStaff {
		log.Warn("permission denied", slog.String("reason", "staff_only"), slog.String("subject", p.Subject))
		return nil, status.Error(codes.PermissionDenied, "status transitions are staff only")
	}

	appt, err := s.svc.Transition(ctx, id, domain.Status(req.Status))
	if err != nil {
		return nil, s.statusFromError(log, "transition failed", err, slog.String("appointment_id", id.String()))
	}
	return &agendav1.TransitionAppointmentResponse{Appointment: toAPIAppointment(appt)}, nil
}

func (s *SchedulingServer) RescheduleAppointment(ctx context.Context, req *agendav1.RescheduleAppointmentRequest) (*agendav1.RescheduleAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	if req.NewStartTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_start"), slog.String("appointment_id", id.String()))
		return nil, status.Error(codes.InvalidArgument, "new_start_time is required")
	}
	actor, err := resolveActor(ctx, req.Actor)
	if err != nil {
		log.Warn("actor rejected", slog.Any("err", err), slog.String("appointment_id", id.String()))
		return nil, err
	}
	if actor == domain.ActorClient && req.ForceOverlap {
		log.Warn("permission denied", slog.String("reason", "client_force_overlap"), slog.String("appointment_id", id.String()))
		return nil, status.Error(codes.PermissionDenied, "only staff can force an overlapping booking")
	}

	res, err := s.svc.Reschedule(ctx, scheduling.RescheduleRequest{
		AppointmentID: id,
		NewStart:      req.NewStartTime.AsTime(),
		Actor:         actor,
		ForceOverlap:  req.ForceOverlap,
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, s.statusFromError(log, "reschedule failed", err, slog.String("appointment_id", id.String()))
	}

	out := &agendav1.RescheduleAppointmentResponse{Booking: toAPIBookingResult(res.Booking)}
	if res.Booking.Created() {
		out.Cancelled = toAPIAppointment(res.Cancelled)
	}
	return out, nil
}

func (s *SchedulingServer) GetAppointment(ctx context.Context, req *agendav1.GetAppointmentRequest) (*agendav1.GetAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := uuid.Parse(req.AppointmentId)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}

	appt, err := s.svc.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.statusFromError(log, "appointment get failed", err, slog.String("appointment_id", id.String()))
	}
	return &agendav1.GetAppointmentResponse{Appointment: toAPIAppointment(appt)}, nil
}

func (s *SchedulingServer) ListAppointments(ctx context.Context, req *agendav1.ListAppointmentsRequest) (*agendav1.ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	filter := store.AppointmentFilter{
		ProfessionalID: req.ProfessionalId,
		ResourceID:     req.ResourceId,
		ClientID:       req.ClientId,
		ForcedOnly:     req.ForcedOnly,
		Limit:          int(req.Limit),
	}
	if req.RecurrenceGroupId != "" {
		groupID, err := uuid.Parse(req.RecurrenceGroupId)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_group_uuid"))
			return nil, status.Error(codes.InvalidArgument, "recurrence_group_id must be a UUID")
		}
		filter.RecurrenceGroupID = groupID
	}
	if req.WindowStart != nil {
		filter.WindowStart = req.WindowStart.AsTime()
	}
	if req.WindowEnd != nil {
		filter.WindowEnd = req.WindowEnd.AsTime()
	}
	for _, st := range req.Statuses {
		filter.Statuses = append(filter.Statuses, domain.Status(st))
	}

	appts, err := s.svc.ListAppointments(ctx, filter)
	if err != nil {
		return nil, s.statusFromError(log, "appointments list failed", err)
	}

	out := make([]*agendav1.Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAPIAppointment(a))
	}

	log.Debug(
		"appointments listed",
		slog.String("professional_id", req.ProfessionalId),
		slog.Int("count", len(out)),
	)

	return &agendav1.ListAppointmentsResponse{Appointments: out}, nil
}

func (s *SchedulingServer) OpenIntervals(ctx context.Context, req *agendav1.OpenIntervalsRequest) (*agendav1.OpenIntervalsResponse, error) {
	log := s.log.With(slog.String("rpc", "OpenIntervals"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}

	intervals, err := s.svc.OpenIntervals(ctx, req.ProfessionalId, date)
	if err != nil {
		return nil, s.statusFromError(log, "open intervals failed", err, slog.String("professional_id", req.ProfessionalId))
	}
	return &agendav1.OpenIntervalsResponse{Intervals: toAPIIntervals(intervals)}, nil
}

func (s *SchedulingServer) PreviewConflicts(ctx context.Context, req *agendav1.PreviewConflictsRequest) (*agendav1.PreviewConflictsResponse, error) {
	log := s.log.With(slog.String("rpc", "PreviewConflicts"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == nil {
		log.Warn("invalid request", slog.String("reason", "missing_start"), slog.String("professional_id", req.ProfessionalId))
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}

	overlaps, err := s.svc.PreviewConflicts(ctx, scheduling.PreviewRequest{
		ProfessionalID:  req.ProfessionalId,
		ResourceID:      req.ResourceId,
		ServiceID:       req.ServiceId,
		Start:           req.StartTime.AsTime(),
		DurationMinutes: int(req.DurationMinutes),
	})
	if err != nil {
		return nil, s.statusFromError(log, "conflict preview failed", err, slog.String("professional_id", req.ProfessionalId))
	}
	return &agendav1.PreviewConflictsResponse{Overlaps: toAPIOverlaps(overlaps)}, nil
}

// statusFromError maps service errors onto gRPC codes. Anything unrecognised is logged at
// error level and hidden behind codes.Internal.
func (s *SchedulingServer) statusFromError(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)

	var vErr *scheduling.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, domain.ErrPolicyViolation):
		log.Info("policy violation", args...)
		return status.Error(codes.FailedPrecondition, policyMessage(err))
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Info("invalid transition", args...)
		return status.Error(codes.FailedPrecondition, transitionMessage(err))
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", args...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", args...)
		return status.Error(codes.AlreadyExists, "This request key was already used for a different booking. Try again with a new key.")
	case errors.Is(err, store.ErrConflict):
		log.Info("concurrent update", args...)
		return status.Error(codes.Aborted, "The appointment changed while the request was processed. Try again.")
	case store.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		log.Warn("retryable failure", args...)
		return status.Error(codes.Unavailable, "temporarily unavailable, retry the request")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(msg, args...)
	return status.Error(codes.Internal, "internal error")
}

func policyMessage(err error) string {
	var pv *domain.PolicyViolation
	if errors.As(err, &pv) {
		return pv.Error()
	}
	return "booking policy violated"
}

func transitionMessage(err error) string {
	var tErr *domain.TransitionError
	if errors.As(err, &tErr) {
		return tErr.Error()
	}
	return "invalid status transition"
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// resolveActor decides who is acting. An authenticated principal's role wins, and a client
// principal cannot claim to be staff. Unauthenticated callers default to client.
func resolveActor(ctx context.Context, requested string) (domain.Actor, error) {
	actor := domain.Actor(strings.ToLower(strings.TrimSpace(requested)))
	if actor != "" && !actor.Valid() {
		return "", status.Error(codes.InvalidArgument, "actor must be client or staff")
	}

	if p, ok := PrincipalFromContext(ctx); ok {
		if actor == domain.ActorStaff && p.Role != domain.ActorStaff {
			return "", status.Error(codes.PermissionDenied, "caller is not staff")
		}
		return p.Role, nil
	}
	if actor == "" {
		return domain.ActorClient, nil
	}
	return actor, nil
}
