package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"agenda/backend/internal/api/agendav1"
	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store"
)

type fakeSchedulingService struct {
	requestBookingFn      func(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error)
	requestCancellationFn func(ctx context.Context, req scheduling.CancellationRequest) (domain.Appointment, error)
	transitionFn          func(ctx context.Context, id uuid.UUID, target domain.Status) (domain.Appointment, error)
	rescheduleFn          func(ctx context.Context, req scheduling.RescheduleRequest) (scheduling.RescheduleResult, error)
	getFn                 func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn                func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	openIntervalsFn       func(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error)
	previewFn             func(ctx context.Context, req scheduling.PreviewRequest) ([]domain.Overlap, error)
}

func (f *fakeSchedulingService) RequestBooking(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error) {
	if f.requestBookingFn == nil {
		panic("RequestBooking not configured")
	}
	return f.requestBookingFn(ctx, req)
}

func (f *fakeSchedulingService) RequestCancellation(ctx context.Context, req scheduling.CancellationRequest) (domain.Appointment, error) {
	if f.requestCancellationFn == nil {
		panic("RequestCancellation not configured")
	}
	return f.requestCancellationFn(ctx, req)
}

func (f *fakeSchedulingService) Transition(ctx context.Context, id uuid.UUID, target domain.Status) (domain.Appointment, error) {
	if f.transitionFn == nil {
		panic("Transition not configured")
	}
	return f.transitionFn(ctx, id, target)
}

func (f *fakeSchedulingService) Reschedule(ctx context.Context, req scheduling.RescheduleRequest) (scheduling.RescheduleResult, error) {
	if f.rescheduleFn == nil {
		panic("Reschedule not configured")
	}
	return f.rescheduleFn(ctx, req)
}

func (f *fakeSchedulingService) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeSchedulingService) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listFn(ctx, filter)
}

func (f *fakeSchedulingService) OpenIntervals(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error) {
	if f.openIntervalsFn == nil {
		panic("OpenIntervals not configured")
	}
	return f.openIntervalsFn(ctx, professionalID, date)
}

func (f *fakeSchedulingService) PreviewConflicts(ctx context.Context, req scheduling.PreviewRequest) ([]domain.Overlap, error) {
	if f.previewFn == nil {
		panic("PreviewConflicts not configured")
	}
	return f.previewFn(ctx, req)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey without metadata = %q", got)
	}
}

func TestRequestBooking_RejectsMissingStart(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())

	_, err := srv.RequestBooking(context.Background(), &agendav1.RequestBookingRequest{ProfessionalId: "p1"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}

	_, err = srv.RequestBooking(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestRequestBooking_MapsRequestAndConflicts(t *testing.T) {
	start := time.Date(2026, 1, 5, 14, 15, 0, 0, time.UTC)
	existing := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	var got scheduling.BookingRequest
	srv := NewSchedulingServer(&fakeSchedulingService{
		requestBookingFn: func(ctx context.Context, req scheduling.BookingRequest) (scheduling.BookingResult, error) {
			got = req
			var report domain.ConflictReport
			report.Add(0, domain.Interval{Start: req.Start, End: req.Start.Add(30 * time.Minute)}, []domain.Overlap{{
				AppointmentID:  existing,
				ProfessionalID: "p1",
				Interval:       domain.Interval{Start: start.Add(-15 * time.Minute), End: start.Add(15 * time.Minute)},
				Status:         domain.StatusConfirmed,
				Reason:         domain.OverlapProfessional,
			}})
			return scheduling.BookingResult{Conflicts: report}, nil
		},
	}, quietLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k-1"))
	resp, err := srv.RequestBooking(ctx, &agendav1.RequestBookingRequest{
		ProfessionalId: "p1",
		ServiceId:      "cut",
		StartTime:      timestamppb.New(start),
		Recurrence:     &agendav1.Recurrence{Frequency: "weekly", Count: 3},
		InitialStatus:  "confirmed",
	})
	if err != nil {
		t.Fatalf("RequestBooking error: %v", err)
	}

	if got.IdempotencyKey != "k-1" || got.Recurrence.Frequency != domain.RecurrenceWeekly || got.Recurrence.Count != 3 {
		t.Fatalf("service request = %+v", got)
	}
	if got.InitialStatus != domain.StatusConfirmed || !got.Start.Equal(start) {
		t.Fatalf("service request = %+v", got)
	}
	if len(resp.Appointments) != 0 || len(resp.Conflicts) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if ov := resp.Conflicts[0].Overlaps; len(ov) != 1 || ov[0].AppointmentId != existing.String() || ov[0].Reason != "professional" {
		t.Fatalf("overlaps = %+v", ov)
	}
}

func TestRequestBooking_ClientCannotForce(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())
	ctx := WithPrincipal(context.Background(), Principal{Subject: "c1", Role: domain.ActorClient})

	_, err := srv.RequestBooking(ctx, &agendav1.RequestBookingRequest{
		ProfessionalId: "p1",
		StartTime:      timestamppb.Now(),
		ForceOverlap:   true,
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %s, want PermissionDenied", status.Code(err))
	}
}

func TestStatusFromError(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "validation", err: fmt.Errorf("scheduling: %w", &scheduling.ValidationError{}), want: codes.InvalidArgument},
		{name: "policy", err: &domain.PolicyViolation{Kind: domain.PolicyAdvanceTime}, want: codes.FailedPrecondition},
		{name: "transition", err: &domain.TransitionError{From: domain.StatusCancelled, To: domain.StatusConfirmed}, want: codes.FailedPrecondition},
		{name: "not found", err: fmt.Errorf("get: %w", store.ErrNotFound), want: codes.NotFound},
		{name: "idempotency", err: store.ErrIdempotencyConflict, want: codes.AlreadyExists},
		{name: "stale update", err: store.ErrConflict, want: codes.Aborted},
		{name: "retryable", err: &store.PersistenceError{Op: "commit", Retryable: true, Err: errors.New("serialization failure")}, want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.Unavailable},
		{name: "cancelled", err: context.Canceled, want: codes.Canceled},
		{name: "permanent", err: &store.PersistenceError{Op: "insert", Err: errors.New("disk full")}, want: codes.Internal},
		{name: "unknown", err: errors.New("boom"), want: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.statusFromError(srv.log, "failed", tt.err)
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestStatusFromError_HidesInternalDetail(t *testing.T) {
	srv := NewSchedulingServer(&fakeSchedulingService{}, quietLogger())
	err := srv.statusFromError(srv.log, "failed", errors.New("pq: password authentication failed"))
	if msg := status.Convert(err).Message(); msg != "internal error" {
		t.Fatalf("message = %q", msg)
	}
}

func TestRequestCancellation_ResolvesActor(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

	var got scheduling.CancellationRequest
	svc := &fakeSchedulingService{
		requestCancellationFn: func(ctx context.Context, req scheduling.CancellationRequest) (domain.Appointment, error) {
			got = req
			return domain.Appointment{ID: req.AppointmentID, Status: domain.StatusCancelled, CancelledBy: req.Actor}, nil
		},
	}
	srv := NewSchedulingServer(svc, quietLogger())

	t.Run("unauthenticated defaults to client", func(t *testing.T) {
		if _, err := srv.RequestCancellation(context.Background(), &agendav1.RequestCancellationRequest{AppointmentId: id.String()}); err != nil {
			t.Fatalf("RequestCancellation error: %v", err)
		}
		if got.Actor != domain.ActorClient {
			t.Fatalf("actor = %s, want client", got.Actor)
		}
	})

	t.Run("staff token acts as staff", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), Principal{Subject: "s1", Role: domain.ActorStaff})
		resp, err := srv.RequestCancellation(ctx, &agendav1.RequestCancellationRequest{AppointmentId: id.String(), Reason: "sick"})
		if err != nil {
			t.Fatalf("RequestCancellation error: %v", err)
		}
		if got.Actor != domain.ActorStaff || got.Reason != "sick" || resp.Appointment.CancelledBy != "staff" {
			t.Fatalf("request = %+v, response = %+v", got, resp.Appointment)
		}
	})

	t.Run("client token cannot claim staff", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), Principal{Subject: "c1", Role: domain.ActorClient})
		_, err := srv.RequestCancellation(ctx, &agendav1.RequestCancellationRequest{AppointmentId: id.String(), Actor: "staff"})
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("code = %s, want PermissionDenied", status.Code(err))
		}
	})

	t.Run("unknown actor", func(t *testing.T) {
		_, err := srv.RequestCancellation(context.Background(), &agendav1.RequestCancellationRequest{AppointmentId: id.String(), Actor: "robot"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
		}
	})

	t.Run("bad id", func(t *testing.T) {
		_, err := srv.RequestCancellation(context.Background(), &agendav1.RequestCancellationRequest{AppointmentId: "nope"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
		}
	})
}

func TestTransitionAppointment_StaffOnly(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	srv := NewSchedulingServer(&fakeSchedulingService{
		transitionFn: func(ctx context.Context, got uuid.UUID, target domain.Status) (domain.Appointment, error) {
			return domain.Appointment{ID: got, Status: target}, nil
		},
	}, quietLogger())

	ctx := WithPrincipal(context.Background(), Principal{Subject: "c1", Role: domain.ActorClient})
	_, err := srv.TransitionAppointment(ctx, &agendav1.TransitionAppointmentRequest{AppointmentId: id.String(), Status: "confirmed"})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %s, want PermissionDenied", status.Code(err))
	}

	ctx = WithPrincipal(context.Background(), Principal{Subject: "s1", Role: domain.ActorStaff})
	resp, err := srv.TransitionAppointment(ctx, &agendav1.TransitionAppointmentRequest{AppointmentId: id.String(), Status: "confirmed"})
	if err != nil {
		t.Fatalf("TransitionAppointment error: %v", err)
	}
	if resp.Appointment.Status != "confirmed" {
		t.Fatalf("status = %s", resp.Appointment.Status)
	}
}

func TestRescheduleAppointment_OmitsCancelledOnConflict(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-0000000000cc")
	srv := NewSchedulingServer(&fakeSchedulingService{
		rescheduleFn: func(ctx context.Context, req scheduling.RescheduleRequest) (scheduling.RescheduleResult, error) {
			var report domain.ConflictReport
			report.Add(0, domain.Interval{Start: req.NewStart, End: req.NewStart.Add(time.Hour)}, []domain.Overlap{{AppointmentID: uuid.New()}})
			return scheduling.RescheduleResult{Booking: scheduling.BookingResult{Conflicts: report}}, nil
		},
	}, quietLogger())

	resp, err := srv.RescheduleAppointment(context.Background(), &agendav1.RescheduleAppointmentRequest{
		AppointmentId: id.String(),
		NewStartTime:  timestamppb.New(time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("RescheduleAppointment error: %v", err)
	}
	if resp.Cancelled != nil || len(resp.Booking.Conflicts) != 1 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestListAppointments_BuildsFilter(t *testing.T) {
	group := uuid.MustParse("00000000-0000-0000-0000-0000000000dd")
	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	var got store.AppointmentFilter
	srv := NewSchedulingServer(&fakeSchedulingService{
		listFn: func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
			got = filter
			return []domain.Appointment{{ID: uuid.New(), ProfessionalID: "p1"}}, nil
		},
	}, quietLogger())

	resp, err := srv.ListAppointments(context.Background(), &agendav1.ListAppointmentsRequest{
		ProfessionalId:    "p1",
		RecurrenceGroupId: group.String(),
		WindowStart:       timestamppb.New(windowStart),
		Statuses:          []string{"pending", "confirmed"},
		ForcedOnly:        true,
		Limit:             10,
	})
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(resp.Appointments) != 1 {
		t.Fatalf("appointments = %d", len(resp.Appointments))
	}
	if got.RecurrenceGroupID != group || !got.ForcedOnly || got.Limit != 10 || len(got.Statuses) != 2 {
		t.Fatalf("filter = %+v", got)
	}
	if !got.WindowStart.Equal(windowStart) || !got.WindowEnd.IsZero() {
		t.Fatalf("window = [%v, %v)", got.WindowStart, got.WindowEnd)
	}

	_, err = srv.ListAppointments(context.Background(), &agendav1.ListAppointmentsRequest{RecurrenceGroupId: "x"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestOpenIntervals_ParsesDate(t *testing.T) {
	var got domain.Date
	srv := NewSchedulingServer(&fakeSchedulingService{
		openIntervalsFn: func(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error) {
			got = date
			return []domain.Interval{}, nil
		},
	}, quietLogger())

	resp, err := srv.OpenIntervals(context.Background(), &agendav1.OpenIntervalsRequest{ProfessionalId: "p1", Date: "2026-01-05"})
	if err != nil {
		t.Fatalf("OpenIntervals error: %v", err)
	}
	if got != (domain.Date{Year: 2026, Month: time.January, Day: 5}) {
		t.Fatalf("date = %+v", got)
	}
	if resp.Intervals == nil {
		t.Fatalf("intervals should be an empty, non-nil slice")
	}

	_, err = srv.OpenIntervals(context.Background(), &agendav1.OpenIntervalsRequest{ProfessionalId: "p1", Date: "05/01/2026"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want InvalidArgument", status.Code(err))
	}
}
