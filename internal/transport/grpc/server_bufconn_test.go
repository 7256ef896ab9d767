package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/timestamppb"

	"agenda/backend/internal/api/agendav1"
	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store/memory"
)

const jwtSecret = "bufconn-secret"

func startServer(t *testing.T) *agendav1.SchedulingServiceClient {
	t.Helper()

	catalog := memory.NewCatalog()
	catalog.PutProfessional(domain.Professional{ID: "p1", BusinessID: "b1", Name: "Ana", Active: true})
	catalog.PutService(domain.Service{ID: "cut", BusinessID: "b1", Name: "Cut", DurationMinutes: 30, Active: true})
	days := make([]domain.DayHours, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		days = append(days, domain.DayHours{Weekday: wd, IsOpen: true, Start: domain.NewClockTime(8, 0), End: domain.NewClockTime(20, 0)})
	}
	catalog.PutScheduleConfig(domain.ScheduleConfig{BusinessID: "b1", Timezone: "UTC", Days: days, CancellationMinHours: 24})

	opts := scheduling.DefaultOptions()
	opts.Clock = scheduling.ClockFunc(func() time.Time { return time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC) })
	opts.Logger = quietLogger()
	svc := scheduling.NewService(memory.NewAppointmentStore(), catalog, catalog, opts)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		DefaultRequestTimeoutInterceptor(5*time.Second),
		AuthInterceptor(jwtSecret, quietLogger()),
		NewRateLimiter(1000, 1000, quietLogger()).Interceptor(),
	))
	agendav1.RegisterSchedulingServiceServer(srv, NewSchedulingServer(svc, quietLogger()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return agendav1.NewSchedulingServiceClient(conn)
}

func authed(t *testing.T, subject, role string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+signToken(t, jwtSecret, subject, role))
}

func TestBufconn_ForceFitFlow(t *testing.T) {
	client := startServer(t)
	staff := authed(t, "s1", "staff")
	at := func(h, m int) *timestamppb.Timestamp {
		return timestamppb.New(time.Date(2026, 1, 5, h, m, 0, 0, time.UTC))
	}

	if _, err := client.GetAppointment(context.Background(), &agendav1.GetAppointmentRequest{AppointmentId: "x"}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("unauthenticated code = %s", status.Code(err))
	}

	first, err := client.RequestBooking(staff, &agendav1.RequestBookingRequest{ProfessionalId: "p1", ServiceId: "cut", StartTime: at(14, 0), InitialStatus: "pending"})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if len(first.Appointments) != 1 || first.Appointments[0].Status != "pending" {
		t.Fatalf("first booking = %+v", first)
	}

	second, err := client.RequestBooking(staff, &agendav1.RequestBookingRequest{ProfessionalId: "p1", ServiceId: "cut", StartTime: at(14, 15), InitialStatus: "pending"})
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if len(second.Appointments) != 0 || len(second.Conflicts) != 1 {
		t.Fatalf("second booking = %+v", second)
	}
	if got := second.Conflicts[0].Overlaps[0].AppointmentId; got != first.Appointments[0].Id {
		t.Fatalf("conflict references %s, want %s", got, first.Appointments[0].Id)
	}

	client1 := authed(t, "c1", "client")
	if _, err := client.RequestBooking(client1, &agendav1.RequestBookingRequest{ProfessionalId: "p1", ServiceId: "cut", StartTime: at(14, 15), InitialStatus: "confirmed", ForceOverlap: true}); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("client force code = %s", status.Code(err))
	}

	forced, err := client.RequestBooking(staff, &agendav1.RequestBookingRequest{ProfessionalId: "p1", ServiceId: "cut", StartTime: at(14, 15), InitialStatus: "confirmed", ForceOverlap: true})
	if err != nil {
		t.Fatalf("forced booking: %v", err)
	}
	if len(forced.Appointments) != 1 || !forced.Appointments[0].ForcedOverlap {
		t.Fatalf("forced booking = %+v", forced)
	}

	audit, err := client.ListAppointments(staff, &agendav1.ListAppointmentsRequest{ProfessionalId: "p1", ForcedOnly: true})
	if err != nil {
		t.Fatalf("list forced: %v", err)
	}
	if len(audit.Appointments) != 1 || audit.Appointments[0].Id != forced.Appointments[0].Id {
		t.Fatalf("forced audit = %+v", audit.Appointments)
	}
}

func TestBufconn_IdempotentReplayAndPolicy(t *testing.T) {
	client := startServer(t)
	staff := metadata.AppendToOutgoingContext(authed(t, "s1", "staff"), "idempotency-key", "req-1")
	req := &agendav1.RequestBookingRequest{
		ProfessionalId: "p1",
		ServiceId:      "cut",
		StartTime:      timestamppb.New(time.Date(2026, 1, 2, 19, 0, 0, 0, time.UTC)),
		Recurrence:     &agendav1.Recurrence{Frequency: "weekly", Count: 2},
		InitialStatus:  "confirmed",
	}

	first, err := client.RequestBooking(staff, req)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	again, err := client.RequestBooking(staff, req)
	if err != nil {
		t.Fatalf("replayed booking: %v", err)
	}
	if !again.Replayed || len(again.Appointments) != 2 || again.Appointments[0].Id != first.Appointments[0].Id {
		t.Fatalf("replay = %+v", again)
	}
	if first.Appointments[0].RecurrenceGroupId == "" || first.Appointments[0].RecurrenceGroupId != first.Appointments[1].RecurrenceGroupId {
		t.Fatalf("instances should share a recurrence group: %+v", first.Appointments)
	}

	// Cancelling within 24 hours as a client is refused by the cancellation window.
	clientCtx := authed(t, "c1", "client")
	_, err = client.RequestCancellation(clientCtx, &agendav1.RequestCancellationRequest{AppointmentId: first.Appointments[0].Id})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("client cancel code = %s, want FailedPrecondition", status.Code(err))
	}

	cancelled, err := client.RequestCancellation(authed(t, "s1", "staff"), &agendav1.RequestCancellationRequest{AppointmentId: first.Appointments[0].Id, Reason: "closed"})
	if err != nil {
		t.Fatalf("staff cancel: %v", err)
	}
	if cancelled.Appointment.Status != "cancelled" || cancelled.Appointment.CancelledBy != "staff" {
		t.Fatalf("cancelled = %+v", cancelled.Appointment)
	}

	_, err = client.TransitionAppointment(authed(t, "s1", "staff"), &agendav1.TransitionAppointmentRequest{AppointmentId: first.Appointments[0].Id, Status: "confirmed"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("transition from cancelled code = %s, want FailedPrecondition", status.Code(err))
	}
}
