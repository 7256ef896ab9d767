package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

func at(h, m int) time.Time {
	return time.Date(2026, 1, 5, h, m, 0, 0, time.UTC)
}

func newAppt(professionalID string, start time.Time) domain.Appointment {
	return domain.Appointment{
		ProfessionalID: professionalID,
		ServiceID:      "cut",
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Status:         domain.StatusConfirmed,
	}
}

func save(t *testing.T, s *AppointmentStore, appts ...domain.Appointment) []domain.Appointment {
	t.Helper()
	var out []domain.Appointment
	err := s.InSchedulingTransaction(context.Background(), []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		var err error
		out, err = tx.SaveAppointments(ctx, appts)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestInSchedulingTransaction_RollsBackOnError(t *testing.T) {
	s := NewAppointmentStore()
	boom := errors.New("boom")

	err := s.InSchedulingTransaction(context.Background(), []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		_, err := tx.SaveAppointments(ctx, []domain.Appointment{newAppt("p1", at(9, 0)), newAppt("p1", at(10, 0))})
		require.NoError(t, err)

		staged, err := tx.ListForProfessional(ctx, "p1", at(0, 0), at(23, 0))
		require.NoError(t, err)
		assert.Len(t, staged, 2, "staged writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.List(context.Background(), store.AppointmentFilter{ProfessionalID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInSchedulingTransaction_CancelledContext(t *testing.T) {
	s := NewAppointmentStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InSchedulingTransaction(ctx, []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		_, err := tx.SaveAppointments(ctx, []domain.Appointment{newAppt("p1", at(9, 0))})
		cancel()
		return err
	})
	require.True(t, store.IsRetryable(err), "error = %v", err)

	got, err := s.List(context.Background(), store.AppointmentFilter{ProfessionalID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInSchedulingTransaction_SerializesSameKey(t *testing.T) {
	s := NewAppointmentStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []store.LockKey{"resource:r1", "professional:p1"}
			_ = s.InSchedulingTransaction(context.Background(), keys, func(ctx context.Context, tx store.SchedulingTx) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestSaveAppointments_AssignsIDsAndRejectsDuplicates(t *testing.T) {
	s := NewAppointmentStore()

	saved := save(t, s, newAppt("p1", at(9, 0)))
	require.Len(t, saved, 1)
	assert.NotEqual(t, uuid.Nil, saved[0].ID)
	assert.False(t, saved[0].CreatedAt.IsZero())

	dup := newAppt("p1", at(11, 0))
	dup.ID = saved[0].ID
	err := s.InSchedulingTransaction(context.Background(), []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		_, err := tx.SaveAppointments(ctx, []domain.Appointment{dup})
		return err
	})
	assert.ErrorIs(t, err, store.ErrIdempotencyConflict)
}

func TestUpdateStatus(t *testing.T) {
	s := NewAppointmentStore()
	saved := save(t, s, newAppt("p1", at(9, 0)))[0]

	err := s.InSchedulingTransaction(context.Background(), []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		_, err := tx.UpdateStatus(ctx, store.StatusChange{ID: saved.ID, From: domain.StatusPending, To: domain.StatusCancelled})
		return err
	})
	assert.ErrorIs(t, err, store.ErrConflict, "stale From must be rejected")

	cancelledAt := at(8, 0)
	err = s.InSchedulingTransaction(context.Background(), []store.LockKey{"professional:p1"}, func(ctx context.Context, tx store.SchedulingTx) error {
		_, err := tx.UpdateStatus(ctx, store.StatusChange{
			ID:     saved.ID,
			From:   domain.StatusConfirmed,
			To:     domain.StatusCancelled,
			At:     cancelledAt,
			Actor:  domain.ActorClient,
			Reason: "travel",
		})
		return err
	})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Equal(t, domain.ActorClient, got.CancelledBy)
	assert.Equal(t, "travel", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(cancelledAt))

	_, err = s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	s := NewAppointmentStore()
	group := uuid.New()

	a := newAppt("p1", at(9, 0))
	a.ResourceID = "r1"
	b := newAppt("p1", at(10, 0))
	b.RecurrenceGroupID = group
	b.ForcedOverlap = true
	c := newAppt("p2", at(9, 30))
	c.ResourceID = "r1"
	c.ClientID = "c1"
	save(t, s, a, b, c)

	ctx := context.Background()
	cases := []struct {
		name   string
		filter store.AppointmentFilter
		want   int
	}{
		{name: "professional", filter: store.AppointmentFilter{ProfessionalID: "p1"}, want: 2},
		{name: "resource", filter: store.AppointmentFilter{ResourceID: "r1"}, want: 2},
		{name: "client", filter: store.AppointmentFilter{ClientID: "c1"}, want: 1},
		{name: "group", filter: store.AppointmentFilter{RecurrenceGroupID: group}, want: 1},
		{name: "forced", filter: store.AppointmentFilter{ForcedOnly: true}, want: 1},
		{name: "half-open window", filter: store.AppointmentFilter{ProfessionalID: "p1", WindowStart: at(9, 30), WindowEnd: at(10, 0)}, want: 0},
		{name: "window", filter: store.AppointmentFilter{WindowStart: at(9, 15), WindowEnd: at(9, 45)}, want: 2},
		{name: "status", filter: store.AppointmentFilter{Statuses: []domain.Status{domain.StatusPending}}, want: 0},
		{name: "limit", filter: store.AppointmentFilter{Limit: 2}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.List(ctx, tc.filter)
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	ordered, err := s.List(ctx, store.AppointmentFilter{})
	require.NoError(t, err)
	for i := 1; i < len(ordered); i++ {
		assert.False(t, ordered[i].StartTime.Before(ordered[i-1].StartTime), "results ordered by start")
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	_, err := c.Service(ctx, "cut")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = c.Professional(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = c.ScheduleConfig(ctx, "b1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	c.PutService(domain.Service{ID: "cut", BusinessID: "b1", DurationMinutes: 30})
	c.PutProfessional(domain.Professional{ID: "p1", BusinessID: "b1"})
	c.PutScheduleConfig(domain.ScheduleConfig{BusinessID: "b1", Timezone: "UTC"})

	svc, err := c.Service(ctx, "cut")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, svc.Duration())
	prof, err := c.Professional(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "b1", prof.BusinessID)
	cfg, err := c.ScheduleConfig(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Timezone)
}
