package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type schedulingTx struct {
	tx bun.Tx
}

// InSchedulingTransaction runs fn in one transaction holding a transaction-scoped advisory
// lock per key. Keys are taken in sorted order so writers never deadlock on each other.
func (r *AppointmentRepo) InSchedulingTransaction(ctx context.Context, keys []store.LockKey, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockKeys(ctx, tx, keys); err != nil {
			return classify("lock", err)
		}
		return fn(ctx, schedulingTx{tx: tx})
	})
	if err != nil && isInfrastructure(err) {
		return classify("transaction", err)
	}
	return err
}

func lockOrder(keys []store.LockKey) []store.LockKey {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

func lockKeys(ctx context.Context, tx bun.Tx, keys []store.LockKey) error {
	for _, k := range lockOrder(keys) {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", string(k)).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *AppointmentRepo) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, appointmentID)
}

func (r *AppointmentRepo) ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.db, store.AppointmentFilter{
		ProfessionalID: professionalID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	})
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.db, filter)
}

func (r schedulingTx) ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.tx, store.AppointmentFilter{
		ProfessionalID: professionalID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	})
}

func (r schedulingTx) ListForResource(ctx context.Context, resourceID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listAppointments(ctx, r.tx, store.AppointmentFilter{
		ResourceID:  resourceID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
}

func (r schedulingTx) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	if groupID == uuid.Nil {
		return nil, nil
	}
	return listAppointments(ctx, r.tx, store.AppointmentFilter{RecurrenceGroupID: groupID})
}

func (r schedulingTx) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.tx, appointmentID)
}

func (r schedulingTx) SaveAppointments(ctx context.Context, batch []domain.Appointment) ([]domain.Appointment, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	rows := slices.Clone(batch)
	if _, err := r.tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "appointments_pkey" {
			return nil, store.ErrIdempotencyConflict
		}
		return nil, classify("insert appointments", err)
	}
	return rows, nil
}

func (r schedulingTx) UpdateStatus(ctx context.Context, change store.StatusChange) (domain.Appointment, error) {
	var out domain.Appointment
	q := r.tx.NewUpdate().
		Model(&out).
		Set("status = ?", change.To).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", change.ID).
		Where("status = ?", change.From).
		Returning("*")
	if change.To == domain.StatusCancelled {
		q = q.
			Set("cancelled_at = ?", change.At).
			Set("cancelled_by = ?", change.Actor).
			Set("cancellation_reason = ?", nullString(change.Reason))
	}

	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, change.ID); getErr != nil {
			return domain.Appointment{}, getErr
		}
		return domain.Appointment{}, store.ErrConflict
	}
	if err != nil {
		return domain.Appointment{}, classify("update appointment status", err)
	}
	return out, nil
}

func getAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, classify("get appointment", err)
	}
	return a, nil
}

func listAppointments(ctx context.Context, db bun.IDB, f store.AppointmentFilter) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	q := db.NewSelect().Model(&rows)

	if f.ProfessionalID != "" {
		q = q.Where("professional_id = ?", f.ProfessionalID)
	}
	if f.ResourceID != "" {
		q = q.Where("resource_id = ?", f.ResourceID)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if !f.WindowEnd.IsZero() {
		q = q.Where("start_time < ?", f.WindowEnd)
	}
	if !f.WindowStart.IsZero() {
		q = q.Where("end_time > ?", f.WindowStart)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if f.RecurrenceGroupID != uuid.Nil {
		q = q.Where("recurrence_group_id = ?", f.RecurrenceGroupID)
	}
	if f.ForcedOnly {
		q = q.Where("forced_overlap")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	if err := q.OrderExpr("start_time ASC, recurrence_index ASC").Scan(ctx); err != nil {
		return nil, classify("list appointments", err)
	}
	return rows, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
