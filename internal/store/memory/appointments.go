// Package memory holds in-process implementations of the store interfaces. They give the
// same atomicity and per-key exclusion guarantees as the Postgres store and back the tests
// and embedded uses of the engine.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type AppointmentStore struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]domain.Appointment

	locksMu sync.Mutex
	locks   map[store.LockKey]*sync.Mutex

	now func() time.Time
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		appts: make(map[uuid.UUID]domain.Appointment),
		locks: make(map[store.LockKey]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *AppointmentStore) InSchedulingTransaction(ctx context.Context, keys []store.LockKey, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	unlock := s.lockKeys(keys)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &store.PersistenceError{Op: "begin", Retryable: true, Err: err}
	}

	tx := &memTx{store: s, staged: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return &store.PersistenceError{Op: "commit", Retryable: true, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.order {
		s.appts[id] = tx.staged[id]
	}
	return nil
}

func (s *AppointmentStore) lockKeys(keys []store.LockKey) func() {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		s.locksMu.Lock()
		m, ok := s.locks[k]
		if !ok {
			m = &sync.Mutex{}
			s.locks[k] = m
		}
		s.locksMu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *AppointmentStore) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appts[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *AppointmentStore) ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return s.List(ctx, store.AppointmentFilter{
		ProfessionalID: professionalID,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	})
}

func (s *AppointmentStore) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Appointment, 0)
	for _, a := range s.appts {
		if matches(a, filter) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(a domain.Appointment, f store.AppointmentFilter) bool {
	if f.ProfessionalID != "" && a.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.ResourceID != "" && a.ResourceID != f.ResourceID {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if !f.WindowEnd.IsZero() && !a.StartTime.Before(f.WindowEnd) {
		return false
	}
	if !f.WindowStart.IsZero() && !a.EndTime.After(f.WindowStart) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.RecurrenceGroupID != uuid.Nil && a.RecurrenceGroupID != f.RecurrenceGroupID {
		return false
	}
	if f.ForcedOnly && !a.ForcedOverlap {
		return false
	}
	return true
}

func sortByStart(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].RecurrenceIndex < appts[j].RecurrenceIndex
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

type memTx struct {
	store  *AppointmentStore
	staged map[uuid.UUID]domain.Appointment
	order  []uuid.UUID
}

func (t *memTx) snapshot(filter store.AppointmentFilter) []domain.Appointment {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	out := make([]domain.Appointment, 0)
	for id, a := range t.store.appts {
		if staged, ok := t.staged[id]; ok {
			a = staged
		}
		if matches(a, filter) {
			out = append(out, a)
		}
	}
	for _, id := range t.order {
		if _, existed := t.store.appts[id]; existed {
			continue
		}
		if a := t.staged[id]; matches(a, filter) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func (t *memTx) ListForProfessional(ctx context.Context, professionalID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return t.snapshot(store.AppointmentFilter{ProfessionalID: professionalID, WindowStart: windowStart, WindowEnd: windowEnd}), nil
}

func (t *memTx) ListForResource(ctx context.Context, resourceID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return t.snapshot(store.AppointmentFilter{ResourceID: resourceID, WindowStart: windowStart, WindowEnd: windowEnd}), nil
}

func (t *memTx) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	if groupID == uuid.Nil {
		return nil, nil
	}
	return t.snapshot(store.AppointmentFilter{RecurrenceGroupID: groupID}), nil
}

func (t *memTx) Get(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if a, ok := t.staged[appointmentID]; ok {
		return a, nil
	}
	return t.store.Get(ctx, appointmentID)
}

func (t *memTx) SaveAppointments(ctx context.Context, batch []domain.Appointment) ([]domain.Appointment, error) {
	now := t.store.now()
	out := make([]domain.Appointment, 0, len(batch))
	for _, a := range batch {
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			a.ID = id
		}
		if _, err := t.Get(ctx, a.ID); err == nil {
			return nil, store.ErrIdempotencyConflict
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		t.stage(a)
		out = append(out, a)
	}
	return out, nil
}

func (t *memTx) UpdateStatus(ctx context.Context, change store.StatusChange) (domain.Appointment, error) {
	a, err := t.Get(ctx, change.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if a.Status != change.From {
		return domain.Appointment{}, store.ErrConflict
	}

	a.Status = change.To
	a.UpdatedAt = t.store.now()
	if change.To == domain.StatusCancelled {
		at := change.At
		a.CancelledAt = &at
		a.CancelledBy = change.Actor
		a.CancellationReason = change.Reason
	}
	t.stage(a)
	return a, nil
}

func (t *memTx) stage(a domain.Appointment) {
	if _, ok := t.staged[a.ID]; !ok {
		t.order = append(t.order, a.ID)
	}
	t.staged[a.ID] = a
}
