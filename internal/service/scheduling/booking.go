package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type BookingRequest struct {
	ProfessionalID string
	ServiceID      string
	ResourceID     string
	ClientID       string
	Start          time.Time
	// DurationMinutes overrides the service duration when positive.
	DurationMinutes int
	Recurrence      domain.RecurrenceRule
	ForceOverlap    bool
	InitialStatus   domain.Status
	Notes           string
	ColorTag        string
	IdempotencyKey  string
}

// BookingResult carries the persisted instances and every overlap found for them. When
// Appointments is empty the request was aborted on Conflicts and nothing was written.
type BookingResult struct {
	Appointments []domain.Appointment
	Conflicts    domain.ConflictReport
	Replayed     bool
}

func (r BookingResult) Created() bool {
	return len(r.Appointments) > 0
}

type bookingPlan struct {
	professional domain.Professional
	service      domain.Service
	resourceID   string
	clientID     string
	status       domain.Status
	notes        string
	colorTag     string
	rule         domain.RecurrenceRule
	candidates   []domain.Interval
	groupID      uuid.UUID
	ids          []uuid.UUID
	idempotent   bool
}

// RequestBooking validates req, expands its recurrence and checks every instance for
// overlaps on the professional's and resource's timelines while holding their locks. Any
// overlap aborts the whole batch unless req.ForceOverlap is set, in which case each
// overlapping instance is persisted with ForcedOverlap.
func (s *Service) RequestBooking(ctx context.Context, req BookingRequest) (res BookingResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.request_booking")
	span.SetAttributes(
		attribute.String("agenda.professional_id", req.ProfessionalID),
		attribute.String("agenda.service_id", req.ServiceID),
		attribute.String("agenda.recurrence", string(req.Recurrence.Frequency)),
		attribute.Bool("agenda.force_overlap", req.ForceOverlap),
	)
	started := time.Now()
	defer func() {
		s.metrics.ObserveLatency("request_booking", time.Since(started).Seconds())
		finishSpan(span, err)
	}()

	log := s.log.With(
		slog.String("op", "request_booking"),
		slog.String("professional_id", req.ProfessionalID),
		slog.String("service_id", req.ServiceID),
	)

	plan, err := s.planBooking(ctx, log, req)
	if err != nil {
		s.bookingRejected(ctx, log, err)
		return BookingResult{}, err
	}

	res, err = s.commitBooking(ctx, plan, req)
	if err != nil {
		if errors.Is(err, domain.ErrPolicyViolation) {
			s.bookingRejected(ctx, log, err)
			return BookingResult{}, err
		}
		if errors.Is(err, store.ErrIdempotencyConflict) {
			s.metrics.ObserveBooking("rejected", 0, 0)
			log.WarnContext(ctx, "idempotency key reused for a different booking")
			return BookingResult{}, err
		}
		s.metrics.ObserveBooking("error", 0, 0)
		log.ErrorContext(ctx, "booking failed", slog.Any("err", err))
		return BookingResult{}, fmt.Errorf("scheduling: request booking: %w", err)
	}

	switch {
	case res.Replayed:
		s.metrics.ObserveBooking("replayed", 0, 0)
		log.InfoContext(ctx, "booking replayed", slog.Int("instances", len(res.Appointments)))
	case !res.Created():
		s.metrics.ObserveBooking("conflict", 0, 0)
		log.InfoContext(ctx, "booking aborted on conflicts",
			slog.Int("conflicting_instances", len(res.Conflicts.Entries)),
			slog.Int("candidates", len(plan.candidates)),
		)
	case !res.Conflicts.Empty():
		forced := len(res.Conflicts.Entries)
		s.metrics.ObserveBooking("forced", len(res.Appointments), forced)
		log.WarnContext(ctx, "booking created with forced overlaps",
			slog.Int("instances", len(res.Appointments)),
			slog.Int("forced_instances", forced),
			slog.Any("overlapping_ids", res.Conflicts.AppointmentIDs()),
		)
	default:
		s.metrics.ObserveBooking("created", len(res.Appointments), 0)
		log.InfoContext(ctx, "booking created", slog.Int("instances", len(res.Appointments)))
	}
	span.SetAttributes(
		attribute.Int("agenda.instances", len(res.Appointments)),
		attribute.Int("agenda.conflicting_instances", len(res.Conflicts.Entries)),
	)
	return res, nil
}

func (s *Service) bookingRejected(ctx context.Context, log *slog.Logger, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		s.metrics.ObserveBooking("rejected", 0, 0)
		log.WarnContext(ctx, "invalid booking request", slog.String("reason", vErr.Error()))
	case errors.Is(err, domain.ErrPolicyViolation):
		s.metrics.ObserveBooking("rejected", 0, 0)
		s.policyRejected(ctx, log, err)
	case errors.Is(err, store.ErrNotFound):
		s.metrics.ObserveBooking("rejected", 0, 0)
		log.WarnContext(ctx, "booking references a missing record", slog.Any("err", err))
	default:
		s.metrics.ObserveBooking("error", 0, 0)
		log.ErrorContext(ctx, "booking failed", slog.Any("err", err))
	}
}

// planBooking covers every check that needs no lock: field validation, recurrence expansion
// and business hours. The advance policy waits for the transaction so a replay of a stored
// batch is not rejected once its lead time has passed.
func (s *Service) planBooking(ctx context.Context, log *slog.Logger, req BookingRequest) (bookingPlan, error) {
	professionalID, err := required("professional_id", req.ProfessionalID)
	if err != nil {
		return bookingPlan{}, err
	}
	serviceID, err := required("service_id", req.ServiceID)
	if err != nil {
		return bookingPlan{}, err
	}
	if req.Start.IsZero() {
		return bookingPlan{}, validationError("start_time is required")
	}
	if req.InitialStatus == "" {
		return bookingPlan{}, validationError("initial status is required")
	}
	if !domain.InitialStatus(req.InitialStatus) {
		return bookingPlan{}, validationError("initial status must be pending or confirmed")
	}

	rule := req.Recurrence
	if rule.Frequency == "" {
		rule.Frequency = domain.RecurrenceNone
	}
	if rule.Frequency == domain.RecurrenceNone && rule.Count == 0 {
		rule.Count = 1
	}
	if err := rule.Validate(); err != nil {
		return bookingPlan{}, validationError(err.Error())
	}
	if rule.Count > s.maxOccurrences {
		log.WarnContext(ctx, "occurrence count clamped",
			slog.Int("requested", rule.Count),
			slog.Int("max", s.maxOccurrences),
		)
		rule.Count = s.maxOccurrences
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > 256 {
		return bookingPlan{}, validationError("idempotency_key too long")
	}

	prof, cfg, loc, err := s.professionalContext(ctx, professionalID)
	if err != nil {
		return bookingPlan{}, err
	}
	if !prof.Active {
		return bookingPlan{}, validationError("professional is not active")
	}
	svc, err := s.resolveService(ctx, serviceID, prof)
	if err != nil {
		return bookingPlan{}, err
	}
	duration, err := s.resolveDuration(svc, req.DurationMinutes)
	if err != nil {
		return bookingPlan{}, err
	}

	candidates := make([]domain.Interval, 0, rule.Occurrences())
	for start := range domain.Expand(req.Start.In(loc), rule) {
		iv := domain.NewInterval(start.UTC(), duration)
		if n := len(candidates); n > 0 && iv.Overlaps(candidates[n-1]) {
			return bookingPlan{}, validationError("recurrence instances overlap each other")
		}
		candidates = append(candidates, iv)
	}

	if s.enforceBusinessHours {
		for _, iv := range candidates {
			if err := domain.ValidateBusinessHours(cfg, iv); err != nil {
				return bookingPlan{}, err
			}
		}
	}

	plan := bookingPlan{
		professional: prof,
		service:      svc,
		resourceID:   strings.TrimSpace(req.ResourceID),
		clientID:     strings.TrimSpace(req.ClientID),
		status:       req.InitialStatus,
		notes:        req.Notes,
		colorTag:     req.ColorTag,
		rule:         rule,
		candidates:   candidates,
		idempotent:   key != "",
	}
	if err := plan.assignIDs(key); err != nil {
		return bookingPlan{}, err
	}
	return plan, nil
}

// assignIDs derives the group and instance ids. With an idempotency key they are stable
// across retries of the same request, so a replay finds the batch it already stored.
func (p *bookingPlan) assignIDs(key string) error {
	recurring := p.rule.Frequency != domain.RecurrenceNone
	p.ids = make([]uuid.UUID, len(p.candidates))

	if key != "" {
		seed := uuid.NewSHA1(uuid.NameSpaceOID, []byte("agenda:request_booking:"+p.professional.ID+":"+key))
		if recurring {
			p.groupID = seed
		}
		for i := range p.ids {
			p.ids[i] = uuid.NewSHA1(seed, []byte(strconv.Itoa(i)))
		}
		return nil
	}

	if recurring {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		p.groupID = id
	}
	for i := range p.ids {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		p.ids[i] = id
	}
	return nil
}

func (s *Service) commitBooking(ctx context.Context, plan bookingPlan, req BookingRequest) (BookingResult, error) {
	first := plan.candidates[0]
	last := plan.candidates[len(plan.candidates)-1]
	keys := store.BookingKeys(plan.professional.ID, plan.resourceID)

	var res BookingResult
	err := s.appts.InSchedulingTransaction(ctx, keys, func(ctx context.Context, tx store.SchedulingTx) error {
		res = BookingResult{}

		if plan.idempotent {
			stored, found, err := storedBatch(ctx, tx, plan)
			if err != nil {
				return err
			}
			if found {
				if !plan.matches(stored) {
					return store.ErrIdempotencyConflict
				}
				res.Appointments = stored
				res.Replayed = true
				return nil
			}
		}

		// Later siblings start further out, so the advance policy only gates the first one.
		if err := domain.ValidateAdvance(first.Start, plan.service.MinAdvanceMinutes, s.clock.Now()); err != nil {
			return err
		}

		existing, err := tx.ListForProfessional(ctx, plan.professional.ID, first.Start, last.End)
		if err != nil {
			return err
		}
		if plan.resourceID != "" {
			onResource, err := tx.ListForResource(ctx, plan.resourceID, first.Start, last.End)
			if err != nil {
				return err
			}
			existing = append(existing, onResource...)
		}

		for i, iv := range plan.candidates {
			res.Conflicts.Add(i, iv, domain.FindOverlaps(existing, plan.professional.ID, plan.resourceID, iv))
		}
		if !res.Conflicts.Empty() && !req.ForceOverlap {
			return nil
		}

		batch := make([]domain.Appointment, len(plan.candidates))
		for i, iv := range plan.candidates {
			batch[i] = domain.Appointment{
				ID:                plan.ids[i],
				ProfessionalID:    plan.professional.ID,
				ServiceID:         plan.service.ID,
				ResourceID:        plan.resourceID,
				ClientID:          plan.clientID,
				StartTime:         iv.Start,
				EndTime:           iv.End,
				Status:            plan.status,
				RecurrenceGroupID: plan.groupID,
				RecurrenceIndex:   i,
				ForcedOverlap:     res.Conflicts.For(i) != nil,
				Notes:             plan.notes,
				ColorTag:          plan.colorTag,
			}
		}

		saved, err := tx.SaveAppointments(ctx, batch)
		if err != nil {
			return err
		}
		res.Appointments = saved
		return nil
	})
	if err != nil {
		return BookingResult{}, err
	}
	return res, nil
}

// storedBatch loads the instances a keyed request would have written. A group may hold more
// rows than the plan once an instance was rescheduled, so only the planned ids count.
func storedBatch(ctx context.Context, tx store.SchedulingTx, plan bookingPlan) ([]domain.Appointment, bool, error) {
	if plan.groupID != uuid.Nil {
		rows, err := tx.ListByGroup(ctx, plan.groupID)
		if err != nil {
			return nil, false, err
		}
		byID := make(map[uuid.UUID]domain.Appointment, len(rows))
		for _, a := range rows {
			byID[a.ID] = a
		}
		stored := make([]domain.Appointment, 0, len(plan.ids))
		for _, id := range plan.ids {
			if a, ok := byID[id]; ok {
				stored = append(stored, a)
			}
		}
		return stored, len(stored) > 0, nil
	}

	a, err := tx.Get(ctx, plan.ids[0])
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []domain.Appointment{a}, true, nil
}

// matches reports whether stored is the batch this plan would have written. Status only has
// to be reachable from the requested one, since the batch may have moved on since.
func (p bookingPlan) matches(stored []domain.Appointment) bool {
	if len(stored) != len(p.candidates) {
		return false
	}
	for i, a := range stored {
		if a.ID != p.ids[i] ||
			a.ServiceID != p.service.ID ||
			a.ResourceID != p.resourceID ||
			a.ClientID != p.clientID ||
			a.Notes != p.notes ||
			a.ColorTag != p.colorTag ||
			!domain.Reachable(p.status, a.Status) ||
			!a.StartTime.Equal(p.candidates[i].Start) ||
			!a.EndTime.Equal(p.candidates[i].End) {
			return false
		}
	}
	return true
}
