package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/observability/metrics"
	"agenda/backend/internal/store"
)

var tracer = otel.Tracer("agenda/scheduling")

const (
	DefaultMaxOccurrences = 30
	DefaultMaxDuration    = 24 * time.Hour
)

type Options struct {
	// MaxOccurrences caps the instances of one recurring request. Larger counts are clamped.
	MaxOccurrences int
	// EnforceBusinessHours rejects instances that fall outside a working window. Force-fit
	// does not bypass it.
	EnforceBusinessHours bool
	MaxDuration          time.Duration

	Clock   Clock
	Logger  *slog.Logger
	Metrics *metrics.SchedulingMetrics
}

func DefaultOptions() Options {
	return Options{
		MaxOccurrences:       DefaultMaxOccurrences,
		EnforceBusinessHours: true,
		MaxDuration:          DefaultMaxDuration,
	}
}

type Service struct {
	appts   store.AppointmentRepository
	catalog store.Catalog
	configs store.ConfigSource

	maxOccurrences       int
	enforceBusinessHours bool
	maxDuration          time.Duration

	clock   Clock
	log     *slog.Logger
	metrics *metrics.SchedulingMetrics
}

func NewService(appts store.AppointmentRepository, catalog store.Catalog, configs store.ConfigSource, opts Options) *Service {
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = DefaultMaxOccurrences
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		appts:                appts,
		catalog:              catalog,
		configs:              configs,
		maxOccurrences:       opts.MaxOccurrences,
		enforceBusinessHours: opts.EnforceBusinessHours,
		maxDuration:          opts.MaxDuration,
		clock:                opts.Clock,
		log:                  opts.Logger.With(slog.String("component", "scheduling")),
		metrics:              opts.Metrics,
	}
}

// professionalContext resolves the professional and its business schedule.
func (s *Service) professionalContext(ctx context.Context, professionalID string) (domain.Professional, domain.ScheduleConfig, *time.Location, error) {
	prof, err := s.catalog.Professional(ctx, professionalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Professional{}, domain.ScheduleConfig{}, nil, fmt.Errorf("scheduling: professional %q: %w", professionalID, store.ErrNotFound)
		}
		return domain.Professional{}, domain.ScheduleConfig{}, nil, fmt.Errorf("scheduling: load professional: %w", err)
	}

	cfg, err := s.configs.ScheduleConfig(ctx, prof.BusinessID)
	if err != nil {
		return domain.Professional{}, domain.ScheduleConfig{}, nil, fmt.Errorf("scheduling: load schedule config for business %q: %w", prof.BusinessID, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return domain.Professional{}, domain.ScheduleConfig{}, nil, fmt.Errorf("scheduling: business %q: %w", prof.BusinessID, err)
	}
	return prof, cfg, loc, nil
}

func (s *Service) resolveService(ctx context.Context, serviceID string, prof domain.Professional) (domain.Service, error) {
	svc, err := s.catalog.Service(ctx, serviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Service{}, validationError("unknown service_id")
		}
		return domain.Service{}, fmt.Errorf("scheduling: load service: %w", err)
	}
	if !svc.Active {
		return domain.Service{}, validationError("service is not active")
	}
	if svc.BusinessID != prof.BusinessID {
		return domain.Service{}, validationError("service does not belong to the professional's business")
	}
	return svc, nil
}

func (s *Service) resolveDuration(svc domain.Service, overrideMinutes int) (time.Duration, error) {
	if overrideMinutes < 0 {
		return 0, validationError("duration_minutes must be positive")
	}
	d := svc.Duration()
	if overrideMinutes > 0 {
		d = time.Duration(overrideMinutes) * time.Minute
	}
	if d <= 0 {
		return 0, validationError("duration could not be resolved")
	}
	if d > s.maxDuration {
		return 0, validationError("duration too long")
	}
	return d, nil
}

func (s *Service) policyRejected(ctx context.Context, log *slog.Logger, err error) {
	var pv *domain.PolicyViolation
	if errors.As(err, &pv) {
		s.metrics.ObservePolicyViolation(string(pv.Kind))
		log.InfoContext(ctx, "policy violation", slog.String("kind", string(pv.Kind)), slog.String("reason", pv.Error()))
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func required(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", validationError(name + " is required")
	}
	return v, nil
}
