// Package httpapi serves the read-only HTTP surface of the engine: health, metrics,
// availability and appointment lookup.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"agenda/backend/internal/auth"
	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/scheduling"
	"agenda/backend/internal/store"
)

type queries interface {
	OpenIntervals(ctx context.Context, professionalID string, date domain.Date) ([]domain.Interval, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
}

type Config struct {
	Queries queries
	// Ping reports database health for /healthz. Nil means always healthy.
	Ping    func(ctx context.Context) error
	Metrics http.Handler
	// JWTSecret, when set, puts the /v1 routes behind the same bearer tokens as gRPC.
	JWTSecret string
	Logger    *slog.Logger
}

func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &handler{q: cfg.Queries, ping: cfg.Ping, log: log.With(slog.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(requireBearer(auth.NewVerifier(cfg.JWTSecret), h.log))
		}
		r.Get("/professionals/{professionalID}/availability", h.availability)
		r.Get("/appointments/{appointmentID}", h.appointment)
	})
	return r
}

type handler struct {
	q    queries
	ping func(ctx context.Context) error
	log  *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.log.Warn("health check failed", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type intervalView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type availabilityView struct {
	ProfessionalID string         `json:"professional_id"`
	Date           string         `json:"date"`
	Intervals      []intervalView `json:"intervals"`
}

func (h *handler) availability(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	intervals, err := h.q.OpenIntervals(r.Context(), professionalID, date)
	if err != nil {
		h.fail(w, r, "availability lookup failed", err)
		return
	}

	out := availabilityView{ProfessionalID: professionalID, Date: date.String(), Intervals: make([]intervalView, 0, len(intervals))}
	for _, iv := range intervals {
		out.Intervals = append(out.Intervals, intervalView{Start: iv.Start.UTC(), End: iv.End.UTC()})
	}
	writeJSON(w, http.StatusOK, out)
}

type appointmentView struct {
	ID                 string     `json:"id"`
	ProfessionalID     string     `json:"professional_id"`
	ServiceID          string     `json:"service_id"`
	ResourceID         string     `json:"resource_id,omitempty"`
	ClientID           string     `json:"client_id,omitempty"`
	Start              time.Time  `json:"start"`
	End                time.Time  `json:"end"`
	Status             string     `json:"status"`
	RecurrenceGroupID  string     `json:"recurrence_group_id,omitempty"`
	RecurrenceIndex    int        `json:"recurrence_index"`
	ForcedOverlap      bool       `json:"forced_overlap"`
	Notes              string     `json:"notes,omitempty"`
	ColorTag           string     `json:"color_tag,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

func (h *handler) appointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "appointment id must be a UUID")
		return
	}

	a, err := h.q.GetAppointment(r.Context(), id)
	if err != nil {
		h.fail(w, r, "appointment lookup failed", err)
		return
	}
	// Clients only see their own appointments.
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.Role == domain.ActorClient && a.ClientID != p.Subject {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	out := appointmentView{
		ID:                 a.ID.String(),
		ProfessionalID:     a.ProfessionalID,
		ServiceID:          a.ServiceID,
		ResourceID:         a.ResourceID,
		ClientID:           a.ClientID,
		Start:              a.StartTime.UTC(),
		End:                a.EndTime.UTC(),
		Status:             string(a.Status),
		RecurrenceIndex:    a.RecurrenceIndex,
		ForcedOverlap:      a.ForcedOverlap,
		Notes:              a.Notes,
		ColorTag:           a.ColorTag,
		CancelledAt:        a.CancelledAt,
		CancelledBy:        string(a.CancelledBy),
		CancellationReason: a.CancellationReason,
	}
	if a.RecurrenceGroupID != uuid.Nil {
		out.RecurrenceGroupID = a.RecurrenceGroupID.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var vErr *scheduling.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case store.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn(msg, slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		h.log.Error(msg, slog.Any("err", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requireBearer(v *auth.Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Verify(auth.BearerToken(r.Header.Get("Authorization")))
			switch {
			case errors.Is(err, auth.ErrInvalidRole):
				log.Warn("permission denied", slog.String("path", r.URL.Path), slog.String("reason", "invalid_role"))
				writeError(w, http.StatusForbidden, err.Error())
				return
			case err != nil:
				log.Warn("unauthenticated", slog.String("path", r.URL.Path), slog.Any("err", err))
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
