// Package catalog loads businesses, professionals and services into the catalog store and
// drops the cached copies the scheduling engine reads.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"agenda/backend/internal/domain"
)

type Writer interface {
	SaveScheduleConfig(ctx context.Context, name string, cfg domain.ScheduleConfig) error
	SaveProfessional(ctx context.Context, p domain.Professional) error
	SaveService(ctx context.Context, s domain.Service) error
}

// Invalidator drops cached catalog entries. It is optional.
type Invalidator interface {
	InvalidateScheduleConfig(ctx context.Context, businessID string) error
	InvalidateProfessional(ctx context.Context, professionalID string) error
	InvalidateService(ctx context.Context, serviceID string) error
}

type Business struct {
	Name string `json:"name"`
	domain.ScheduleConfig
}

type Document struct {
	Businesses    []Business            `json:"businesses"`
	Professionals []domain.Professional `json:"professionals"`
	Services      []domain.Service      `json:"services"`
}

// Decode reads a JSON catalog document. Unknown fields are rejected.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("catalog: decode: %w", err)
	}
	return doc, nil
}

// Validate checks ids and references inside the document before anything is written.
func (d Document) Validate() error {
	businesses := make(map[string]bool, len(d.Businesses))
	for _, b := range d.Businesses {
		if strings.TrimSpace(b.BusinessID) == "" {
			return errors.New("catalog: business_id is required")
		}
		if _, err := b.Location(); err != nil {
			return fmt.Errorf("catalog: business %q: %w", b.BusinessID, err)
		}
		if b.CancellationMinHours < 0 {
			return fmt.Errorf("catalog: business %q: cancellation_min_hours must not be negative", b.BusinessID)
		}
		businesses[b.BusinessID] = true
	}
	for _, p := range d.Professionals {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("catalog: professional id is required")
		}
		if !businesses[p.BusinessID] {
			return fmt.Errorf("catalog: professional %q references business %q outside the document", p.ID, p.BusinessID)
		}
	}
	for _, s := range d.Services {
		if strings.TrimSpace(s.ID) == "" {
			return errors.New("catalog: service id is required")
		}
		if !businesses[s.BusinessID] {
			return fmt.Errorf("catalog: service %q references business %q outside the document", s.ID, s.BusinessID)
		}
		if s.DurationMinutes <= 0 || s.MinAdvanceMinutes < 0 {
			return fmt.Errorf("catalog: service %q: duration must be positive and advance not negative", s.ID)
		}
	}
	return nil
}

type Summary struct {
	Businesses    int
	Professionals int
	Services      int
	// StaleEntries counts cache invalidations that failed; those entries expire on their TTL.
	StaleEntries int
}

type Importer struct {
	writer Writer
	cache  Invalidator
	log    *slog.Logger
}

func NewImporter(writer Writer, cache Invalidator, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{writer: writer, cache: cache, log: log.With(slog.String("component", "catalog"))}
}

// Import writes businesses first so professionals and services can reference them. Each
// saved entry is invalidated in the cache right after its write.
func (i *Importer) Import(ctx context.Context, doc Document) (Summary, error) {
	var sum Summary
	if err := doc.Validate(); err != nil {
		return sum, err
	}

	for _, b := range doc.Businesses {
		if err := i.writer.SaveScheduleConfig(ctx, b.Name, b.ScheduleConfig); err != nil {
			return sum, fmt.Errorf("catalog: save business %q: %w", b.BusinessID, err)
		}
		sum.Businesses++
		i.invalidate(ctx, &sum, "business", b.BusinessID, i.cacheOr(Invalidator.InvalidateScheduleConfig))
	}
	for _, p := range doc.Professionals {
		if err := i.writer.SaveProfessional(ctx, p); err != nil {
			return sum, fmt.Errorf("catalog: save professional %q: %w", p.ID, err)
		}
		sum.Professionals++
		i.invalidate(ctx, &sum, "professional", p.ID, i.cacheOr(Invalidator.InvalidateProfessional))
	}
	for _, s := range doc.Services {
		if err := i.writer.SaveService(ctx, s); err != nil {
			return sum, fmt.Errorf("catalog: save service %q: %w", s.ID, err)
		}
		sum.Services++
		i.invalidate(ctx, &sum, "service", s.ID, i.cacheOr(Invalidator.InvalidateService))
	}

	i.log.InfoContext(ctx, "catalog imported",
		slog.Int("businesses", sum.Businesses),
		slog.Int("professionals", sum.Professionals),
		slog.Int("services", sum.Services),
		slog.Int("stale_entries", sum.StaleEntries),
	)
	return sum, nil
}

func (i *Importer) cacheOr(drop func(Invalidator, context.Context, string) error) func(context.Context, string) error {
	if i.cache == nil {
		return nil
	}
	return func(ctx context.Context, id string) error { return drop(i.cache, ctx, id) }
}

func (i *Importer) invalidate(ctx context.Context, sum *Summary, kind, id string, drop func(context.Context, string) error) {
	if drop == nil {
		return
	}
	if err := drop(ctx, id); err != nil {
		sum.StaleEntries++
		i.log.WarnContext(ctx, "cache invalidation failed", slog.String("kind", kind), slog.String("id", id), slog.Any("err", err))
	}
}
