package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
)

type businessRow struct {
	bun.BaseModel `bun:"table:businesses"`

	ID                   string    `bun:"id,pk"`
	Name                 string    `bun:"name,notnull"`
	Timezone             string    `bun:"timezone,notnull"`
	CancellationMinHours int       `bun:"cancellation_min_hours,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type businessHoursRow struct {
	bun.BaseModel `bun:"table:business_hours"`

	BusinessID  string `bun:"business_id,pk"`
	Weekday     int    `bun:"weekday,pk"`
	IsOpen      bool   `bun:"is_open,notnull"`
	StartTime   string `bun:"start_time,nullzero"`
	BreakStart  string `bun:"break_start,nullzero"`
	BreakEnd    string `bun:"break_end,nullzero"`
	BreakActive bool   `bun:"break_active,notnull"`
	EndTime     string `bun:"end_time,nullzero"`
}

// CatalogRepo reads services, professionals and business schedules. It implements
// store.Catalog and store.ConfigSource.
type CatalogRepo struct {
	db *bun.DB
}

func NewCatalogRepo(db *bun.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Service(ctx context.Context, serviceID string) (domain.Service, error) {
	var s domain.Service
	if err := r.db.NewSelect().Model(&s).Where("id = ?", serviceID).Limit(1).Scan(ctx); err != nil {
		return domain.Service{}, classify("get service", err)
	}
	return s, nil
}

func (r *CatalogRepo) Professional(ctx context.Context, professionalID string) (domain.Professional, error) {
	var p domain.Professional
	if err := r.db.NewSelect().Model(&p).Where("id = ?", professionalID).Limit(1).Scan(ctx); err != nil {
		return domain.Professional{}, classify("get professional", err)
	}
	return p, nil
}

func (r *CatalogRepo) ScheduleConfig(ctx context.Context, businessID string) (domain.ScheduleConfig, error) {
	var b businessRow
	if err := r.db.NewSelect().Model(&b).Where("id = ?", businessID).Limit(1).Scan(ctx); err != nil {
		return domain.ScheduleConfig{}, classify("get business", err)
	}

	var hours []businessHoursRow
	err := r.db.NewSelect().
		Model(&hours).
		Where("business_id = ?", businessID).
		OrderExpr("weekday ASC").
		Scan(ctx)
	if err != nil {
		return domain.ScheduleConfig{}, classify("list business hours", err)
	}

	return toScheduleConfig(b, hours)
}

// SaveScheduleConfig upserts a business and replaces its weekly hours.
func (r *CatalogRepo) SaveScheduleConfig(ctx context.Context, name string, cfg domain.ScheduleConfig) error {
	if _, err := cfg.Location(); err != nil {
		return err
	}

	b := businessRow{
		ID:                   cfg.BusinessID,
		Name:                 name,
		Timezone:             cfg.Timezone,
		CancellationMinHours: cfg.CancellationMinHours,
	}
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&b).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("timezone = EXCLUDED.timezone").
			Set("cancellation_min_hours = EXCLUDED.cancellation_min_hours").
			Exec(ctx)
		if err != nil {
			return classify("upsert business", err)
		}

		if _, err := tx.NewDelete().Model((*businessHoursRow)(nil)).Where("business_id = ?", cfg.BusinessID).Exec(ctx); err != nil {
			return classify("delete business hours", err)
		}
		if len(cfg.Days) == 0 {
			return nil
		}

		rows := fromDayHours(cfg.BusinessID, cfg.Days)
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return classify("insert business hours", err)
		}
		return nil
	})
}

func (r *CatalogRepo) SaveProfessional(ctx context.Context, p domain.Professional) error {
	_, err := r.db.NewInsert().
		Model(&p).
		On("CONFLICT (id) DO UPDATE").
		Set("business_id = EXCLUDED.business_id").
		Set("name = EXCLUDED.name").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	return classify("upsert professional", err)
}

func (r *CatalogRepo) SaveService(ctx context.Context, s domain.Service) error {
	_, err := r.db.NewInsert().
		Model(&s).
		On("CONFLICT (id) DO UPDATE").
		Set("business_id = EXCLUDED.business_id").
		Set("name = EXCLUDED.name").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("min_advance_minutes = EXCLUDED.min_advance_minutes").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	return classify("upsert service", err)
}

func toScheduleConfig(b businessRow, hours []businessHoursRow) (domain.ScheduleConfig, error) {
	cfg := domain.ScheduleConfig{
		BusinessID:           b.ID,
		Timezone:             b.Timezone,
		CancellationMinHours: b.CancellationMinHours,
		Days:                 make([]domain.DayHours, 0, len(hours)),
	}

	for _, h := range hours {
		if h.Weekday < 0 || h.Weekday > 6 {
			return domain.ScheduleConfig{}, fmt.Errorf("business %s: invalid weekday %d", b.ID, h.Weekday)
		}
		day := domain.DayHours{
			Weekday:     time.Weekday(h.Weekday),
			IsOpen:      h.IsOpen,
			BreakActive: h.BreakActive,
		}

		fields := []struct {
			raw  string
			dest *domain.ClockTime
		}{
			{h.StartTime, &day.Start},
			{h.BreakStart, &day.BreakStart},
			{h.BreakEnd, &day.BreakEnd},
			{h.EndTime, &day.End},
		}
		for _, f := range fields {
			if f.raw == "" {
				continue
			}
			ct, err := domain.ParseClockTime(f.raw)
			if err != nil {
				return domain.ScheduleConfig{}, fmt.Errorf("business %s weekday %d: %w", b.ID, h.Weekday, err)
			}
			*f.dest = ct
		}
		if day.IsOpen && day.End <= day.Start {
			return domain.ScheduleConfig{}, fmt.Errorf("business %s weekday %d: closing time must be after opening time", b.ID, h.Weekday)
		}

		cfg.Days = append(cfg.Days, day)
	}
	return cfg, nil
}

func fromDayHours(businessID string, days []domain.DayHours) []businessHoursRow {
	rows := make([]businessHoursRow, 0, len(days))
	for _, d := range days {
		row := businessHoursRow{
			BusinessID:  businessID,
			Weekday:     int(d.Weekday),
			IsOpen:      d.IsOpen,
			BreakActive: d.BreakActive,
		}
		if d.IsOpen {
			row.StartTime = d.Start.String()
			row.EndTime = d.End.String()
		}
		if d.BreakStart != 0 || d.BreakEnd != 0 {
			row.BreakStart = d.BreakStart.String()
			row.BreakEnd = d.BreakEnd.String()
		}
		rows = append(rows, row)
	}
	return rows
}
