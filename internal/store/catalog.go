package store

import (
	"context"

	"agenda/backend/internal/domain"
)

// Catalog resolves services and professionals. Lookups of unknown ids return ErrNotFound.
type Catalog interface {
	Service(ctx context.Context, serviceID string) (domain.Service, error)
	Professional(ctx context.Context, professionalID string) (domain.Professional, error)
}

// ConfigSource supplies a business's schedule configuration. The engine never mutates it.
type ConfigSource interface {
	ScheduleConfig(ctx context.Context, businessID string) (domain.ScheduleConfig, error)
}
