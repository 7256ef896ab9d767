package memory

import (
	"context"
	"sync"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

// Catalog is a map-backed store.Catalog and store.ConfigSource.
type Catalog struct {
	mu            sync.RWMutex
	services      map[string]domain.Service
	professionals map[string]domain.Professional
	configs       map[string]domain.ScheduleConfig
}

func NewCatalog() *Catalog {
	return &Catalog{
		services:      make(map[string]domain.Service),
		professionals: make(map[string]domain.Professional),
		configs:       make(map[string]domain.ScheduleConfig),
	}
}

func (c *Catalog) PutService(s domain.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[s.ID] = s
}

func (c *Catalog) PutProfessional(p domain.Professional) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.professionals[p.ID] = p
}

func (c *Catalog) PutScheduleConfig(cfg domain.ScheduleConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.BusinessID] = cfg
}

func (c *Catalog) Service(ctx context.Context, serviceID string) (domain.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[serviceID]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return s, nil
}

func (c *Catalog) Professional(ctx context.Context, professionalID string) (domain.Professional, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.professionals[professionalID]
	if !ok {
		return domain.Professional{}, store.ErrNotFound
	}
	return p, nil
}

func (c *Catalog) ScheduleConfig(ctx context.Context, businessID string) (domain.ScheduleConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.configs[businessID]
	if !ok {
		return domain.ScheduleConfig{}, store.ErrNotFound
	}
	return cfg, nil
}
