package rediscache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
	"agenda/backend/internal/store/memory"
)

type countingSource struct {
	*memory.Catalog
	services atomic.Int32
	configs  atomic.Int32
	gate     chan struct{}
}

func (s *countingSource) Service(ctx context.Context, id string) (domain.Service, error) {
	s.services.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.Catalog.Service(ctx, id)
}

func (s *countingSource) ScheduleConfig(ctx context.Context, businessID string) (domain.ScheduleConfig, error) {
	s.configs.Add(1)
	return s.Catalog.ScheduleConfig(ctx, businessID)
}

func setup(t *testing.T) (*Cache, *countingSource, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := &countingSource{Catalog: memory.NewCatalog()}
	src.PutService(domain.Service{ID: "cut", BusinessID: "b1", Name: "Cut", DurationMinutes: 30, MinAdvanceMinutes: 60, Active: true})
	src.PutProfessional(domain.Professional{ID: "p1", BusinessID: "b1", Name: "Ana", Active: true})
	src.PutScheduleConfig(domain.ScheduleConfig{
		BusinessID: "b1",
		Timezone:   "America/Sao_Paulo",
		Days: []domain.DayHours{{
			Weekday:     time.Monday,
			IsOpen:      true,
			Start:       domain.NewClockTime(9, 0),
			BreakStart:  domain.NewClockTime(12, 0),
			BreakEnd:    domain.NewClockTime(13, 0),
			BreakActive: true,
			End:         domain.NewClockTime(18, 0),
		}},
		CancellationMinHours: 24,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, src, src, time.Minute, logger), src, mr
}

func TestCache_ReadThrough(t *testing.T) {
	c, src, mr := setup(t)
	ctx := context.Background()

	first, err := c.Service(ctx, "cut")
	require.NoError(t, err)
	second, err := c.Service(ctx, "cut")
	require.NoError(t, err)

	assert.Equal(t, first.DurationMinutes, second.DurationMinutes)
	assert.Equal(t, 60, second.MinAdvanceMinutes)
	assert.Equal(t, int32(1), src.services.Load(), "second read should hit the cache")
	assert.True(t, mr.Exists(serviceKey("cut")))
	assert.Equal(t, time.Minute, mr.TTL(serviceKey("cut")))
}

func TestCache_ScheduleConfigRoundTrip(t *testing.T) {
	c, src, _ := setup(t)
	ctx := context.Background()

	_, err := c.ScheduleConfig(ctx, "b1")
	require.NoError(t, err)
	cfg, err := c.ScheduleConfig(ctx, "b1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.configs.Load())
	monday := cfg.Day(time.Monday)
	assert.True(t, monday.BreakActive)
	assert.Equal(t, domain.NewClockTime(12, 0), monday.BreakStart)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	c, src, mr := setup(t)
	ctx := context.Background()

	_, err := c.Service(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, mr.Exists(serviceKey("missing")))

	src.PutService(domain.Service{ID: "missing", BusinessID: "b1", DurationMinutes: 15, Active: true})
	svc, err := c.Service(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 15, svc.DurationMinutes)
}

func TestCache_Invalidate(t *testing.T) {
	c, src, _ := setup(t)
	ctx := context.Background()

	_, err := c.Service(ctx, "cut")
	require.NoError(t, err)

	src.PutService(domain.Service{ID: "cut", BusinessID: "b1", DurationMinutes: 45, Active: true})
	require.NoError(t, c.InvalidateService(ctx, "cut"))

	svc, err := c.Service(ctx, "cut")
	require.NoError(t, err)
	assert.Equal(t, 45, svc.DurationMinutes)
	assert.Equal(t, int32(2), src.services.Load())
}

func TestCache_FallsBackWhenRedisIsDown(t *testing.T) {
	c, src, mr := setup(t)
	mr.Close()

	p, err := c.Professional(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "b1", p.BusinessID)

	_, err = c.Service(context.Background(), "cut")
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.services.Load())
}

func TestCache_CorruptEntryIsReloaded(t *testing.T) {
	c, src, mr := setup(t)
	require.NoError(t, mr.Set(serviceKey("cut"), "{not json"))

	svc, err := c.Service(context.Background(), "cut")
	require.NoError(t, err)
	assert.Equal(t, 30, svc.DurationMinutes)
	assert.Equal(t, int32(1), src.services.Load())
}

func TestCache_CollapsesConcurrentMisses(t *testing.T) {
	c, src, _ := setup(t)
	src.gate = make(chan struct{})

	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Service(context.Background(), "cut")
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return src.services.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.services.Load())
}
