package cache

import (
	"context"
	"time"

	"kihaan/backend/internal/domain"
)

// DashboardCache holds computed dashboard stats for a short TTL so the
// dashboard does not hit the aggregate queries on every page load.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
}

// NoopDashboardCache is used when redis is not configured.
type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}
