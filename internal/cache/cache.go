package cache

import (
	"context"
	"time"
)

// ReportCache holds rendered report payloads for a short TTL. Transactional
// paths never go through it; a stale report is acceptable, a stale stock
// check is not.
type ReportCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}
