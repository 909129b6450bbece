package cache

import (
	"context"
	"time"

	"mizpos/terminal/internal/domain"
)

// LookupCache fronts barcode lookups during checkout bursts. A miss or cache
// error always falls through to the store; Flush is called after catalog
// sync and soft-delete/restore so stale codes never resolve.
type LookupCache interface {
	Get(ctx context.Context, code string) (*domain.Product, bool, error)
	Set(ctx context.Context, code string, product *domain.Product, ttl time.Duration) error
	Flush(ctx context.Context) error
}

type NoopLookupCache struct{}

func (NoopLookupCache) Get(context.Context, string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopLookupCache) Set(context.Context, string, *domain.Product, time.Duration) error {
	return nil
}

func (NoopLookupCache) Flush(context.Context) error {
	return nil
}
