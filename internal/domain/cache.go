package domain

import (
	"context"
	"time"
)

// PriceCache provides fast shared access to the latest reference price, so
// that multiple keeper instances quoting related pairs can share one feed
// read without each hitting the upstream source.
type PriceCache interface {
	SetPrice(ctx context.Context, key string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (float64, time.Time, error)
	GetPrices(ctx context.Context, keys []string) (map[string]float64, error)
}

// LockManager provides distributed locking, used to guarantee that only one
// instance of a keeper for a given pair is running against an exchange
// account at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
