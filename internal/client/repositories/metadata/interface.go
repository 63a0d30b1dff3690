package metadata

import (
	"context"
)

// Repository is a small key-value store for agent bookkeeping, most notably
// the pull watermark persisted after each completed sync round.
//
// Get returns (nil, nil) for a missing key so callers can treat absence as
// a zero value without a sentinel check.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
