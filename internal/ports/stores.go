package ports

import (
	"context"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

// UsageStore is the relational per-user usage table.
type UsageStore interface {
	// IncrementUsage atomically adds one and returns the new count.
	IncrementUsage(ctx context.Context, userID, month, resource string) (int, error)
	// DecrementUsage atomically subtracts one, never below zero.
	DecrementUsage(ctx context.Context, userID, month, resource string) error
}

// CounterStore is the key-value counter store used for anonymous callers.
type CounterStore interface {
	Increment(ctx context.Context, key string) (int, error)
	Decrement(ctx context.Context, key string) error
}

// MetricsStore persists metrics records keyed by request id.
type MetricsStore interface {
	SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error
}
