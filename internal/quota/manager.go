// Package quota admits readings against a monthly usage quota and refunds
// the unit when generation fails for infrastructure reasons.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

const resourceReadings = "readings"

// releaseTimeout bounds a refund that runs after the caller's context is gone.
const releaseTimeout = 5 * time.Second

// Unlimited marks a tier that is counted but never denied.
const Unlimited = -1

// Kind tells which store a reservation incremented.
type Kind string

const (
	KindUser      Kind = "user"
	KindAnonymous Kind = "anonymous"
)

// Reservation is one provisionally consumed quota unit. It is released at
// most once.
type Reservation struct {
	Kind   Kind
	UserID string
	Month  string
	Key    string
	Count  int

	released atomic.Bool
}

// Released reports whether the unit was refunded.
func (r *Reservation) Released() bool { return r.released.Load() }

// Limits maps tiers to monthly reading limits. Anonymous == 0 disables
// admission for anonymous callers entirely.
type Limits struct {
	Tiers     map[domain.Tier]int
	Anonymous int
}

func (l Limits) forTier(t domain.Tier) int {
	if n, ok := l.Tiers[t]; ok {
		return n
	}
	return l.Tiers[domain.TierFree]
}

// Manager reserves and releases quota units. Correctness under concurrency
// relies on the stores' atomic increment and decrement.
type Manager struct {
	usage    ports.UsageStore
	counters ports.CounterStore
	limits   Limits
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(usage ports.UsageStore, counters ports.CounterStore, limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		usage:    usage,
		counters: counters,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Reserve consumes one unit for the caller. It returns a nil reservation
// when admission is skipped, and a *domain.QuotaExceededError on denial.
func (m *Manager) Reserve(ctx context.Context, user domain.User) (*Reservation, error) {
	now := m.now()
	month := domain.MonthKey(now)
	if user.Anonymous {
		return m.reserveAnonymous(ctx, user, month, now)
	}

	limit := m.limits.forTier(user.Tier)
	count, err := m.usage.IncrementUsage(ctx, user.ID, month, resourceReadings)
	if err != nil {
		return nil, fmt.Errorf("reserve usage: %w", err)
	}
	if limit != Unlimited && count > limit {
		if err := m.usage.DecrementUsage(ctx, user.ID, month, resourceReadings); err != nil {
			m.logger.WarnContext(ctx, "undo denied usage increment failed", "user_id", user.ID, "error", err)
		}
		return nil, &domain.QuotaExceededError{Used: count - 1, Limit: limit, ResetAt: domain.NextMonthStart(now)}
	}
	return &Reservation{Kind: KindUser, UserID: user.ID, Month: month, Count: count}, nil
}

func (m *Manager) reserveAnonymous(ctx context.Context, user domain.User, month string, now time.Time) (*Reservation, error) {
	limit := m.limits.Anonymous
	if limit == 0 || m.counters == nil || user.ClientID == "" {
		return nil, nil
	}
	key := "anon:" + user.ClientID + ":" + month
	count, err := m.counters.Increment(ctx, key)
	if err != nil {
		m.logger.WarnContext(ctx, "counter store unavailable, admitting anonymous reading", "error", err)
		return nil, nil
	}
	if limit != Unlimited && count > limit {
		if err := m.counters.Decrement(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "undo denied counter increment failed", "key", key, "error", err)
		}
		return nil, &domain.QuotaExceededError{Used: count - 1, Limit: limit, ResetAt: domain.NextMonthStart(now)}
	}
	return &Reservation{Kind: KindAnonymous, Month: month, Key: key, Count: count}, nil
}

// Release refunds the unit. It is safe to call with nil or more than once;
// store failures are logged and never returned. The refund is detached from
// ctx cancellation so a client disconnect cannot leak the unit.
func (m *Manager) Release(ctx context.Context, r *Reservation) {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	var err error
	switch r.Kind {
	case KindUser:
		err = m.usage.DecrementUsage(ctx, r.UserID, r.Month, resourceReadings)
	case KindAnonymous:
		err = m.counters.Decrement(ctx, r.Key)
	}
	if err != nil {
		m.logger.WarnContext(ctx, "quota refund failed, unit leaked", "kind", r.Kind, "month", r.Month, "error", err)
		return
	}
	m.logger.InfoContext(ctx, "quota unit refunded", "kind", r.Kind, "month", r.Month)
}
