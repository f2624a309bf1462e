package quota_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomtoy/tarot-reading/internal/adapters/store/memory"
	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/quota"
)

var fixedNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func limits() quota.Limits {
	return quota.Limits{
		Tiers: map[domain.Tier]int{
			domain.TierFree: 2,
			domain.TierPlus: 10,
			domain.TierPro:  quota.Unlimited,
		},
		Anonymous: 1,
	}
}

func newManager(store *memory.Store) *quota.Manager {
	return quota.NewManager(store, store, limits(), discard()).WithClock(func() time.Time { return fixedNow })
}

func TestReserve_UserWithinLimit(t *testing.T) {
	store := memory.New()
	m := newManager(store)

	r, err := m.Reserve(context.Background(), domain.User{ID: "u1", Tier: domain.TierFree})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, quota.KindUser, r.Kind)
	assert.Equal(t, "2026-10", r.Month)
	assert.Equal(t, 1, store.Usage("u1", "2026-10", "readings"))
}

func TestReserve_UserDenied(t *testing.T) {
	store := memory.New()
	m := newManager(store)
	user := domain.User{ID: "u1", Tier: domain.TierFree}

	for range 2 {
		_, err := m.Reserve(context.Background(), user)
		require.NoError(t, err)
	}
	r, err := m.Reserve(context.Background(), user)
	assert.Nil(t, r)

	var qe *domain.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.Equal(t, 2, qe.Used)
	assert.Equal(t, 2, qe.Limit)
	assert.Equal(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC), qe.ResetAt)
	// The denied attempt leaves no trace.
	assert.Equal(t, 2, store.Usage("u1", "2026-10", "readings"))
}

func TestReserve_UnlimitedTierCountsButNeverDenies(t *testing.T) {
	store := memory.New()
	m := newManager(store)
	user := domain.User{ID: "pro", Tier: domain.TierPro}

	for range 25 {
		_, err := m.Reserve(context.Background(), user)
		require.NoError(t, err)
	}
	assert.Equal(t, 25, store.Usage("pro", "2026-10", "readings"))
}

func TestReserve_AnonymousUsesCounterStore(t *testing.T) {
	store := memory.New()
	m := newManager(store)
	anon := domain.User{Anonymous: true, ClientID: "c1", Tier: domain.TierFree}

	r, err := m.Reserve(context.Background(), anon)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, quota.KindAnonymous, r.Kind)
	assert.Equal(t, 1, store.Counter("anon:c1:2026-10"))

	_, err = m.Reserve(context.Background(), anon)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
}

func TestReserve_AnonymousWithoutLimitPathSkipsAdmission(t *testing.T) {
	store := memory.New()
	l := limits()
	l.Anonymous = 0
	m := quota.NewManager(store, store, l, discard())

	r, err := m.Reserve(context.Background(), domain.User{Anonymous: true, ClientID: "c1"})
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, 0, store.Counter("anon:c1:"+domain.MonthKey(time.Now())))
}

type brokenCounters struct{}

func (brokenCounters) Increment(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}
func (brokenCounters) Decrement(context.Context, string) error { return errors.New("connection refused") }

func TestReserve_AnonymousFailsOpen(t *testing.T) {
	m := quota.NewManager(memory.New(), brokenCounters{}, limits(), discard())

	r, err := m.Reserve(context.Background(), domain.User{Anonymous: true, ClientID: "c1"})
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestRelease_RefundsExactlyOnce(t *testing.T) {
	store := memory.New()
	m := newManager(store)
	user := domain.User{ID: "u1", Tier: domain.TierPlus}

	_, err := m.Reserve(context.Background(), user)
	require.NoError(t, err)
	r, err := m.Reserve(context.Background(), user)
	require.NoError(t, err)
	require.Equal(t, 2, store.Usage("u1", "2026-10", "readings"))

	m.Release(context.Background(), r)
	m.Release(context.Background(), r)

	assert.True(t, r.Released())
	assert.Equal(t, 1, store.Usage("u1", "2026-10", "readings"))
}

func TestRelease_NilAndFailuresAreSilent(t *testing.T) {
	m := quota.NewManager(memory.New(), brokenCounters{}, limits(), discard())
	assert.NotPanics(t, func() {
		m.Release(context.Background(), nil)
		m.Release(context.Background(), &quota.Reservation{Kind: quota.KindAnonymous, Key: "anon:x:2026-10"})
	})
}

// ctxUsage wraps the memory store and fails like a network store once ctx is done.
type ctxUsage struct {
	*memory.Store
	deadline bool
}

func (c *ctxUsage) DecrementUsage(ctx context.Context, userID, month, resource string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, c.deadline = ctx.Deadline()
	return c.Store.DecrementUsage(ctx, userID, month, resource)
}

func TestRelease_SurvivesCanceledContext(t *testing.T) {
	store := memory.New()
	usage := &ctxUsage{Store: store}
	m := quota.NewManager(usage, store, limits(), discard()).WithClock(func() time.Time { return fixedNow })

	r, err := m.Reserve(context.Background(), domain.User{ID: "u1", Tier: domain.TierFree})
	require.NoError(t, err)
	require.Equal(t, 1, store.Usage("u1", "2026-10", "readings"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Release(ctx, r)

	assert.Equal(t, 0, store.Usage("u1", "2026-10", "readings"))
	assert.True(t, usage.deadline, "refund should run under its own deadline")
}
