package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

func TestIncrementUsage_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementUsage(ctx, "u1", "2026-10", "readings")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Usage("u1", "2026-10", "readings"))
}

func TestDecrement_NeverNegative(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.DecrementUsage(ctx, "u1", "2026-10", "readings"))
	assert.Equal(t, 0, s.Usage("u1", "2026-10", "readings"))

	n, err := s.Increment(ctx, "anon:c1:2026-10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Decrement(ctx, "anon:c1:2026-10"))
	require.NoError(t, s.Decrement(ctx, "anon:c1:2026-10"))
	assert.Equal(t, 0, s.Counter("anon:c1:2026-10"))
}

func TestSaveMetrics_CountsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveMetrics(ctx, domain.MetricsRecord{RequestID: "r1", Status: domain.StatusAccepted}))
	require.NoError(t, s.SaveMetrics(ctx, domain.MetricsRecord{RequestID: "r1", Status: domain.StatusGateBlocked}))

	rec, writes, ok := s.Metrics("r1")
	require.True(t, ok)
	assert.Equal(t, 2, writes)
	assert.Equal(t, domain.StatusGateBlocked, rec.Status)

	_, _, ok = s.Metrics("missing")
	assert.False(t, ok)
}
