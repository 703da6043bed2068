// internal/search/quota/ledger_test.go
package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"carsearch/internal/common/config"
	"carsearch/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestQuotas() config.QuotasConfig {
	return config.QuotasConfig{
		Actions:        map[string]int{"search": 3, "analysis": 1},
		UnlimitedTiers: []string{"admin", "enterprise"},
	}
}

func createMemoryLedger(t *testing.T) (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	return NewLedger(store, createTestQuotas(), logger.NewTestLogger(t)), store
}

func usageKey(l *Ledger, userID, action string) string {
	return fmt.Sprintf("quota:%s:%s:%s", action, userID, time.Now().UTC().Format("2006-01"))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestLedger_ReserveWithinAllowance(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "user-1", "free", "search")
	require.NoError(t, err)
	assert.False(t, res.Unlimited)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, int64(1), store.Usage(usageKey(ledger, "user-1", "search")))
}

func TestLedger_ExhaustedAfterAllowance(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := ledger.Reserve(ctx, "user-1", "free", "search")
		require.NoError(t, err)
		ledger.Commit(ctx, res)
	}

	_, err := ledger.Reserve(ctx, "user-1", "free", "search")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	// The failed reserve must not leave a phantom unit behind.
	assert.Equal(t, int64(3), store.Usage(usageKey(ledger, "user-1", "search")))
}

func TestLedger_UnlimitedTierBypassesStore(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := ledger.Reserve(ctx, "admin-1", "ADMIN", "search")
		require.NoError(t, err)
		assert.True(t, res.Unlimited)
		ledger.Commit(ctx, res)
	}

	assert.Equal(t, int64(0), store.Usage(usageKey(ledger, "admin-1", "search")))
}

func TestLedger_ReleaseRefundsUnit(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "user-1", "free", "search")
	require.NoError(t, err)
	require.Equal(t, int64(1), store.Usage(usageKey(ledger, "user-1", "search")))

	ledger.Release(ctx, res)
	assert.Equal(t, int64(0), store.Usage(usageKey(ledger, "user-1", "search")),
		"a zero-result failure must not be charged")

	// Release is idempotent.
	ledger.Release(ctx, res)
	assert.Equal(t, int64(0), store.Usage(usageKey(ledger, "user-1", "search")))
}

func TestLedger_CommitBlocksRelease(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "user-1", "free", "search")
	require.NoError(t, err)
	ledger.Commit(ctx, res)
	ledger.Release(ctx, res)

	assert.Equal(t, int64(1), store.Usage(usageKey(ledger, "user-1", "search")),
		"a committed run stays charged exactly once")
}

func TestLedger_ActionsAreSeparate(t *testing.T) {
	ledger, _ := createMemoryLedger(t)
	ctx := context.Background()

	res, err := ledger.Reserve(ctx, "user-1", "free", "analysis")
	require.NoError(t, err)
	ledger.Commit(ctx, res)

	_, err = ledger.Reserve(ctx, "user-1", "free", "analysis")
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	_, err = ledger.Reserve(ctx, "user-1", "free", "search")
	assert.NoError(t, err, "search allowance must be untouched by analysis usage")
}

func TestLedger_UnknownAction(t *testing.T) {
	ledger, _ := createMemoryLedger(t)

	_, err := ledger.Reserve(context.Background(), "user-1", "free", "export")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

// ==========================
// Concurrency Tests
// ==========================

func TestLedger_ConcurrentReservesNeverOverspend(t *testing.T) {
	ledger, store := createMemoryLedger(t)
	ctx := context.Background()

	const n = 40
	var granted int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res, err := ledger.Reserve(ctx, "user-1", "free", "search")
			if err == nil {
				atomic.AddInt64(&granted, 1)
				ledger.Commit(ctx, res)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), granted)
	assert.Equal(t, int64(3), store.Usage(usageKey(ledger, "user-1", "search")))
}

// ==========================
// Redis Store Tests
// ==========================

func TestLedger_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ledger := NewLedger(NewRedisStore(client), createTestQuotas(), logger.NewTestLogger(t))
	ctx := context.Background()

	res1, err := ledger.Reserve(ctx, "user-1", "free", "analysis")
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, "user-1", "free", "analysis")
	assert.ErrorIs(t, err, ErrQuotaExhausted)

	ledger.Release(ctx, res1)

	res2, err := ledger.Reserve(ctx, "user-1", "free", "analysis")
	require.NoError(t, err)
	ledger.Commit(ctx, res2)
}
