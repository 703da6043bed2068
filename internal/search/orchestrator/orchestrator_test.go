// internal/search/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"carsearch/internal/common/config"
	apperrors "carsearch/internal/common/errors"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
	"carsearch/internal/search/merchantai"
	"carsearch/internal/search/normalize"
	"carsearch/internal/search/quota"
	"carsearch/internal/search/ratelimit"
	"carsearch/internal/search/scoring"
	"carsearch/internal/search/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Doubles
// ==========================

type fakeAdapter struct {
	name    string
	records []models.RawRecord
	err     error
	delay   time.Duration
	calls   int32
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, _ models.SearchCriteria) (*models.RawResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, source.ErrFetchTimeout
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.RawResult{
		Source:    f.name,
		Records:   f.records,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeAdapter) callCount() int32 { return atomic.LoadInt32(&f.calls) }

// hangingAdapter never looks at its context; the fan-out must report it as
// timed out on its behalf.
type hangingAdapter struct {
	name string
}

func (h *hangingAdapter) Name() string { return h.name }

func (h *hangingAdapter) Fetch(context.Context, models.SearchCriteria) (*models.RawResult, error) {
	time.Sleep(10 * time.Second)
	return nil, source.ErrFetchFailed
}

type fakeAnalyzer struct {
	result *models.MerchantAIResult
	err    error
	calls  int32
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []models.ScoredListing, _ *models.ClientProfile) (*models.MerchantAIResult, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

// ==========================
// Test Helper Functions
// ==========================

type fixture struct {
	orchestrator *Orchestrator
	rateStore    *ratelimit.MemoryStore
	quotaStore   *quota.MemoryStore
	limiter      *ratelimit.Limiter
	ledger       *quota.Ledger
}

type fixtureOpts struct {
	searchQuota int
	rateLimit   int
	adapters    []source.Adapter
	analyzer    Analyzer
	maxListings int
	runTimeout  int
}

func createFixture(t *testing.T, opts fixtureOpts) *fixture {
	log := logger.NewTestLogger(t)

	rateStore := ratelimit.NewMemoryStore()
	limiter := ratelimit.NewLimiter(rateStore, map[string]config.LimitConfig{
		"search": {Requests: opts.rateLimit, WindowMs: 60_000},
	}, log)

	quotaStore := quota.NewMemoryStore()
	ledger := quota.NewLedger(quotaStore, config.QuotasConfig{
		Actions:        map[string]int{"search": opts.searchQuota, "analysis": 2},
		UnlimitedTiers: []string{"admin"},
	}, log)

	runTimeout := opts.runTimeout
	if runTimeout == 0 {
		runTimeout = 500
	}
	cfg := config.SearchConfig{
		RunTimeout:    runTimeout,
		SourceTimeout: runTimeout,
		MaxListings:   opts.maxListings,
		TopForAI:      5,
	}

	baseline := &scoring.StaticBaseline{Medians: map[string]float64{"peugeot 208": 12000}}
	engine := scoring.NewEngine(config.ScoringConfig{
		PriceWeight: 0.40, YearWeight: 0.15, MileageWeight: 0.10,
		FuelWeight: 0.04, GearboxWeight: 0.03, SellerWeight: 0.03,
		CompletenessWeight: 0.25,
	}, baseline, log)

	return &fixture{
		orchestrator: New(cfg, limiter, ledger, opts.adapters,
			normalize.NewNormalizer(log), engine, opts.analyzer, nil, log),
		rateStore:  rateStore,
		quotaStore: quotaStore,
		limiter:    limiter,
		ledger:     ledger,
	}
}

func createRequest() models.SearchRequest {
	return models.SearchRequest{
		Criteria: models.RawCriteria{
			Brand:    "Peugeot",
			Model:    "208",
			MinPrice: 5000,
			MaxPrice: 15000,
			MinYear:  2015,
			MaxYear:  2022,
		},
	}
}

func testIdentity() models.Identity {
	return models.Identity{UserID: "user-1", Tier: "free"}
}

func createRecords(ids ...string) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, models.RawRecord{
			NativeID: id,
			Title:    "Peugeot 208",
			Brand:    "Peugeot",
			Model:    "208",
			Price:    "11000",
			Year:     "2019",
			Mileage:  "40000",
			Fuel:     "essence",
			Gearbox:  "manual",
			Seller:   "professional",
			ZipCode:  "69003",
			URL:      "https://x/" + id,
		})
	}
	return records
}

func searchUsageKey(userID string) string {
	return "quota:search:" + userID + ":" + time.Now().UTC().Format("2006-01")
}

// ==========================
// Happy Path / Partial Success
// ==========================

func TestRun_AllSourcesSucceed(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", records: createRecords("a1", "a2")},
			&fakeAdapter{name: "leboncoin", records: createRecords("b1")},
		},
	})

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)

	assert.NotEmpty(t, resp.RequestID)
	assert.Len(t, resp.Listings, 3)
	assert.False(t, resp.Degraded)
	assert.Equal(t, models.SourceStatusOK, resp.SourceStatus["lacentrale"])
	assert.Equal(t, models.SourceStatusOK, resp.SourceStatus["leboncoin"])

	// Ranks are contiguous from 1.
	for i, s := range resp.Listings {
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, int64(1), f.quotaStore.Usage(searchUsageKey("user-1")))
}

func TestRun_PartialFailureIsSuccess(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, runTimeout: 200,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", records: createRecords("a1")},
			&fakeAdapter{name: "leboncoin", delay: 5 * time.Second},
			&fakeAdapter{name: "inventory", err: source.ErrFetchFailed},
		},
	})

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr, "one healthy source makes the run a success")

	assert.Len(t, resp.Listings, 1)
	assert.Equal(t, models.SourceStatusOK, resp.SourceStatus["lacentrale"])
	assert.Equal(t, models.SourceStatusTimeout, resp.SourceStatus["leboncoin"])
	assert.Equal(t, models.SourceStatusError, resp.SourceStatus["inventory"])

	// The partial run still costs exactly one quota unit.
	assert.Equal(t, int64(1), f.quotaStore.Usage(searchUsageKey("user-1")))
}

func TestRun_AllSourcesFail(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", err: source.ErrFetchFailed},
			&fakeAdapter{name: "leboncoin", err: source.ErrChallenge},
		},
	})

	_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.NotNil(t, stdErr)
	assert.Equal(t, apperrors.ErrCodeAllSourcesFailed, stdErr.Code)

	// The run produced nothing, so the reserved unit is refunded.
	assert.Equal(t, int64(0), f.quotaStore.Usage(searchUsageKey("user-1")))
}

func TestRun_RespectsRunDeadline(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, runTimeout: 150,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", records: createRecords("a1")},
			&fakeAdapter{name: "leboncoin", delay: 10 * time.Second},
		},
	})

	start := time.Now()
	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)

	assert.Less(t, time.Since(start), 2*time.Second, "slow source must not stall the run")
	assert.Equal(t, models.SourceStatusTimeout, resp.SourceStatus["leboncoin"])
	assert.Len(t, resp.Listings, 1, "late results are discarded, not merged")
}

func TestRun_HangingSourceCannotDropDeliveredResults(t *testing.T) {
	// One source delivers immediately, the other sleeps straight through
	// every deadline. The delivered result must survive the expiry and the
	// hanging source must be reported as a timeout, not block the run.
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, runTimeout: 100,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", records: createRecords("a1")},
			&hangingAdapter{name: "leboncoin"},
		},
	})

	start := time.Now()
	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, resp.Listings, 1)
	assert.Equal(t, models.SourceStatusOK, resp.SourceStatus["lacentrale"])
	assert.Equal(t, models.SourceStatusTimeout, resp.SourceStatus["leboncoin"])
}

func TestRun_CapsListings(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, maxListings: 2,
		adapters: []source.Adapter{
			&fakeAdapter{name: "lacentrale", records: createRecords("a1", "a2", "a3", "a4")},
		},
	})

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)
	assert.Len(t, resp.Listings, 2)
}

// ==========================
// Gate Tests
// ==========================

func TestRun_ValidationFailureCollectsAllViolations(t *testing.T) {
	adapter := &fakeAdapter{name: "lacentrale", records: createRecords("a1")}
	f := createFixture(t, fixtureOpts{searchQuota: 5, rateLimit: 5, adapters: []source.Adapter{adapter}})

	req := createRequest()
	req.Criteria.Brand = ""
	req.Criteria.MinPrice = 9000
	req.Criteria.MaxPrice = 4000

	_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
	require.NotNil(t, stdErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, stdErr.Code)

	violations := stdErr.Metadata["violations"].([]string)
	assert.GreaterOrEqual(t, len(violations), 2, "all violations reported in one pass")
	assert.Zero(t, adapter.callCount())
	assert.Equal(t, int64(0), f.quotaStore.Usage(searchUsageKey("user-1")))
}

func TestRun_QuotaExhaustedBeforeAnySideEffect(t *testing.T) {
	adapter := &fakeAdapter{name: "lacentrale", records: createRecords("a1")}
	f := createFixture(t, fixtureOpts{searchQuota: 0, rateLimit: 5, adapters: []source.Adapter{adapter}})

	_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.NotNil(t, stdErr)
	assert.Equal(t, apperrors.ErrCodeSearchQuotaExhausted, stdErr.Code)
	assert.Zero(t, adapter.callCount(), "no adapter may be invoked")

	// The rate window must be untouched: the next registration is the first.
	decision, err := f.limiter.Allow(context.Background(), "user-1", "search")
	require.NoError(t, err)
	assert.Equal(t, 4, decision.Remaining)
}

func TestRun_RateLimitedReleasesQuota(t *testing.T) {
	adapter := &fakeAdapter{name: "lacentrale", records: createRecords("a1")}
	f := createFixture(t, fixtureOpts{searchQuota: 10, rateLimit: 1, adapters: []source.Adapter{adapter}})

	_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)

	_, stdErr = f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.NotNil(t, stdErr)
	assert.Equal(t, apperrors.ErrCodeRateLimited, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Greater(t, stdErr.Metadata["retryAfterMs"].(int64), int64(0))

	// Only the admitted run consumed quota.
	assert.Equal(t, int64(1), f.quotaStore.Usage(searchUsageKey("user-1")))
	assert.Equal(t, int32(1), adapter.callCount())
}

func TestRun_UnlimitedTierSkipsQuotaCounters(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 0, rateLimit: 5,
		adapters: []source.Adapter{&fakeAdapter{name: "lacentrale", records: createRecords("a1")}},
	})

	resp, stdErr := f.orchestrator.Run(context.Background(), models.Identity{UserID: "admin-1", Tier: "admin"}, createRequest())
	require.Nil(t, stdErr)
	assert.Len(t, resp.Listings, 1)
	assert.Equal(t, int64(0), f.quotaStore.Usage(searchUsageKey("admin-1")))
}

// ==========================
// Enrichment Tests
// ==========================

func TestRun_EnrichmentSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.MerchantAIResult{Summary: "tight market", Confidence: 0.8}}
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, analyzer: analyzer,
		adapters: []source.Adapter{&fakeAdapter{name: "lacentrale", records: createRecords("a1")}},
	})

	req := createRequest()
	req.RequestEnrichment = true
	req.ClientProfile = &models.ClientProfile{Urgency: "high"}

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
	require.Nil(t, stdErr)

	require.NotNil(t, resp.MerchantAnalysis)
	assert.Equal(t, "tight market", resp.MerchantAnalysis.Summary)
	assert.False(t, resp.Degraded)
}

func TestRun_EnrichmentTimeoutDegradesGracefully(t *testing.T) {
	analyzer := &fakeAnalyzer{err: merchantai.ErrAnalysisTimeout}
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, analyzer: analyzer,
		adapters: []source.Adapter{&fakeAdapter{name: "lacentrale", records: createRecords("a1")}},
	})

	req := createRequest()
	req.RequestEnrichment = true

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
	require.Nil(t, stdErr, "analysis failure never fails the run")

	assert.Len(t, resp.Listings, 1, "listings survive the degraded enrichment")
	assert.Nil(t, resp.MerchantAnalysis)
	assert.True(t, resp.Degraded)

	// Search unit spent, analysis unit refunded.
	assert.Equal(t, int64(1), f.quotaStore.Usage(searchUsageKey("user-1")))
	assert.Equal(t, int64(0), f.quotaStore.Usage("quota:analysis:user-1:"+time.Now().UTC().Format("2006-01")))
}

func TestRun_AnalysisQuotaExhaustedFailsBeforeDispatch(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.MerchantAIResult{}}
	adapter := &fakeAdapter{name: "lacentrale", records: createRecords("a1")}
	f := createFixture(t, fixtureOpts{searchQuota: 10, rateLimit: 10, analyzer: analyzer, adapters: []source.Adapter{adapter}})

	req := createRequest()
	req.RequestEnrichment = true

	// Burn the analysis allowance (2 in the fixture).
	for i := 0; i < 2; i++ {
		_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
		require.Nil(t, stdErr)
	}

	_, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
	require.NotNil(t, stdErr)
	assert.Equal(t, apperrors.ErrCodeAnalysisQuotaExhausted, stdErr.Code)

	// The denied run refunded its search reservation too.
	assert.Equal(t, int64(2), f.quotaStore.Usage(searchUsageKey("user-1")))
}

func TestRun_EnrichmentWithoutAnalyzerDegrades(t *testing.T) {
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5,
		adapters: []source.Adapter{&fakeAdapter{name: "lacentrale", records: createRecords("a1")}},
	})

	req := createRequest()
	req.RequestEnrichment = true

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), req)
	require.Nil(t, stdErr)

	assert.Len(t, resp.Listings, 1)
	assert.Nil(t, resp.MerchantAnalysis)
	assert.True(t, resp.Degraded, "requested enrichment that cannot run degrades the response")

	// No analysis unit is reserved, let alone spent.
	assert.Equal(t, int64(0), f.quotaStore.Usage("quota:analysis:user-1:"+time.Now().UTC().Format("2006-01")))
}

func TestRun_NoEnrichmentRequestedSkipsAnalyzer(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &models.MerchantAIResult{}}
	f := createFixture(t, fixtureOpts{
		searchQuota: 5, rateLimit: 5, analyzer: analyzer,
		adapters: []source.Adapter{&fakeAdapter{name: "lacentrale", records: createRecords("a1")}},
	})

	resp, stdErr := f.orchestrator.Run(context.Background(), testIdentity(), createRequest())
	require.Nil(t, stdErr)
	assert.Nil(t, resp.MerchantAnalysis)
	assert.Zero(t, atomic.LoadInt32(&analyzer.calls))
}
