// internal/search/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"time"

	"carsearch/internal/common/config"
	apperrors "carsearch/internal/common/errors"
	"carsearch/internal/common/logger"
	"carsearch/internal/common/metrics"
	"carsearch/internal/common/observability"
	"carsearch/internal/models"
	"carsearch/internal/search/criteria"
	"carsearch/internal/search/merchantai"
	"carsearch/internal/search/normalize"
	"carsearch/internal/search/quota"
	"carsearch/internal/search/ratelimit"
	"carsearch/internal/search/scoring"
	"carsearch/internal/search/source"

	"github.com/google/uuid"
)

// runState tracks where a run is in its lifecycle; transitions are linear
// and logged at debug level.
type runState string

const (
	stateValidating runState = "validating"
	stateGated      runState = "gated"
	stateDispatch   runState = "dispatching"
	stateCollecting runState = "collecting"
	stateScoring    runState = "scoring"
	stateAnalyzing  runState = "analyzing"
	stateAssembling runState = "assembling"
	stateCompleted  runState = "completed"
	stateFailed     runState = "failed"
)

const (
	actionSearch   = "search"
	actionAnalysis = "analysis"
)

// Analyzer is the optional enrichment collaborator. Wired to nil, every run
// skips the analysis step regardless of what the caller asked for.
type Analyzer interface {
	Analyze(ctx context.Context, listings []models.ScoredListing, profile *models.ClientProfile) (*models.MerchantAIResult, error)
}

// Orchestrator drives one search run end to end: gate, parallel source
// fan-out under a shared deadline, normalize, score, optional enrichment,
// assembly. Partial source failure is normal operation; the run fails only
// when the gate denies it or every source comes back empty-handed.
type Orchestrator struct {
	cfg       config.SearchConfig
	limiter   *ratelimit.Limiter
	ledger    *quota.Ledger
	adapters  []source.Adapter
	normalize *normalize.Normalizer
	engine    *scoring.Engine
	analyzer  Analyzer
	obs       *observability.Observability
	logger    logger.Logger
}

func New(
	cfg config.SearchConfig,
	limiter *ratelimit.Limiter,
	ledger *quota.Ledger,
	adapters []source.Adapter,
	normalizer *normalize.Normalizer,
	engine *scoring.Engine,
	analyzer Analyzer,
	obs *observability.Observability,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		limiter:   limiter,
		ledger:    ledger,
		adapters:  adapters,
		normalize: normalizer,
		engine:    engine,
		analyzer:  analyzer,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// Run executes one orchestration for the given identity and request. The
// returned StandardError is nil on success, including partial success and
// degraded enrichment.
func (o *Orchestrator) Run(ctx context.Context, identity models.Identity, req models.SearchRequest) (*models.SearchResponse, *apperrors.StandardError) {
	requestID := uuid.NewString()
	start := time.Now()
	log := o.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"userId":    identity.UserID,
	})

	metrics.SearchesStarted.Inc()

	response, stdErr := o.run(ctx, log, requestID, identity, req)

	outcome := "completed"
	switch {
	case stdErr != nil:
		outcome = "failed"
	case response.Degraded:
		outcome = "degraded"
	}
	metrics.SearchesCompleted.WithLabelValues(outcome).Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if o.obs != nil {
		o.obs.RecordRun(ctx, outcome)
		o.obs.RecordRunDuration(ctx, time.Since(start), outcome)
	}
	return response, stdErr
}

func (o *Orchestrator) run(ctx context.Context, log logger.Logger, requestID string, identity models.Identity, req models.SearchRequest) (*models.SearchResponse, *apperrors.StandardError) {
	o.transition(log, stateValidating)

	validated, verr := criteria.Validate(req.Criteria)
	if verr != nil {
		return nil, apperrors.NewValidationFailedError(verr.Violations())
	}

	// Gate. Quota is reserved before the rate limiter registers the
	// request, so a quota denial leaves the rate window untouched.
	o.transition(log, stateGated)

	searchRes, err := o.ledger.Reserve(ctx, identity.UserID, identity.Tier, actionSearch)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExhausted) {
			metrics.GateDenials.WithLabelValues("quota", actionSearch).Inc()
			return nil, apperrors.NewQuotaExhaustedError(actionSearch, false)
		}
		return nil, apperrors.NewQuotaCheckFailedError(err)
	}

	decision, err := o.limiter.Allow(ctx, identity.UserID, actionSearch)
	if err != nil {
		o.ledger.Release(ctx, searchRes)
		return nil, apperrors.NewQuotaCheckFailedError(err)
	}
	if !decision.Allowed {
		o.ledger.Release(ctx, searchRes)
		metrics.GateDenials.WithLabelValues("rate_limit", actionSearch).Inc()
		return nil, apperrors.NewRateLimitedError(actionSearch, decision.RetryAfter)
	}

	var analysisRes *quota.Reservation
	if req.RequestEnrichment && o.analyzer != nil {
		analysisRes, err = o.ledger.Reserve(ctx, identity.UserID, identity.Tier, actionAnalysis)
		if err != nil {
			o.ledger.Release(ctx, searchRes)
			if errors.Is(err, quota.ErrQuotaExhausted) {
				metrics.GateDenials.WithLabelValues("quota", actionAnalysis).Inc()
				return nil, apperrors.NewQuotaExhaustedError(actionAnalysis, false)
			}
			return nil, apperrors.NewQuotaCheckFailedError(err)
		}
	}

	// Fan-out.
	o.transition(log, stateDispatch)
	results, sourceStatus := o.fanOut(ctx, log, validated)

	if len(results) == 0 {
		// Nothing was delivered; the reserved units go back.
		o.ledger.Release(ctx, searchRes)
		o.ledger.Release(ctx, analysisRes)
		return nil, apperrors.NewAllSourcesUnavailableError(len(o.adapters))
	}

	// A run with at least one successful source is a successful run; the
	// search unit is spent from here on no matter what happens downstream.
	o.ledger.Commit(ctx, searchRes)

	o.transition(log, stateScoring)
	listings := normalize.Deduplicate(o.normalize.Normalize(results))
	scored := o.engine.Rank(ctx, validated, listings)
	if o.cfg.MaxListings > 0 && len(scored) > o.cfg.MaxListings {
		scored = scored[:o.cfg.MaxListings]
	}

	response := &models.SearchResponse{
		RequestID:    requestID,
		Listings:     scored,
		SourceStatus: sourceStatus,
	}

	if analysisRes != nil {
		o.transition(log, stateAnalyzing)
		o.enrich(ctx, log, req.ClientProfile, scored, analysisRes, response)
	} else if req.RequestEnrichment {
		// Enrichment was asked for but no analyzer is wired.
		log.Warn("enrichment requested without a configured analyzer", map[string]interface{}{
			"degraded": true,
		})
		response.Degraded = true
	}

	o.transition(log, stateAssembling)
	log.Info("run completed", map[string]interface{}{
		"listings": len(response.Listings),
		"sources":  sourceStatus,
		"degraded": response.Degraded,
	})
	o.transition(log, stateCompleted)
	return response, nil
}

// fanOut dispatches every adapter in parallel under the shared run deadline
// and collects whatever arrives in time. A source that misses the deadline
// is reported as timed out and its late result discarded.
func (o *Orchestrator) fanOut(ctx context.Context, log logger.Logger, validated models.SearchCriteria) ([]*models.RawResult, map[string]models.SourceStatus) {
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunDeadline())
	defer cancel()

	type outcome struct {
		source string
		result *models.RawResult
		err    error
	}

	ch := make(chan outcome, len(o.adapters))
	for _, adapter := range o.adapters {
		go func(a source.Adapter) {
			srcCtx, srcCancel := context.WithTimeout(runCtx, o.cfg.SourceDeadline())
			defer srcCancel()

			inner := make(chan outcome, 1)
			go func() {
				start := time.Now()
				result, err := a.Fetch(srcCtx, validated)
				metrics.SourceFetchDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
				inner <- outcome{source: a.Name(), result: result, err: err}
			}()

			// An adapter that ignores its deadline gets a timeout reported
			// on its behalf; whatever it eventually returns is discarded.
			select {
			case out := <-inner:
				ch <- out
			case <-srcCtx.Done():
				ch <- outcome{source: a.Name(), err: source.ErrFetchTimeout}
			}
		}(adapter)
	}

	o.transition(log, stateCollecting)
	results := make([]*models.RawResult, 0, len(o.adapters))
	sourceStatus := make(map[string]models.SourceStatus, len(o.adapters))

	// Every wrapper reports by its source deadline at the latest, so
	// collection reads exactly one outcome per adapter and a result that
	// arrived in time can never be dropped.
	for range o.adapters {
		out := <-ch
		status := classifyOutcome(out.err)
		sourceStatus[out.source] = status
		metrics.SourceFetches.WithLabelValues(out.source, string(status)).Inc()
		if out.err != nil {
			srcErr := sourceError(out.source, out.err)
			log.Warn("source fetch failed", map[string]interface{}{
				"source": out.source,
				"code":   string(srcErr.Code),
				"error":  srcErr.Details,
			})
			continue
		}
		results = append(results, out.result)
	}
	return results, sourceStatus
}

// sourceError shapes an adapter failure into the standard taxonomy for
// logging; the run itself never fails on a single source.
func sourceError(name string, err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, source.ErrFetchTimeout):
		return apperrors.NewSourceTimeoutError(name)
	case errors.Is(err, source.ErrChallenge):
		return apperrors.NewSourceChallengeError(name)
	default:
		return apperrors.NewSourceFetchFailedError(name, err)
	}
}

// enrich runs the analyzer on the top-ranked listings. Failure never fails
// the run; the response degrades and the analysis unit is refunded.
func (o *Orchestrator) enrich(ctx context.Context, log logger.Logger, profile *models.ClientProfile, scored []models.ScoredListing, analysisRes *quota.Reservation, response *models.SearchResponse) {
	top := scored
	if o.cfg.TopForAI > 0 && len(top) > o.cfg.TopForAI {
		top = top[:o.cfg.TopForAI]
	}

	analysis, err := o.analyzer.Analyze(ctx, top, profile)
	if err != nil {
		degErr := apperrors.NewAIAnalysisFailedError(err)
		status := "error"
		if errors.Is(err, merchantai.ErrAnalysisTimeout) {
			degErr = apperrors.NewAITimeoutError()
			status = "timeout"
		}
		metrics.AIAnalyses.WithLabelValues(status).Inc()
		log.Warn("merchant analysis degraded", map[string]interface{}{
			"code":   string(degErr.Code),
			"status": status,
			"error":  err.Error(),
		})
		o.ledger.Release(ctx, analysisRes)
		response.Degraded = true
		return
	}

	metrics.AIAnalyses.WithLabelValues("ok").Inc()
	o.ledger.Commit(ctx, analysisRes)
	response.MerchantAnalysis = analysis
}

func classifyOutcome(err error) models.SourceStatus {
	switch {
	case err == nil:
		return models.SourceStatusOK
	case errors.Is(err, source.ErrFetchTimeout):
		return models.SourceStatusTimeout
	default:
		return models.SourceStatusError
	}
}

func (o *Orchestrator) transition(log logger.Logger, state runState) {
	log.Debug("state transition", map[string]interface{}{"state": string(state)})
}
