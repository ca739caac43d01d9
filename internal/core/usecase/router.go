package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

// RetrievalRouter composes the analyzer, the multihop coordinator and the
// hypothetical retriever into one uniform retrieve operation:
//
//	INIT -> DECOMPOSE -> ROUTE -> {MULTIHOP | STANDARD_OR_HYDE[-> FALLBACK_CHECK]} -> DONE
//
// Multihop and HyDE are mutually exclusive: a multihop result is terminal and
// never re-escalated. Upstream failures never surface to the caller; the
// worst case is an empty chunk list with strategy=standard.
type RetrievalRouter struct {
	analyzer *QueryAnalyzer
	multihop *MultihopCoordinator
	hyde     *HypotheticalRetriever
	stats    *UsageStats
	defaults domain.RetrievalOptions
	logger   *slog.Logger
}

func NewRetrievalRouter(
	analyzer *QueryAnalyzer,
	multihop *MultihopCoordinator,
	hyde *HypotheticalRetriever,
	stats *UsageStats,
	defaults domain.RetrievalOptions,
	logger *slog.Logger,
) *RetrievalRouter {
	if stats == nil {
		stats = NewUsageStats()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.TopKInitial <= 0 || defaults.TopKFinal <= 0 {
		def := domain.DefaultRetrievalOptions()
		if defaults.TopKInitial <= 0 {
			defaults.TopKInitial = def.TopKInitial
		}
		if defaults.TopKFinal <= 0 {
			defaults.TopKFinal = def.TopKFinal
		}
	}
	return &RetrievalRouter{
		analyzer: analyzer,
		multihop: multihop,
		hyde:     hyde,
		stats:    stats,
		defaults: defaults,
		logger:   logger,
	}
}

func (r *RetrievalRouter) Retrieve(
	ctx context.Context,
	question string,
	scope domain.SearchScope,
	opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("question is empty"))
	}
	opts = r.normalizeOptions(opts)

	r.stats.RecordQuery()

	dec := r.analyzer.Analyze(ctx, question, scope)

	if opts.EnableMultihop && dec.RequiresMultihop {
		result, err := r.multihop.Retrieve(ctx, dec, scope, opts.TopKInitial, opts.TopKFinal)
		if err == nil {
			r.stats.RecordMultihop()
			r.logResult(question, result)
			return result, nil
		}
		// Precondition races cannot happen here; degrade rather than fail.
		r.logger.Warn("multihop_degraded_to_standard", "error", err)
	}

	active := false
	skipReason := skipNotApplicable
	if opts.EnableHyde {
		active, skipReason = r.hyde.ShouldActivate(question, dec, scope)
	}

	if active {
		r.stats.RecordHydeActivation()
		result := r.hyde.Retrieve(ctx, question, scope, opts.TopKInitial, opts.TopKFinal)
		result.Decomposition = dec.Summary()
		r.logResult(question, result)
		return result, nil
	}

	result := r.hyde.RetrieveStandard(ctx, question, scope, opts.TopKInitial, opts.TopKFinal)
	result.Hyde.SkipReason = skipReason

	if opts.EnableHyde && r.hyde.FallbackEligible(skipReason) {
		checked := r.hyde.FallbackCheck(ctx, question, scope, opts.TopKInitial, opts.TopKFinal, result)
		if checked.Strategy == domain.StrategyHydeFallback {
			r.stats.RecordHydeActivation()
			checked.Hyde.SkipReason = skipReason
		}
		result = checked
	}

	if result.Strategy == domain.StrategyStandard {
		r.stats.RecordStandard()
	}
	result.Decomposition = dec.Summary()
	r.logResult(question, result)
	return result, nil
}

// Snapshot exposes the cross-query usage counters.
func (r *RetrievalRouter) Snapshot() domain.UsageSnapshot {
	return r.stats.Snapshot()
}

func (r *RetrievalRouter) normalizeOptions(opts domain.RetrievalOptions) domain.RetrievalOptions {
	if opts.TopKInitial <= 0 {
		opts.TopKInitial = r.defaults.TopKInitial
	}
	if opts.TopKFinal <= 0 {
		opts.TopKFinal = r.defaults.TopKFinal
	}
	if opts.TopKFinal > opts.TopKInitial {
		opts.TopKFinal = opts.TopKInitial
	}
	return opts
}

func (r *RetrievalRouter) logResult(question string, result *domain.RetrievalResult) {
	r.logger.Info("retrieval_done",
		"strategy", result.Strategy,
		"query_type", result.Decomposition.QueryType,
		"chunks", len(result.Chunks),
		"rounds_failed", result.Stats.RoundsFailed,
		"hyde_used", result.Hyde.Used,
		"fallback", result.Hyde.FallbackTriggered,
		"question_len", len(question),
	)
}
