package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
	"github.com/docuquery/retrieval-engine/internal/core/ports"
)

type MultihopConfig struct {
	MaxConcurrent int
	TopKPerRound  int
	RoundTimeout  time.Duration
	Boosts        BoostTable
}

func (c MultihopConfig) normalize() MultihopConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.TopKPerRound <= 0 {
		c.TopKPerRound = 8
	}
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = 10 * time.Second
	}
	c.Boosts = c.Boosts.Normalize()
	return c
}

// MultihopCoordinator runs one search round per sub-query and fuses the
// rounds with provenance-based scoring. Rounds are independent and read-only;
// a failed round contributes an empty result and never aborts its siblings.
type MultihopCoordinator struct {
	embedder ports.Embedder
	searcher ports.VectorSearcher
	cfg      MultihopConfig
	logger   *slog.Logger
}

func NewMultihopCoordinator(embedder ports.Embedder, searcher ports.VectorSearcher, cfg MultihopConfig, logger *slog.Logger) *MultihopCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultihopCoordinator{
		embedder: embedder,
		searcher: searcher,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

func (c *MultihopCoordinator) Retrieve(
	ctx context.Context,
	dec domain.Decomposition,
	scope domain.SearchScope,
	topKInitial, topKFinal int,
) (*domain.RetrievalResult, error) {
	if !dec.RequiresMultihop || len(dec.SubQueries) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "multihop retrieve", errMultihopPrecondition)
	}

	rounds := make([][]domain.RetrievedChunk, len(dec.SubQueries))
	failed := make([]bool, len(dec.SubQueries))

	// The candidate budget spreads over the rounds; the configured per-round
	// breadth acts as a floor so narrow budgets keep useful rounds.
	perRound := c.cfg.TopKPerRound
	if derived := (topKInitial + len(dec.SubQueries) - 1) / len(dec.SubQueries); derived > perRound {
		perRound = derived
	}

	poolSize := c.cfg.MaxConcurrent
	if len(dec.SubQueries) < poolSize {
		poolSize = len(dec.SubQueries)
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		pool = nil
	}

	var wg sync.WaitGroup
	for i, subQuery := range dec.SubQueries {
		wg.Add(1)
		task := c.roundTask(ctx, &wg, i, subQuery, scope, perRound, rounds, failed)
		if pool == nil || pool.Submit(task) != nil {
			task()
		}
	}
	wg.Wait()
	if pool != nil {
		pool.Release()
	}

	fused := fuseRounds(rounds, c.cfg.Boosts)

	stats := domain.RetrievalStats{
		RoundsTotal:    len(dec.SubQueries),
		UniqueChunks:   len(fused),
		MeanFusedScore: meanFusedScore(fused),
		SourceCounts:   sourceCountHistogram(fused),
	}
	for _, f := range failed {
		if f {
			stats.RoundsFailed++
		}
	}
	if dec.QueryType == domain.QueryComparison {
		stats.ComparisonPairs = pairSubQueriesByEntity(dec.SubQueries)
	}

	return &domain.RetrievalResult{
		Chunks:        trimChunks(fused, topKFinal),
		Strategy:      domain.StrategyMultihop,
		Decomposition: dec.Summary(),
		Stats:         stats,
	}, nil
}

// roundTask embeds and searches one sub-query with its own timeout. Failures
// are absorbed: the round is marked failed and the remaining rounds proceed.
func (c *MultihopCoordinator) roundTask(
	ctx context.Context,
	wg *sync.WaitGroup,
	index int,
	subQuery string,
	scope domain.SearchScope,
	limit int,
	rounds [][]domain.RetrievedChunk,
	failed []bool,
) func() {
	return func() {
		defer wg.Done()

		roundCtx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
		defer cancel()

		vector, err := c.embedder.EmbedQuery(roundCtx, subQuery)
		if err != nil {
			failed[index] = true
			c.logger.Warn("multihop_round_failed", "round", index, "stage", "embed", "error", err)
			return
		}

		chunks, err := c.searcher.Search(roundCtx, vector, limit, scope)
		if err != nil {
			failed[index] = true
			c.logger.Warn("multihop_round_failed", "round", index, "stage", "search", "error", err)
			return
		}

		tag := domain.ProvenanceSubQuery(index)
		for i := range chunks {
			chunks[i].Provenance = tag
		}
		rounds[index] = chunks
	}
}

var errMultihopPrecondition = errors.New("decomposition does not require multihop")

func sourceCountHistogram(chunks []domain.FusedChunk) map[int]int {
	if len(chunks) == 0 {
		return nil
	}
	hist := make(map[int]int)
	for _, c := range chunks {
		hist[c.SourceCount]++
	}
	return hist
}

// pairSubQueriesByEntity tags each comparison sub-query with the tokens that
// distinguish it from its siblings, preserving the entity pairing for
// downstream structured answering. Tokens shared by every sub-query are
// treated as the common frame and dropped; a sub-query left with no
// distinguishing tokens is omitted rather than paired with a guess.
func pairSubQueriesByEntity(subQueries []string) []domain.ComparisonPair {
	if len(subQueries) < 2 {
		return nil
	}

	tokenSets := make([]map[string]struct{}, len(subQueries))
	for i, sq := range subQueries {
		tokenSets[i] = tokenSet(sq)
	}

	shared := make(map[string]struct{})
	for token := range tokenSets[0] {
		inAll := true
		for _, set := range tokenSets[1:] {
			if _, ok := set[token]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			shared[token] = struct{}{}
		}
	}

	pairs := make([]domain.ComparisonPair, 0, len(subQueries))
	for i, sq := range subQueries {
		distinct := make([]string, 0, 4)
		for _, token := range tokenize(sq) {
			if _, ok := shared[token]; !ok {
				distinct = append(distinct, token)
			}
		}
		if len(distinct) == 0 {
			continue
		}
		pairs = append(pairs, domain.ComparisonPair{Entity: strings.Join(distinct, " "), QueryIndex: i})
	}
	if len(pairs) == 0 {
		return nil
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].QueryIndex < pairs[j].QueryIndex })
	return pairs
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
