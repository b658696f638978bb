package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/grouping"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/observability"
	"github.com/medscout/rxsearch/pkg/planner"
	"github.com/medscout/rxsearch/pkg/retrieval"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// Service runs the online pipeline.
type Service struct {
	cfg     *config.Config
	planner *planner.Planner
	engine  *retrieval.Engine
	store   index.DrugStore
	logger  *slog.Logger
}

// NewService assembles the pipeline.
func NewService(cfg *config.Config, p *planner.Planner, engine *retrieval.Engine, store index.DrugStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		planner: p,
		engine:  engine,
		store:   store,
		logger:  logger,
	}
}

// Search answers a free-text drug query with ranked, grouped
// families. The returned response carries the metrics envelope even
// when the error is non-nil.
func (s *Service) Search(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	metrics := observability.GetGlobalMetrics()
	resp := &Response{Results: []grouping.Family{}}

	finish := func(status string, err error) (*Response, error) {
		resp.Metrics.TotalMS = time.Since(start).Milliseconds()
		metrics.RecordSearch(ctx, time.Since(start), status, resp.Metrics.FromCache)
		return resp, err
	}

	maxResults, err := s.resolveMaxResults(req.MaxResults)
	if err != nil {
		return finish("invalid_input", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline(s.cfg.Deadlines.TotalMS))
	defer cancel()

	// Stage 1: plan. Planner failures degrade internally to a null
	// plan; only malformed input surfaces here.
	plannerCtx, cancelPlanner := context.WithTimeout(ctx, s.deadline(s.cfg.Deadlines.PlannerMS))
	plannerStart := time.Now()
	plan, err := s.planner.Plan(plannerCtx, req.Query)
	cancelPlanner()
	plannerLatency := time.Since(plannerStart)
	metrics.RecordStage(ctx, "planner", plannerLatency)
	if err != nil {
		return finish("invalid_input", err)
	}
	metrics.RecordCacheLookup(ctx, plan.FromCache)

	resp.Metrics.FromCache = plan.FromCache
	resp.Metrics.LLM = LLMMetrics{
		InputTokens:    plan.Usage.InputTokens,
		OutputTokens:   plan.Usage.OutputTokens,
		ModelLatencyMS: plan.Metrics.ModelLatency.Milliseconds(),
		TotalLatencyMS: plan.Metrics.TotalLatency.Milliseconds(),
	}
	resp.Metrics.CostUSD = s.estimateCost(plan)
	if plan.Usage.InputTokens > 0 {
		metrics.RecordLLMUsage(ctx, "planner", plan.Usage.InputTokens, plan.Usage.OutputTokens, resp.Metrics.CostUSD)
	}
	resp.Query = QueryInfo{
		Original:    req.Query,
		Expanded:    plan.ExpandedText,
		Corrections: plan.Corrections,
	}

	overlayFilters(plan, req.Filters)

	// Stage 2: retrieve. The engine runs its vector and lexical
	// passes concurrently under the combined embedding+index budget.
	retrievalBudget := s.deadline(s.cfg.Deadlines.EmbeddingMS + s.cfg.Deadlines.IndexMS)
	retrievalCtx, cancelRetrieval := context.WithTimeout(ctx, retrievalBudget)
	result, err := s.engine.Retrieve(retrievalCtx, req.Query, plan, maxResults)
	cancelRetrieval()
	if err != nil {
		return finish(rxerr.KindOf(err).String(), err)
	}
	resp.Metrics.EmbeddingMS = result.EmbeddingLatency.Milliseconds()
	resp.Metrics.IndexMS = result.IndexLatency.Milliseconds()
	metrics.RecordStage(ctx, "embedding", result.EmbeddingLatency)
	metrics.RecordStage(ctx, "index", result.IndexLatency)

	// Stage 3: group and rank. Pure computation, no deadline.
	groupStart := time.Now()
	resp.Results = grouping.Group(req.Query, plan.Corrections, result.Candidates, maxResults)
	metrics.RecordStage(ctx, "grouping", time.Since(groupStart))

	return finish("ok", nil)
}

// Drug fetches a single document by NDC.
func (s *Service) Drug(ctx context.Context, ndc string) (*DrugResponse, error) {
	start := time.Now()
	resp := &DrugResponse{}

	ctx, cancel := context.WithTimeout(ctx, s.deadline(s.cfg.Deadlines.IndexMS))
	defer cancel()

	if !index.ValidNDC(ndc) {
		resp.Metrics.TotalMS = time.Since(start).Milliseconds()
		return resp, rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: must be 11 digits", ndc)
	}

	indexStart := time.Now()
	doc, err := s.store.Get(ctx, ndc)
	resp.Metrics.IndexMS = time.Since(indexStart).Milliseconds()
	resp.Metrics.TotalMS = time.Since(start).Milliseconds()
	if err != nil {
		return resp, err
	}
	resp.Document = doc
	return resp, nil
}

// Alternatives returns same-GCN therapeutic equivalents and same-class
// alternatives for an NDC, split into generic and brand options.
func (s *Service) Alternatives(ctx context.Context, ndc string) (*AlternativesResponse, error) {
	start := time.Now()
	resp := &AlternativesResponse{}

	ctx, cancel := context.WithTimeout(ctx, s.deadline(s.cfg.Deadlines.IndexMS))
	defer cancel()

	if !index.ValidNDC(ndc) {
		resp.Metrics.TotalMS = time.Since(start).Milliseconds()
		return resp, rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: must be 11 digits", ndc)
	}

	indexStart := time.Now()
	doc, err := s.store.Get(ctx, ndc)
	if err != nil {
		resp.Metrics.IndexMS = time.Since(indexStart).Milliseconds()
		resp.Metrics.TotalMS = time.Since(start).Milliseconds()
		return resp, err
	}
	resp.Drug = doc

	limit := s.cfg.Retrieval.AlternativesLimit

	// Same (ingredient, strength, form) tuple, excluding self.
	var equivalents []index.Hit
	if doc.GCNSeqno > 0 {
		filter := (&index.Filter{}).IntEq("gcn_seqno", doc.GCNSeqno).NotKey("ndc", doc.NDC)
		equivalents, err = s.store.Query(ctx, &index.Query{Filter: filter, Limit: 2 * limit})
		if err != nil {
			resp.Metrics.TotalMS = time.Since(start).Milliseconds()
			return resp, err
		}
	}

	// Same therapeutic class, different tuple.
	var alternatives []index.Hit
	if doc.TherapeuticClass != "" {
		filter := (&index.Filter{}).Tag("therapeutic_class", doc.TherapeuticClass)
		if doc.GCNSeqno > 0 {
			filter.IntNeq("gcn_seqno", doc.GCNSeqno)
		}
		alternatives, err = s.store.Query(ctx, &index.Query{Filter: filter, Limit: 2 * limit})
		if err != nil {
			resp.Metrics.TotalMS = time.Since(start).Milliseconds()
			return resp, err
		}
	}
	resp.Metrics.IndexMS = time.Since(indexStart).Milliseconds()

	resp.Alternatives = collectAlternatives(doc, equivalents, alternatives, limit)
	resp.Metrics.TotalMS = time.Since(start).Milliseconds()
	return resp, nil
}

// collectAlternatives groups both hit sets and splits the ordered
// variants into generic and brand options.
func collectAlternatives(self *index.DrugDocument, equivalents, alternatives []index.Hit, limit int) Alternatives {
	candidates := make([]retrieval.Candidate, 0, len(equivalents)+len(alternatives))
	seen := map[string]bool{self.NDC: true}
	for _, hit := range equivalents {
		if seen[hit.Doc.NDC] {
			continue
		}
		seen[hit.Doc.NDC] = true
		candidates = append(candidates, retrieval.Candidate{Doc: hit.Doc})
	}
	for _, hit := range alternatives {
		if seen[hit.Doc.NDC] {
			continue
		}
		seen[hit.Doc.NDC] = true
		candidates = append(candidates, retrieval.Candidate{Doc: hit.Doc})
	}

	families := grouping.Group(self.DrugName, nil, candidates, 0)

	out := Alternatives{
		GenericOptions: []grouping.Variant{},
		BrandOptions:   []grouping.Variant{},
	}
	for _, family := range families {
		for _, v := range family.Variants {
			if v.IsGeneric {
				if len(out.GenericOptions) < limit {
					out.GenericOptions = append(out.GenericOptions, v)
				}
			} else if len(out.BrandOptions) < limit {
				out.BrandOptions = append(out.BrandOptions, v)
			}
		}
	}
	out.TotalCount = len(out.GenericOptions) + len(out.BrandOptions)
	return out
}

func (s *Service) resolveMaxResults(requested int) (int, error) {
	if requested == 0 {
		return s.cfg.Retrieval.DefaultMaxResults, nil
	}
	if requested < 1 || requested > s.cfg.Retrieval.MaxResultsCap {
		return 0, rxerr.Newf(rxerr.KindInvalidInput, "max_results must be between 1 and %d", s.cfg.Retrieval.MaxResultsCap)
	}
	return requested, nil
}

func (s *Service) estimateCost(plan *planner.Plan) float64 {
	return float64(plan.Usage.InputTokens)/1000*s.cfg.Pricing.LLMInputPer1K +
		float64(plan.Usage.OutputTokens)/1000*s.cfg.Pricing.LLMOutputPer1K
}

func (s *Service) deadline(ms int) time.Duration {
	if ms <= 0 {
		return time.Minute
	}
	return time.Duration(ms) * time.Millisecond
}

// overlayFilters lets explicit request filters override what the
// planner inferred.
func overlayFilters(plan *planner.Plan, req *planner.Filters) {
	if req == nil {
		return
	}
	if req.DrugClass != "" {
		plan.Filters.DrugClass = req.DrugClass
	}
	if req.TherapeuticClass != "" {
		plan.Filters.TherapeuticClass = req.TherapeuticClass
	}
	if req.Indication != "" {
		plan.Filters.Indication = req.Indication
	}
	if req.DosageForm != "" {
		plan.Filters.DosageForm = req.DosageForm
	}
	if req.Route != "" {
		plan.Filters.Route = req.Route
	}
	if req.IsGeneric != nil {
		plan.Filters.IsGeneric = req.IsGeneric
	}
	if req.DEASchedule != "" {
		plan.Filters.DEASchedule = req.DEASchedule
	}
}
