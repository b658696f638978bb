// Package retrieval runs a planned query against the drug index. Two
// passes execute concurrently: a hybrid vector pass over the expanded
// text and a lexical pass over the raw user tokens. The lexical pass
// guarantees exact name matches are never dominated by vector noise.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/embedders"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/planner"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// nameFields are the text-indexed fields the lexical pass matches.
var nameFields = []string{"drug_name", "brand_name", "generic_name"}

// Candidate is one fused, scored document.
type Candidate struct {
	Doc *index.DrugDocument

	// Score in [0,1]: cosine similarity, plus the lexical boost for
	// lexically matched candidates, forced to 1.0 on exact name
	// equality with the raw query.
	Score float64

	// Lexical marks candidates found by the lexical pass.
	Lexical bool
}

// Result carries the fused candidates and pass timings.
type Result struct {
	Candidates []Candidate

	EmbeddingLatency time.Duration
	IndexLatency     time.Duration

	// VectorSkipped is set when the embedding failed and retrieval
	// degraded to the lexical pass alone.
	VectorSkipped bool
}

// Engine fuses vector and lexical retrieval over a drug store.
type Engine struct {
	store    index.DrugStore
	embedder embedders.Embedder
	cfg      *config.RetrievalConfig
	logger   *slog.Logger
}

func New(store index.DrugStore, embedder embedders.Embedder, cfg *config.RetrievalConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve runs both passes for a plan and fuses the candidate sets
// by NDC. maxResults must already be validated by the caller.
func (e *Engine) Retrieve(ctx context.Context, rawQuery string, plan *planner.Plan, maxResults int) (*Result, error) {
	k := 2 * maxResults
	if k < e.cfg.KFloor {
		k = e.cfg.KFloor
	}
	filter := buildFilter(&plan.Filters)

	var (
		vectorHits  []index.Hit
		lexicalHits []index.Hit
		result      Result
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		embedStart := time.Now()
		qvec, err := e.embedder.EmbedQuery(gctx, plan.ExpandedText)
		result.EmbeddingLatency = time.Since(embedStart)
		if err != nil {
			// Vector pass degrades; the lexical pass still answers.
			e.logger.Warn("Query embedding failed, degrading to lexical-only retrieval", "error", err)
			result.VectorSkipped = true
			return nil
		}
		hits, err := e.store.Query(gctx, &index.Query{
			Filter: filter,
			Vector: qvec,
			K:      k,
		})
		if err != nil {
			return indexError(err)
		}
		vectorHits = hits
		return nil
	})

	g.Go(func() error {
		// Corrections join the raw tokens so a corrected misspelling
		// still produces an exact lexical match.
		lexFilter := cloneFilter(filter).TextAny(nameFields, rawQuery)
		for _, correction := range plan.Corrections {
			if correction != "" {
				lexFilter.TextAny(nameFields, correction)
			}
		}
		hits, err := e.store.Query(gctx, &index.Query{
			Filter: lexFilter,
			Limit:  maxResults,
		})
		if err != nil {
			return indexError(err)
		}
		lexicalHits = hits
		return nil
	})

	indexStart := time.Now()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.IndexLatency = time.Since(indexStart)

	result.Candidates = fuse(rawQuery, vectorHits, lexicalHits, e.cfg.LexicalBoost)
	return &result, nil
}

// buildFilter maps plan predicates onto an index filter expression.
// Tag values are ANDed; pipe-separated values become any-of matches.
func buildFilter(f *planner.Filters) *index.Filter {
	out := &index.Filter{}
	addTag(out, "drug_class", f.DrugClass)
	addTag(out, "therapeutic_class", f.TherapeuticClass)
	addTag(out, "dosage_form", f.DosageForm)
	addTag(out, "route", f.Route)
	addTag(out, "dea_schedule", f.DEASchedule)
	if f.IsGeneric != nil {
		out.BoolEq("is_generic", *f.IsGeneric)
	}
	return out
}

func addTag(f *index.Filter, field, value string) {
	if value == "" {
		return
	}
	if strings.Contains(value, "|") {
		parts := strings.Split(value, "|")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if len(values) > 0 {
			f.TagIn(field, values)
		}
		return
	}
	f.Tag(field, value)
}

func cloneFilter(f *index.Filter) *index.Filter {
	out := &index.Filter{}
	out.Must = append(out.Must, f.Must...)
	out.MustNot = append(out.MustNot, f.MustNot...)
	out.Should = append(out.Should, f.Should...)
	return out
}

// fuse merges the two candidate sets by NDC. A document present in
// both keeps its vector similarity and gains the lexical flag.
func fuse(rawQuery string, vectorHits, lexicalHits []index.Hit, boost float64) []Candidate {
	byNDC := make(map[string]*Candidate, len(vectorHits)+len(lexicalHits))
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))

	for _, hit := range vectorHits {
		c := &Candidate{Doc: hit.Doc, Score: float64(hit.Score)}
		byNDC[hit.Doc.NDC] = c
		order = append(order, hit.Doc.NDC)
	}
	for _, hit := range lexicalHits {
		if c, ok := byNDC[hit.Doc.NDC]; ok {
			c.Lexical = true
			continue
		}
		byNDC[hit.Doc.NDC] = &Candidate{Doc: hit.Doc, Lexical: true}
		order = append(order, hit.Doc.NDC)
	}

	normalized := normalizeQuery(rawQuery)
	out := make([]Candidate, 0, len(order))
	for _, ndc := range order {
		c := byNDC[ndc]
		if c.Lexical {
			c.Score += boost
			if c.Score > 1 {
				c.Score = 1
			}
		}
		// A name carrying the raw query outranks any vector hit.
		if normalized != "" &&
			(strings.Contains(normalizeQuery(c.Doc.DrugName), normalized) ||
				strings.Contains(normalizeQuery(c.Doc.BrandName), normalized)) {
			c.Score = 1
		}
		out = append(out, *c)
	}
	return out
}

// normalizeQuery lowercases and collapses whitespace for exact name
// equality checks.
func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// indexError upgrades store failures to ServiceUnavailable: an
// unreachable index fails the whole request, no partial response.
func indexError(err error) error {
	if rxerr.KindOf(err) == rxerr.KindUnknown {
		return rxerr.Wrap(rxerr.KindServiceUnavailable, "index query failed", err)
	}
	return err
}
