package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/medscout/rxsearch/pkg/rxerr"
)

// MemoryStore is an embedded, in-process drug store. KNN runs on a
// chromem collection; attribute filters are evaluated in Go against a
// document map, since the richer conditions (ranges, text match,
// should-groups) exceed chromem's exact-equality metadata filter.
//
// Intended for tests and single-node development; production runs on
// the Qdrant backend.
type MemoryStore struct {
	mu   sync.RWMutex
	db   *chromem.DB
	col  *chromem.Collection
	docs map[string]*DrugDocument
}

func noExternalEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectors must be pre-computed")
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() (*MemoryStore, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("drugs", nil, noExternalEmbedding)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindInternal, "failed to create collection", err)
	}
	return &MemoryStore{
		db:   db,
		col:  col,
		docs: make(map[string]*DrugDocument),
	}, nil
}

func (s *MemoryStore) EnsureIndexes(ctx context.Context, dimension int) error {
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, doc *DrugDocument) error {
	return s.PutBatch(ctx, []*DrugDocument{doc})
}

func (s *MemoryStore) PutBatch(ctx context.Context, docs []*DrugDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if !ValidNDC(doc.NDC) {
			return rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: must be 11 digits", doc.NDC)
		}
		copied := *doc
		s.docs[doc.NDC] = &copied
		if len(doc.Embedding) > 0 {
			entries = append(entries, chromem.Document{
				ID:        doc.NDC,
				Content:   doc.DrugName,
				Embedding: doc.Embedding,
			})
		}
	}
	if len(entries) > 0 {
		if err := s.col.AddDocuments(ctx, entries, runtime.NumCPU()); err != nil {
			return rxerr.Wrap(rxerr.KindInternal, "failed to index documents", err)
		}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ndc string) (*DrugDocument, error) {
	if !ValidNDC(ndc) {
		return nil, rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: must be 11 digits", ndc)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[ndc]
	if !ok {
		return nil, rxerr.Newf(rxerr.KindNotFound, "drug %s not found", ndc)
	}
	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ndc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[ndc]; !ok {
		return rxerr.Newf(rxerr.KindNotFound, "drug %s not found", ndc)
	}
	delete(s.docs, ndc)
	if err := s.col.Delete(ctx, nil, nil, ndc); err != nil {
		return rxerr.Wrap(rxerr.KindInternal, "failed to delete document", err)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, q *Query) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.Vector) > 0 {
		return s.queryKNN(ctx, q)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = q.K
	}
	var hits []Hit
	for _, doc := range s.docs {
		if matchFilter(q.Filter, doc) {
			copied := *doc
			hits = append(hits, Hit{Doc: &copied})
		}
	}
	// Stable order for filter-only scans.
	sort.Slice(hits, func(i, j int) bool { return hits[i].Doc.NDC < hits[j].Doc.NDC })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) queryKNN(ctx context.Context, q *Query) ([]Hit, error) {
	total := s.col.Count()
	if total == 0 {
		return nil, nil
	}

	// Filters are applied after the ANN pass, so pull the whole
	// collection when one is present.
	n := q.K
	if !q.Filter.Empty() || n > total {
		n = total
	}
	results, err := s.col.QueryEmbedding(ctx, q.Vector, n, nil, nil)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindInternal, "knn query failed", err)
	}

	hits := make([]Hit, 0, q.K)
	for _, r := range results {
		doc, ok := s.docs[r.ID]
		if !ok || !matchFilter(q.Filter, doc) {
			continue
		}
		copied := *doc
		hits = append(hits, Hit{Doc: &copied, Score: r.Similarity})
		if len(hits) == q.K {
			break
		}
	}
	return hits, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func matchFilter(f *Filter, doc *DrugDocument) bool {
	if f.Empty() {
		return true
	}
	for _, cond := range f.Must {
		if !matchCondition(cond, doc) {
			return false
		}
	}
	for _, cond := range f.MustNot {
		if matchCondition(cond, doc) {
			return false
		}
	}
	if len(f.Should) > 0 {
		any := false
		for _, cond := range f.Should {
			if matchCondition(cond, doc) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

func matchCondition(cond Condition, doc *DrugDocument) bool {
	switch {
	case cond.Keyword != nil:
		return fieldString(doc, cond.Field) == *cond.Keyword
	case len(cond.Keywords) > 0:
		v := fieldString(doc, cond.Field)
		for _, k := range cond.Keywords {
			if v == k {
				return true
			}
		}
		return false
	case cond.Bool != nil:
		return fieldBool(doc, cond.Field) == *cond.Bool
	case cond.Int != nil:
		return fieldInt(doc, cond.Field) == *cond.Int
	case cond.Range != nil:
		v := fieldInt(doc, cond.Field)
		if cond.Range.GTE != nil && v < *cond.Range.GTE {
			return false
		}
		if cond.Range.LTE != nil && v > *cond.Range.LTE {
			return false
		}
		return true
	case cond.Text != nil:
		return matchText(fieldString(doc, cond.Field), *cond.Text)
	default:
		return false
	}
}

// matchText mirrors a word-tokenized full-text index: every query
// token must appear as a token of the field value.
func matchText(value, query string) bool {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return false
	}
	fieldTokens := strings.Fields(strings.ToLower(value))
	for _, tok := range tokens {
		found := false
		for _, ft := range fieldTokens {
			if ft == tok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func fieldString(doc *DrugDocument, field string) string {
	switch field {
	case "ndc":
		return doc.NDC
	case "drug_name":
		return doc.DrugName
	case "brand_name":
		return doc.BrandName
	case "generic_name":
		return doc.GenericName
	case "drug_class":
		return doc.DrugClass
	case "therapeutic_class":
		return doc.TherapeuticClass
	case "dosage_form":
		return doc.DosageForm
	case "strength":
		return doc.Strength
	case "route":
		return doc.Route
	case "manufacturer_name":
		return doc.ManufacturerName
	case "dea_schedule":
		return doc.DEASchedule
	default:
		return ""
	}
}

func fieldBool(doc *DrugDocument, field string) bool {
	switch field {
	case "is_generic":
		return doc.IsGeneric
	case "is_active":
		return doc.IsActive
	default:
		return false
	}
}

func fieldInt(doc *DrugDocument, field string) int64 {
	if field == "gcn_seqno" {
		return doc.GCNSeqno
	}
	return 0
}

// MemoryCache is the in-process semantic cache counterpart.
type MemoryCache struct {
	mu      sync.RWMutex
	db      *chromem.DB
	col     *chromem.Collection
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	payload  []byte
	storedAt time.Time
}

func NewMemoryCache() (*MemoryCache, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("planner_cache", nil, noExternalEmbedding)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindInternal, "failed to create cache collection", err)
	}
	return &MemoryCache{
		db:      db,
		col:     col,
		entries: make(map[string]memoryCacheEntry),
	}, nil
}

func (c *MemoryCache) EnsureIndexes(ctx context.Context, dimension int) error {
	return nil
}

func (c *MemoryCache) Put(ctx context.Context, id string, vector []float32, payload []byte, storedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.col.AddDocuments(ctx, []chromem.Document{{
		ID:        id,
		Content:   id,
		Embedding: vector,
	}}, 1)
	if err != nil {
		return rxerr.Wrap(rxerr.KindInternal, "failed to store cache entry", err)
	}
	c.entries[id] = memoryCacheEntry{payload: payload, storedAt: storedAt}
	return nil
}

func (c *MemoryCache) Nearest(ctx context.Context, vector []float32) (CacheHit, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.col.Count() == 0 {
		return CacheHit{}, false, nil
	}
	results, err := c.col.QueryEmbedding(ctx, vector, 1, nil, nil)
	if err != nil {
		return CacheHit{}, false, rxerr.Wrap(rxerr.KindInternal, "cache query failed", err)
	}
	if len(results) == 0 {
		return CacheHit{}, false, nil
	}
	r := results[0]
	entry := c.entries[r.ID]
	return CacheHit{
		ID:       r.ID,
		Payload:  entry.payload,
		StoredAt: entry.storedAt,
		Distance: 1 - float64(r.Similarity),
	}, true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return rxerr.Wrap(rxerr.KindInternal, "failed to delete cache entry", err)
	}
	delete(c.entries, id)
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
