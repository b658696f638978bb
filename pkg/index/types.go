// Package index defines the vector+attribute store that backs the
// online query path. Drug documents live under key drug:{ndc}; the
// semantic cache occupies a separate namespace so planner entries can
// never collide with drug documents.
//
// The store supports, in a single query, exact-tag match, numeric
// equality and ranges, full-text match on name fields, KNN by cosine
// distance, and the hybrid combination of a prefilter with KNN.
package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// KeyPrefix prefixes every drug document key.
const KeyPrefix = "drug:"

var ndcPattern = regexp.MustCompile(`^\d{11}$`)

// DrugDocument is one indexed NDC.
type DrugDocument struct {
	NDC              string    `json:"ndc"`
	DrugName         string    `json:"drug_name"`
	BrandName        string    `json:"brand_name"`
	GenericName      string    `json:"generic_name"`
	DrugClass        string    `json:"drug_class"`
	TherapeuticClass string    `json:"therapeutic_class"`
	GCNSeqno         int64     `json:"gcn_seqno"`
	DosageForm       string    `json:"dosage_form"`
	Strength         string    `json:"strength"`
	Route            string    `json:"route"`
	ManufacturerName string    `json:"manufacturer_name"`
	IsGeneric        bool      `json:"is_generic"`
	IsActive         bool      `json:"is_active"`
	DEASchedule      string    `json:"dea_schedule"`
	Embedding        []float32 `json:"-"`
}

// Key returns the document's store key.
func (d *DrugDocument) Key() string {
	return DocKey(d.NDC)
}

// DocKey builds the store key for an NDC.
func DocKey(ndc string) string {
	return KeyPrefix + ndc
}

// ValidNDC reports whether s is a well-formed 11-digit NDC.
func ValidNDC(s string) bool {
	return ndcPattern.MatchString(s)
}

// IntRange is an inclusive numeric range; nil bounds are open.
type IntRange struct {
	GTE *int64
	LTE *int64
}

// Condition matches one field. Exactly one matcher is set.
type Condition struct {
	Field    string
	Keyword  *string
	Keywords []string
	Bool     *bool
	Int      *int64
	Range    *IntRange
	Text     *string
}

// Filter combines conditions. Must conditions all hold, MustNot
// conditions all fail, and at least one Should condition holds when
// any are present.
type Filter struct {
	Must    []Condition
	MustNot []Condition
	Should  []Condition
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.Must) == 0 && len(f.MustNot) == 0 && len(f.Should) == 0)
}

// Tag adds an exact-match condition.
func (f *Filter) Tag(field, value string) *Filter {
	f.Must = append(f.Must, Condition{Field: field, Keyword: &value})
	return f
}

// TagIn adds an any-of condition.
func (f *Filter) TagIn(field string, values []string) *Filter {
	f.Must = append(f.Must, Condition{Field: field, Keywords: values})
	return f
}

// BoolEq adds a boolean condition.
func (f *Filter) BoolEq(field string, value bool) *Filter {
	f.Must = append(f.Must, Condition{Field: field, Bool: &value})
	return f
}

// IntEq adds a numeric equality condition.
func (f *Filter) IntEq(field string, value int64) *Filter {
	f.Must = append(f.Must, Condition{Field: field, Int: &value})
	return f
}

// IntNeq adds a numeric inequality condition.
func (f *Filter) IntNeq(field string, value int64) *Filter {
	f.MustNot = append(f.MustNot, Condition{Field: field, Int: &value})
	return f
}

// NotKey excludes a single document by its key field value.
func (f *Filter) NotKey(field, value string) *Filter {
	f.MustNot = append(f.MustNot, Condition{Field: field, Keyword: &value})
	return f
}

// TextAny adds full-text conditions over several fields; a document
// matches when any field matches all query tokens.
func (f *Filter) TextAny(fields []string, query string) *Filter {
	for _, field := range fields {
		q := query
		f.Should = append(f.Should, Condition{Field: field, Text: &q})
	}
	return f
}

// Query is one retrieval call against the drug index. Either branch
// may be empty: a pure filter query, a pure KNN, or both (hybrid).
type Query struct {
	// Filter prefilters candidates before KNN, or selects them
	// outright when Vector is empty.
	Filter *Filter

	// Vector enables KNN by cosine distance.
	Vector []float32

	// K is the KNN top-k.
	K int

	// Limit caps filter-only result counts.
	Limit int
}

// Hit is one query result. Score is cosine similarity for vector hits
// and zero for filter-only hits.
type Hit struct {
	Doc   *DrugDocument
	Score float32
}

// DrugStore is the capability surface of the drug document namespace.
// The query path treats it as read-only; only the loader writes.
type DrugStore interface {
	// EnsureIndexes creates the collection and field indexes if needed.
	EnsureIndexes(ctx context.Context, dimension int) error

	// Put overwrites the document under its key.
	Put(ctx context.Context, doc *DrugDocument) error

	// PutBatch overwrites a batch of documents.
	PutBatch(ctx context.Context, docs []*DrugDocument) error

	// Get fetches a document by NDC. Returns rxerr.KindNotFound when
	// the key does not exist.
	Get(ctx context.Context, ndc string) (*DrugDocument, error)

	// Delete removes a document by NDC.
	Delete(ctx context.Context, ndc string) error

	// Query runs a filter, KNN, or hybrid query.
	Query(ctx context.Context, q *Query) ([]Hit, error)

	Close() error
}

// CacheHit is one nearest-neighbor cache lookup result.
type CacheHit struct {
	ID       string
	Payload  []byte
	StoredAt time.Time

	// Distance is the cosine distance between the probe and the entry.
	Distance float64
}

// CacheStore is the semantic-cache namespace: entries keyed by
// surrogate id, searched by embedding similarity.
type CacheStore interface {
	// EnsureIndexes creates the cache collection if needed.
	EnsureIndexes(ctx context.Context, dimension int) error

	// Put stores an entry.
	Put(ctx context.Context, id string, vector []float32, payload []byte, storedAt time.Time) error

	// Nearest returns the single closest entry, or ok=false when the
	// namespace is empty.
	Nearest(ctx context.Context, vector []float32) (hit CacheHit, ok bool, err error)

	// Delete removes an entry.
	Delete(ctx context.Context, id string) error

	Close() error
}

func (d *DrugDocument) payloadMap() map[string]interface{} {
	return map[string]interface{}{
		"key":               d.Key(),
		"ndc":               d.NDC,
		"drug_name":         d.DrugName,
		"brand_name":        d.BrandName,
		"generic_name":      d.GenericName,
		"drug_class":        d.DrugClass,
		"therapeutic_class": d.TherapeuticClass,
		"gcn_seqno":         d.GCNSeqno,
		"dosage_form":       d.DosageForm,
		"strength":          d.Strength,
		"route":             d.Route,
		"manufacturer_name": d.ManufacturerName,
		"is_generic":        d.IsGeneric,
		"is_active":         d.IsActive,
		"dea_schedule":      d.DEASchedule,
	}
}

func documentFromPayload(payload map[string]interface{}) (*DrugDocument, error) {
	doc := &DrugDocument{
		NDC:              stringField(payload, "ndc"),
		DrugName:         stringField(payload, "drug_name"),
		BrandName:        stringField(payload, "brand_name"),
		GenericName:      stringField(payload, "generic_name"),
		DrugClass:        stringField(payload, "drug_class"),
		TherapeuticClass: stringField(payload, "therapeutic_class"),
		GCNSeqno:         intField(payload, "gcn_seqno"),
		DosageForm:       stringField(payload, "dosage_form"),
		Strength:         stringField(payload, "strength"),
		Route:            stringField(payload, "route"),
		ManufacturerName: stringField(payload, "manufacturer_name"),
		IsGeneric:        boolField(payload, "is_generic"),
		IsActive:         boolField(payload, "is_active"),
		DEASchedule:      stringField(payload, "dea_schedule"),
	}
	if doc.NDC == "" {
		return nil, fmt.Errorf("document payload is missing ndc")
	}
	if key := stringField(payload, "key"); key != "" && key != doc.Key() {
		return nil, fmt.Errorf("document key %q does not match ndc %q", key, doc.NDC)
	}
	return doc, nil
}

func stringField(payload map[string]interface{}, field string) string {
	if v, ok := payload[field].(string); ok {
		return v
	}
	return ""
}

func intField(payload map[string]interface{}, field string) int64 {
	switch v := payload[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func boolField(payload map[string]interface{}, field string) bool {
	switch v := payload[field].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
