package index

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// Field index layout for the drug collection. Name fields get a
// word-tokenized text index for lexical match; the rest are exact-tag
// or numeric indexes used by prefilters.
var (
	keywordFields = []string{"ndc", "drug_class", "dosage_form", "route", "dea_schedule", "manufacturer_name"}
	textFields    = []string{"drug_name", "brand_name", "generic_name", "therapeutic_class"}
	boolFields    = []string{"is_generic", "is_active"}
	intFields     = []string{"gcn_seqno"}
)

// QdrantStore is the Qdrant-backed drug document store.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	quantize   bool
}

// NewQdrantClient dials Qdrant per the index config.
func NewQdrantClient(cfg *config.IndexConfig) (*qdrant.Client, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}

// NewQdrantStore wraps a client as a DrugStore over the given collection.
func NewQdrantStore(client *qdrant.Client, cfg *config.IndexConfig) *QdrantStore {
	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		quantize:   cfg.Quantization == nil || *cfg.Quantization,
	}
}

func (s *QdrantStore) EnsureIndexes(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return qdrantError("check collection", err)
	}
	if !exists {
		create := &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           qdrant.PtrOf(uint64(16)),
				EfConstruct: qdrant.PtrOf(uint64(200)),
			},
		}
		if s.quantize {
			create.QuantizationConfig = qdrant.NewQuantizationScalar(&qdrant.ScalarQuantization{
				Type:      qdrant.QuantizationType_Int8,
				Quantile:  qdrant.PtrOf(float32(0.99)),
				AlwaysRam: qdrant.PtrOf(true),
			})
		}
		if err := s.client.CreateCollection(ctx, create); err != nil {
			return qdrantError("create collection", err)
		}
	}

	for _, field := range keywordFields {
		if err := s.createFieldIndex(ctx, field, qdrant.FieldType_FieldTypeKeyword, nil); err != nil {
			return err
		}
	}
	textParams := &qdrant.PayloadIndexParams{
		IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
			TextIndexParams: &qdrant.TextIndexParams{
				Tokenizer: qdrant.TokenizerType_Word,
				Lowercase: qdrant.PtrOf(true),
			},
		},
	}
	for _, field := range textFields {
		if err := s.createFieldIndex(ctx, field, qdrant.FieldType_FieldTypeText, textParams); err != nil {
			return err
		}
	}
	for _, field := range boolFields {
		if err := s.createFieldIndex(ctx, field, qdrant.FieldType_FieldTypeBool, nil); err != nil {
			return err
		}
	}
	for _, field := range intFields {
		if err := s.createFieldIndex(ctx, field, qdrant.FieldType_FieldTypeInteger, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) createFieldIndex(ctx context.Context, field string, fieldType qdrant.FieldType, params *qdrant.PayloadIndexParams) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName:   s.collection,
		FieldName:        field,
		FieldType:        &fieldType,
		FieldIndexParams: params,
	})
	if err != nil {
		return qdrantError(fmt.Sprintf("create field index %s", field), err)
	}
	return nil
}

func (s *QdrantStore) Put(ctx context.Context, doc *DrugDocument) error {
	return s.PutBatch(ctx, []*DrugDocument{doc})
}

func (s *QdrantStore) PutBatch(ctx context.Context, docs []*DrugDocument) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		id, err := pointID(doc.NDC)
		if err != nil {
			return err
		}
		payload, err := qdrant.TryValueMap(doc.payloadMap())
		if err != nil {
			return rxerr.Wrap(rxerr.KindInternal, "failed to encode document payload", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      id,
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return qdrantError("upsert points", err)
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, ndc string) (*DrugDocument, error) {
	id, err := pointID(ndc)
	if err != nil {
		return nil, err
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{id},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, qdrantError("get point", err)
	}
	if len(points) == 0 {
		return nil, rxerr.Newf(rxerr.KindNotFound, "drug %s not found", ndc)
	}
	return documentFromQdrantPayload(points[0].Payload)
}

func (s *QdrantStore) Delete(ctx context.Context, ndc string) error {
	id, err := pointID(ndc)
	if err != nil {
		return err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(id),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return qdrantError("delete point", err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, q *Query) ([]Hit, error) {
	filter := buildQdrantFilter(q.Filter)

	if len(q.Vector) > 0 {
		points, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQueryDense(q.Vector),
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint64(q.K)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, qdrantError("query points", err)
		}
		hits := make([]Hit, 0, len(points))
		for _, point := range points {
			doc, err := documentFromQdrantPayload(point.Payload)
			if err != nil {
				return nil, rxerr.Wrap(rxerr.KindInternal, "corrupt document payload", err)
			}
			hits = append(hits, Hit{Doc: doc, Score: point.Score})
		}
		return hits, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = q.K
	}
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, qdrantError("scroll points", err)
	}
	hits := make([]Hit, 0, len(points))
	for _, point := range points {
		doc, err := documentFromQdrantPayload(point.Payload)
		if err != nil {
			return nil, rxerr.Wrap(rxerr.KindInternal, "corrupt document payload", err)
		}
		hits = append(hits, Hit{Doc: doc})
	}
	return hits, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// QdrantCache is the Qdrant-backed semantic cache namespace. It lives
// in its own collection so cache entries never mix with drug documents.
type QdrantCache struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantCache(client *qdrant.Client, collection string) *QdrantCache {
	return &QdrantCache{client: client, collection: collection}
}

func (c *QdrantCache) EnsureIndexes(ctx context.Context, dimension int) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return qdrantError("check collection", err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return qdrantError("create collection", err)
	}
	return nil
}

func (c *QdrantCache) Put(ctx context.Context, id string, vector []float32, payload []byte, storedAt time.Time) error {
	values, err := qdrant.TryValueMap(map[string]interface{}{
		"payload":   string(payload),
		"stored_at": storedAt.Unix(),
	})
	if err != nil {
		return rxerr.Wrap(rxerr.KindInternal, "failed to encode cache payload", err)
	}
	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: values,
		}},
	})
	if err != nil {
		return qdrantError("upsert cache entry", err)
	}
	return nil
}

func (c *QdrantCache) Nearest(ctx context.Context, vector []float32) (CacheHit, bool, error) {
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return CacheHit{}, false, qdrantError("query cache", err)
	}
	if len(points) == 0 {
		return CacheHit{}, false, nil
	}
	point := points[0]
	hit := CacheHit{
		ID: point.Id.GetUuid(),
		// Cosine collections score by similarity.
		Distance: 1 - float64(point.Score),
	}
	if v, ok := point.Payload["payload"]; ok {
		hit.Payload = []byte(v.GetStringValue())
	}
	if v, ok := point.Payload["stored_at"]; ok {
		hit.StoredAt = time.Unix(v.GetIntegerValue(), 0)
	}
	return hit, true, nil
}

func (c *QdrantCache) Delete(ctx context.Context, id string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return qdrantError("delete cache entry", err)
	}
	return nil
}

func (c *QdrantCache) Close() error {
	// The client is shared with the drug store; the owner closes it.
	return nil
}

// pointID maps an NDC to a numeric point id. 11 digits always fit in
// a uint64, so the canonical zero-padded string round-trips via the
// payload while the id stays compact.
func pointID(ndc string) (*qdrant.PointId, error) {
	if !ValidNDC(ndc) {
		return nil, rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: must be 11 digits", ndc)
	}
	n, err := strconv.ParseUint(ndc, 10, 64)
	if err != nil {
		return nil, rxerr.Newf(rxerr.KindInvalidInput, "invalid ndc %q: %v", ndc, err)
	}
	return qdrant.NewIDNum(n), nil
}

func buildQdrantFilter(f *Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}
	out := &qdrant.Filter{}
	for _, cond := range f.Must {
		out.Must = append(out.Must, qdrantCondition(cond))
	}
	for _, cond := range f.MustNot {
		out.MustNot = append(out.MustNot, qdrantCondition(cond))
	}
	for _, cond := range f.Should {
		out.Should = append(out.Should, qdrantCondition(cond))
	}
	return out
}

func qdrantCondition(cond Condition) *qdrant.Condition {
	switch {
	case cond.Keyword != nil:
		return qdrant.NewMatchKeyword(cond.Field, *cond.Keyword)
	case len(cond.Keywords) > 0:
		return qdrant.NewMatchKeywords(cond.Field, cond.Keywords...)
	case cond.Bool != nil:
		return qdrant.NewMatchBool(cond.Field, *cond.Bool)
	case cond.Int != nil:
		return qdrant.NewMatchInt(cond.Field, *cond.Int)
	case cond.Range != nil:
		r := &qdrant.Range{}
		if cond.Range.GTE != nil {
			r.Gte = qdrant.PtrOf(float64(*cond.Range.GTE))
		}
		if cond.Range.LTE != nil {
			r.Lte = qdrant.PtrOf(float64(*cond.Range.LTE))
		}
		return qdrant.NewRange(cond.Field, r)
	case cond.Text != nil:
		return qdrant.NewMatchText(cond.Field, *cond.Text)
	default:
		// Unmatchable sentinel for an empty condition.
		return qdrant.NewIsNull(cond.Field)
	}
}

func documentFromQdrantPayload(payload map[string]*qdrant.Value) (*DrugDocument, error) {
	m := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			m[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			m[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			m[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			m[key] = v.BoolValue
		}
	}
	doc, err := documentFromPayload(m)
	if err != nil {
		return nil, rxerr.Wrap(rxerr.KindInternal, "corrupt document payload", err)
	}
	return doc, nil
}

// qdrantError maps transport failures onto service availability kinds
// so the API layer can answer 503 instead of a bare 500.
func qdrantError(op string, err error) error {
	kind := rxerr.KindServiceUnavailable
	switch status.Code(err) {
	case codes.InvalidArgument:
		kind = rxerr.KindInternal
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted:
		kind = rxerr.KindServiceUnavailable
	}
	return rxerr.Wrap(kind, fmt.Sprintf("index: failed to %s", op), err)
}
