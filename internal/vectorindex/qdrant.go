package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantPayloadIDField stores the caller-supplied (non-UUID) id in the point
// payload, since Qdrant point ids must be a UUID or a positive integer.
// Grounded on qdrant_vector.go's PAYLOAD_ID_FIELD convention.
const qdrantPayloadIDField = "_original_id"

// QdrantBackend is the production Backend, one Qdrant collection per
// configured collection name (the namespace prefix applied by Index keeps
// multiple knowledge bases safely inside it).
type QdrantBackend struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// NewQdrantBackend dials dsn (host[:port], gRPC on 6334 by default; an
// "api_key" query parameter is honored) and ensures collection exists with
// the given dimension/metric, creating it if absent.
func NewQdrantBackend(ctx context.Context, dsn, collection string, dimensions int, metric string) (*QdrantBackend, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil || parsed.Host == "" {
		// A bare host[:port] has no scheme; parse it as an authority.
		parsed, err = url.Parse("//" + dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	b := &QdrantBackend{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := b.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return b, nil
}

func (b *QdrantBackend) ensureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if b.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	var distance qdrant.Distance
	switch b.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	return b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.dimension),
			Distance: distance,
		}),
	})
}

// matchConditions builds one equality qdrant.Condition per filter key.
// "$in" membership (spec §6) is implemented one layer up, by Index fanning
// out one equality-filtered Search per candidate value and unioning
// results — qdrant's match-any-of-list condition isn't exercised anywhere
// else in the pack, so this sticks to the teacher's plain NewMatch usage.
func matchConditions(filter map[string]string) []*qdrant.Condition {
	must := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, qdrant.NewMatch(k, v))
	}
	return must
}

func pointID(id string) (string, bool) {
	if _, err := uuid.Parse(id); err == nil {
		return id, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String(), true
}

func (b *QdrantBackend) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	uuidStr, derived := pointID(id)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if derived {
		payload[qdrantPayloadIDField] = id
	}
	vec := append([]float32(nil), vector...)
	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (b *QdrantBackend) Delete(ctx context.Context, id string) error {
	uuidStr, _ := pointID(id)
	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

// DeleteByFilter uses Qdrant's native filter-based delete: this backend
// supports it, so Index's query-then-delete fallback is never reached for
// qdrant in production (it remains reachable by wrapping a backend in
// ConstrainedBackend).
func (b *QdrantBackend) DeleteByFilter(ctx context.Context, filter map[string]string) error {
	must := matchConditions(filter)
	_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	return err
}

func (b *QdrantBackend) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := append([]float32(nil), vector...)
	var qf *qdrant.Filter
	if len(filter) > 0 {
		qf = &qdrant.Filter{Must: matchConditions(filter)}
	}
	limit := uint64(k)
	hits, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if id == "" {
			id = hit.Id.String()
		}
		metadata := make(map[string]string)
		original := ""
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == qdrantPayloadIDField {
					original = v.GetStringValue()
					continue
				}
				metadata[k] = v.GetStringValue()
			}
		}
		if original != "" {
			id = original
		}
		out = append(out, Result{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return out, nil
}

func (b *QdrantBackend) Dimension() int { return b.dimension }

func (b *QdrantBackend) Close() error { return b.client.Close() }
