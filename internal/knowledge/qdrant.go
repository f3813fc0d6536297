package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string
	// Port is the Qdrant gRPC port (default: 6334).
	Port int
	// Collection is the Qdrant collection name to use.
	Collection string
	// VectorSize is the dimensionality of the embeddings in this collection.
	VectorSize uint64
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection
// exists (creating it if necessary).
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (x *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", x.cfg.Collection, err)
	}
	return nil
}

// Upsert stores or replaces one record as a Qdrant point. The record's text
// and metadata travel in the point payload so Query can reconstruct a full
// Record without a second lookup.
func (x *QdrantIndex) Upsert(ctx context.Context, rec Record) error {
	payload := map[string]interface{}{
		"text":         rec.Text,
		"category":     rec.Meta.Category,
		"source":       rec.Meta.Source,
		"title":        rec.Meta.Title,
		"origin_topic": rec.Meta.OriginTopic,
		"timestamp":    rec.Meta.Timestamp.UnixMilli(),
		"verified":     rec.Meta.Verified,
		"status":       string(rec.Meta.VerificationStatus),
	}

	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: x.cfg.Collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Query performs a cosine similarity search, optionally restricted to one
// category via a payload filter.
func (x *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, category string) ([]Match, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: x.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if category != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("category", category)},
		}
	}

	results, err := x.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		rec := Record{ID: r.Id.GetUuid()}
		if p := r.Payload; p != nil {
			if v, ok := p["text"]; ok {
				rec.Text = v.GetStringValue()
			}
			if v, ok := p["category"]; ok {
				rec.Meta.Category = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				rec.Meta.Source = v.GetStringValue()
			}
			if v, ok := p["title"]; ok {
				rec.Meta.Title = v.GetStringValue()
			}
			if v, ok := p["origin_topic"]; ok {
				rec.Meta.OriginTopic = v.GetStringValue()
			}
			if v, ok := p["timestamp"]; ok {
				rec.Meta.Timestamp = time.UnixMilli(v.GetIntegerValue())
			}
			if v, ok := p["verified"]; ok {
				rec.Meta.Verified = v.GetBoolValue()
			}
			if v, ok := p["status"]; ok {
				rec.Meta.VerificationStatus = VerificationStatus(v.GetStringValue())
			}
		}
		matches = append(matches, Match{Record: rec, Score: float64(r.Score)})
	}
	return matches, nil
}

// Delete removes a record from the collection by ID.
func (x *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: x.cfg.Collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Client exposes the underlying Qdrant gRPC client for health probes.
func (x *QdrantIndex) Client() *qdrant.Client {
	return x.client
}

// Close closes the underlying Qdrant gRPC connection.
func (x *QdrantIndex) Close() error {
	return x.client.Close()
}
