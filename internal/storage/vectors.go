package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/defacewatch/defacewatch/internal/vectorizer"
)

// VectorStore is the SQLite-backed vector index. Search is brute force,
// which is adequate at per-website snapshot counts; a dedicated vector
// database can replace it behind the same interface.
type VectorStore struct {
	store *Store
}

// Vectors returns the vector index bound to this store.
func (s *Store) Vectors() *VectorStore {
	return &VectorStore{store: s}
}

// Upsert writes a vector and its classification payload, keyed by
// (website, snapshot, content type).
func (v *VectorStore) Upsert(ctx context.Context, cv *vectorizer.ContentVector, payload map[string]interface{}) error {
	vec, err := json.Marshal(cv.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	pl, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode vector payload: %w", err)
	}
	_, err = v.store.db.ExecContext(ctx, `
		INSERT INTO content_vectors (website_id, snapshot_id, content_type, vector,
			dimension, content_hash, model, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (website_id, snapshot_id, content_type)
		DO UPDATE SET vector = excluded.vector, dimension = excluded.dimension,
			content_hash = excluded.content_hash, model = excluded.model,
			payload = excluded.payload`,
		cv.WebsiteID, cv.SnapshotID, cv.ContentType, string(vec),
		cv.Dimension, cv.ContentHash, cv.Model, string(pl), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert vector: %w", err)
	}
	return nil
}

// Search returns stored vectors within scope whose cosine similarity to the
// query meets the threshold, best first.
func (v *VectorStore) Search(ctx context.Context, query []float32, scope vectorizer.SearchScope, limit int, threshold float64) ([]vectorizer.SimilarityResult, error) {
	if limit <= 0 {
		limit = 10
	}

	q := `SELECT website_id, snapshot_id, content_type, vector, payload FROM content_vectors WHERE 1=1`
	var args []interface{}
	if scope.WebsiteID != "" {
		q += ` AND website_id = ?`
		args = append(args, scope.WebsiteID)
	}
	if scope.ContentType != "" {
		q += ` AND content_type = ?`
		args = append(args, scope.ContentType)
	}

	rows, err := v.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var results []vectorizer.SimilarityResult
	for rows.Next() {
		var r vectorizer.SimilarityResult
		var vecJSON, payloadJSON string
		if err := rows.Scan(&r.WebsiteID, &r.SnapshotID, &r.ContentType, &vecJSON, &payloadJSON); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			continue
		}
		score := vectorizer.CosineSimilarity(query, vec)
		if score < threshold {
			continue
		}
		r.Score = score
		if payloadJSON != "" && payloadJSON != "null" {
			_ = json.Unmarshal([]byte(payloadJSON), &r.Payload)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
