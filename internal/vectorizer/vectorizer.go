// Package vectorizer embeds page content and measures semantic drift
// between snapshots.
package vectorizer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/defacewatch/defacewatch/internal/ai"
	"github.com/defacewatch/defacewatch/internal/dferrors"
)

// Content type tags for stored vectors.
const (
	ContentTypeMain     = "main_content"
	ContentTypeTitle    = "title"
	ContentTypeBlocks   = "text_blocks"
	ContentTypeMeta     = "meta_description"
	ContentTypeCombined = "combined"
)

// defaultDimension matches the embedding model's native width; zero vectors
// for empty input are emitted at this size.
const defaultDimension = 1536

// maxChunkChars bounds the text sent per embedding call. Longer content is
// split on sentence boundaries and the chunk vectors averaged.
const maxChunkChars = 1000

// ContentVector is an embedded piece of page content.
type ContentVector struct {
	WebsiteID   string                 `json:"websiteId"`
	SnapshotID  string                 `json:"snapshotId"`
	ContentType string                 `json:"contentType"`
	Vector      []float32              `json:"vector"`
	Dimension   int                    `json:"dimension"`
	ContentHash string                 `json:"contentHash"`
	Model       string                 `json:"model"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// SimilarityResult is one vector-store search hit.
type SimilarityResult struct {
	WebsiteID   string                 `json:"websiteId"`
	SnapshotID  string                 `json:"snapshotId"`
	ContentType string                 `json:"contentType"`
	Score       float64                `json:"score"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// SearchScope restricts a find-similar query.
type SearchScope struct {
	WebsiteID   string
	ContentType string
}

// VectorStore persists content vectors and answers nearest-neighbour queries.
type VectorStore interface {
	Upsert(ctx context.Context, v *ContentVector, payload map[string]interface{}) error
	Search(ctx context.Context, vector []float32, scope SearchScope, limit int, threshold float64) ([]SimilarityResult, error)
}

// Vectorizer embeds text and measures vector similarity.
type Vectorizer interface {
	Embed(ctx context.Context, text, contentType string, metadata map[string]interface{}) (*ContentVector, error)
	Similarity(v1, v2 []float32, method string) float64
	FindSimilar(ctx context.Context, v *ContentVector, scope SearchScope, limit int, threshold float64) ([]SimilarityResult, error)
}

// Service is the embedding-backed Vectorizer.
type Service struct {
	embedder ai.Embedder
	store    VectorStore
	model    string
}

// NewService wires an embedder to a vector store. The store may be nil when
// similarity search is not needed.
func NewService(embedder ai.Embedder, store VectorStore, model string) *Service {
	return &Service{embedder: embedder, store: store, model: model}
}

// Embed converts text into a content vector. Long text is chunked on
// sentence boundaries and the chunk embeddings averaged; empty text yields
// a zero vector.
func (s *Service) Embed(ctx context.Context, text, contentType string, metadata map[string]interface{}) (*ContentVector, error) {
	text = strings.TrimSpace(text)

	cv := &ContentVector{
		ContentType: contentType,
		Model:       s.model,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	if cv.Metadata == nil {
		cv.Metadata = map[string]interface{}{}
	}
	cv.Metadata["original_length"] = len(text)

	if text == "" {
		cv.Vector = make([]float32, defaultDimension)
		cv.Dimension = defaultDimension
		cv.Metadata["chunk_count"] = 0
		return cv, nil
	}

	chunks := chunkText(text, maxChunkChars)
	cv.Metadata["chunk_count"] = len(chunks)

	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, dferrors.New(dferrors.KindCollab, "vectorizer.Embed", err)
		}
		vectors = append(vectors, vec)
	}

	cv.Vector = averageVectors(vectors)
	cv.Dimension = len(cv.Vector)
	return cv, nil
}

// Similarity compares two vectors with the named method. Unknown methods
// fall back to cosine.
func (s *Service) Similarity(v1, v2 []float32, method string) float64 {
	switch method {
	case "euclidean":
		return EuclideanSimilarity(v1, v2)
	case "manhattan":
		return ManhattanSimilarity(v1, v2)
	default:
		return CosineSimilarity(v1, v2)
	}
}

// FindSimilar searches the vector store for neighbours of v.
func (s *Service) FindSimilar(ctx context.Context, v *ContentVector, scope SearchScope, limit int, threshold float64) ([]SimilarityResult, error) {
	if s.store == nil {
		return nil, nil
	}
	results, err := s.store.Search(ctx, v.Vector, scope, limit, threshold)
	if err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "vectorizer.FindSimilar", err)
	}
	return results, nil
}

// Persist writes a vector to the store with its classification payload.
// Best-effort callers log the returned error and continue.
func (s *Service) Persist(ctx context.Context, v *ContentVector, payload map[string]interface{}) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Upsert(ctx, v, payload); err != nil {
		log.Warn().Err(err).
			Str("websiteID", v.WebsiteID).
			Str("contentType", v.ContentType).
			Msg("Failed to persist content vector")
		return dferrors.New(dferrors.KindCollab, "vectorizer.Persist", err)
	}
	return nil
}

// chunkText splits text into chunks no longer than maxChars, preferring
// sentence boundaries.
func chunkText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChars {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		// A single oversized sentence is split hard.
		for len(sentence) > maxChars {
			chunks = append(chunks, sentence[:maxChars])
			sentence = sentence[maxChars:]
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func averageVectors(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return make([]float32, defaultDimension)
	}
	if len(vectors) == 1 {
		return vectors[0]
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	n := float64(len(vectors))
	for i := range sum {
		out[i] = float32(sum[i] / n)
	}
	return out
}
