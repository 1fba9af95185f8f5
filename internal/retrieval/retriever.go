package retrieval

import (
	"context"
	"fmt"
	"log/slog"
)

// Snippet is one retrieved passage with provenance and a similarity score in
// [0, 1] (cosine, clamped by construction of the embeddings).
type Snippet struct {
	Text       string
	DocID      string
	Source     string
	ChunkIndex int
	Score      float64
}

// QueryEmbedder turns text into an embedding vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a query and searches the vector store for the most
// similar document chunks.
type Retriever struct {
	embedder QueryEmbedder
	vectors  VectorStore
	topK     int
}

// NewRetriever creates a Retriever. topK values below 1 fall back to 3.
func NewRetriever(embedder QueryEmbedder, vectors VectorStore, topK int) *Retriever {
	if topK < 1 {
		topK = 3
	}
	return &Retriever{embedder: embedder, vectors: vectors, topK: topK}
}

// Search returns up to topK snippets ordered by score descending. An empty
// knowledge base or a query with no neighbors yields an empty, non-error
// result; embedding or storage failures are returned as errors.
func (r *Retriever) Search(ctx context.Context, query string) ([]Snippet, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.vectors.Search(vector, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	snippets := make([]Snippet, 0, len(scored))
	for _, s := range scored {
		snippets = append(snippets, Snippet{
			Text:       s.TextChunk,
			DocID:      s.DocID,
			Source:     s.Source,
			ChunkIndex: s.ChunkIndex,
			Score:      s.Score,
		})
	}

	if len(snippets) > 0 {
		slog.Debug("retrieval complete", "results", len(snippets), "top_score", snippets[0].Score)
	} else {
		slog.Debug("retrieval returned no results")
	}

	return snippets, nil
}
