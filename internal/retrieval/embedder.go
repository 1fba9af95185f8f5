package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embedding calls so batch ingestion does
// not trip provider rate limits.
const embedConcurrency = 4

// BatchEmbedder fans out embedding calls for a batch of texts.
type BatchEmbedder struct {
	client QueryEmbedder
}

// NewBatchEmbedder wraps an embedding client for batch use.
func NewBatchEmbedder(client QueryEmbedder) *BatchEmbedder {
	return &BatchEmbedder{client: client}
}

// EmbedBatch embeds all texts, preserving order. It runs up to
// embedConcurrency calls in parallel and fails fast on the first error.
func (b *BatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			v, err := b.client.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
