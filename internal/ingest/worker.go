package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oferreira/sabia/internal/retrieval"
	"github.com/oferreira/sabia/internal/store"
)

// JobTypeEnrich is the queue type for document enrichment jobs.
const JobTypeEnrich = "doc_enrich"

// JobStore abstracts the job queue and document operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*store.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetContextDoc(id string) (store.ContextDoc, error)
	UpdateContextDocVectorIDs(id, vectorIDsJSON string) error
}

// Embedder generates embeddings for a batch of chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the subset of vector store operations the worker uses.
// Old vectors for a document are replaced on re-enrichment.
type VectorWriter interface {
	Insert(records []retrieval.Record) error
	DeleteByDoc(docID string) (int, error)
}

// Worker drains doc_enrich jobs from the queue: it chunks the document,
// embeds each chunk, and writes the vectors that make it searchable.
type Worker struct {
	store     JobStore
	embedder  Embedder
	vectors   VectorWriter
	poll      time.Duration
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// NewWorker creates a Worker. A pollInterval <= 0 defaults to 500ms.
func NewWorker(jobs JobStore, embedder Embedder, vectors VectorWriter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     jobs,
		embedder:  embedder,
		vectors:   vectors,
		poll:      pollInterval,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed, regardless of its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeEnrich})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("enrichment job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// EnrichPayload is the job payload for doc_enrich jobs.
type EnrichPayload struct {
	DocID string `json:"doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *store.Job) error {
	var payload EnrichPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetContextDoc(payload.DocID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocID, err)
	}

	chunks := Chunk(doc.Content, w.chunkSize, w.overlap)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no content to index", doc.ID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	vectorIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := uuid.New().String()
		vectorIDs[i] = id
		records[i] = retrieval.Record{
			ID:         id,
			DocID:      doc.ID,
			Source:     doc.Source,
			ChunkIndex: i,
			TextChunk:  chunk,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	// Replace any previous vectors so re-enrichment doesn't duplicate.
	if _, err := w.vectors.DeleteByDoc(doc.ID); err != nil {
		return fmt.Errorf("clearing old vectors: %w", err)
	}
	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting vectors: %w", err)
	}

	idsJSON, err := json.Marshal(vectorIDs)
	if err != nil {
		return fmt.Errorf("encoding vector ids: %w", err)
	}
	if err := w.store.UpdateContextDocVectorIDs(doc.ID, string(idsJSON)); err != nil {
		return fmt.Errorf("recording vector ids: %w", err)
	}

	w.logger.Info("document enriched", "doc_id", doc.ID, "chunks", len(chunks))
	return nil
}
