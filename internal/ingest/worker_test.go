package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oferreira/sabia/internal/retrieval"
	"github.com/oferreira/sabia/internal/store"
)

type stubBatchEmbedder struct {
	err   error
	calls int
}

func (s *stubBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i + 1), 0.5}
	}
	return vectors, nil
}

func newWorkerFixture(t *testing.T) (*Worker, *store.Store, *retrieval.SQLiteStore, *stubBatchEmbedder) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	vectors := retrieval.NewSQLiteStore(st.DB())
	embedder := &stubBatchEmbedder{}
	w := NewWorker(st, embedder, vectors, 10*time.Millisecond)
	return w, st, vectors, embedder
}

func enqueueDoc(t *testing.T, st *store.Store, content string) store.ContextDoc {
	t.Helper()
	doc := store.ContextDoc{
		ID:        uuid.New().String(),
		Title:     "Manual",
		Content:   content,
		Source:    "manual.md",
		CreatedAt: time.Now().UTC(),
	}
	if err := st.SaveContextDoc(doc); err != nil {
		t.Fatalf("SaveContextDoc: %v", err)
	}
	payload, _ := json.Marshal(EnrichPayload{DocID: doc.ID})
	job := store.Job{ID: uuid.New().String(), Type: JobTypeEnrich, PayloadJSON: string(payload)}
	if err := st.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return doc
}

func TestRunOnce_NoJobs(t *testing.T) {
	w, _, _, _ := newWorkerFixture(t)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("done = true with an empty queue")
	}
}

func TestRunOnce_EnrichesDocument(t *testing.T) {
	w, st, vectors, _ := newWorkerFixture(t)
	doc := enqueueDoc(t, st, "O processo de aprovação exige validação do gestor responsável.")

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want job processed")
	}

	count, err := vectors.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("vector count = %d, want 1", count)
	}

	updated, err := st.GetContextDoc(doc.ID)
	if err != nil {
		t.Fatalf("GetContextDoc: %v", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(updated.VectorIDs), &ids); err != nil {
		t.Fatalf("parsing vector_ids: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("got %d vector ids, want 1", len(ids))
	}

	// Queue is drained.
	job, err := st.ClaimNextJob([]string{JobTypeEnrich})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Error("job still claimable after completion")
	}
}

func TestRunOnce_ChunksLongDocuments(t *testing.T) {
	w, st, vectors, _ := newWorkerFixture(t)

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "Parágrafo %d sobre o processo: %s\n\n", i, strings.Repeat("detalhe ", 40))
	}
	doc := enqueueDoc(t, st, sb.String())

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	count, err := vectors.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count < 2 {
		t.Errorf("vector count = %d, want multiple chunks", count)
	}

	results, err := vectors.Search([]float32{1, 0.5}, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	seen := map[int]bool{}
	for _, r := range results {
		if r.DocID != doc.ID {
			t.Errorf("record doc_id = %s, want %s", r.DocID, doc.ID)
		}
		if r.Source != "manual.md" {
			t.Errorf("record source = %s, want manual.md", r.Source)
		}
		if seen[r.ChunkIndex] {
			t.Errorf("duplicate chunk index %d", r.ChunkIndex)
		}
		seen[r.ChunkIndex] = true
	}
}

func TestRunOnce_ReenrichmentReplacesVectors(t *testing.T) {
	w, st, vectors, _ := newWorkerFixture(t)
	doc := enqueueDoc(t, st, "Conteúdo original do manual.")

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}

	payload, _ := json.Marshal(EnrichPayload{DocID: doc.ID})
	job := store.Job{ID: uuid.New().String(), Type: JobTypeEnrich, PayloadJSON: string(payload)}
	if err := st.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	count, err := vectors.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("vector count = %d after re-enrichment, want 1", count)
	}
}

func TestRunOnce_EmbedFailureMarksJobFailed(t *testing.T) {
	w, st, vectors, embedder := newWorkerFixture(t)
	embedder.err = fmt.Errorf("provider unavailable")
	enqueueDoc(t, st, "Conteúdo qualquer.")

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("done = false, want attempted job")
	}

	count, err := vectors.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("vector count = %d after failure, want 0", count)
	}
}

func TestRunOnce_MissingDocFailsJob(t *testing.T) {
	w, st, _, _ := newWorkerFixture(t)

	payload, _ := json.Marshal(EnrichPayload{DocID: "missing"})
	job := store.Job{ID: uuid.New().String(), Type: JobTypeEnrich, PayloadJSON: string(payload)}
	if err := st.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Error("done = false, want attempted job")
	}
}
