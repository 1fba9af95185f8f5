package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity; an ANN-capable backend can replace it behind this interface.
type VectorStore interface {
	// Insert adds records.
	Insert(records []Record) error

	// Search returns the top-K records most similar to vector, ordered by
	// score descending. An empty result is not an error.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDoc removes all records belonging to a document and reports
	// how many were removed.
	DeleteByDoc(docID string) (int, error)

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record is one embedded document chunk in the vector store.
type Record struct {
	ID         string
	DocID      string
	Source     string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float64
}
