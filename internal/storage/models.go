package storage

import "time"

// Domain models that mirror SQL tables in schema.go. These are lightweight
// data transfer structs, not ORM models.

// File mirrors one row of the files table.
type File struct {
	ID           int64
	Path         string
	Language     string
	ContentHash  string
	LastModified time.Time
	IndexedAt    time.Time
}

// Chunk mirrors one row of the chunks table, with FilePath/Language
// denormalized in for search responses.
type Chunk struct {
	ID          int64
	FileID      int64
	FilePath    string
	Language    string
	Kind        string
	Symbol      string
	StartLine   int
	EndLine     int
	Code        string
	ContentHash string
}

// EmbeddingRow is one (chunk_id, vector) pair bound for a tuple table.
type EmbeddingRow struct {
	ChunkID int64
	Vector  []float32
}

// Tuple identifies one active (provider, model, dimension, distance) ANN
// index — the AnnIndex entity from the data model.
type Tuple struct {
	Provider string
	Model    string
	Dim      int
	Distance string // "cosine" or "l2"
}

// TableName returns the sanitized embeddings_{provider}_{model}_{dim} table
// name for this tuple.
func (t Tuple) TableName() string {
	return embeddingsTableName(t.Provider, t.Model, t.Dim)
}

// Filters narrow a search to a language and/or path prefix, applied after
// the primary match (FTS pre-filter or ANN) per spec §4.5.
type Filters struct {
	Language   string
	PathPrefix string
}

// Hit is one search result row before pagination/budgeting is applied.
type Hit struct {
	Chunk       Chunk
	MatchOffset int     // byte offset of the first regex match; -1 for semantic hits
	Distance    float64 // ANN distance; meaningless unless HasDistance
	HasDistance bool
}

// FailureRecord is one row of the file_failures table.
type FailureRecord struct {
	FileID     int64
	ErrorKind  string
	Message    string
	OccurredAt time.Time
	Attempt    int
}

// Stats summarizes Chunk Store contents for get_stats.
type Stats struct {
	FileCount         int
	ChunkCount        int
	ChunksByLanguage  map[string]int
	EmbeddingsByTuple map[string]int // tuple table name -> row count
	PendingEmbeddings map[string]int // tuple table name -> chunks lacking a vector
}
