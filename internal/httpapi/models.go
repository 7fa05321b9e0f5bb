package httpapi

import "github.com/codesearchd/codesearchd/internal/search"

// regexSearchRequest/semanticSearchRequest mirror the tool protocol's
// argument names in JSON request bodies, keeping the two surfaces in sync.
type regexSearchRequest struct {
	Pattern          string `json:"pattern" binding:"required"`
	Language         string `json:"language"`
	PathPrefix       string `json:"path_prefix"`
	PageSize         int    `json:"page_size"`
	Offset           int    `json:"offset"`
	MaxResponseBytes int    `json:"max_response_bytes"`
}

type semanticSearchRequest struct {
	Query            string `json:"query" binding:"required"`
	Provider         string `json:"provider"`
	Language         string `json:"language"`
	PathPrefix       string `json:"path_prefix"`
	PageSize         int    `json:"page_size"`
	Offset           int    `json:"offset"`
	MaxResponseBytes int    `json:"max_response_bytes"`
}

type searchResultItem struct {
	Path        string  `json:"path"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Symbol      string  `json:"symbol"`
	Kind        string  `json:"kind"`
	CodePreview string  `json:"code_preview"`
	IsTruncated bool    `json:"is_truncated"`
	Distance    float64 `json:"distance,omitempty"`
}

type paginationResult struct {
	Offset     int  `json:"offset"`
	PageSize   int  `json:"page_size"`
	Returned   int  `json:"returned"`
	HasMore    bool `json:"has_more"`
	NextOffset int  `json:"next_offset"`
	Total      *int `json:"total,omitempty"`
}

type searchResponseBody struct {
	Results    []searchResultItem `json:"results"`
	Pagination paginationResult   `json:"pagination"`
}

func toResponseBody(resp search.Response) searchResponseBody {
	items := make([]searchResultItem, len(resp.Results))
	for i, r := range resp.Results {
		items[i] = searchResultItem{
			Path:        r.Path,
			StartLine:   r.StartLine,
			EndLine:     r.EndLine,
			Symbol:      r.Symbol,
			Kind:        r.Kind,
			CodePreview: r.CodePreview,
			IsTruncated: r.IsTruncated,
		}
		if r.HasDistance {
			items[i].Distance = r.Distance
		}
	}
	return searchResponseBody{
		Results: items,
		Pagination: paginationResult{
			Offset:     resp.Pagination.Offset,
			PageSize:   resp.Pagination.PageSize,
			Returned:   resp.Pagination.Returned,
			HasMore:    resp.Pagination.HasMore,
			NextOffset: resp.Pagination.NextOffset,
			Total:      resp.Pagination.Total,
		},
	}
}

type statsResponseBody struct {
	FileCount         int            `json:"file_count"`
	ChunkCount        int            `json:"chunk_count"`
	ChunksByLanguage  map[string]int `json:"chunks_by_language"`
	EmbeddingsByTuple map[string]int `json:"embeddings_by_tuple"`
	PendingEmbeddings map[string]int `json:"pending_embeddings"`
	Queue             queueStats     `json:"queue"`
}

type queueStats struct {
	Queued    int    `json:"queued"`
	InFlight  bool   `json:"in_flight"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type healthResponseBody struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}
