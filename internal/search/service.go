// Package search implements the Search Service: search_regex and
// search_semantic over the Chunk Store, with pagination and a response
// byte-budgeter applied uniformly to both.
package search

import (
	"context"
	"fmt"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/embedding"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// Service composes the Chunk Store's search operations with pagination
// normalization and the response budgeter. It never writes to the store.
type Service struct {
	store *storage.ChunkStore
	embed *embedding.Orchestrator
	cfg   config.SearchConfig
}

// New builds a Service over store, using embed to embed query text for
// search_semantic.
func New(store *storage.ChunkStore, embed *embedding.Orchestrator, cfg config.SearchConfig) *Service {
	return &Service{store: store, embed: embed, cfg: cfg}
}

// Regex implements search_regex: a full RE2 scan over chunk code, narrowed
// by FTS5 when the pattern yields a usable literal prefix.
func (s *Service) Regex(req RegexRequest) (Response, error) {
	pageSize, offset := normalizePaging(req.PageSize, req.Offset)
	hits, total, err := s.store.RegexSearch(req.Pattern, toStorageFilters(req.Filters), pageSize, offset)
	if err != nil {
		return Response{}, fmt.Errorf("regex search: %w", err)
	}
	return buildResponse(hits, total, pageSize, offset, s.maxResponseBytes(req.MaxResponseBytes)), nil
}

// Semantic implements search_semantic: embeds the query text on demand via
// the Embedding Orchestrator's query path, then ranks chunks by ANN
// distance within req.Provider's tuple.
func (s *Service) Semantic(ctx context.Context, req SemanticRequest) (Response, error) {
	pageSize, offset := normalizePaging(req.PageSize, req.Offset)

	tuple, ok := s.embed.Tuple(req.Provider)
	if !ok {
		return Response{}, fmt.Errorf("unknown embedding provider %q", req.Provider)
	}
	vector, err := s.embed.EmbedQuery(ctx, req.Provider, req.QueryText)
	if err != nil {
		return Response{}, fmt.Errorf("embed query: %w", err)
	}

	// top_k is an internal sizing decision, not a client-facing parameter
	// (spec §4.6's search_semantic signature doesn't expose it): enough raw
	// ANN matches to cover the requested page.
	topK := offset + pageSize

	hits, total, err := s.store.VectorSearch(tuple, vector, topK, toStorageFilters(req.Filters), pageSize, offset)
	if err != nil {
		return Response{}, fmt.Errorf("vector search: %w", err)
	}
	return buildResponse(hits, total, pageSize, offset, s.maxResponseBytes(req.MaxResponseBytes)), nil
}

func normalizePaging(pageSize, offset int) (int, int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return pageSize, offset
}

func toStorageFilters(f Filters) storage.Filters {
	return storage.Filters{Language: f.Language, PathPrefix: f.PathPrefix}
}

// maxResponseBytes resolves the effective budget for one call: the
// configured default, clamped to the hard ceiling, further clamped down (not
// up) by a per-call override.
func (s *Service) maxResponseBytes(requested int) int {
	limit := s.cfg.MaxResponseBytes
	if limit <= 0 || limit > maxResponseBytesCeiling {
		limit = maxResponseBytesCeiling
	}
	if requested > 0 && requested < limit {
		limit = requested
	}
	return limit
}

func buildResponse(hits []storage.Hit, total, pageSize, offset, maxBytes int) Response {
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Path:        h.Chunk.FilePath,
			StartLine:   h.Chunk.StartLine,
			EndLine:     h.Chunk.EndLine,
			Symbol:      h.Chunk.Symbol,
			Kind:        h.Chunk.Kind,
			CodePreview: h.Chunk.Code,
			Distance:    h.Distance,
			HasDistance: h.HasDistance,
		}
	}
	results = applyBudget(results, maxBytes)

	returned := len(results)
	nextOffset := offset + returned
	t := total
	return Response{
		Results: results,
		Pagination: Pagination{
			Offset:     offset,
			PageSize:   pageSize,
			Returned:   returned,
			HasMore:    nextOffset < total,
			NextOffset: nextOffset,
			Total:      &t,
		},
	}
}
