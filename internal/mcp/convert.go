package mcp

import "github.com/codesearchd/codesearchd/internal/search"

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
