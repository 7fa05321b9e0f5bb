package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/search"
	"github.com/codesearchd/codesearchd/internal/storage"
)

type handlers struct {
	store           *storage.ChunkStore
	coord           *indexer.Coordinator
	svc             *search.Service
	defaultProvider string
	log             *zap.Logger
}

func (h *handlers) searchRegex(c *gin.Context) {
	var req regexSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(statusFor(KindInvalidArgument), errorBody(KindInvalidArgument, err.Error(), false))
		return
	}

	resp, err := h.svc.Regex(search.RegexRequest{
		Pattern:          req.Pattern,
		PageSize:         req.PageSize,
		Offset:           req.Offset,
		MaxResponseBytes: req.MaxResponseBytes,
		Filters:          search.Filters{Language: req.Language, PathPrefix: req.PathPrefix},
	})
	if err != nil {
		h.log.Warn("search_regex failed", zap.Error(err))
		c.JSON(statusFor(KindInvalidArgument), errorBody(KindInvalidArgument, err.Error(), false))
		return
	}

	c.JSON(http.StatusOK, toResponseBody(resp))
}

func (h *handlers) searchSemantic(c *gin.Context) {
	var req semanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(statusFor(KindInvalidArgument), errorBody(KindInvalidArgument, err.Error(), false))
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = h.defaultProvider
	}

	resp, err := h.svc.Semantic(c.Request.Context(), search.SemanticRequest{
		QueryText:        req.Query,
		Provider:         provider,
		PageSize:         req.PageSize,
		Offset:           req.Offset,
		MaxResponseBytes: req.MaxResponseBytes,
		Filters:          search.Filters{Language: req.Language, PathPrefix: req.PathPrefix},
	})
	if err != nil {
		h.log.Warn("search_semantic failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(statusFor(KindUnavailable), errorBody(KindUnavailable, err.Error(), true))
		return
	}

	c.JSON(http.StatusOK, toResponseBody(resp))
}

func (h *handlers) stats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		h.log.Error("stats failed", zap.Error(err))
		c.JSON(statusFor(KindInternal), errorBody(KindInternal, "get_stats failed", false))
		return
	}

	qs := h.coord.Stats()
	c.JSON(http.StatusOK, statsResponseBody{
		FileCount:         stats.FileCount,
		ChunkCount:        stats.ChunkCount,
		ChunksByLanguage:  stats.ChunksByLanguage,
		EmbeddingsByTuple: stats.EmbeddingsByTuple,
		PendingEmbeddings: stats.PendingEmbeddings,
		Queue: queueStats{
			Queued:    qs.Queued,
			InFlight:  qs.InFlight,
			Completed: qs.Completed,
			Failed:    qs.Failed,
			LastError: qs.LastError,
		},
	})
}

func (h *handlers) healthz(c *gin.Context) {
	status := "ok"
	details := map[string]any{}

	if _, err := h.store.Stats(); err != nil {
		status = "down"
		details["store_error"] = err.Error()
	}

	qs := h.coord.Stats()
	details["queue_queued"] = qs.Queued
	details["queue_failed"] = qs.Failed
	if status == "ok" && qs.Failed > 0 && qs.Queued > 0 {
		status = "degraded"
	}

	code := http.StatusOK
	if status == "down" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, healthResponseBody{Status: status, Details: details})
}
