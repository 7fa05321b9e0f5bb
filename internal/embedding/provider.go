// Package embedding implements the Embedding Orchestrator: it turns newly
// added (or backfilled) chunks into vectors through a configured Provider,
// batching adaptively, substituting a sentinel for empty text, and writing
// results to the Chunk Store in one all-or-nothing transaction per batch.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/codesearchd/codesearchd/internal/config"
)

// Mode distinguishes how a text should be embedded: as a query or as a
// passage. Some models produce meaningfully different vectors for each.
type Mode string

const (
	ModeQuery   Mode = "query"
	ModePassage Mode = "passage"
)

// ErrorKind classifies a provider failure so the orchestrator can react
// appropriately instead of treating every non-2xx response the same way.
type ErrorKind int

const (
	// ErrTransient is a retryable server-side hiccup (5xx): retry the same
	// batch up to embedMaxRetries attempts with backoff and jitter. That
	// limit is a fixed constant; it is not read from configuration.
	ErrTransient ErrorKind = iota
	// ErrRateLimited means the provider asked for a slowdown (429); honor
	// RetryAfter when the provider gave one, otherwise fall back to backoff.
	ErrRateLimited
	// ErrInvalidInput means specific items in the batch were rejected (400)
	// — Indices names which ones, so the rest of the batch can still embed.
	ErrInvalidInput
	// ErrFatal means the provider itself is unusable right now (bad auth,
	// malformed endpoint, unexpected response shape): abort the batch and
	// cool the provider off rather than hammering it with retries.
	ErrFatal
)

// ProviderError carries enough detail about a failed Embed call for the
// orchestrator to choose between retrying, dropping specific items, or
// backing off the whole provider.
type ProviderError struct {
	Kind       ErrorKind
	RetryAfter time.Duration // set only for ErrRateLimited when the provider supplied one
	Indices    []int         // set only for ErrInvalidInput: positions within texts that were rejected
	Err        error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Provider converts text into vectors. Implementations must be safe for
// concurrent use — the orchestrator calls Embed from whichever goroutine
// owns that provider's single in-flight batch, but Dimensions may be read
// from elsewhere.
type Provider interface {
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
	Dimensions() int
}

// httpProvider speaks the same {texts, mode} -> {embeddings} JSON protocol
// the teacher's local embedding server exposes, generalized to any
// configured base URL rather than a fixed localhost port tied to a
// subprocess this module doesn't manage.
type httpProvider struct {
	baseURL string
	apiKey  string
	dim     int
	client  *http.Client
}

// NewHTTPProvider builds a Provider from one configured provider entry.
func NewHTTPProvider(cfg config.ProviderConfig) Provider {
	return &httpProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		dim:     cfg.Dim,
		client:  &http.Client{Timeout: cfg.Timeout()},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Mode  string   `json:"mode"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedErrorResponse is the provider's error body for a 400: it names which
// positions in the request's texts were rejected so the rest of the batch
// can still be embedded. A provider that doesn't return this shape is
// treated as rejecting the whole batch.
type embedErrorResponse struct {
	InvalidIndices []int  `json:"invalid_indices"`
	Message        string `json:"message"`
}

func (p *httpProvider) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Mode: string(mode)})
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Err: fmt.Errorf("marshal embed request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Err: fmt.Errorf("build embed request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// A transport-level failure (connection refused, timeout, DNS) is
		// transient from the caller's perspective, not a reason to cool the
		// provider off outright.
		return nil, &ProviderError{Kind: ErrTransient, Err: fmt.Errorf("embed request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, len(texts))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Kind: ErrFatal, Err: fmt.Errorf("decode embed response: %w", err)}
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, &ProviderError{Kind: ErrFatal, Err: fmt.Errorf("embed response returned %d vectors for %d texts", len(parsed.Embeddings), len(texts))}
	}
	return parsed.Embeddings, nil
}

// classifyStatus turns a non-200 response into the four-way provider error
// taxonomy: 429 -> rate limited (honoring Retry-After when present), 5xx ->
// transient, 400 -> invalid input (per-item indices when the body names
// them, otherwise the whole batch), anything else -> fatal.
func classifyStatus(resp *http.Response, batchSize int) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ProviderError{
			Kind:       ErrRateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("embed request rate limited: %s", string(body)),
		}
	case resp.StatusCode >= 500:
		return &ProviderError{Kind: ErrTransient, Err: fmt.Errorf("embed request returned status %d: %s", resp.StatusCode, string(body))}
	case resp.StatusCode == http.StatusBadRequest:
		indices := allIndices(batchSize)
		var parsed embedErrorResponse
		if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.InvalidIndices) > 0 {
			indices = parsed.InvalidIndices
		}
		return &ProviderError{Kind: ErrInvalidInput, Indices: indices, Err: fmt.Errorf("embed request rejected input: %s", string(body))}
	default:
		return &ProviderError{Kind: ErrFatal, Err: fmt.Errorf("embed request returned status %d: %s", resp.StatusCode, string(body))}
	}
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// parseRetryAfter reads the Retry-After header in either its seconds or
// HTTP-date form, returning 0 when absent or unparseable so the caller falls
// back to its own backoff.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func (p *httpProvider) Dimensions() int { return p.dim }
