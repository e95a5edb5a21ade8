// Package embeddings defines the Embedding Provider abstraction (C5):
// embed(text) -> vector | Unavailable. No Azure SDK exists anywhere in
// the retrieved example pack, so AzureProvider is a hand-written REST
// client against the documented Azure OpenAI embeddings contract
// (justified as a standard-library exception in DESIGN.md); NullProvider
// is used when no embedding backend is configured.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable signals the provider could not produce a vector, either
// because none is configured or because the remote call failed/timed
// out. Callers must treat this as a soft failure: registration proceeds
// without an embedding and search falls back to lexical mode.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider produces a fixed-dimensional vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	// Dimension returns the provider's vector width, or 0 if unknown
	// until the first successful call.
	Dimension() int
}

// NullProvider is used when no embedding backend is configured; every
// call returns ErrUnavailable so callers take the documented fallback
// path without special-casing "no provider" everywhere.
type NullProvider struct{}

func (NullProvider) Embed(context.Context, string) ([]float64, error) { return nil, ErrUnavailable }
func (NullProvider) Dimension() int                                   { return 0 }

// AzureProvider embeds text through an Azure OpenAI embeddings
// deployment over plain net/http.
type AzureProvider struct {
	endpoint   string
	apiKey     string
	apiVersion string
	deployment string
	dimension  int
	client     *http.Client
	timeout    time.Duration
}

// NewAzureProvider constructs a provider. A hard per-call timeout is
// enforced per spec.md §5 so a slow embedding call never blocks
// registration indefinitely; on timeout, callers fall back.
func NewAzureProvider(endpoint, apiKey, apiVersion, deployment string, timeout time.Duration) *AzureProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AzureProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		apiVersion: apiVersion,
		deployment: deployment,
		dimension:  1536,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

func (p *AzureProvider) Dimension() int { return p.dimension }

type azureEmbeddingRequest struct {
	Input string `json:"input"`
}

type azureEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed posts a single input string and returns its embedding vector.
// Any transport, auth, or decode failure is reported as ErrUnavailable
// so the caller never needs to distinguish failure modes.
func (p *AzureProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if p.endpoint == "" || p.apiKey == "" || p.deployment == "" {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(azureEmbeddingRequest{Input: text})
	if err != nil {
		return nil, ErrUnavailable
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ErrUnavailable
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnavailable
	}

	var parsed azureEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ErrUnavailable
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, ErrUnavailable
	}
	p.dimension = len(parsed.Data[0].Embedding)
	return parsed.Data[0].Embedding, nil
}
