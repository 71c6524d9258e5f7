// Package embed implements the C14 Embedding Provider: a pluggable
// text-to-vector interface, grounded on original_source's embeddings.rs
// (embed_batch returns `[0.0; EMBED_DIM]` for every text, in both its
// default build and its unimplemented "fastembed" build) and generalized
// with an optional HTTP-backed Ollama provider the way the teacher's
// internal/embed package wraps Ollama's /api/embeddings endpoint.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider turns text into fixed-dimension embedding vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// placeholder returns the all-zero vector for every text, mirroring
// original_source's embed_batch: `texts.iter().map(|_| [0.0; EMBED_DIM])`.
// It exists so the system boots and every downstream consumer (vector
// index, fusion scoring) sees a well-formed Provider without requiring a
// real model.
type placeholder struct {
	dim int
}

// NewPlaceholder returns a Provider with no external dependency.
func NewPlaceholder(dim int) Provider {
	return &placeholder{dim: dim}
}

func (p *placeholder) Dim() int { return p.dim }

func (p *placeholder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, p.dim)
	}
	return out, nil
}

// ollama calls a local Ollama embeddings endpoint over HTTP, the way
// manifold's provider clients wrap model HTTP APIs behind the Provider
// interface shape.
type ollama struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

// NewOllama returns a Provider backed by an Ollama-compatible
// /api/embeddings endpoint.
func NewOllama(endpoint, model string, dim int) Provider {
	return &ollama{
		endpoint: endpoint,
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *ollama) Dim() int { return o.dim }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := o.embedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (o *ollama) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: ollama returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Embedding) != o.dim {
		return nil, fmt.Errorf("embed: ollama returned dimension %d, want %d", len(parsed.Embedding), o.dim)
	}
	return parsed.Embedding, nil
}
