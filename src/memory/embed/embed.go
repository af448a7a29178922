// Package embed provides pluggable text-embedding providers for the memory
// tiers.
package embed

import (
	"context"
	"errors"
	"log"
	"strings"
)

// DefaultDim matches the nomic-embed-text model used by the reference
// deployment.
const DefaultDim = 768

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ---------- Dummy (fallback) ----------

// DummyEmbedder produces deterministic vectors without a network call.
type DummyEmbedder struct {
	Dim int
}

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text, d.dim()), nil
}

func (d DummyEmbedder) dim() int {
	if d.Dim > 0 {
		return d.Dim
	}
	return DefaultDim
}

// DummyEmbedding is kept exported for tests.
func DummyEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)
	for i, ch := range []byte(text) {
		vec[i%dim] += float32(ch) / 255.0
	}
	return vec
}

// ZeroVector returns the degraded-search fallback vector. A zero vector
// ranks last under cosine similarity instead of aborting the call.
func ZeroVector(dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDim
	}
	return make([]float32, dim)
}

// NewEmbedder selects a provider by name: ollama, openai, gemini, or dummy.
// Unknown or failed providers fall back to the dummy embedder so the memory
// core stays usable without credentials.
func NewEmbedder(provider, model string, dim int) Embedder {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "dummy":
		return DummyEmbedder{Dim: dim}
	}
	log.Printf("embed: provider %q unavailable, falling back to dummy embedder", provider)
	return DummyEmbedder{Dim: dim}
}

// Safe wraps an embedder so that Embed never fails: on any provider error
// it logs and returns a zero vector of the configured dimension.
type Safe struct {
	Inner Embedder
	Dim   int
}

// NewSafe wraps inner with the zero-vector fallback.
func NewSafe(inner Embedder, dim int) *Safe {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Safe{Inner: inner, Dim: dim}
}

// Embed returns a vector of exactly Dim components. Provider failures and
// dimension mismatches degrade to the zero vector.
func (s *Safe) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.Inner == nil {
		return ZeroVector(s.Dim), nil
	}
	vec, err := s.Inner.Embed(ctx, text)
	if err != nil {
		log.Printf("embed: provider error, substituting zero vector: %v", err)
		return ZeroVector(s.Dim), nil
	}
	if len(vec) != s.Dim {
		log.Printf("embed: expected %d dimensions, got %d, substituting zero vector", s.Dim, len(vec))
		return ZeroVector(s.Dim), nil
	}
	return vec, nil
}
