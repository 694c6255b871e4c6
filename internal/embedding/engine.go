// Package embedding generates vector embeddings for knowledge-base
// search. Two backends are supported: Google GenAI (cloud) and Ollama
// (local).
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"shiftbot/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider selects the backend: "genai" or "ollama".
	Provider string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates against GenAI.
	APIKey string

	// Endpoint is the Ollama server address.
	Endpoint string

	// TaskType tunes GenAI embeddings, e.g. "SEMANTIC_SIMILARITY",
	// "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT".
	TaskType string
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	var (
		engine Engine
		err    error
	)
	switch cfg.Provider {
	case "genai", "":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.Endpoint, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use genai or ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logging.L("embedding").Debugw("embedding engine ready",
		"name", engine.Name(), "dimensions", engine.Dimensions())
	return engine, nil
}

// Cosine calculates the cosine similarity between two vectors. Returns
// a value in [-1, 1], where 1 means identical direction. Zero-magnitude
// vectors compare as 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Match is one similarity search hit.
type Match struct {
	Index      int
	Similarity float64
}

// TopK returns the k corpus vectors most similar to the query, best
// first. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	if k <= 0 {
		k = 10
	}

	matches := make([]Match, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := Cosine(query, vec)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
