// Package embedding provides deterministic vector embeddings for failure
// similarity matching. The engine is a hashed bag-of-words: no model, no
// network, no external dependencies. Collisions from feature hashing are an
// accepted approximation.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
)

// DefaultDimensions is the default embedding dimensionality.
const DefaultDimensions = 2048

// maxTokens caps tokenization cost on huge failure logs.
const maxTokens = 2000

// HashEngine generates deterministic hashed bag-of-words embeddings.
type HashEngine struct {
	dim int
}

// NewHashEngine creates an engine producing vectors of the given dimension.
// Non-positive dimensions fall back to DefaultDimensions.
func NewHashEngine(dim int) *HashEngine {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &HashEngine{dim: dim}
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return e.dim
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hashed-bow"
}

// Embed generates an L2-normalized embedding for text.
// Returns the all-zero vector when no token survives filtering.
func (e *HashEngine) Embed(text string) []float64 {
	v := make([]float64, e.dim)
	for _, tok := range tokenize(text) {
		v[bucket(tok, e.dim)] += 1.0
	}

	// Log-dampened scaling, then L2 normalize.
	var norm float64
	for i, x := range v {
		if x > 0 {
			x = 1.0 + math.Log(x)
			v[i] = x
			norm += x * x
		}
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Cosine computes the similarity of two vectors as their dot product.
// Inputs are expected (not required) to already be unit-normalized; callers
// comparing vectors from different sources must normalize first.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

// tokenize lowercases, maps non [a-z0-9_] runs to spaces, splits, and keeps
// tokens longer than 2 characters, capped at maxTokens.
func tokenize(text string) []string {
	lowered := strings.ToLower(text)
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return ' '
	}, lowered)

	fields := strings.Fields(mapped)
	toks := make([]string, 0, len(fields))
	for _, t := range fields {
		if len(t) > 2 {
			toks = append(toks, t)
			if len(toks) == maxTokens {
				break
			}
		}
	}
	return toks
}

// bucket hashes a token into [0, dim) with FNV-1a.
func bucket(tok string, dim int) int {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return int(h.Sum32() % uint32(dim))
}
