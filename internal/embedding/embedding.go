// Package embedding turns canonical work item text into vectors. It wraps the
// CloudWeGo Eino embedding components behind a provider factory, batches
// provider calls, caches results by content hash, and degrades to
// deterministic hash vectors when the provider is unavailable.
package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// Result is the outcome of embedding a single text.
type Result struct {
	// Vector is the embedding, unit-normalized. Nil when OK is false.
	Vector []float32

	// Model names the model that produced the vector ("hash" for fallback).
	Model string

	// Fallback is true when the vector came from the deterministic
	// content-hash generator instead of the provider.
	Fallback bool

	// Cached is true when the vector was served from the local cache.
	Cached bool

	// OK reports whether a usable vector was produced at all.
	OK bool
}

// ContentHash returns the cache key for a canonical text: the hex SHA-256 of
// its bytes. Identical canonical text always maps to the same key.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Normalize scales v to unit L2 norm in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// toFloat32 converts a provider vector to the float32 representation used by
// the index and cache.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
