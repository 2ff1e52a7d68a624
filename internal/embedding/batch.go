package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/embedding"
)

// ErrProviderUnavailable reports that every provider call failed and the
// hash fallback was disabled, so no vectors could be produced.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// BatchConfig tunes how texts are fed to the provider.
type BatchConfig struct {
	// Size caps texts per provider call.
	Size int

	// Deadline bounds a single provider call. The remaining request
	// deadline still applies on top.
	Deadline time.Duration

	// AllowHashFallback substitutes deterministic hash vectors for texts
	// whose provider call failed. Disabled, those texts yield no vector.
	AllowHashFallback bool

	// Dimension pins the expected vector width. Zero means discover it
	// from the model registry or the first provider response.
	Dimension int

	// Model is the cache key and diagnostic label for provider vectors.
	Model string
}

// Batcher embeds text collections batch by batch, consulting the cache
// first and degrading to hash vectors per failed batch.
type Batcher struct {
	embedder embedding.Embedder
	cache    *Cache
	cfg      BatchConfig

	dim int // learned vector width, 0 until known
}

// NewBatcher wires an embedder and an optional cache. A nil cache disables
// caching, a nil embedder forces hash vectors for everything.
func NewBatcher(embedder embedding.Embedder, cache *Cache, cfg BatchConfig) *Batcher {
	if cfg.Size <= 0 {
		cfg.Size = 25
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 45 * time.Second
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = DimensionForModel(cfg.Model)
	}
	return &Batcher{embedder: embedder, cache: cache, cfg: cfg, dim: dim}
}

// Dimension returns the vector width the batcher has settled on, or 0 when
// no vector has been produced yet.
func (b *Batcher) Dimension() int {
	return b.dim
}

// EmbedAll embeds texts in submission order and returns one Result per text.
// Provider calls happen sequentially in batches of at most cfg.Size; a batch
// that fails or times out falls back to hash vectors without failing the
// rest. The only terminal error is ErrProviderUnavailable.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	// Serve cache hits first so only misses reach the provider.
	var pending []int
	for i, text := range texts {
		if b.cache != nil {
			if v, ok := b.cache.Get(ContentHash(text), b.cfg.Model); ok {
				b.learnDimension(len(v))
				results[i] = Result{Vector: v, Model: b.cfg.Model, Cached: true, OK: true}
				continue
			}
		}
		pending = append(pending, i)
	}

	var successes, failures int
	for start := 0; start < len(pending); start += b.cfg.Size {
		end := start + b.cfg.Size
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		// Once the request deadline is gone, stop calling the provider
		// and degrade the remainder immediately.
		if ctx.Err() != nil || b.embedder == nil {
			b.fallbackBatch(texts, batch, results)
			failures++
			continue
		}

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		bctx, cancel := context.WithTimeout(ctx, b.cfg.Deadline)
		vectors, err := b.embedder.EmbedStrings(bctx, batchTexts)
		cancel()

		if err != nil || len(vectors) != len(batch) {
			if err == nil {
				err = errors.New("provider returned wrong vector count")
			}
			slog.Warn("Embedding batch failed",
				"batch_size", len(batch),
				"fallback", b.cfg.AllowHashFallback,
				"error", err)
			b.fallbackBatch(texts, batch, results)
			failures++
			continue
		}

		for j, idx := range batch {
			v := Normalize(toFloat32(vectors[j]))
			if len(v) == 0 {
				results[idx] = Result{Model: b.cfg.Model}
				continue
			}
			b.learnDimension(len(v))
			results[idx] = Result{Vector: v, Model: b.cfg.Model, OK: true}
			if b.cache != nil {
				if cerr := b.cache.Put(ContentHash(texts[idx]), b.cfg.Model, v); cerr != nil {
					slog.Debug("Embedding cache write failed", "error", cerr)
				}
			}
		}
		successes++
	}

	if failures > 0 && successes == 0 && !b.cfg.AllowHashFallback {
		return results, ErrProviderUnavailable
	}
	return results, nil
}

// fallbackBatch fills results for a failed batch. Hash vectors keep content
// identity intact; with fallback disabled the slots stay OK=false.
func (b *Batcher) fallbackBatch(texts []string, batch []int, results []Result) {
	for _, idx := range batch {
		if !b.cfg.AllowHashFallback {
			results[idx] = Result{Model: b.cfg.Model}
			continue
		}
		v := HashVector(texts[idx], b.hashDimension())
		results[idx] = Result{Vector: v, Model: HashModelName, Fallback: true, OK: true}
	}
}

// hashDimension picks the width for fallback vectors: the learned provider
// width when known, so mixed batches stay index-compatible.
func (b *Batcher) hashDimension() int {
	if b.dim > 0 {
		return b.dim
	}
	return DefaultHashDimension
}

func (b *Batcher) learnDimension(n int) {
	if b.dim == 0 && n > 0 {
		b.dim = n
	}
}
