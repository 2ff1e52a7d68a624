package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/cloudwego/eino/components/embedding"
)

// HashModelName marks vectors produced by the deterministic fallback.
const HashModelName = "hash"

// DefaultHashDimension is used when no provider dimension is known yet.
const DefaultHashDimension = 384

// HashVector derives a deterministic unit vector from the text content.
// Identical text always yields the identical vector, so near-duplicate
// detection keeps working even when the embedding provider is down. The
// vector carries no semantic signal beyond content identity.
func HashVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultHashDimension
	}

	v := make([]float32, dim)
	block := sha256.Sum256([]byte(text))
	bi := 0
	for i := 0; i < dim; i++ {
		// Each component consumes 4 digest bytes; chain a fresh digest
		// whenever the current one is exhausted.
		if bi+4 > len(block) {
			block = sha256.Sum256(block[:])
			bi = 0
		}
		u := binary.BigEndian.Uint32(block[bi : bi+4])
		bi += 4
		// Map to [-1, 1).
		v[i] = float32(int64(u)-1<<31) / float32(1<<31)
	}
	return Normalize(v)
}

// HashEmbedder is an Embedder that only produces hash vectors. It backs tests
// and the degraded mode where no provider is configured at all.
type HashEmbedder struct {
	// Dim is the vector width. Zero means DefaultHashDimension.
	Dim int
}

// EmbedStrings implements the embedding.Embedder interface.
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := HashVector(text, h.Dim)
		f := make([]float64, len(v))
		for j, x := range v {
			f[j] = float64(x)
		}
		out[i] = f
	}
	return out, nil
}

var _ embedding.Embedder = (*HashEmbedder)(nil)
