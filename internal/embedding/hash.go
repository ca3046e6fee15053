package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEncoder is an offline bag-of-words encoder using feature hashing.
// Texts sharing words land close together under cosine similarity. It
// needs no model server and backs dry runs and tests.
type HashEncoder struct {
	dim int
}

// NewHashEncoder creates a HashEncoder producing dim-length vectors.
func NewHashEncoder(dim int) (*HashEncoder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hash encoder: dimension must be positive, got %d", dim)
	}
	return &HashEncoder{dim: dim}, nil
}

func (h *HashEncoder) Name() string { return "hash" }

func (h *HashEncoder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEncoder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		f.Write([]byte(w))
		sum := f.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		v[sum%uint64(h.dim)] += sign
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		// Punctuation-only text; keep the vector valid for cosine.
		v[0] = 1
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}
