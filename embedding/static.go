package embedding

import (
	"context"
	"hash/fnv"
	"strings"
)

// Static is a deterministic in-process Encoder: a hashed bag of words. It
// backs tests and deployments without an embedding service. Vectors are
// normalized, so Dot stays meaningful for rough similarity.
type Static struct {
	Dim int
}

func NewStatic(dim int) *Static {
	if dim <= 0 {
		dim = 384
	}
	return &Static{Dim: dim}
}

func (s *Static) Dimension() int { return s.Dim }

func (s *Static) Encode(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, s.Dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[int(h.Sum32())%s.Dim]++
	}
	return Normalize(v), nil
}

func (s *Static) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Encode(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
