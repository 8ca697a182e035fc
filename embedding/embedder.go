package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"datasearch/logutils"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Encoder turns text into fixed-dimension vectors. Implementations must be
// safe for concurrent use.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// GeneratorConfig configures the embedding backend: an OpenAI-compatible
// embedding endpoint serving the configured model.
type GeneratorConfig struct {
	BaseURL   string
	Token     string
	Model     string
	Dimension int
	BatchSize int
}

// Generator is the production Encoder. The backing client is loaded lazily
// and exactly once; a load failure is a hard initialization error, not a
// per-record failure.
type Generator struct {
	cfg GeneratorConfig

	once     sync.Once
	embedder embeddings.Embedder
	initErr  error
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Token == "" {
		// Local OpenAI-compatible services accept any token.
		cfg.Token = "none"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Generator{cfg: cfg}
}

func (g *Generator) load() error {
	g.once.Do(func() {
		logutils.Log.Infof("loading embedding model: %s", g.cfg.Model)
		client, err := openai.New(
			openai.WithBaseURL(g.cfg.BaseURL),
			openai.WithToken(g.cfg.Token),
			openai.WithEmbeddingModel(g.cfg.Model),
		)
		if err != nil {
			g.initErr = fmt.Errorf("cannot load embedding model %s: %w", g.cfg.Model, err)
			return
		}
		embedder, err := embeddings.NewEmbedder(client,
			embeddings.WithStripNewLines(true),
			embeddings.WithBatchSize(g.cfg.BatchSize),
		)
		if err != nil {
			g.initErr = fmt.Errorf("cannot load embedding model %s: %w", g.cfg.Model, err)
			return
		}
		g.embedder = embedder
		logutils.Log.Infof("embedding model loaded, dimension: %d", g.cfg.Dimension)
	})
	return g.initErr
}

func (g *Generator) Dimension() int { return g.cfg.Dimension }

// Encode embeds a single text. Empty text is embedded as the empty string
// rather than rejected.
func (g *Generator) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeBatch embeds texts in order.
func (g *Generator) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	// The backend rejects empty inputs; the contract treats them as "".
	valid := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		valid[i] = t
	}
	vectors, err := g.embedder.EmbedDocuments(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("encode %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}
	for i := range vectors {
		vectors[i] = Normalize(vectors[i])
	}
	return vectors, nil
}

// MetadataText builds the embedding input for a dataset: the title twice,
// then the description, weighting title relevance above description
// relevance.
func MetadataText(title, description string) string {
	parts := []string{title, title}
	if description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, " ")
}

// EncodeMetadata embeds a dataset's title and description with the title
// weighted double.
func EncodeMetadata(ctx context.Context, enc Encoder, title, description string) ([]float32, error) {
	return enc.Encode(ctx, MetadataText(title, description))
}

// Normalize scales v to unit length. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var magnitude float32
	for _, x := range v {
		magnitude += x * x
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))
	if magnitude == 0 {
		return make([]float32, len(v))
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / magnitude
	}
	return out
}

// Dot is the similarity between two pre-normalized vectors, equivalent to
// cosine similarity.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += a[i] * b[i]
	}
	return sum
}
