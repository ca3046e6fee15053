// Package embedding maps text to fixed-length vectors using an external
// text-encoding model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrModelLoad means the model could not be reached or produced no
	// usable output. It is a configuration problem and is never retried.
	ErrModelLoad = errors.New("embedding model failed to load")
	// ErrDimensionMismatch means the model returned a vector whose length
	// differs from the declared dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Encoder is the boundary to a text-encoding model.
type Encoder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the backend and model (e.g. "ollama/all-minilm").
	Name() string
}

// Options tune a Generator.
type Options struct {
	// Dimension is the declared vector length.
	Dimension int
	// BatchSize caps the number of texts per Encoder call (default 64).
	BatchSize int
	// Concurrency bounds the number of in-flight Encoder calls (default 1).
	Concurrency int
	// RequestsPerSecond throttles Encoder calls; 0 disables throttling.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Generator wraps an Encoder with batching, ordering and dimension checks.
// It holds no per-call state and is safe for concurrent use.
type Generator struct {
	enc         Encoder
	dim         int
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(enc Encoder, opts Options) *Generator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	g := &Generator{
		enc:         enc,
		dim:         opts.Dimension,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

// Dimensions returns the declared vector length.
func (g *Generator) Dimensions() int { return g.dim }

// Name returns the underlying encoder name.
func (g *Generator) Name() string { return g.enc.Name() }

// Load probes the model once and verifies its output dimension.
func (g *Generator) Load(ctx context.Context) error {
	vecs, err := g.call(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, g.enc.Name(), err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("%w: %s returned %d vectors for 1 input", ErrModelLoad, g.enc.Name(), len(vecs))
	}
	if err := g.check(vecs[0]); err != nil {
		return err
	}
	g.logger.Info("embedding model loaded", "model", g.enc.Name(), "dimension", g.dim)
	return nil
}

// EncodeOne embeds a single text.
func (g *Generator) EncodeOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.call(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed: got %d vectors for 1 input", len(vecs))
	}
	if err := g.check(vecs[0]); err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts. Row i of the result always corresponds to
// texts[i], even when sub-batches run concurrently.
func (g *Generator) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		eg.Go(func() error {
			vecs, err := g.call(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed texts [%d:%d]: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed texts [%d:%d]: got %d vectors, want %d", start, end, len(vecs), end-start)
			}
			for i, v := range vecs {
				if err := g.check(v); err != nil {
					return fmt.Errorf("embed text %d: %w", start+i, err)
				}
				out[start+i] = v
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Generator) call(ctx context.Context, texts []string) ([][]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return g.enc.Embed(ctx, texts)
}

func (g *Generator) check(v []float32) error {
	if g.dim > 0 && len(v) != g.dim {
		return fmt.Errorf("%w: model %s returned %d values, declared %d", ErrDimensionMismatch, g.enc.Name(), len(v), g.dim)
	}
	return nil
}
