package pooler

import (
	"context"
	"fmt"

	"github.com/crimson-sun/pooler/internal/embedder"
	"github.com/crimson-sun/pooler/internal/hub"
	"github.com/crimson-sun/pooler/internal/output"
	"github.com/crimson-sun/pooler/internal/pooling"
)

// ErrModelNotFound is returned when the hub knows no such repository or
// revision.
var ErrModelNotFound = hub.ErrModelNotFound

// Spec is the resolved pooling configuration of a model.
type Spec struct {
	// Method is "meanpooling", "clspooling" or "pooling" (raw).
	Method string `json:"method"`
	// MaxLength is the token limit; zero means none.
	MaxLength int `json:"maxlength,omitempty"`
}

// Embedding is the encoder output for one text. Pooled methods fill Vector;
// raw pooling fills Tokens with one vector per non-padding token.
type Embedding struct {
	Vector []float32
	Tokens [][]float32
}

// Pooler embeds text with a resolved pooling strategy.
// Safe for concurrent use.
type Pooler struct {
	model string
	spec  pooling.Spec
	emb   *embedder.Embedder
}

// New resolves the pooling strategy for model and loads its encoder. model
// is a hub repository id, a local model directory or a local .onnx file.
// This is an expensive operation; create once, reuse across requests.
func New(ctx context.Context, model string, opts ...Option) (*Pooler, error) {
	return load(ctx, pooling.ParseRef(model), model, opts)
}

// NewFromBytes loads a serialized ONNX model held in memory. Such models
// always use raw pooling and need WithTokenizer.
func NewFromBytes(ctx context.Context, data []byte, opts ...Option) (*Pooler, error) {
	ref := pooling.BytesRef(data)
	return load(ctx, ref, ref.String(), opts)
}

// Resolve reports the pooling configuration New would use for model,
// without loading the encoder.
func Resolve(ctx context.Context, model string, opts ...Option) (Spec, error) {
	o := applyOptions(opts)
	f := pooling.NewFactory(newStore(o), pooling.WithLogger(o.logger))
	spec, err := f.Resolve(ctx, poolingConfig(pooling.ParseRef(model), o))
	if err != nil {
		return Spec{}, fmt.Errorf("pooler: %w", err)
	}
	return publicSpec(spec), nil
}

func load(ctx context.Context, ref pooling.ModelRef, name string, opts []Option) (*Pooler, error) {
	o := applyOptions(opts)
	store := newStore(o)
	cfg := poolingConfig(ref, o)

	spec, err := pooling.NewFactory(store, pooling.WithLogger(o.logger)).Resolve(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pooler: %w", err)
	}

	var eopts []embedder.Option
	if o.libPath != "" {
		eopts = append(eopts, embedder.WithLibraryPath(o.libPath))
	}
	emb, err := embedder.Load(ctx, pooling.Build(spec, cfg), store, eopts...)
	if err != nil {
		return nil, fmt.Errorf("pooler: %w", err)
	}
	return &Pooler{model: name, spec: spec, emb: emb}, nil
}

// Spec returns the resolved pooling configuration.
func (p *Pooler) Spec() Spec { return publicSpec(p.spec) }

// Dim returns the size of one embedding vector.
func (p *Pooler) Dim() int { return p.emb.Dim() }

// Embed embeds a single text.
func (p *Pooler) Embed(ctx context.Context, text string) (Embedding, error) {
	embs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return embs[0], nil
}

// EmbedBatch embeds multiple texts in a single batched inference call.
// More efficient than calling Embed in a loop.
func (p *Pooler) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	res, err := p.emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("pooler: %w", err)
	}
	recs, err := output.FormatBatch(output.Batch{
		Model:  p.model,
		Method: p.spec.Method,
		Texts:  texts,
		Output: res.Output,
		Mask:   res.Mask,
		SeqLen: res.SeqLen,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("pooler: %w", err)
	}
	embs := make([]Embedding, len(recs))
	for i, r := range recs {
		embs[i] = Embedding{Vector: r.Embedding, Tokens: r.Tokens}
	}
	return embs, nil
}

// Close releases model resources (ONNX runtime, memory).
// Must be called when the Pooler is no longer needed.
func (p *Pooler) Close() error {
	return p.emb.Close()
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newStore(o options) *hub.Store {
	var hopts []hub.Option
	if o.endpoint != "" {
		hopts = append(hopts, hub.WithEndpoint(o.endpoint))
	}
	if o.token != "" {
		hopts = append(hopts, hub.WithToken(o.token))
	}
	if o.cacheDir != "" {
		hopts = append(hopts, hub.WithCacheDir(o.cacheDir))
	}
	if o.revision != "" {
		hopts = append(hopts, hub.WithRevision(o.revision))
	}
	if o.retries > 0 {
		hopts = append(hopts, hub.WithRetries(o.retries))
	}
	if o.timeout > 0 {
		hopts = append(hopts, hub.WithTimeout(o.timeout))
	}
	return hub.NewStore(hub.New(hopts...))
}

func poolingConfig(ref pooling.ModelRef, o options) pooling.Config {
	return pooling.Config{
		Method:    o.method,
		Path:      ref,
		Device:    o.device,
		Tokenizer: o.tokenizer,
		MaxLength: o.maxLength,
		ModelArgs: o.modelArgs,
	}
}

func publicSpec(s pooling.Spec) Spec {
	return Spec{Method: s.Method.String(), MaxLength: s.MaxLength}
}
