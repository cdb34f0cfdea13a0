package pooling

import (
	"context"
	"log/slog"
)

// Spec is the outcome of resolution. A zero MaxLength means no truncation.
type Spec struct {
	Method    Method `json:"method"`
	MaxLength int    `json:"maxlength,omitempty"`
}

// Factory resolves pooling configuration into strategies.
type Factory struct {
	reader ConfigReader
	log    *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFactory creates a Factory that consults r for model metadata.
func NewFactory(r ConfigReader, opts ...FactoryOption) *Factory {
	f := &Factory{reader: r, log: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve applies the precedence rules to cfg:
//
//  1. an auto max length is read from the model's sentence_bert_config.json;
//  2. in-memory content, a local model file or an explicit raw method yields
//     Raw with no further lookups;
//  3. a method not pinned to cls or mean is read from the remote model's
//     1_Pooling/config.json;
//  4. anything that is not CLS is Mean.
//
// Missing artifacts fall back to defaults. Only reader failures are returned.
func (f *Factory) Resolve(ctx context.Context, cfg Config) (Spec, error) {
	var spec Spec

	if needsMaxLength(cfg) {
		n, err := f.maxLength(ctx, cfg.Path)
		if err != nil {
			return Spec{}, err
		}
		spec.MaxLength = n
	} else if n, ok := cfg.MaxLength.Value(); ok {
		spec.MaxLength = n
	}

	switch {
	case isRaw(cfg):
		spec.Method = Raw
	case needsMethod(cfg):
		m, err := resolveMethod(ctx, f.reader, cfg.Path.Path(), f.log)
		if err != nil {
			return Spec{}, err
		}
		spec.Method = m
	default:
		spec.Method = pinnedMethod(cfg)
	}

	f.log.Debug("resolved pooling",
		"path", cfg.Path.String(),
		"kind", cfg.Path.Kind().String(),
		"method", spec.Method.String(),
		"maxlength", spec.MaxLength,
	)
	return spec, nil
}

// Create resolves cfg and constructs the matching strategy.
func (f *Factory) Create(ctx context.Context, cfg Config) (Strategy, error) {
	spec, err := f.Resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Build(spec, cfg), nil
}

// Build constructs the strategy for an already resolved spec. It is the
// single dispatch point from Method to implementation.
func Build(spec Spec, cfg Config) Strategy {
	p := Params{
		Ref:       cfg.Path,
		Device:    cfg.Device,
		Tokenizer: cfg.Tokenizer,
		MaxLength: spec.MaxLength,
		ModelArgs: cfg.ModelArgs,
	}
	switch spec.Method {
	case Raw:
		return NewRawPooling(p)
	case CLS:
		return NewClsPooling(p)
	default:
		return NewMeanPooling(p)
	}
}

// maxLength derives the length for ref. Single files and in-memory content
// carry no sibling artifacts, so they are never looked up.
func (f *Factory) maxLength(ctx context.Context, ref ModelRef) (int, error) {
	switch ref.Kind() {
	case Remote, LocalDir:
		return resolveMaxLength(ctx, f.reader, ref.Path(), f.log)
	default:
		return 0, nil
	}
}
