package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	"github.com/crimson-sun/pooler/internal/pooling"
)

// modelFiles are tried in order for model directories and hub repos.
var modelFiles = []string{"onnx/model.onnx", "model.onnx", "model_quantized.onnx"}

const vocabFile = "vocab.txt"

// Locator resolves a model artifact to a local file. found is false when
// the artifact does not exist.
type Locator interface {
	Open(ctx context.Context, path, name string) (localPath string, found bool, err error)
}

// modelArgs are the ModelArgs keys the ONNX encoder understands.
type modelArgs struct {
	LibraryPath    string `mapstructure:"library_path"`
	IntraOpThreads int    `mapstructure:"intra_op_threads"`
	InterOpThreads int    `mapstructure:"inter_op_threads"`
	ModelFile      string `mapstructure:"model_file"`
	Dense          string `mapstructure:"dense"`
}

func decodeModelArgs(m map[string]any) (modelArgs, error) {
	var a modelArgs
	if len(m) == 0 {
		return a, nil
	}
	if err := mapstructure.WeakDecode(m, &a); err != nil {
		return a, fmt.Errorf("embedder: modelargs: %w", err)
	}
	return a, nil
}

type options struct {
	libPath string
	intraOp int
	interOp int
}

// Option configures Load.
type Option func(*options)

// WithLibraryPath sets the onnxruntime shared library used when ModelArgs
// does not name one.
func WithLibraryPath(p string) Option {
	return func(o *options) { o.libPath = p }
}

// WithThreads sets default intra- and inter-op thread counts.
func WithThreads(intra, inter int) Option {
	return func(o *options) {
		o.intraOp = intra
		o.interOp = inter
	}
}

// Embedder runs text through tokenizer, encoder, pooling strategy and an
// optional dense projection. Safe for concurrent use.
type Embedder struct {
	strategy pooling.Strategy
	sess     *session
	tok      *tokenizer
	dense    *dense
}

// Result is the output of one Embed call. Output is [batch, seq, dim] for
// raw pooling and [batch, dim] otherwise; Mask is the padded attention mask
// [batch * SeqLen].
type Result struct {
	Output pooling.Tensor
	Mask   []int64
	SeqLen int
}

// Load builds the encoder described by s.Params(). loc resolves artifacts
// of model directories and hub repos.
func Load(ctx context.Context, s pooling.Strategy, loc Locator, opts ...Option) (*Embedder, error) {
	o := options{intraOp: 4, interOp: 1}
	for _, opt := range opts {
		opt(&o)
	}
	p := s.Params()
	args, err := decodeModelArgs(p.ModelArgs)
	if err != nil {
		return nil, err
	}

	cfg := sessionConfig{
		libPath: firstNonEmpty(args.LibraryPath, o.libPath),
		device:  p.Device,
		intraOp: firstPositive(args.IntraOpThreads, o.intraOp),
		interOp: firstPositive(args.InterOpThreads, o.interOp),
	}

	ref := p.Ref
	var modelDir string
	switch ref.Kind() {
	case pooling.RawBytes:
		cfg.modelData = ref.Bytes()
	case pooling.LocalFile:
		cfg.modelPath = ref.Path()
		modelDir = filepath.Dir(ref.Path())
		// We ship the runtime alongside the model files when it is not installed.
		if lib := filepath.Join(modelDir, "libonnxruntime.so"); cfg.libPath == "" && fileExists(lib) {
			cfg.libPath = lib
		}
	default:
		names := modelFiles
		if args.ModelFile != "" {
			names = []string{args.ModelFile}
		}
		if cfg.modelPath, err = openFirst(ctx, loc, ref.Path(), names); err != nil {
			return nil, err
		}
	}

	vocabPath, err := locateVocab(ctx, loc, p.Tokenizer, ref, modelDir)
	if err != nil {
		return nil, err
	}
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	var d *dense
	if args.Dense != "" && s.Method() != pooling.Raw {
		densePath, err := locateDense(ctx, loc, args.Dense, ref, modelDir)
		if err != nil {
			return nil, err
		}
		if d, err = loadDense(densePath); err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
	}

	sess, err := newSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if d != nil && d.in != sess.dim {
		sess.close()
		return nil, fmt.Errorf("embedder: encoder dim %d != dense input dim %d", sess.dim, d.in)
	}

	return &Embedder{
		strategy: s,
		sess:     sess,
		tok:      newTokenizer(v, p.MaxLength),
		dense:    d,
	}, nil
}

// Strategy returns the pooling strategy in use.
func (e *Embedder) Strategy() pooling.Strategy { return e.strategy }

// Dim returns the size of one output vector.
func (e *Embedder) Dim() int {
	if e.dense != nil {
		return e.dense.out
	}
	return e.sess.dim
}

// Embed encodes texts in a single batched inference call.
func (e *Embedder) Embed(ctx context.Context, texts []string) (Result, error) {
	if len(texts) == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	enc := e.tok.encode(texts)
	hidden, err := e.sess.infer(enc)
	if err != nil {
		return Result{}, fmt.Errorf("embedder: %w", err)
	}
	return e.pool(enc, hidden, e.sess.dim)
}

// pool reduces encoder output and applies the dense layer, if any.
func (e *Embedder) pool(enc encoding, hidden []float32, dim int) (Result, error) {
	out, err := e.strategy.Pool(pooling.TokenBatch{
		Hidden:    hidden,
		Mask:      enc.mask,
		BatchSize: enc.batch,
		SeqLen:    enc.seq,
		Dim:       dim,
	})
	if err != nil {
		return Result{}, fmt.Errorf("embedder: %w", err)
	}
	if e.dense != nil && len(out.Shape) == 2 {
		projected := make([]float32, 0, out.Shape[0]*e.dense.out)
		for i := 0; i < out.Shape[0]; i++ {
			projected = append(projected, e.dense.apply(out.Row(i))...)
		}
		out = pooling.Tensor{Data: projected, Shape: []int{out.Shape[0], e.dense.out}}
	}
	return Result{Output: out, Mask: enc.mask, SeqLen: enc.seq}, nil
}

// Close releases ONNX Runtime resources.
func (e *Embedder) Close() error {
	if e.sess != nil {
		return e.sess.close()
	}
	return nil
}

func openFirst(ctx context.Context, loc Locator, path string, names []string) (string, error) {
	for _, name := range names {
		p, found, err := loc.Open(ctx, path, name)
		if err != nil {
			return "", fmt.Errorf("embedder: %w", err)
		}
		if found {
			return p, nil
		}
	}
	return "", fmt.Errorf("embedder: none of %v found for %s", names, path)
}

// locateVocab prefers an explicit tokenizer reference (a vocab file or a
// model whose vocab.txt to use), then the model's own vocab.txt.
func locateVocab(ctx context.Context, loc Locator, tokenizer string, ref pooling.ModelRef, modelDir string) (string, error) {
	if tokenizer != "" {
		if fileExists(tokenizer) {
			return tokenizer, nil
		}
		return openFirst(ctx, loc, tokenizer, []string{vocabFile})
	}
	switch ref.Kind() {
	case pooling.RawBytes:
		return "", errors.New("embedder: in-memory models need an explicit tokenizer")
	case pooling.LocalFile:
		return filepath.Join(modelDir, vocabFile), nil
	default:
		return openFirst(ctx, loc, ref.Path(), []string{vocabFile})
	}
}

func locateDense(ctx context.Context, loc Locator, name string, ref pooling.ModelRef, modelDir string) (string, error) {
	switch {
	case filepath.IsAbs(name):
		return name, nil
	case ref.Kind() == pooling.LocalFile:
		return filepath.Join(modelDir, name), nil
	case ref.Kind() == pooling.RawBytes:
		return name, nil
	default:
		return openFirst(ctx, loc, ref.Path(), []string{name})
	}
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
