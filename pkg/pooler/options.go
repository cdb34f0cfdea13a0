package pooler

import (
	"log/slog"
	"time"

	"github.com/crimson-sun/pooler/internal/pooling"
)

type options struct {
	method    string
	maxLength pooling.MaxLength
	device    string
	tokenizer string
	modelArgs map[string]any

	endpoint string
	token    string
	cacheDir string
	revision string
	retries  int
	timeout  time.Duration

	libPath string
	logger  *slog.Logger
}

// Option configures a Pooler.
type Option func(*options)

// WithMethod pins the pooling method: "meanpooling", "clspooling" or
// "pooling" (raw token vectors). Short forms "mean", "cls" and "raw" are
// accepted. Anything else is looked up from the model.
func WithMethod(m string) Option {
	return func(o *options) { o.method = m }
}

// WithMaxLength truncates inputs to n tokens. n <= 0 means no limit.
func WithMaxLength(n int) Option {
	return func(o *options) { o.maxLength = pooling.FixedMaxLength(n) }
}

// WithAutoMaxLength reads the token limit from the model's
// sentence_bert_config.json.
func WithAutoMaxLength() Option {
	return func(o *options) { o.maxLength = pooling.AutoMaxLength() }
}

// WithDevice selects the execution device: "cpu" (default) or "cuda[:N]".
func WithDevice(d string) Option {
	return func(o *options) { o.device = d }
}

// WithTokenizer sets the vocabulary source: a vocab.txt path or a model
// whose vocab.txt to use. Required for NewFromBytes.
func WithTokenizer(t string) Option {
	return func(o *options) { o.tokenizer = t }
}

// WithModelArgs passes encoder arguments through unchanged. Understood keys:
// library_path, intra_op_threads, inter_op_threads, model_file, dense.
func WithModelArgs(args map[string]any) Option {
	return func(o *options) { o.modelArgs = args }
}

// WithHubEndpoint overrides the model hub base URL. Default: $HF_ENDPOINT or
// https://huggingface.co.
func WithHubEndpoint(u string) Option {
	return func(o *options) { o.endpoint = u }
}

// WithHubToken sets the bearer token for gated or private repositories.
// Default: $HF_TOKEN.
func WithHubToken(t string) Option {
	return func(o *options) { o.token = t }
}

// WithCacheDir sets where downloaded artifacts are stored.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithRevision pins the hub revision (branch, tag or commit). Default: main.
func WithRevision(rev string) Option {
	return func(o *options) { o.revision = rev }
}

// WithRetries retries rate-limited and 5xx hub responses n times.
// Default: 0.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithTimeout bounds each hub download.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLibraryPath sets the onnxruntime shared library.
func WithLibraryPath(p string) Option {
	return func(o *options) { o.libPath = p }
}

// WithLogger sets the logger for resolution diagnostics. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}
