package pooling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
)

// Well-known sentence-transformers artifacts consulted during resolution.
const (
	PoolingConfigName   = "1_Pooling/config.json"
	TokenizerConfigName = "sentence_bert_config.json"
)

// ConfigReader fetches a named artifact stored alongside a model. A missing
// artifact is reported as found == false with a nil error; err is reserved
// for genuine failures such as network or auth errors.
type ConfigReader interface {
	Load(ctx context.Context, path, name string) (data []byte, found bool, err error)
}

// ResolveMethod reads the sentence-transformers pooling config for path.
// It returns CLS only when CLS token pooling is enabled and mean token
// pooling is not; every other case, including a missing or malformed
// artifact, yields Mean.
func ResolveMethod(ctx context.Context, r ConfigReader, path string) (Method, error) {
	return resolveMethod(ctx, r, path, slog.Default())
}

func resolveMethod(ctx context.Context, r ConfigReader, path string, log *slog.Logger) (Method, error) {
	obj, err := loadObject(ctx, r, path, PoolingConfigName, log)
	if err != nil || obj == nil {
		return Mean, err
	}
	cls, _ := obj["pooling_mode_cls_token"].(bool)
	mean, _ := obj["pooling_mode_mean_tokens"].(bool)
	if cls && !mean {
		return CLS, nil
	}
	return Mean, nil
}

// ResolveMaxLength reads max_seq_length from the sentence-transformers
// config for path. Zero means no limit: the artifact or field is missing,
// or the value is not a positive integer.
func ResolveMaxLength(ctx context.Context, r ConfigReader, path string) (int, error) {
	return resolveMaxLength(ctx, r, path, slog.Default())
}

func resolveMaxLength(ctx context.Context, r ConfigReader, path string, log *slog.Logger) (int, error) {
	obj, err := loadObject(ctx, r, path, TokenizerConfigName, log)
	if err != nil || obj == nil {
		return 0, err
	}
	raw, ok := obj["max_seq_length"]
	if !ok || raw == nil {
		return 0, nil
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) || f <= 0 || f > math.MaxInt32 {
		log.Warn("ignoring max_seq_length", "path", path, "value", raw)
		return 0, nil
	}
	return int(f), nil
}

// loadObject returns nil, nil when the artifact is absent or is not a JSON
// object.
func loadObject(ctx context.Context, r ConfigReader, path, name string, log *slog.Logger) (map[string]any, error) {
	data, found, err := r.Load(ctx, path, name)
	if err != nil {
		return nil, fmt.Errorf("pooling: load %s for %s: %w", name, path, err)
	}
	if !found {
		log.Debug("artifact not found", "path", path, "name", name)
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		log.Warn("ignoring malformed artifact", "path", path, "name", name, "error", err)
		return nil, nil
	}
	return obj, nil
}

// The helpers below encode the factory's precedence rules. They are pure so
// the ordering can be tested without a reader.

// needsMaxLength reports whether the length must be derived from the model.
func needsMaxLength(cfg Config) bool {
	return cfg.MaxLength.IsAuto()
}

// isRaw reports whether cfg bypasses resolution and yields raw pooling:
// in-memory content, a local model file, or an explicit raw method.
func isRaw(cfg Config) bool {
	if k := cfg.Path.Kind(); k == RawBytes || k == LocalFile {
		return true
	}
	m, ok := ParseMethod(cfg.Method)
	return ok && m == Raw
}

// needsMethod reports whether the method must be looked up on the hub: it
// is not already pinned to cls or mean, and the path names a remote model.
func needsMethod(cfg Config) bool {
	if m, ok := ParseMethod(cfg.Method); ok && m != Raw {
		return false
	}
	return cfg.Path.Kind() == Remote
}

// pinnedMethod returns the configured method when it is cls or mean, and
// Mean otherwise.
func pinnedMethod(cfg Config) Method {
	if m, ok := ParseMethod(cfg.Method); ok && m == CLS {
		return CLS
	}
	return Mean
}
