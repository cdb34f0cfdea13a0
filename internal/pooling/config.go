package pooling

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// MaxLength is the configured maximum sequence length: unset, auto-derived
// from the model, or a fixed token count. The zero value is unset.
type MaxLength struct {
	auto bool
	n    int
}

// AutoMaxLength asks the factory to read the length from the model's
// sentence_bert_config.json.
func AutoMaxLength() MaxLength { return MaxLength{auto: true} }

// FixedMaxLength pins the length to n tokens. Non-positive n is unset.
func FixedMaxLength(n int) MaxLength {
	if n <= 0 {
		return MaxLength{}
	}
	return MaxLength{n: n}
}

// IsAuto reports whether the length should be derived from the model.
func (m MaxLength) IsAuto() bool { return m.auto }

// Value returns the fixed length, if one is set.
func (m MaxLength) Value() (int, bool) { return m.n, m.n > 0 }

func (m MaxLength) String() string {
	switch {
	case m.auto:
		return "auto"
	case m.n > 0:
		return strconv.Itoa(m.n)
	default:
		return "unset"
	}
}

// Config is the input to Factory.Create. Device, Tokenizer and ModelArgs are
// opaque to resolution and handed to the constructed strategy unchanged.
type Config struct {
	Method    string
	Path      ModelRef
	Device    string
	Tokenizer string
	MaxLength MaxLength
	ModelArgs map[string]any
}

type mappedConfig struct {
	Method    string         `mapstructure:"method"`
	Path      ModelRef       `mapstructure:"path"`
	Device    string         `mapstructure:"device"`
	Tokenizer string         `mapstructure:"tokenizer"`
	MaxLength MaxLength      `mapstructure:"maxlength"`
	ModelArgs map[string]any `mapstructure:"modelargs"`
}

// DecodeConfig builds a Config from a loosely typed mapping, as produced by
// decoding JSON or YAML. Recognized keys are method, path, device,
// tokenizer, maxlength and modelargs; others are ignored. A string path is
// classified against local storage here, once.
func DecodeConfig(m map[string]any) (Config, error) {
	var mc mappedConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       configHook,
		WeaklyTypedInput: true,
		Result:           &mc,
	})
	if err != nil {
		return Config{}, fmt.Errorf("pooling: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return Config{}, fmt.Errorf("pooling: decode config: %w", err)
	}
	return Config(mc), nil
}

var (
	maxLengthType = reflect.TypeOf(MaxLength{})
	modelRefType  = reflect.TypeOf(ModelRef{})
)

func configHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case maxLengthType:
		return parseMaxLength(data)
	case modelRefType:
		return parseModelRef(data)
	}
	return data, nil
}

func parseModelRef(v any) (ModelRef, error) {
	switch p := v.(type) {
	case ModelRef:
		return p, nil
	case string:
		return ParseRef(p), nil
	case []byte:
		return BytesRef(p), nil
	default:
		return ModelRef{}, fmt.Errorf("path: unsupported type %T", v)
	}
}

// parseMaxLength accepts the boolean form (true = auto, false = unset), any
// integral number, or the same encoded as a string.
func parseMaxLength(v any) (MaxLength, error) {
	switch x := v.(type) {
	case MaxLength:
		return x, nil
	case nil:
		return MaxLength{}, nil
	case bool:
		if x {
			return AutoMaxLength(), nil
		}
		return MaxLength{}, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return MaxLength{}, fmt.Errorf("maxlength: %w", err)
		}
		return FixedMaxLength(int(n)), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "", "false", "none":
			return MaxLength{}, nil
		case "true", "auto":
			return AutoMaxLength(), nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return MaxLength{}, fmt.Errorf("maxlength: invalid value %q", x)
		}
		return FixedMaxLength(n), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FixedMaxLength(int(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FixedMaxLength(int(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return MaxLength{}, fmt.Errorf("maxlength: %v is not an integer", f)
		}
		return FixedMaxLength(int(f)), nil
	}
	return MaxLength{}, fmt.Errorf("maxlength: unsupported type %T", v)
}
