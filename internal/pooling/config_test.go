package pooling

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"method":    "clspooling",
		"path":      "acme/encoder",
		"device":    "cpu",
		"tokenizer": "acme/tokenizer",
		"maxlength": 256,
		"modelargs": map[string]any{"intra_op_threads": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "clspooling", cfg.Method)
	assert.Equal(t, Remote, cfg.Path.Kind())
	assert.Equal(t, "acme/encoder", cfg.Path.Path())
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "acme/tokenizer", cfg.Tokenizer)
	n, ok := cfg.MaxLength.Value()
	assert.True(t, ok)
	assert.Equal(t, 256, n)
	assert.Equal(t, map[string]any{"intra_op_threads": 2}, cfg.ModelArgs)
}

func TestDecodeConfig_Path(t *testing.T) {
	file := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	cfg, err := DecodeConfig(map[string]any{"path": file})
	require.NoError(t, err)
	assert.Equal(t, LocalFile, cfg.Path.Kind())

	cfg, err = DecodeConfig(map[string]any{"path": []byte("onnx")})
	require.NoError(t, err)
	assert.Equal(t, RawBytes, cfg.Path.Kind())
	assert.Equal(t, []byte("onnx"), cfg.Path.Bytes())

	_, err = DecodeConfig(map[string]any{"path": 12})
	assert.Error(t, err)
}

func TestDecodeConfig_MaxLength(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		want  string
		isErr bool
	}{
		{"absent", nil, "unset", false},
		{"true", true, "auto", false},
		{"false", false, "unset", false},
		{"int", 128, "128", false},
		{"int64", int64(64), "64", false},
		{"json float", 512.0, "512", false},
		{"json number", json.Number("32"), "32", false},
		{"zero", 0, "unset", false},
		{"negative", -1, "unset", false},
		{"string auto", "auto", "auto", false},
		{"string digits", "384", "384", false},
		{"fraction", 1.5, "", true},
		{"garbage", "lots", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := map[string]any{"path": "acme/encoder"}
			if tt.in != nil {
				m["maxlength"] = tt.in
			}
			cfg, err := DecodeConfig(m)
			if tt.isErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.MaxLength.String())
		})
	}
}

func TestDecodeConfig_FromJSON(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"path": "acme/encoder", "maxlength": true, "method": null}`), &m))

	cfg, err := DecodeConfig(m)
	require.NoError(t, err)
	assert.True(t, cfg.MaxLength.IsAuto())
	assert.Empty(t, cfg.Method)
}
