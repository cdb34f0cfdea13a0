package embedder

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/crimson-sun/pooler/internal/pooling"
)

func closeEnough(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-6
}

// fakeLocator serves files from a map keyed "path|name".
type fakeLocator struct {
	files map[string]string
	err   error
	calls []string
}

func (f *fakeLocator) Open(_ context.Context, path, name string) (string, bool, error) {
	f.calls = append(f.calls, path+"|"+name)
	if f.err != nil {
		return "", false, f.err
	}
	p, ok := f.files[path+"|"+name]
	return p, ok, nil
}

func TestPoolMean(t *testing.T) {
	e := &Embedder{strategy: pooling.NewMeanPooling(pooling.Params{})}
	// 2 samples, seq=2, dim=2; second sample has one padded token.
	enc := encoding{mask: []int64{1, 1, 1, 0}, batch: 2, seq: 2}
	hidden := []float32{1, 2, 3, 4, 5, 6, 99, 99}

	res, err := e.pool(enc, hidden, 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if !reflect.DeepEqual(res.Output.Shape, []int{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", res.Output.Shape)
	}
	want := []float32{2, 3, 5, 6}
	for i := range want {
		if !closeEnough(res.Output.Data[i], want[i]) {
			t.Errorf("out[%d] = %f, want %f", i, res.Output.Data[i], want[i])
		}
	}
	if res.SeqLen != 2 || !reflect.DeepEqual(res.Mask, enc.mask) {
		t.Errorf("mask/seq not carried through: %+v", res)
	}
}

func TestPoolRawSkipsDense(t *testing.T) {
	e := &Embedder{
		strategy: pooling.NewRawPooling(pooling.Params{}),
		dense:    &dense{weights: []float32{1, 1}, in: 2, out: 1},
	}
	enc := encoding{mask: []int64{1, 1}, batch: 1, seq: 2}
	hidden := []float32{1, 2, 3, 4}

	res, err := e.pool(enc, hidden, 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if !reflect.DeepEqual(res.Output.Shape, []int{1, 2, 2}) {
		t.Errorf("shape = %v, want [1 2 2]", res.Output.Shape)
	}
	if !reflect.DeepEqual(res.Output.Data, hidden) {
		t.Errorf("raw output changed: %v", res.Output.Data)
	}
}

func TestPoolClsWithDense(t *testing.T) {
	e := &Embedder{
		strategy: pooling.NewClsPooling(pooling.Params{}),
		dense:    &dense{weights: []float32{1, 1, 1, -1}, bias: []float32{0, 10}, in: 2, out: 2},
	}
	enc := encoding{mask: []int64{1, 1}, batch: 1, seq: 2}
	hidden := []float32{3, 1, 100, 100}

	res, err := e.pool(enc, hidden, 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	want := []float32{4, 12}
	if !reflect.DeepEqual(res.Output.Shape, []int{1, 2}) {
		t.Fatalf("shape = %v, want [1 2]", res.Output.Shape)
	}
	for i := range want {
		if !closeEnough(res.Output.Data[i], want[i]) {
			t.Errorf("out[%d] = %f, want %f", i, res.Output.Data[i], want[i])
		}
	}
}

func TestPoolShapeMismatch(t *testing.T) {
	e := &Embedder{strategy: pooling.NewMeanPooling(pooling.Params{})}
	enc := encoding{mask: []int64{1, 1}, batch: 1, seq: 2}
	_, err := e.pool(enc, []float32{1, 2, 3}, 2)
	if !errors.Is(err, pooling.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := &Embedder{strategy: pooling.NewMeanPooling(pooling.Params{})}
	res, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Output.Data) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestDecodeModelArgs(t *testing.T) {
	args, err := decodeModelArgs(map[string]any{
		"library_path":     "/opt/ort/libonnxruntime.so",
		"intra_op_threads": "8",
		"inter_op_threads": 2,
		"dense":            "2_Dense/model.safetensors",
		"unrelated":        true,
	})
	if err != nil {
		t.Fatalf("decodeModelArgs: %v", err)
	}
	want := modelArgs{
		LibraryPath:    "/opt/ort/libonnxruntime.so",
		IntraOpThreads: 8,
		InterOpThreads: 2,
		Dense:          "2_Dense/model.safetensors",
	}
	if args != want {
		t.Errorf("got %+v, want %+v", args, want)
	}

	if _, err := decodeModelArgs(map[string]any{"intra_op_threads": "many"}); err == nil {
		t.Error("expected error for non-numeric thread count")
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		in      string
		kind    string
		id      int
		wantErr bool
	}{
		{in: "", kind: "cpu"},
		{in: "cpu", kind: "cpu"},
		{in: "CUDA", kind: "cuda"},
		{in: "cuda:1", kind: "cuda", id: 1},
		{in: " gpu:0 ", kind: "gpu"},
		{in: "cuda:x", wantErr: true},
		{in: "cuda:-1", wantErr: true},
	}
	for _, tt := range tests {
		kind, id, err := parseDevice(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDevice(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil || kind != tt.kind || id != tt.id {
			t.Errorf("parseDevice(%q) = %q, %d, %v; want %q, %d", tt.in, kind, id, err, tt.kind, tt.id)
		}
	}
}

func TestOpenFirst(t *testing.T) {
	loc := &fakeLocator{files: map[string]string{
		"acme/enc|model.onnx": "/cache/model.onnx",
	}}
	p, err := openFirst(context.Background(), loc, "acme/enc", modelFiles)
	if err != nil {
		t.Fatalf("openFirst: %v", err)
	}
	if p != "/cache/model.onnx" {
		t.Errorf("got %q", p)
	}
	wantCalls := []string{"acme/enc|onnx/model.onnx", "acme/enc|model.onnx"}
	if !reflect.DeepEqual(loc.calls, wantCalls) {
		t.Errorf("calls = %v, want %v", loc.calls, wantCalls)
	}

	if _, err := openFirst(context.Background(), &fakeLocator{}, "acme/enc", modelFiles); err == nil {
		t.Error("expected error when no candidate exists")
	}

	boom := errors.New("boom")
	if _, err := openFirst(context.Background(), &fakeLocator{err: boom}, "acme/enc", modelFiles); !errors.Is(err, boom) {
		t.Errorf("expected wrapped locator error, got %v", err)
	}
}

func TestLocateVocab(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	explicit := filepath.Join(dir, "vocab.txt")
	if err := os.WriteFile(explicit, []byte(testVocab), 0o644); err != nil {
		t.Fatal(err)
	}
	loc := &fakeLocator{files: map[string]string{
		"acme/enc|vocab.txt": "/cache/acme/vocab.txt",
		"acme/tok|vocab.txt": "/cache/tok/vocab.txt",
	}}
	remote := pooling.RemoteRef("acme/enc")

	tests := []struct {
		name      string
		tokenizer string
		ref       pooling.ModelRef
		modelDir  string
		want      string
		wantErr   bool
	}{
		{name: "explicit file", tokenizer: explicit, ref: remote, want: explicit},
		{name: "explicit repo", tokenizer: "acme/tok", ref: remote, want: "/cache/tok/vocab.txt"},
		{name: "model repo", ref: remote, want: "/cache/acme/vocab.txt"},
		{name: "local file sibling", ref: pooling.ParseRef(explicit), modelDir: dir, want: explicit},
		{name: "bytes without tokenizer", ref: pooling.BytesRef([]byte{1}), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := locateVocab(ctx, loc, tt.tokenizer, tt.ref, tt.modelDir)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("locateVocab: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocateDense(t *testing.T) {
	ctx := context.Background()
	loc := &fakeLocator{files: map[string]string{
		"acme/enc|2_Dense/model.safetensors": "/cache/dense.safetensors",
	}}

	got, err := locateDense(ctx, loc, "2_Dense/model.safetensors", pooling.RemoteRef("acme/enc"), "")
	if err != nil || got != "/cache/dense.safetensors" {
		t.Errorf("remote: got %q, %v", got, err)
	}
	got, err = locateDense(ctx, loc, "2_Dense/model.safetensors", pooling.ModelRef{}, "")
	if err == nil {
		t.Errorf("expected error for unresolvable dense path, got %q", got)
	}
	got, err = locateDense(ctx, loc, "/abs/dense.safetensors", pooling.RemoteRef("acme/enc"), "")
	if err != nil || got != "/abs/dense.safetensors" {
		t.Errorf("absolute: got %q, %v", got, err)
	}
}
