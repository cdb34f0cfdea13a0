package embedder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// dense is a sentence-transformers Dense module (2_Dense) with identity
// activation: out = W·x + b.
type dense struct {
	weights []float32 // row-major [out, in]
	bias    []float32 // [out] or nil
	in, out int
}

type safetensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// loadDense reads linear.weight (and linear.bias when present) from a
// safetensors file. F32, F16 and BF16 tensors are widened to float32.
func loadDense(path string) (*dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	tensors, body, err := parseSafetensors(data)
	if err != nil {
		return nil, err
	}

	wMeta, ok := tensors["linear.weight"]
	if !ok {
		return nil, fmt.Errorf("dense: tensor 'linear.weight' not found")
	}
	if len(wMeta.Shape) != 2 {
		return nil, fmt.Errorf("dense: expected 2D weight, got shape %v", wMeta.Shape)
	}
	w, err := f32Tensor(body, wMeta)
	if err != nil {
		return nil, err
	}
	d := &dense{weights: w, out: wMeta.Shape[0], in: wMeta.Shape[1]}

	if bMeta, ok := tensors["linear.bias"]; ok {
		if len(bMeta.Shape) != 1 || bMeta.Shape[0] != d.out {
			return nil, fmt.Errorf("dense: bias shape %v does not match weight %v", bMeta.Shape, wMeta.Shape)
		}
		if d.bias, err = f32Tensor(body, bMeta); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// parseSafetensors splits a file into its tensor table and data section.
// Layout: 8-byte LE header length, JSON header, raw tensor bytes.
func parseSafetensors(data []byte) (map[string]safetensorMeta, []byte, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("dense: file too small: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint64(data[:8])
	if n > uint64(len(data)-8) {
		return nil, nil, fmt.Errorf("dense: header length %d exceeds file size", n)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+n], &header); err != nil {
		return nil, nil, fmt.Errorf("dense: failed to parse header: %w", err)
	}
	tensors := make(map[string]safetensorMeta, len(header))
	for name, raw := range header {
		if name == "__metadata__" {
			continue
		}
		var m safetensorMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, nil, fmt.Errorf("dense: tensor %s: %w", name, err)
		}
		tensors[name] = m
	}
	return tensors, data[8+n:], nil
}

func f32Tensor(body []byte, m safetensorMeta) ([]float32, error) {
	var width int
	switch m.Dtype {
	case "F32":
		width = 4
	case "F16", "BF16":
		width = 2
	default:
		return nil, fmt.Errorf("dense: unsupported dtype %s", m.Dtype)
	}
	count := 1
	for _, d := range m.Shape {
		count *= d
	}
	start, end := m.DataOffsets[0], m.DataOffsets[1]
	if start < 0 || end > len(body) || end-start != count*width {
		return nil, fmt.Errorf("dense: data range [%d:%d] invalid for %s shape %v", start, end, m.Dtype, m.Shape)
	}
	raw := body[start:end]

	switch m.Dtype {
	case "F16":
		out := make([]float32, count)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	case "BF16":
		return bfloat16.DecodeFloat32(raw), nil
	default:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	}
}

// apply projects vec from in to out dimensions.
func (d *dense) apply(vec []float32) []float32 {
	out := make([]float32, d.out)
	for i := range out {
		row := d.weights[i*d.in : (i+1)*d.in]
		var sum float32
		for j, w := range row {
			sum += w * vec[j]
		}
		if d.bias != nil {
			sum += d.bias[i]
		}
		out[i] = sum
	}
	return out
}
