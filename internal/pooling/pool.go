package pooling

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a TokenBatch's slices disagree with its
// declared dimensions.
var ErrShapeMismatch = errors.New("pooling: batch shape mismatch")

// meanEpsilon floors the token count so an all-padding row divides safely.
const meanEpsilon = 1e-9

// TokenBatch holds encoder output for one call.
//
// Hidden: flat [BatchSize * SeqLen * Dim] float32 (per-token hidden states)
// Mask:   flat [BatchSize * SeqLen] int64 (1 for real tokens, 0 for padding)
type TokenBatch struct {
	Hidden    []float32
	Mask      []int64
	BatchSize int
	SeqLen    int
	Dim       int
}

// Validate checks slice lengths against the declared dimensions.
func (b TokenBatch) Validate() error {
	if b.BatchSize < 0 || b.SeqLen < 0 || b.Dim < 0 {
		return fmt.Errorf("%w: negative dimension [%d %d %d]", ErrShapeMismatch, b.BatchSize, b.SeqLen, b.Dim)
	}
	if want := b.BatchSize * b.SeqLen * b.Dim; len(b.Hidden) != want {
		return fmt.Errorf("%w: hidden has %d values, want %d", ErrShapeMismatch, len(b.Hidden), want)
	}
	if want := b.BatchSize * b.SeqLen; len(b.Mask) != want {
		return fmt.Errorf("%w: mask has %d values, want %d", ErrShapeMismatch, len(b.Mask), want)
	}
	return nil
}

// Tensor is a flat row-major float32 array with its shape.
type Tensor struct {
	Data  []float32
	Shape []int
}

// Row returns the i-th slice along the first axis.
func (t Tensor) Row(i int) []float32 {
	if len(t.Shape) == 0 || t.Shape[0] == 0 {
		return nil
	}
	n := len(t.Data) / t.Shape[0]
	return t.Data[i*n : (i+1)*n]
}

// clsPool copies the hidden state at position 0 of every sequence.
// Returns flat [batchSize * dim].
func clsPool(b TokenBatch) []float32 {
	out := make([]float32, b.BatchSize*b.Dim)
	if b.SeqLen == 0 {
		return out
	}
	for i := 0; i < b.BatchSize; i++ {
		src := b.Hidden[i*b.SeqLen*b.Dim:]
		copy(out[i*b.Dim:(i+1)*b.Dim], src[:b.Dim])
	}
	return out
}

// meanPool computes attention-mask-weighted mean pooling over the sequence
// dimension. Padding positions are skipped before any arithmetic so
// non-finite values there never reach the sum. Returns flat
// [batchSize * dim].
func meanPool(b TokenBatch) []float32 {
	out := make([]float32, b.BatchSize*b.Dim)
	acc := make([]float64, b.Dim)

	for i := 0; i < b.BatchSize; i++ {
		maskOff := i * b.SeqLen
		hiddenOff := i * b.SeqLen * b.Dim

		clear(acc)
		var weight float64
		for s := 0; s < b.SeqLen; s++ {
			m := b.Mask[maskOff+s]
			if m == 0 {
				continue
			}
			w := float64(m)
			weight += w
			tok := b.Hidden[hiddenOff+s*b.Dim : hiddenOff+(s+1)*b.Dim]
			for d, v := range tok {
				acc[d] += float64(v) * w
			}
		}

		inv := 1 / max(weight, meanEpsilon)
		row := out[i*b.Dim : (i+1)*b.Dim]
		for d := range row {
			row[d] = float32(acc[d] * inv)
		}
	}

	return out
}
