package output

import (
	"fmt"

	"github.com/crimson-sun/pooler/internal/pooling"
)

// Batch is the pooled result of one encoder call together with its inputs.
type Batch struct {
	Model  string
	Method pooling.Method
	Texts  []string
	Output pooling.Tensor
	// Mask is the padded attention mask [len(Texts) * SeqLen]; only raw
	// output uses it, to drop padding positions.
	Mask   []int64
	SeqLen int
	// Offset is added to each record's Index, for callers that embed a
	// stream in several batches.
	Offset int
}

// FormatBatch splits a batch into one Record per input text. When omitText
// is set the input text is left out of the records.
func FormatBatch(b Batch, omitText bool) ([]Record, error) {
	if len(b.Output.Shape) == 0 || b.Output.Shape[0] != len(b.Texts) {
		return nil, fmt.Errorf("output: batch of %d texts has output shape %v", len(b.Texts), b.Output.Shape)
	}
	recs := make([]Record, len(b.Texts))
	for i, text := range b.Texts {
		r := Record{
			Index:  b.Offset + i,
			Model:  b.Model,
			Method: b.Method.String(),
		}
		if !omitText {
			r.Text = text
		}
		row := b.Output.Row(i)
		switch len(b.Output.Shape) {
		case 2:
			r.Embedding = row
		case 3:
			if len(b.Mask) != len(b.Texts)*b.SeqLen || b.SeqLen != b.Output.Shape[1] {
				return nil, fmt.Errorf("output: mask of %d values does not match shape %v", len(b.Mask), b.Output.Shape)
			}
			dim := b.Output.Shape[2]
			for j := 0; j < b.SeqLen; j++ {
				if b.Mask[i*b.SeqLen+j] == 0 {
					continue
				}
				r.Tokens = append(r.Tokens, row[j*dim:(j+1)*dim])
			}
		default:
			return nil, fmt.Errorf("output: unsupported output shape %v", b.Output.Shape)
		}
		recs[i] = r
	}
	return recs, nil
}
