package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/pooler/internal/output"
)

// Multi tees embedding records to several outputs, as `embed --output
// --tee` does with a file and stdout. A failing output does not stop the
// record from reaching the rest.
type Multi struct {
	outputs []output.Output
}

// New returns a Multi over outputs. nil entries are dropped.
func New(outputs ...output.Output) *Multi {
	m := &Multi{outputs: make([]output.Output, 0, len(outputs))}
	for _, o := range outputs {
		if o != nil {
			m.outputs = append(m.outputs, o)
		}
	}
	return m
}

// Write hands rec to every output and joins their errors, each tagged with
// the output's position.
func (m *Multi) Write(ctx context.Context, rec output.Record) error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("output %d: record %d: %w", i, rec.Index, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every output, last opened first.
func (m *Multi) Close() error {
	var errs []error
	for i := len(m.outputs) - 1; i >= 0; i-- {
		if err := m.outputs[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
