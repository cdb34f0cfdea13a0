package output

import (
	"context"
)

// Record is one embedded input. Pooled strategies fill Embedding; raw
// pooling fills Tokens with one vector per unpadded token.
type Record struct {
	Index     int         `json:"index"`
	Text      string      `json:"text,omitempty"`
	Model     string      `json:"model"`
	Method    string      `json:"method"`
	Embedding []float32   `json:"embedding,omitempty"`
	Tokens    [][]float32 `json:"tokens,omitempty"`
}

// Output defines the interface for embedding record destinations.
type Output interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}
