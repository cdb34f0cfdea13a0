package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/crimson-sun/pooler/internal/output"
)

func testRecord() output.Record {
	return output.Record{
		Index:     3,
		Text:      "hello world",
		Model:     "acme/encoder",
		Method:    "meanpooling",
		Embedding: []float32{0.25, -0.5},
	}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestOutputCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(false)
		out.Write(context.Background(), testRecord())
		out.Write(context.Background(), testRecord())
	})

	// One record per line (NDJSON).
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var rec output.Record
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec.Method != "meanpooling" || rec.Index != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.Embedding) != 2 || rec.Embedding[1] != -0.5 {
		t.Fatalf("embedding = %v", rec.Embedding)
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(true)
		out.Write(context.Background(), testRecord())
	})

	// Pretty JSON should have multiple lines with indentation.
	if !strings.Contains(result, "  ") {
		t.Fatal("expected indented output for pretty mode")
	}
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected multi-line pretty output, got %d lines", len(lines))
	}
}
