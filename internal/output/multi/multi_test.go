package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/crimson-sun/pooler/internal/output"
)

// mockOutput records calls for test assertions.
type mockOutput struct {
	recs   []output.Record
	closed bool
	err    error // if set, Write returns this error
}

func (m *mockOutput) Write(_ context.Context, rec output.Record) error {
	m.recs = append(m.recs, rec)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closed = true
	return m.err
}

func testRecord(text string) output.Record {
	return output.Record{Text: text, Model: "acme/encoder", Method: "meanpooling", Embedding: []float32{1}}
}

func TestFanOutDeliversToAll(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	c := &mockOutput{}
	m := New(a, b, c)

	if err := m.Write(context.Background(), testRecord("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, out := range []*mockOutput{a, b, c} {
		if len(out.recs) != 1 {
			t.Fatalf("output %d: got %d records, want 1", i, len(out.recs))
		}
		if out.recs[0].Text != "hello" {
			t.Errorf("output %d: got text %q, want %q", i, out.recs[0].Text, "hello")
		}
	}
}

func TestErrorDoesNotPreventDelivery(t *testing.T) {
	failing := &mockOutput{err: errors.New("disk full")}
	healthy := &mockOutput{}
	m := New(failing, healthy)

	err := m.Write(context.Background(), testRecord("x"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// Healthy output still received the record despite earlier failure.
	if len(healthy.recs) != 1 {
		t.Fatalf("healthy output got %d records, want 1", len(healthy.recs))
	}
	if len(failing.recs) != 1 {
		t.Fatalf("failing output got %d records, want 1", len(failing.recs))
	}
}

func TestCloseCallsAllOutputs(t *testing.T) {
	a := &mockOutput{}
	b := &mockOutput{}
	m := New(a, b)

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Errorf("Close not called on all outputs: a=%v b=%v", a.closed, b.closed)
	}
}

func TestCloseCollectsErrors(t *testing.T) {
	a := &mockOutput{err: errors.New("err-a")}
	b := &mockOutput{err: errors.New("err-b")}
	m := New(a, b)

	err := m.Close()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, a.err) || !errors.Is(err, b.err) {
		t.Errorf("expected both close errors, got %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("Close should be called on all outputs even when errors occur")
	}
}

func TestWriteErrorNamesOutputAndRecord(t *testing.T) {
	diskFull := errors.New("disk full")
	m := New(&mockOutput{}, &mockOutput{err: diskFull})

	rec := testRecord("x")
	rec.Index = 7
	err := m.Write(context.Background(), rec)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected wrapped disk full error, got %v", err)
	}
	if got, want := err.Error(), "output 1: record 7: disk full"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestNewDropsNilOutputs(t *testing.T) {
	a := &mockOutput{}
	m := New(nil, a, nil)

	if err := m.Write(context.Background(), testRecord("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.recs) != 1 || !a.closed {
		t.Errorf("non-nil output not used: %+v", a)
	}
}
