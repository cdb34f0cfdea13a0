package embedder

import (
	"reflect"
	"strings"
	"testing"
)

// testVocab has ids equal to line numbers:
// [PAD]=0 [UNK]=1 [CLS]=2 [SEP]=3 hello=4 world=5 un=6 ##aff=7 ##able=8
// ,=9 !=10 cafe=11 中=12
const testVocab = "[PAD]\n[UNK]\n[CLS]\n[SEP]\nhello\nworld\nun\n##aff\n##able\n,\n!\ncafe\n中\n"

func testTokenizer(t *testing.T, maxLen int) *tokenizer {
	t.Helper()
	v, err := readVocab(strings.NewReader(testVocab))
	if err != nil {
		t.Fatalf("failed to read vocab: %v", err)
	}
	return newTokenizer(v, maxLen)
}

func TestReadVocab(t *testing.T) {
	v, err := readVocab(strings.NewReader(testVocab))
	if err != nil {
		t.Fatalf("readVocab: %v", err)
	}
	if v.size() != 13 {
		t.Errorf("expected 13 tokens, got %d", v.size())
	}
	if v.pad != 0 || v.unk != 1 || v.cls != 2 || v.sep != 3 {
		t.Errorf("special ids = %d %d %d %d, want 0 1 2 3", v.pad, v.unk, v.cls, v.sep)
	}
	if v.id("nope") != v.unk {
		t.Errorf("unknown token should map to [UNK]")
	}
}

func TestReadVocabErrors(t *testing.T) {
	if _, err := readVocab(strings.NewReader("")); err == nil {
		t.Error("expected error for empty vocab")
	}
	if _, err := readVocab(strings.NewReader("[PAD]\n[UNK]\n[CLS]\n")); err == nil {
		t.Error("expected error for missing [SEP]")
	}
}

var tokenizeTests = []struct {
	name string
	text string
	ids  []int64
}{
	{name: "simple", text: "hello world", ids: []int64{2, 4, 5, 3}},
	{name: "case and punctuation", text: "Hello, World!", ids: []int64{2, 4, 9, 5, 10, 3}},
	{name: "wordpiece", text: "unaffable", ids: []int64{2, 6, 7, 8, 3}},
	{name: "accents stripped", text: "Café", ids: []int64{2, 11, 3}},
	{name: "unknown word", text: "xyz", ids: []int64{2, 1, 3}},
	{name: "cjk isolated", text: "hello中world", ids: []int64{2, 4, 12, 5, 3}},
	{name: "control chars dropped", text: "hello\x00\x07 world", ids: []int64{2, 4, 5, 3}},
	{name: "empty", text: "", ids: []int64{2, 3}},
}

func TestTokenizerSequence(t *testing.T) {
	tok := testTokenizer(t, 0)
	for _, tt := range tokenizeTests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.sequence(tt.text)
			if !reflect.DeepEqual(got, tt.ids) {
				t.Errorf("sequence(%q) = %v, want %v", tt.text, got, tt.ids)
			}
		})
	}
}

func TestTokenizerTruncation(t *testing.T) {
	tok := testTokenizer(t, 4)
	got := tok.sequence("hello world hello world")
	want := []int64{2, 4, 5, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A cap below 2 still leaves room for [CLS] and [SEP].
	tok = testTokenizer(t, 1)
	if got := tok.sequence("hello"); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Errorf("got %v, want [2 3]", got)
	}
}

func TestTokenizerLongWordIsUnknown(t *testing.T) {
	tok := testTokenizer(t, 0)
	got := tok.sequence(strings.Repeat("a", maxWordRunes+1))
	if !reflect.DeepEqual(got, []int64{2, 1, 3}) {
		t.Errorf("got %v, want [2 1 3]", got)
	}
}

func TestTokenizerEncodePadding(t *testing.T) {
	tok := testTokenizer(t, 0)
	e := tok.encode([]string{"hello", "hello world"})

	if e.batch != 2 || e.seq != 4 {
		t.Fatalf("shape = [%d %d], want [2 4]", e.batch, e.seq)
	}
	wantIDs := []int64{2, 4, 3, 0, 2, 4, 5, 3}
	wantMask := []int64{1, 1, 1, 0, 1, 1, 1, 1}
	if !reflect.DeepEqual(e.ids, wantIDs) {
		t.Errorf("ids = %v, want %v", e.ids, wantIDs)
	}
	if !reflect.DeepEqual(e.mask, wantMask) {
		t.Errorf("mask = %v, want %v", e.mask, wantMask)
	}
	for i, v := range e.typeIDs {
		if v != 0 {
			t.Errorf("typeIDs[%d] = %d, want 0", i, v)
		}
	}
}

func TestTokenizerEncodeEmpty(t *testing.T) {
	tok := testTokenizer(t, 0)
	e := tok.encode(nil)
	if e.batch != 0 || len(e.ids) != 0 {
		t.Errorf("expected empty encoding, got %+v", e)
	}
}
