package embedder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxWordRunes is the longest word WordPiece will try to split.
const maxWordRunes = 200

// encoding is a padded batch ready for inference. Slices are flat
// [batch * seq].
type encoding struct {
	ids     []int64
	mask    []int64
	typeIDs []int64
	batch   int
	seq     int
}

// tokenizer is an uncased BERT WordPiece tokenizer.
type tokenizer struct {
	vocab *vocab
	// maxLen caps each sequence including [CLS] and [SEP]; zero means no cap.
	maxLen int
}

func newTokenizer(v *vocab, maxLen int) *tokenizer {
	if maxLen > 0 && maxLen < 2 {
		maxLen = 2
	}
	return &tokenizer{vocab: v, maxLen: maxLen}
}

// sequence returns [CLS] wordpieces... [SEP] for text, truncated to maxLen.
func (t *tokenizer) sequence(text string) []int64 {
	pieces := t.wordpieces(text)
	if t.maxLen > 0 && len(pieces) > t.maxLen-2 {
		pieces = pieces[:t.maxLen-2]
	}
	ids := make([]int64, 0, len(pieces)+2)
	ids = append(ids, t.vocab.cls)
	for _, p := range pieces {
		ids = append(ids, t.vocab.id(p))
	}
	return append(ids, t.vocab.sep)
}

// encode tokenizes texts and pads them to the longest sequence.
func (t *tokenizer) encode(texts []string) encoding {
	if len(texts) == 0 {
		return encoding{}
	}
	seqs := make([][]int64, len(texts))
	longest := 0
	for i, text := range texts {
		seqs[i] = t.sequence(text)
		longest = max(longest, len(seqs[i]))
	}

	e := encoding{
		ids:     make([]int64, len(texts)*longest),
		mask:    make([]int64, len(texts)*longest),
		typeIDs: make([]int64, len(texts)*longest),
		batch:   len(texts),
		seq:     longest,
	}
	for i, s := range seqs {
		off := i * longest
		copy(e.ids[off:], s)
		for j := len(s); j < longest; j++ {
			e.ids[off+j] = t.vocab.pad
		}
		for j := range s {
			e.mask[off+j] = 1
		}
	}
	return e
}

// wordpieces runs basic tokenization followed by greedy longest-match
// WordPiece.
func (t *tokenizer) wordpieces(text string) []string {
	var out []string
	for _, word := range basicTokens(text) {
		out = append(out, t.splitWord(word)...)
	}
	return out
}

func (t *tokenizer) splitWord(word string) []string {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []string{"[UNK]"}
	}
	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.has(sub) {
				pieces = append(pieces, sub)
				break
			}
		}
		if end == start {
			return []string{"[UNK]"}
		}
		start = end
	}
	return pieces
}

// basicTokens lowercases, strips accents and control characters, isolates
// CJK ideographs and punctuation, and splits on whitespace.
func basicTokens(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
		case unicode.In(r, unicode.Mn):
		case isWhitespace(r):
			b.WriteByte(' ')
		case isCJK(r) || isPunct(r):
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

// isPunct treats all non-alphanumeric ASCII symbols as punctuation, as BERT
// does, plus Unicode punctuation.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
