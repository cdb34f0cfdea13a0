package embedder

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// vocab is a WordPiece vocabulary. Token IDs are line numbers (0-indexed)
// of vocab.txt.
type vocab struct {
	ids    map[string]int64
	tokens []string

	pad, unk, cls, sep int64
}

func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()
	return readVocab(f)
}

func readVocab(r io.Reader) (*vocab, error) {
	v := &vocab{ids: make(map[string]int64, 32000)}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		tok := sc.Text()
		if _, dup := v.ids[tok]; !dup {
			v.ids[tok] = int64(len(v.tokens))
		}
		v.tokens = append(v.tokens, tok)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read error: %w", err)
	}
	if len(v.tokens) == 0 {
		return nil, fmt.Errorf("vocab: empty vocabulary")
	}

	for name, dest := range map[string]*int64{
		"[PAD]": &v.pad,
		"[UNK]": &v.unk,
		"[CLS]": &v.cls,
		"[SEP]": &v.sep,
	} {
		id, ok := v.ids[name]
		if !ok {
			return nil, fmt.Errorf("vocab: missing special token %s", name)
		}
		*dest = id
	}
	return v, nil
}

// id returns the ID for tok, or [UNK].
func (v *vocab) id(tok string) int64 {
	if id, ok := v.ids[tok]; ok {
		return id
	}
	return v.unk
}

func (v *vocab) has(tok string) bool {
	_, ok := v.ids[tok]
	return ok
}

func (v *vocab) size() int { return len(v.tokens) }
