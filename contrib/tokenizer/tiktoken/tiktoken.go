// Package tiktoken provides an exact token counter backed by OpenAI's
// published BPE vocabularies. It satisfies tokenizer.Tokenizer, replacing
// the heuristic estimate wherever a real encoding is worth the download.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sweetpotato0/gramflow/tokenizer"
)

// Tokenizer counts tokens with a tiktoken BPE encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var _ tokenizer.Tokenizer = (*Tokenizer)(nil)

// New resolves name first as a model name, then as an encoding name
// ("cl100k_base", "o200k_base", ...).
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("resolve encoding %q: %w", name, err)
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token IDs for text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode reassembles text from token IDs.
func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}
