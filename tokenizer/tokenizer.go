// Package tokenizer estimates token counts for generation budgets. Exact
// counts belong to the model's own vocabulary; the heuristic here splits
// text roughly the way byte-pair vocabularies tend to, which is close
// enough to sanity-check a max_tokens or grammar_tokens budget. A real
// encoder lives in contrib/tokenizer/tiktoken.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer counts tokens the way a model-side vocabulary would.
type Tokenizer interface {
	CountTokens(text string) int
}

// Func adapts a plain counting function to the Tokenizer interface.
type Func func(text string) int

func (f Func) CountTokens(text string) int {
	return f(text)
}

// Heuristic is a stateless estimator: letter and digit runs count as one
// token each, every other non-space rune as its own. Program text in the
// grammars this serves (identifiers, keywords, heavy punctuation) lands
// near real subword counts; long natural-language words undercount a
// little.
type Heuristic struct{}

var _ Tokenizer = Heuristic{}

// NewHeuristic returns the shared estimator. It holds no state and is
// safe for concurrent use.
func NewHeuristic() Heuristic {
	return Heuristic{}
}

func (Heuristic) CountTokens(text string) int {
	return len(Split(text))
}

// Split breaks text on the boundaries CountTokens counts: whitespace
// separates, letter/digit runs stay whole, everything else stands alone.
func Split(text string) []string {
	var toks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			buf.WriteRune(r)
		default:
			flush()
			toks = append(toks, string(r))
		}
	}

	flush()
	return toks
}
