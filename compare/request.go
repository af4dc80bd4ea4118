package compare

// Generation defaults mirror the server's: a 50-token budget with top-k 50
// sampling at temperature 1.0 on the smallest model.
const (
	DefaultModel       = "gpt2"
	DefaultMaxTokens   = 50
	DefaultTopK        = 50
	DefaultTemperature = 1.0
)

// StartRequest is everything one comparison needs: the grammar, the prompt
// both passes share, and the sampling knobs.
type StartRequest struct {
	// GrammarName labels the run in records and logs; empty for ad-hoc
	// grammar text.
	GrammarName string `json:"grammar_name,omitempty"`
	// Grammar is the spec source the constrained pass is masked by and the
	// diagnostic parses against.
	Grammar string `json:"grammar"`
	// Prompt seeds both passes.
	Prompt string `json:"prompt"`
	// Initial is constrained output to continue from. It must be a valid
	// prefix under the grammar or the server refuses the phase with an
	// error event.
	Initial string `json:"initial,omitempty"`
	Model   string `json:"model,omitempty"`
	// MaxTokens bounds each pass; zero means the 50-token default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// GrammarTokens is a separate budget for the constrained portion; zero
	// falls back to MaxTokens.
	GrammarTokens int     `json:"grammar_tokens,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	// StopOnComplete ends the constrained pass at the first complete
	// program instead of spending the whole budget.
	StopOnComplete bool `json:"stop_on_complete,omitempty"`
	// MaskWhitespace bans whitespace-only continuations during the
	// constrained pass. The gateway and the CLI default it to true the way
	// the server's own UI does; at this level false means false.
	MaskWhitespace bool `json:"mask_whitespace"`
}

// withDefaults fills in the server-side defaults, so records and logs show
// what actually ran rather than a zero.
func (r StartRequest) withDefaults() StartRequest {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.GrammarTokens <= 0 {
		r.GrammarTokens = r.MaxTokens
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}
