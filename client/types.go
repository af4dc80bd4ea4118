package client

// GrammarValidation is the response of the validate-grammar operation.
type GrammarValidation struct {
	Valid            bool     `json:"valid"`
	Errors           []string `json:"errors"`
	StartNonterminal string   `json:"start_nonterminal,omitempty"`
}

// CompletionSet groups the regex patterns accepted at the current position
// with concrete example strings for each.
type CompletionSet struct {
	Patterns []string `json:"patterns"`
	Examples []string `json:"examples"`
}

// DebugResult is the response of the debug-grammar operation: the parser
// state after feeding the input against the grammar.
type DebugResult struct {
	Valid              bool          `json:"valid"`
	Errors             []string      `json:"errors,omitempty"`
	CurrentText        string        `json:"current_text"`
	IsComplete         bool          `json:"is_complete"`
	Completions        CompletionSet `json:"completions"`
	WellTypedTreeCount int           `json:"well_typed_tree_count"`
	TypeError          string        `json:"type_error,omitempty"`
}

// PartialCheck is the response of the check-partial operation.
type PartialCheck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Completions is the response of the get-completions operation.
type Completions struct {
	CurrentText string   `json:"current_text"`
	Completions []string `json:"completions"`
	IsComplete  bool     `json:"is_complete"`
}

// ASTResult is the response of the parse-to-ast operation. Sexpr is only
// populated on success; Error explains a failed parse of an otherwise
// loadable grammar.
type ASTResult struct {
	Success     bool   `json:"success"`
	Sexpr       string `json:"sexpr,omitempty"`
	Error       string `json:"error,omitempty"`
	CurrentText string `json:"current_text"`
	IsComplete  bool   `json:"is_complete"`
}

// Health is the server health report.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Device   string `json:"device"`
	GPUName  string `json:"gpu_name,omitempty"`
	GPUCount string `json:"gpu_count,omitempty"`
}

// ModelInfo describes one generation model the server can load.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// GrammarInfo describes one built-in grammar.
type GrammarInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Short       string `json:"short"`
}

// GrammarSpec is one built-in grammar with its full source.
type GrammarSpec struct {
	Name string         `json:"name"`
	Spec string         `json:"spec"`
	Info map[string]any `json:"info,omitempty"`
}

// ConstrainedRequest opens a grammar-constrained generation stream.
// Initial, when set, is text the output must continue from; the server
// rejects it with an error event if it is not a valid prefix under the
// grammar. GrammarTokens is the budget for the constrained portion,
// separate from MaxTokens which bounds the model context growth.
type ConstrainedRequest struct {
	Spec           string `json:"spec"`
	Prompt         string `json:"prompt,omitempty"`
	Initial        string `json:"initial,omitempty"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
	GrammarTokens  int    `json:"grammar_tokens,omitempty"`
	StopOnComplete bool   `json:"stop_on_complete,omitempty"`
	MaskWhitespace bool   `json:"mask_whitespace"`
}

// UnconstrainedRequest opens a free generation stream for the same prompt.
type UnconstrainedRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}
