// Package grammar provides the local grammar library: a set of built-in
// grammar specs plus optional .grammar files loaded from a directory, with
// hot reload on file changes.
package grammar

import "strings"

// Grammar is one named grammar spec. Description comes from the leading
// comment line of the spec, StartNonterminal from the head of the first
// production.
type Grammar struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Spec             string `json:"spec"`
	StartNonterminal string `json:"start_nonterminal,omitempty"`
}

// Parse builds a Grammar from a spec. It does not validate the spec; that
// is the grammar server's job.
func Parse(name, spec string) Grammar {
	g := Grammar{Name: name, Spec: spec}
	for _, line := range strings.Split(spec, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			// Header comments before the first production describe the
			// grammar; later comments are ignored.
			if g.Description == "" && g.StartNonterminal == "" {
				g.Description = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			}
			continue
		}
		if idx := strings.Index(trimmed, "::="); idx >= 0 {
			g.StartNonterminal = strings.TrimSpace(trimmed[:idx])
			break
		}
	}
	return g
}
