// Package defaults fills missing start request fields with the module's
// default model and budgets, so downstream middlewares and logs see the
// effective values.
package defaults

import (
	"fmt"

	"github.com/sweetpotato0/gramflow/compare"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/middleware"
)

// Defaults fills zero-valued request fields.
type Defaults struct {
	model         string
	maxTokens     int
	grammarTokens int
}

// New creates a defaults middleware. Empty model or non-positive budgets
// fall back to the compare package defaults.
func New(model string, maxTokens, grammarTokens int) *Defaults {
	if model == "" {
		model = compare.DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = compare.DefaultMaxTokens
	}
	if grammarTokens <= 0 {
		grammarTokens = maxTokens
	}
	return &Defaults{
		model:         model,
		maxTokens:     maxTokens,
		grammarTokens: grammarTokens,
	}
}

// Name returns the middleware name.
func (m *Defaults) Name() string {
	return "Defaults"
}

// Execute fills the request and continues the chain.
func (m *Defaults) Execute(ctx *middleware.Context, next middleware.Handler) error {
	req := ctx.Request
	if req == nil {
		return fmt.Errorf("%w: missing request", gferrors.ErrInvalidInput)
	}
	if req.Model == "" {
		req.Model = m.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = m.maxTokens
	}
	if req.GrammarTokens == 0 {
		req.GrammarTokens = m.grammarTokens
	}
	if req.TopK == 0 {
		req.TopK = compare.DefaultTopK
	}
	if req.Temperature == 0 {
		req.Temperature = compare.DefaultTemperature
	}
	return next(ctx)
}
