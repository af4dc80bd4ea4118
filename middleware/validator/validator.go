// Package validator checks start request fields before a session runs.
package validator

import (
	"fmt"
	"strings"

	"github.com/sweetpotato0/gramflow/compare"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/middleware"
)

// Validator rejects malformed start requests with ErrInvalidInput.
type Validator struct {
	models map[string]bool
}

// New creates a request validator. allowedModels restricts the model
// field; an empty list allows any model.
func New(allowedModels ...string) *Validator {
	v := &Validator{}
	if len(allowedModels) > 0 {
		v.models = make(map[string]bool, len(allowedModels))
		for _, m := range allowedModels {
			v.models[m] = true
		}
	}
	return v
}

// Name returns the middleware name.
func (m *Validator) Name() string {
	return "Validator"
}

// Execute validates the request and continues the chain.
func (m *Validator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := m.validate(ctx.Request); err != nil {
		return err
	}
	return next(ctx)
}

func (m *Validator) validate(req *compare.StartRequest) error {
	if req == nil {
		return fmt.Errorf("%w: missing request", gferrors.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Grammar) == "" && strings.TrimSpace(req.GrammarName) == "" {
		return fmt.Errorf("%w: grammar or grammar_name is required", gferrors.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", gferrors.ErrInvalidInput)
	}
	if req.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", gferrors.ErrInvalidInput)
	}
	if req.GrammarTokens < 0 {
		return fmt.Errorf("%w: grammar_tokens must not be negative", gferrors.ErrInvalidInput)
	}
	if req.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative", gferrors.ErrInvalidInput)
	}
	if req.Temperature < 0 {
		return fmt.Errorf("%w: temperature must not be negative", gferrors.ErrInvalidInput)
	}
	if m.models != nil && req.Model != "" && !m.models[req.Model] {
		return fmt.Errorf("%w: unknown model %q", gferrors.ErrInvalidInput, req.Model)
	}
	return nil
}
