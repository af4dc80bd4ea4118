// Package errorhandler lets callers intercept errors from the rest of the
// chain, to translate, suppress, or annotate them.
package errorhandler

import (
	"github.com/sweetpotato0/gramflow/middleware"
)

// HandlerFunc maps a chain error to the error the caller sees. Returning
// nil suppresses the error.
type HandlerFunc func(error) error

// ErrorHandler applies a HandlerFunc to errors from downstream.
type ErrorHandler struct {
	handler HandlerFunc
}

// New creates an error handling middleware.
func New(handler HandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name.
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute runs the rest of the chain and hands any error to the handler.
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		return m.handler(err)
	}
	return err
}
