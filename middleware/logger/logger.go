// Package logger provides middlewares that log start requests and their
// outcomes through the module's slog setup.
package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/gramflow/middleware"
	"github.com/sweetpotato0/gramflow/pkg/logging"
)

// RequestLogger logs each start request before it runs.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware. A nil logger
// falls back to the module logger.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("middleware")
	}
	return &RequestLogger{logger: logger}
}

// Name returns the middleware name.
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute logs the request and continues the chain.
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if req := ctx.Request; req != nil {
		m.logger.Info("compare request",
			"grammar", req.GrammarName,
			"model", req.Model,
			"prompt_len", len(req.Prompt),
			"max_tokens", req.MaxTokens,
			"grammar_tokens", req.GrammarTokens,
		)
	}
	return next(ctx)
}

// OutcomeLogger logs how each request ended, with the chain duration.
type OutcomeLogger struct {
	logger *slog.Logger
}

// NewOutcomeLogger creates an outcome logging middleware. A nil logger
// falls back to the module logger.
func NewOutcomeLogger(logger *slog.Logger) *OutcomeLogger {
	if logger == nil {
		logger = logging.WithComponent("middleware")
	}
	return &OutcomeLogger{logger: logger}
}

// Name returns the middleware name.
func (m *OutcomeLogger) Name() string {
	return "OutcomeLogger"
}

// Execute runs the rest of the chain and logs the outcome.
func (m *OutcomeLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	duration := time.Since(ctx.StartedAt)
	if err != nil {
		m.logger.Warn("compare request failed",
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.logger.Info("compare request done",
			"duration_ms", duration.Milliseconds(),
		)
	}
	return err
}
