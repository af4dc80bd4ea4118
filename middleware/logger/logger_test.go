package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/middleware"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRequestLogger(t *testing.T) {
	t.Run("logs request fields", func(t *testing.T) {
		log, buf := captureLogger()
		m := NewRequestLogger(log)

		req := &compare.StartRequest{GrammarName: "stlc", Model: "gpt2", Prompt: "\\x."}
		ctx := middleware.NewContext(context.Background(), req)

		if err := m.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "stlc") || !strings.Contains(out, "gpt2") {
			t.Errorf("log missing request fields: %s", out)
		}
	})

	t.Run("nil logger falls back to module logger", func(t *testing.T) {
		m := NewRequestLogger(nil)
		ctx := middleware.NewContext(context.Background(), &compare.StartRequest{})
		if err := m.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("nil request logs nothing", func(t *testing.T) {
		log, buf := captureLogger()
		m := NewRequestLogger(log)
		ctx := middleware.NewContext(context.Background(), nil)
		if err := m.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("expected no log for nil request, got: %s", buf.String())
		}
	})
}

func TestOutcomeLogger(t *testing.T) {
	t.Run("logs success with duration", func(t *testing.T) {
		log, buf := captureLogger()
		m := NewOutcomeLogger(log)

		ctx := middleware.NewContext(context.Background(), &compare.StartRequest{})
		if err := m.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "done") || !strings.Contains(out, "duration_ms") {
			t.Errorf("log missing outcome: %s", out)
		}
	})

	t.Run("logs failures and keeps the error", func(t *testing.T) {
		log, buf := captureLogger()
		m := NewOutcomeLogger(log)

		boom := errors.New("boom")
		ctx := middleware.NewContext(context.Background(), &compare.StartRequest{})
		err := m.Execute(ctx, func(c *middleware.Context) error { return boom })

		if !errors.Is(err, boom) {
			t.Errorf("error swallowed: %v", err)
		}
		if !strings.Contains(buf.String(), "failed") {
			t.Errorf("failure not logged: %s", buf.String())
		}
	})
}
