package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCompareCmd_Help(t *testing.T) {
	out, err := runCLI(t, "compare", "--help")
	if err != nil {
		t.Fatalf("compare --help failed: %v", err)
	}
	if !strings.Contains(out, "free pass") {
		t.Errorf("expected help to describe the free pass, got: %s", out)
	}
}

func TestCompareCmd_Flags(t *testing.T) {
	cmd := newCompareCmd()
	if cmd.Use != "compare <prompt>" {
		t.Errorf("Use = %q, want %q", cmd.Use, "compare <prompt>")
	}
	for _, name := range []string{
		"config", "server", "store", "grammar", "grammar-name",
		"model", "max-tokens", "grammar-tokens", "top-k", "temperature",
		"initial", "stop-on-complete", "mask-whitespace", "free-source", "json",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
	if mask := cmd.Flags().Lookup("mask-whitespace"); mask != nil && mask.DefValue != "true" {
		t.Errorf("mask-whitespace default = %q, want true", mask.DefValue)
	}
}

func TestCompareCmd_NoArgs(t *testing.T) {
	_, err := runCLI(t, "compare")
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
}

func TestCompareCmd_Live(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "expr ::= \"x\"\n")

	out, err := runCLI(t, "compare", "a typed expression", "--grammar", file, "--server", srv.URL)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}

	for _, want := range []string{
		"-- unconstrained --",
		"beep boop beep",
		"-- constrained --",
		"beep:Fizz + boop:Buzz",
		"-- free output vs grammar --",
		"in language: true",
		"done: stop=complete complete=true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Index(out, "-- unconstrained --") > strings.Index(out, "-- constrained --") {
		t.Error("unconstrained pass should print before constrained pass")
	}
}

func TestCompareCmd_LibraryGrammar(t *testing.T) {
	srv := newFakeGrammarServer(t)

	out, err := runCLI(t, "compare", "a typed expression", "--grammar-name", "toy", "--server", srv.URL)
	if err != nil {
		t.Fatalf("compare with library grammar failed: %v", err)
	}
	if !strings.Contains(out, "-- constrained --") {
		t.Errorf("expected constrained section, got:\n%s", out)
	}
}

func TestCompareCmd_JSON(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "expr ::= \"x\"\n")

	out, err := runCLI(t, "compare", "a typed expression", "--grammar", file, "--server", srv.URL, "--json")
	if err != nil {
		t.Fatalf("compare --json failed: %v", err)
	}

	var snap struct {
		Phase         string `json:"phase"`
		Unconstrained string `json:"unconstrained"`
		Constrained   string `json:"constrained"`
		StopReason    string `json:"stop_reason"`
		IsComplete    bool   `json:"is_complete"`
	}
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if snap.Phase != "done" {
		t.Errorf("phase = %q, want done", snap.Phase)
	}
	if snap.Unconstrained != "beep boop beep" {
		t.Errorf("unconstrained = %q", snap.Unconstrained)
	}
	if snap.Constrained != "beep:Fizz + boop:Buzz" {
		t.Errorf("constrained = %q", snap.Constrained)
	}
	if snap.StopReason != "complete" || !snap.IsComplete {
		t.Errorf("stop = %q complete = %v", snap.StopReason, snap.IsComplete)
	}
}

func TestCompareCmd_InvalidGrammar(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "not a grammar\n")

	_, err := runCLI(t, "compare", "p", "--grammar", file, "--server", srv.URL)
	if err == nil {
		t.Fatal("expected error for invalid grammar")
	}
}

func TestCompareCmd_BadTemperature(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "expr ::= \"x\"\n")

	_, err := runCLI(t, "compare", "p", "--grammar", file, "--server", srv.URL, "--temperature", "3.5")
	if err == nil {
		t.Fatal("expected error for out-of-range temperature")
	}
	if !strings.Contains(err.Error(), "invalid generation settings") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompareCmd_UnknownFreeSource(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "expr ::= \"x\"\n")

	_, err := runCLI(t, "compare", "p", "--grammar", file, "--server", srv.URL, "--free-source", "gemini")
	if err == nil {
		t.Fatal("expected error for unknown free source")
	}
	if !strings.Contains(err.Error(), "unknown free source") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompareCmd_FreeSourceNeedsKey(t *testing.T) {
	srv := newFakeGrammarServer(t)
	file := writeGrammarFile(t, "expr ::= \"x\"\n")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := runCLI(t, "compare", "p", "--grammar", file, "--server", srv.URL, "--free-source", "openai")
	if err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is unset")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("unexpected error: %v", err)
	}
}
