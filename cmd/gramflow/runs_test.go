package main

import (
	"strings"
	"testing"
)

func TestRunsCmd_Help(t *testing.T) {
	out, err := runCLI(t, "runs", "--help")
	if err != nil {
		t.Fatalf("runs --help failed: %v", err)
	}
	for _, sub := range []string{"list", "show", "delete"} {
		if !strings.Contains(out, sub) {
			t.Errorf("runs help should list %q subcommand", sub)
		}
	}
}

func TestRunsListCmd_Flags(t *testing.T) {
	cmd := newRunsListCmd()
	if cmd.Flags().Lookup("limit") == nil {
		t.Error("expected --limit flag")
	}
	if cmd.Flags().Lookup("store") == nil {
		t.Error("expected --store flag")
	}
}

func TestRunsListCmd_NeedsPersistentStore(t *testing.T) {
	_, err := runCLI(t, "runs", "list")
	if err == nil {
		t.Fatal("expected error without a persistent store")
	}
	if !strings.Contains(err.Error(), "no persistent store configured") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunsShowCmd_NoArgs(t *testing.T) {
	_, err := runCLI(t, "runs", "show")
	if err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestRunsDeleteCmd_NoArgs(t *testing.T) {
	_, err := runCLI(t, "runs", "delete")
	if err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestRunsCmd_UnknownBackend(t *testing.T) {
	_, err := runCLI(t, "runs", "list", "--store", "sqlite")
	if err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}
