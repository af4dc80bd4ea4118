package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/config"
	"github.com/sweetpotato0/gramflow/grammar"
	"github.com/sweetpotato0/gramflow/store"
)

// loadConfig builds the effective configuration: file and environment
// first, then the --server and --store overrides on top.
func loadConfig(configPath, serverURL, storeBackend string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if storeBackend != "" {
		cfg.Store.Backend = storeBackend
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.Server.BaseURL, client.WithTimeout(cfg.Server.Timeout()))
}

// openLibrary loads the local grammar library: built-ins plus the
// configured grammar directory.
func openLibrary(cfg *config.Config) (*grammar.Library, error) {
	return grammar.NewLibrary(cfg.GrammarDir)
}

// openStore opens the configured record store. Memory holds nothing
// across processes, so commands that browse history reject it.
func openStore(cfg *config.Config, requirePersistent bool) (store.Store, error) {
	backend := store.Backend(cfg.Store.Backend)
	if backend == "" || backend == store.BackendMemory {
		if requirePersistent {
			return nil, errors.New("no persistent store configured: set store.backend (or GRAMFLOW_STORE) to redis, mongo or postgres")
		}
		return nil, nil
	}
	return store.New(&store.Config{Backend: backend})
}

// readSpec resolves a grammar spec from a file path, with - (or empty)
// meaning stdin.
func readSpec(cmd *cobra.Command, file string) (string, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read grammar from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read grammar file: %w", err)
	}
	return string(data), nil
}

// resolveGrammar picks the spec for commands that accept either an
// explicit file (- for stdin) or a named library grammar. The returned
// name is empty for ad-hoc specs.
func resolveGrammar(cmd *cobra.Command, cfg *config.Config, file, name string) (spec, grammarName string, err error) {
	switch {
	case file != "":
		spec, err := readSpec(cmd, file)
		return spec, "", err
	case name != "":
		lib, err := openLibrary(cfg)
		if err != nil {
			return "", "", err
		}
		g, err := lib.Get(name)
		if err != nil {
			return "", "", err
		}
		return g.Spec, g.Name, nil
	default:
		return "", "", errors.New("a grammar is required: pass --grammar FILE (or - for stdin) or --grammar-name NAME")
	}
}
